package registry

import (
	"context"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// EnableWritesEnv turns on tools that write files.
const EnableWritesEnv = "KPIBRIEF_ENABLE_WRITES"

// WriteToolFilter hides the registry's file-writing tools from list_tools
// unless writes are enabled.
type WriteToolFilter struct {
	reg         *Registry
	allowWrites bool
}

func NewWriteToolFilter(reg *Registry, allowWrites bool) *WriteToolFilter {
	return &WriteToolFilter{reg: reg, allowWrites: allowWrites}
}

// NewWriteToolFilterFromEnv reads KPIBRIEF_ENABLE_WRITES (1, true or yes).
func NewWriteToolFilterFromEnv(reg *Registry) *WriteToolFilter {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(EnableWritesEnv)))
	return NewWriteToolFilter(reg, v == "1" || v == "true" || v == "yes")
}

func (f *WriteToolFilter) AllowWrites() bool { return f.allowWrites }

// FilterTools matches server.ToolFilterFunc.
func (f *WriteToolFilter) FilterTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	if f.allowWrites || f.reg == nil {
		return tools
	}
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if f.reg.Writes(t.Name) {
			continue
		}
		out = append(out, t)
	}
	return out
}
