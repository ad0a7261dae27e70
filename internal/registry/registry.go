// Package registry defines the kpibrief MCP tools and keeps the catalog used
// for discovery and write gating.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Entry is one catalogued tool.
type Entry struct {
	Tool mcp.Tool
	// Writes marks tools that create files on disk.
	Writes bool
}

// Registry is the catalog of tools the server exposes.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func New() *Registry {
	return &Registry{entries: map[string]Entry{}}
}

// Register catalogues tool without serving it.
func (r *Registry) Register(tool mcp.Tool, writes bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[tool.Name] = Entry{Tool: tool, Writes: writes}
}

// Add serves tool on s and catalogues it.
func (r *Registry) Add(s *server.MCPServer, tool mcp.Tool, handler server.ToolHandlerFunc, writes bool) {
	s.AddTool(tool, handler)
	r.Register(tool, writes)
}

func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Writes reports whether name is a catalogued file-writing tool.
func (r *Registry) Writes(name string) bool {
	e, ok := r.Get(name)
	return ok && e.Writes
}

// Tools returns the catalogued tools sorted by name.
func (r *Registry) Tools(ctx context.Context) ([]mcp.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]mcp.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		tools = append(tools, e.Tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}
