// Package telemetry logs run lifecycles and tool server traffic.
package telemetry

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

// Hooks receives pipeline lifecycle callbacks and writes them as structured
// log events.
type Hooks struct {
	logger zerolog.Logger
}

// NewHooks constructs a Hooks instance with the provided logger.
func NewHooks(logger zerolog.Logger) *Hooks {
	return &Hooks{logger: logger}
}

// Nop returns hooks that discard everything.
func Nop() *Hooks { return &Hooks{logger: zerolog.Nop()} }

// OnRunStart is called before a run loads its input.
func (h *Hooks) OnRunStart(runID, path string) {
	h.logger.Info().Str("run_id", runID).Str("path", path).Msg("run started")
}

// OnStep logs one pipeline step and its outcome.
func (h *Hooks) OnStep(runID, step string, duration time.Duration, err error) {
	if err != nil {
		h.logger.Error().
			Str("run_id", runID).
			Str("step", step).
			Dur("duration", duration).
			Str("code", string(mcperr.CodeOf(err))).
			Err(err).
			Msg("step failed")
		return
	}
	h.logger.Debug().Str("run_id", runID).Str("step", step).Dur("duration", duration).Msg("step completed")
}

// OnRunEnd records the final outcome and the artifacts written.
func (h *Hooks) OnRunEnd(runID string, duration time.Duration, artifacts []string, err error) {
	if err != nil {
		h.logger.Error().Str("run_id", runID).Dur("duration", duration).Err(err).Msg("run failed")
		return
	}
	h.logger.Info().Str("run_id", runID).Dur("duration", duration).Strs("artifacts", artifacts).Msg("run completed")
}

// Step times fn and reports it through OnStep. A nil receiver just runs fn.
func (h *Hooks) Step(runID, step string, fn func() error) error {
	start := time.Now()
	err := fn()
	if h != nil {
		h.OnStep(runID, step, time.Since(start), err)
	}
	return err
}

// ServerHooks builds mcp-go hooks that log sessions, tool calls and errors.
func ServerHooks(logger zerolog.Logger) *server.Hooks {
	hooks := &server.Hooks{}

	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		logger.Info().Str("session_id", session.SessionID()).Msg("session registered")
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		logger.Info().Str("session_id", session.SessionID()).Msg("session unregistered")
	})

	hooks.AddAfterListTools(func(ctx context.Context, id any, req *mcp.ListToolsRequest, res *mcp.ListToolsResult) {
		logger.Info().Int("tools", len(res.Tools)).Msg("list_tools served")
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, res *mcp.CallToolResult) {
		evt := logger.Info()
		if res != nil && res.IsError {
			evt = logger.Warn()
		}
		evt.Str("tool", req.Params.Name).Msg("tool call served")
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		logger.Error().Str("method", string(method)).Err(err).Msg("request error")
	})

	return hooks
}
