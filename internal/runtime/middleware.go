package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

// Middleware applies the Controller's request limits to every tool call.
type Middleware struct {
	ctrl *Controller
}

func NewMiddleware(ctrl *Controller) *Middleware {
	return &Middleware{ctrl: ctrl}
}

// ToolMiddleware takes a request slot, bounds the call by the operation
// timeout and tags the context logger with the tool name and a call id.
// Saturation, deadlines and plain Go errors from the handler all come back
// as coded tool errors rather than protocol errors.
func (m *Middleware) ToolMiddleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limits := m.ctrl.limits
		logger := zerolog.Ctx(ctx).With().
			Str("tool", req.Params.Name).
			Str("call_id", uuid.NewString()).
			Logger()
		ctx = logger.WithContext(ctx)

		acquireCtx := ctx
		if limits.AcquireRequestTimeout > 0 {
			var cancel context.CancelFunc
			acquireCtx, cancel = context.WithTimeout(ctx, limits.AcquireRequestTimeout)
			defer cancel()
		}
		if err := m.ctrl.AcquireRequest(acquireCtx); err != nil {
			logger.Warn().Int("max", limits.MaxConcurrentRequests).Msg("request slots exhausted")
			return mcperr.Wrapf(mcperr.BusyResource, "concurrent request limit reached (max=%d)", limits.MaxConcurrentRequests), nil
		}
		defer m.ctrl.ReleaseRequest()

		callCtx := ctx
		if limits.OperationTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, limits.OperationTimeout)
			defer cancel()
		}

		start := time.Now()
		res, err := next(callCtx, req)
		elapsed := time.Since(start)

		switch {
		case errors.Is(err, context.DeadlineExceeded),
			err == nil && res == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
			logger.Warn().Dur("elapsed", elapsed).Msg("tool call timed out")
			return mcperr.New(mcperr.Timeout, ""), nil
		case err != nil:
			logger.Error().Err(err).Dur("elapsed", elapsed).Msg("tool call failed")
			return mcperr.FromError(err), nil
		}
		logger.Debug().Dur("elapsed", elapsed).Bool("is_error", res != nil && res.IsError).Msg("tool call finished")
		return res, nil
	}
}
