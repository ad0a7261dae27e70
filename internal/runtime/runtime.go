// Package runtime bounds how much work the tool server does at once: tool
// calls, spreadsheets held in memory, and hosted-model requests.
package runtime

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vinodismyname/kpibrief/config"
	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

// Limits are the guardrails a Controller enforces.
type Limits struct {
	MaxConcurrentRequests  int
	MaxOpenWorkbooks       int
	MaxConcurrentSummaries int

	PreviewRowLimit int
	MaxPreviewRows  int

	OperationTimeout      time.Duration
	AcquireRequestTimeout time.Duration
}

// LimitsFromConfig copies the server guardrails out of cfg, filling unset
// values from the defaults.
func LimitsFromConfig(cfg config.Config) Limits {
	def := config.Default()
	s := cfg.Server
	pick := func(v, fallback int) int {
		if v <= 0 {
			return fallback
		}
		return v
	}
	l := Limits{
		MaxConcurrentRequests:  pick(s.MaxConcurrentRequests, def.Server.MaxConcurrentRequests),
		MaxOpenWorkbooks:       pick(s.MaxOpenWorkbooks, def.Server.MaxOpenWorkbooks),
		MaxConcurrentSummaries: pick(s.MaxConcurrentSummaries, def.Server.MaxConcurrentSummaries),
		PreviewRowLimit:        pick(s.PreviewRowLimit, def.Server.PreviewRowLimit),
		MaxPreviewRows:         pick(s.MaxPreviewRows, def.Server.MaxPreviewRows),
		OperationTimeout:       cfg.OperationTimeout,
		AcquireRequestTimeout:  s.AcquireRequestTimeout,
	}
	if l.OperationTimeout <= 0 {
		l.OperationTimeout = def.OperationTimeout
	}
	if l.PreviewRowLimit > l.MaxPreviewRows {
		l.PreviewRowLimit = l.MaxPreviewRows
	}
	return l
}

// NewLimits returns the default limits with the two concurrency caps
// overridden when positive.
func NewLimits(maxConcurrentRequests, maxOpenWorkbooks int) Limits {
	cfg := config.Default()
	if maxConcurrentRequests > 0 {
		cfg.Server.MaxConcurrentRequests = maxConcurrentRequests
	}
	if maxOpenWorkbooks > 0 {
		cfg.Server.MaxOpenWorkbooks = maxOpenWorkbooks
	}
	return LimitsFromConfig(cfg)
}

// Controller holds one weighted semaphore per guarded resource.
type Controller struct {
	limits    Limits
	requests  *semaphore.Weighted
	workbooks *semaphore.Weighted
	summaries *semaphore.Weighted
}

// NewController constructs a Controller sized by limits.
func NewController(limits Limits) *Controller {
	return &Controller{
		limits:    limits,
		requests:  semaphore.NewWeighted(int64(limits.MaxConcurrentRequests)),
		workbooks: semaphore.NewWeighted(int64(limits.MaxOpenWorkbooks)),
		summaries: semaphore.NewWeighted(int64(max(limits.MaxConcurrentSummaries, 1))),
	}
}

// AcquireRequest reserves a tool-call slot.
func (c *Controller) AcquireRequest(ctx context.Context) error {
	return c.requests.Acquire(ctx, 1)
}

func (c *Controller) ReleaseRequest() { c.requests.Release(1) }

// AcquireWorkbook reserves a slot for reading a spreadsheet into memory.
func (c *Controller) AcquireWorkbook(ctx context.Context) error {
	return c.workbooks.Acquire(ctx, 1)
}

func (c *Controller) ReleaseWorkbook() { c.workbooks.Release(1) }

// AcquireSummary reserves a hosted-model request slot.
func (c *Controller) AcquireSummary(ctx context.Context) error {
	return c.summaries.Acquire(ctx, 1)
}

func (c *Controller) ReleaseSummary() { c.summaries.Release(1) }

// LimitsSnapshot returns the configured guardrails.
func (c *Controller) LimitsSnapshot() Limits {
	return c.limits
}

// Summarizer matches pipeline.Summarizer.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// GateSummarizer wraps s so that concurrent calls share the summary slots.
// A caller whose context ends while waiting gets ErrExternalService.
func (c *Controller) GateSummarizer(s Summarizer) Summarizer {
	return gatedSummarizer{ctrl: c, next: s}
}

type gatedSummarizer struct {
	ctrl *Controller
	next Summarizer
}

func (g gatedSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	if err := g.ctrl.AcquireSummary(ctx); err != nil {
		return "", fmt.Errorf("waiting for a summary slot: %w: %w", mcperr.ErrExternalService, err)
	}
	defer g.ctrl.ReleaseSummary()
	return g.next.Summarize(ctx, prompt)
}
