// Package pipeline runs a complete pass over one spreadsheet: load, profile,
// write kpis.json, render the prompt, summarize, and export the report.
// Every failure is terminal for the run; artifacts written before the failing
// step are left on disk.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/kpibrief/config"
	"github.com/vinodismyname/kpibrief/internal/frame"
	"github.com/vinodismyname/kpibrief/internal/kpi"
	"github.com/vinodismyname/kpibrief/internal/profiling"
	"github.com/vinodismyname/kpibrief/internal/prompt"
	"github.com/vinodismyname/kpibrief/internal/report"
	"github.com/vinodismyname/kpibrief/internal/summarizer"
	"github.com/vinodismyname/kpibrief/internal/telemetry"
	"github.com/vinodismyname/kpibrief/internal/workbooks"
	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

// Summarizer turns a prompt into narrative text.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Request describes one run.
type Request struct {
	Path  string
	Sheet string

	Selection profiling.Selection
	// FilterValues keeps only rows whose category column holds one of these
	// values. It requires Selection.Category.
	FilterValues []string

	// OutputDir overrides config.OutputDir.
	OutputDir string
	// SkipSummary stops after summary_prompt.txt is written.
	SkipSummary bool
}

// Artifact is a file written by a run.
type Artifact struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// Analysis is the in-memory result of profiling one dataset.
type Analysis struct {
	Dataset   *workbooks.Dataset
	Frame     *frame.Frame // filtered copy, with derived columns
	Schema    *profiling.Schema
	Selection profiling.Selection
	Payload   *kpi.Payload
	Dashboard *profiling.Dashboard
}

// Result is everything a completed run produced.
type Result struct {
	RunID     string
	Analysis  *Analysis
	Prompt    string
	Summary   string
	Artifacts []Artifact
	Elapsed   time.Duration
}

// Runner executes runs. It holds no per-run state and may be shared.
type Runner struct {
	cfg        config.Config
	loader     *workbooks.Loader
	inferer    *profiling.Inferer
	aggregator *profiling.Aggregator
	summarizer Summarizer
	hooks      *telemetry.Hooks
}

// New builds a Runner. A nil summarizer gets the hosted-model client for
// cfg.Service; nil hooks discard step events.
func New(cfg config.Config, loader *workbooks.Loader, sum Summarizer, hooks *telemetry.Hooks) *Runner {
	if loader == nil {
		loader = workbooks.NewLoader(nil, nil)
	}
	if sum == nil {
		sum = summarizer.New(cfg.Service)
	}
	if hooks == nil {
		hooks = telemetry.Nop()
	}
	if cfg.ReportTitle == "" {
		cfg.ReportTitle = config.DefaultReportTitle
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = config.DefaultOutputDir
	}
	return &Runner{
		cfg:        cfg,
		loader:     loader,
		inferer:    profiling.NewInferer(cfg.Thresholds),
		aggregator: profiling.NewAggregator(cfg.Aggregation),
		summarizer: sum,
		hooks:      hooks,
	}
}

// Analyze profiles ds under the request's selection and filter. ds.Frame is
// not modified.
func (r *Runner) Analyze(ds *workbooks.Dataset, req Request) (*Analysis, error) {
	f := ds.Frame.Slice(0, ds.Frame.Rows())

	schema, err := r.inferer.Infer(f)
	if err != nil {
		return nil, err
	}
	sel, err := r.aggregator.Resolve(f, schema, req.Selection)
	if err != nil {
		return nil, err
	}

	if len(req.FilterValues) > 0 {
		if sel.Category == "" {
			return nil, fmt.Errorf("filter values need a category column: %w", mcperr.ErrInvalidSelection)
		}
		f, err = f.Filter(sel.Category, req.FilterValues)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w: %w", mcperr.ErrInvalidSelection, err)
		}
	}
	if f.Rows() == 0 {
		return nil, fmt.Errorf("pipeline: no rows left in %s: %w", ds.Sheet, mcperr.ErrEmptySelection)
	}

	p, err := r.aggregator.Profile(f, schema)
	if err != nil {
		return nil, err
	}
	if err := r.aggregator.ApplySelection(p, f, sel); err != nil {
		return nil, err
	}
	r.aggregator.Orders(p, f)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	dash, err := r.aggregator.Dashboard(p, f, sel)
	if err != nil {
		return nil, err
	}
	return &Analysis{Dataset: ds, Frame: f, Schema: schema, Selection: sel, Payload: p, Dashboard: dash}, nil
}

// Run executes every step for req and returns what was produced.
func (r *Runner) Run(ctx context.Context, req Request) (res *Result, err error) {
	runID := uuid.NewString()
	logger := zerolog.Ctx(ctx).With().Str("run_id", runID).Logger()
	ctx = logger.WithContext(ctx)

	if r.cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.OperationTimeout)
		defer cancel()
	}

	start := time.Now()
	res = &Result{RunID: runID}
	r.hooks.OnRunStart(runID, req.Path)
	defer func() {
		res.Elapsed = time.Since(start)
		r.hooks.OnRunEnd(runID, res.Elapsed, artifactNames(res.Artifacts), err)
	}()

	dir := req.OutputDir
	if dir == "" {
		dir = r.cfg.OutputDir
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return res, fmt.Errorf("pipeline: output dir: %w: %w", mcperr.ErrExportFailed, err)
	}
	out := func(name string) string { return filepath.Join(dir, name) }

	var ds *workbooks.Dataset
	if err = r.hooks.Step(runID, "load", func() (e error) {
		ds, e = r.loader.Load(ctx, req.Path, req.Sheet)
		return e
	}); err != nil {
		return res, err
	}

	if err = r.hooks.Step(runID, "analyze", func() (e error) {
		res.Analysis, e = r.Analyze(ds, req)
		return e
	}); err != nil {
		return res, err
	}

	if err = r.hooks.Step(runID, "write_kpis", func() error {
		return kpi.Save(out(config.KPIFile), res.Analysis.Payload)
	}); err != nil {
		return res, err
	}
	res.add(config.KPIFile, out(config.KPIFile))

	if err = r.hooks.Step(runID, "write_dashboard", func() error {
		return writeJSON(out(config.DashboardFile), res.Analysis.Dashboard)
	}); err != nil {
		return res, err
	}
	res.add(config.DashboardFile, out(config.DashboardFile))

	// The prompt is rendered from the file on disk so kpis.json stays the
	// single hand-off between profiling and summarization.
	if err = r.hooks.Step(runID, "build_prompt", func() (e error) {
		if res.Prompt, e = prompt.BuildFromFile(out(config.KPIFile)); e != nil {
			return e
		}
		return writeText(out(config.PromptFile), res.Prompt)
	}); err != nil {
		return res, err
	}
	res.add(config.PromptFile, out(config.PromptFile))

	if req.SkipSummary {
		logger.Info().Msg("summary skipped")
		return res, nil
	}

	if err = r.hooks.Step(runID, "summarize", func() (e error) {
		if res.Summary, e = r.summarizer.Summarize(ctx, res.Prompt); e != nil {
			return e
		}
		return writeText(out(config.SummaryFile), res.Summary)
	}); err != nil {
		return res, err
	}
	res.add(config.SummaryFile, out(config.SummaryFile))

	files := report.Files{PDF: out(config.PDFFile), DOCX: out(config.DOCXFile), HTML: out(config.HTMLFile)}
	if err = r.hooks.Step(runID, "export", func() error {
		if e := report.Export(res.Summary, r.cfg.ReportTitle, files); e != nil {
			return fmt.Errorf("pipeline: %w: %w", mcperr.ErrExportFailed, e)
		}
		return nil
	}); err != nil {
		return res, err
	}
	res.add(config.PDFFile, files.PDF)
	res.add(config.DOCXFile, files.DOCX)
	res.add(config.HTMLFile, files.HTML)
	return res, nil
}

func (res *Result) add(name, path string) {
	a := Artifact{Name: name, Path: path}
	if st, err := os.Stat(path); err == nil {
		a.Bytes = st.Size()
	}
	res.Artifacts = append(res.Artifacts, a)
}

func artifactNames(as []Artifact) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.Name
	}
	return out
}

func writeText(path, s string) error {
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		return fmt.Errorf("pipeline: write %s: %w: %w", filepath.Base(path), mcperr.ErrExportFailed, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("pipeline: encode %s: %w", filepath.Base(path), err)
	}
	return writeText(path, string(b))
}
