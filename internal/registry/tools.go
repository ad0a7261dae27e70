package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/kpibrief/internal/kpi"
	"github.com/vinodismyname/kpibrief/internal/pipeline"
	"github.com/vinodismyname/kpibrief/internal/profiling"
	"github.com/vinodismyname/kpibrief/internal/prompt"
	"github.com/vinodismyname/kpibrief/internal/runtime"
	"github.com/vinodismyname/kpibrief/internal/workbooks"
	"github.com/vinodismyname/kpibrief/pkg/mcperr"
	"github.com/vinodismyname/kpibrief/pkg/pagination"
	"github.com/vinodismyname/kpibrief/pkg/validation"
)

// Tool names.
const (
	ToolProfileDataset = "profile_dataset"
	ToolPreviewRows    = "preview_rows"
	ToolBuildPrompt    = "build_prompt"
	ToolGenerateReport = "generate_report"
	ToolCloseDataset   = "close_dataset"
)

// --- Input / Output Schemas (typed for discovery) ---

// SelectionInput picks the columns a profile focuses on.
type SelectionInput struct {
	Metric       string   `json:"metric,omitempty" validate:"column" jsonschema_description:"Numeric column to focus on; defaults to the first numeric column"`
	Category     string   `json:"category,omitempty" validate:"column" jsonschema_description:"Categorical column for the breakdown"`
	Date         string   `json:"date,omitempty" validate:"column" jsonschema_description:"Date-like column for the trend"`
	FilterValues []string `json:"filter_values,omitempty" validate:"omitempty,max=200" jsonschema_description:"Keep only rows whose category is one of these values"`
}

func (s SelectionInput) selection() profiling.Selection {
	return profiling.Selection{Metric: s.Metric, Category: s.Category, Date: s.Date}
}

// ProfileDatasetInput defines parameters for profile_dataset.
type ProfileDatasetInput struct {
	Path  string `json:"path" validate:"required,spreadsheet_ext" jsonschema_description:"Absolute or allowed path to a .xlsx or .csv file"`
	Sheet string `json:"sheet,omitempty" jsonschema_description:"Sheet name; defaults to the first sheet"`
	SelectionInput
}

// ColumnInfo is one inferred column.
type ColumnInfo struct {
	Name        string   `json:"name"`
	Role        kpi.Role `json:"role"`
	NonNull     int      `json:"non_null"`
	Unique      int      `json:"unique"`
	DerivedFrom string   `json:"derived_from,omitempty"`
}

// ProfileDatasetOutput documents the response of profile_dataset.
type ProfileDatasetOutput struct {
	HandleID  string               `json:"handle_id"`
	Path      string               `json:"path"`
	Sheet     string               `json:"sheet"`
	HeaderRow int                  `json:"header_row"`
	Selection profiling.Selection  `json:"selection"`
	Columns   []ColumnInfo         `json:"columns"`
	Payload   *kpi.Payload         `json:"kpis"`
	Dashboard *profiling.Dashboard `json:"dashboard"`
}

// PreviewRowsInput defines parameters for preview_rows. A cursor takes
// precedence over every other field.
type PreviewRowsInput struct {
	Path         string   `json:"path,omitempty" validate:"required_without=Cursor" jsonschema_description:"Absolute or allowed path to a .xlsx or .csv file"`
	Sheet        string   `json:"sheet,omitempty" jsonschema_description:"Sheet name; defaults to the first sheet"`
	Rows         int      `json:"rows,omitempty" validate:"omitempty,min=1" jsonschema_description:"Rows per page (bounded by the server)"`
	Category     string   `json:"category,omitempty" validate:"column" jsonschema_description:"Column to filter on"`
	FilterValues []string `json:"filter_values,omitempty" validate:"omitempty,max=200" jsonschema_description:"Values kept by the filter"`
	Cursor       string   `json:"cursor,omitempty" validate:"omitempty,cursor" jsonschema_description:"Opaque cursor from a previous page"`
}

// PageMeta captures paging metadata.
type PageMeta struct {
	Offset     int    `json:"offset"`
	Total      int    `json:"total"`
	Returned   int    `json:"returned"`
	Truncated  bool   `json:"truncated"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// PreviewRowsOutput documents the response of preview_rows.
type PreviewRowsOutput struct {
	HandleID  string     `json:"handle_id"`
	Path      string     `json:"path"`
	Sheet     string     `json:"sheet"`
	HeaderRow int        `json:"header_row"`
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	Meta      PageMeta   `json:"meta"`
}

// BuildPromptInput defines parameters for build_prompt.
type BuildPromptInput struct {
	Path  string `json:"path" validate:"required,spreadsheet_ext" jsonschema_description:"Absolute or allowed path to a .xlsx or .csv file"`
	Sheet string `json:"sheet,omitempty" jsonschema_description:"Sheet name; defaults to the first sheet"`
	SelectionInput
}

// BuildPromptOutput documents the response of build_prompt.
type BuildPromptOutput struct {
	Prompt string `json:"prompt"`
	Chars  int    `json:"chars"`
}

// GenerateReportInput defines parameters for generate_report.
type GenerateReportInput struct {
	Path        string `json:"path" validate:"required,spreadsheet_ext" jsonschema_description:"Absolute or allowed path to a .xlsx or .csv file"`
	Sheet       string `json:"sheet,omitempty" jsonschema_description:"Sheet name; defaults to the first sheet"`
	OutputDir   string `json:"output_dir" validate:"required" jsonschema_description:"Existing allowed directory that receives the artifacts"`
	SkipSummary bool   `json:"skip_summary,omitempty" jsonschema_description:"Stop after writing the prompt; no model call"`
	SelectionInput
}

// GenerateReportOutput documents the response of generate_report.
type GenerateReportOutput struct {
	RunID     string              `json:"run_id"`
	Artifacts []pipeline.Artifact `json:"artifacts"`
	Summary   string              `json:"summary,omitempty"`
	ElapsedMS int64               `json:"elapsed_ms"`
}

// CloseDatasetInput defines parameters for close_dataset.
type CloseDatasetInput struct {
	HandleID string `json:"handle_id" validate:"required" jsonschema_description:"Handle returned by profile_dataset or preview_rows"`
}

// OutputDirValidator checks report output directories.
type OutputDirValidator interface {
	ValidateOutputDir(dir string) (string, error)
}

// Deps are the collaborators the tool handlers need.
type Deps struct {
	Cache       *workbooks.Cache
	Runner      *pipeline.Runner
	Limits      runtime.Limits
	OutputDirs  OutputDirValidator // nil allows any directory
	AllowWrites bool
}

// Handlers implements the tool handlers.
type Handlers struct {
	deps Deps
}

// NewHandlers returns handlers bound to deps.
func NewHandlers(deps Deps) *Handlers {
	if deps.Limits.PreviewRowLimit <= 0 || deps.Limits.MaxPreviewRows <= 0 {
		deps.Limits = runtime.NewLimits(deps.Limits.MaxConcurrentRequests, deps.Limits.MaxOpenWorkbooks)
	}
	return &Handlers{deps: deps}
}

// RegisterTools serves every kpibrief tool on s and catalogues it in reg.
func RegisterTools(s *server.MCPServer, reg *Registry, h *Handlers) {
	profile := mcp.NewTool(
		ToolProfileDataset,
		mcp.WithDescription("Load a spreadsheet, detect its header row, infer column roles (numeric, percentage, date, categorical) and return the KPI payload plus dashboard view model. Optional metric, category and date select the focus; filter_values keeps only rows whose category matches. Errors: INPUT_NOT_FOUND, UNSUPPORTED_FORMAT, NO_NUMERIC_COLUMN, VALIDATION, EMPTY_SELECTION."),
		mcp.WithInputSchema[ProfileDatasetInput](),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	reg.Add(s, profile, mcp.NewTypedToolHandler(h.ProfileDataset), false)

	preview := mcp.NewTool(
		ToolPreviewRows,
		mcp.WithDescription("Return a bounded page of data rows below the detected header. Pass cursor from meta.nextCursor to continue; the cursor carries path, sheet and filter and is rejected when the file changed."),
		mcp.WithInputSchema[PreviewRowsInput](),
		mcp.WithOutputSchema[PreviewRowsOutput](),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	reg.Add(s, preview, mcp.NewTypedToolHandler(h.PreviewRows), false)

	buildPrompt := mcp.NewTool(
		ToolBuildPrompt,
		mcp.WithDescription("Profile a spreadsheet and render the narrative prompt that generate_report would send to the model. Nothing is written and no model is called."),
		mcp.WithInputSchema[BuildPromptInput](),
		mcp.WithOutputSchema[BuildPromptOutput](),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	reg.Add(s, buildPrompt, mcp.NewTypedToolHandler(h.BuildPrompt), false)

	generate := mcp.NewTool(
		ToolGenerateReport,
		mcp.WithDescription("Run the full pipeline and write kpis.json, dashboard.json, summary_prompt.txt, ai_summary.txt, AI_Report.pdf, AI_Report.docx and AI_Report.html into output_dir. Requires an API key in the server environment unless skip_summary is set. Errors: CREDENTIAL_MISSING, EXTERNAL_SERVICE, plus the profile_dataset errors."),
		mcp.WithInputSchema[GenerateReportInput](),
		mcp.WithOutputSchema[GenerateReportOutput](),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)
	reg.Add(s, generate, mcp.NewTypedToolHandler(h.GenerateReport), true)

	closeTool := mcp.NewTool(
		ToolCloseDataset,
		mcp.WithDescription("Drop a cached dataset handle"),
		mcp.WithInputSchema[CloseDatasetInput](),
		mcp.WithOutputSchema[struct {
			Success bool `json:"success" jsonschema_description:"True when the handle was closed"`
		}](),
	)
	reg.Add(s, closeTool, mcp.NewTypedToolHandler(h.CloseDataset), false)
}

// ProfileDataset handles profile_dataset.
func (h *Handlers) ProfileDataset(ctx context.Context, req mcp.CallToolRequest, in ProfileDatasetInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcp.NewToolResultError(msg), nil
	}
	handle, a, err := h.analyze(ctx, in.Path, in.Sheet, in.SelectionInput)
	if err != nil {
		return mcperr.FromError(err), nil
	}

	out := ProfileDatasetOutput{
		HandleID:  handle.ID,
		Path:      handle.Dataset.Path,
		Sheet:     handle.Dataset.Sheet,
		HeaderRow: handle.Dataset.HeaderRow,
		Selection: a.Selection,
		Payload:   a.Payload,
		Dashboard: a.Dashboard,
	}
	for _, c := range a.Schema.Columns {
		out.Columns = append(out.Columns, ColumnInfo{Name: c.Name, Role: c.Role, NonNull: c.NonNull, Unique: c.Unique, DerivedFrom: c.DerivedFrom})
	}

	summary := fmt.Sprintf("rows=%d cols=%d metric=%s missing=%.1f%% duplicates=%d", a.Payload.TotalRows, a.Payload.TotalColumns, a.Selection.Metric, a.Payload.MissingPct, a.Payload.DuplicateRows)
	body, err := kpi.Marshal(a.Payload)
	if err != nil {
		return mcperr.FromError(err), nil
	}
	return structured(out, summary+"\n"+string(body)), nil
}

// PreviewRows handles preview_rows.
func (h *Handlers) PreviewRows(ctx context.Context, req mcp.CallToolRequest, in PreviewRowsInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcp.NewToolResultError(msg), nil
	}

	path, sheet, category, values := in.Path, in.Sheet, in.Category, in.FilterValues
	offset, pageSize := 0, in.Rows
	var cur *pagination.Cursor
	if strings.TrimSpace(in.Cursor) != "" {
		c, err := pagination.DecodeCursor(in.Cursor)
		if err != nil {
			return mcperr.FromError(err), nil
		}
		cur = c
		path, sheet, category, values = c.P, c.S, c.C, c.Fv
		offset, pageSize = c.Off, c.Ps
	}
	if pageSize <= 0 {
		pageSize = h.deps.Limits.PreviewRowLimit
	}
	if pageSize > h.deps.Limits.MaxPreviewRows {
		pageSize = h.deps.Limits.MaxPreviewRows
	}

	handle, err := h.deps.Cache.Open(ctx, path, sheet)
	if err != nil {
		return mcperr.FromError(err), nil
	}
	ds := handle.Dataset
	if cur != nil && cur.Stale(ds.ModTime) {
		return mcperr.Wrapf(mcperr.CursorInvalid, "%s changed since the cursor was issued", ds.Path), nil
	}

	f := ds.Frame
	if category != "" {
		col, ok := f.Lookup(category)
		if !ok {
			return mcperr.FromError(fmt.Errorf("column %q not found: %w", category, mcperr.ErrInvalidSelection)), nil
		}
		category = col.Name
		if f, err = f.Filter(category, values); err != nil {
			return mcperr.FromError(err), nil
		}
	}

	total := f.Rows()
	if offset > total {
		offset = total
	}
	page := f.Slice(offset, offset+pageSize)
	out := PreviewRowsOutput{
		HandleID:  handle.ID,
		Path:      ds.Path,
		Sheet:     ds.Sheet,
		HeaderRow: ds.HeaderRow,
		Columns:   page.Names(),
		Rows:      make([][]string, 0, page.Rows()),
		Meta:      PageMeta{Offset: offset, Total: total, Returned: page.Rows()},
	}
	for i := 0; i < page.Rows(); i++ {
		out.Rows = append(out.Rows, page.Row(i))
	}

	next := pagination.NextOffset(offset, page.Rows())
	if next < total {
		out.Meta.Truncated = true
		tok, err := pagination.EncodeCursor(pagination.Cursor{
			P:   ds.Path,
			S:   ds.Sheet,
			Off: next,
			Ps:  pageSize,
			Mt:  ds.ModTime.UnixNano(),
			C:   category,
			Fv:  values,
			Fh:  pagination.FilterHash(category, values),
		})
		if err != nil {
			return mcperr.FromError(err), nil
		}
		out.Meta.NextCursor = tok
	}

	summary := fmt.Sprintf("sheet=%s rows=%d-%d of %d truncated=%v", ds.Sheet, offset+1, offset+page.Rows(), total, out.Meta.Truncated)
	return structured(out, summary), nil
}

// BuildPrompt handles build_prompt.
func (h *Handlers) BuildPrompt(ctx context.Context, req mcp.CallToolRequest, in BuildPromptInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcp.NewToolResultError(msg), nil
	}
	_, a, err := h.analyze(ctx, in.Path, in.Sheet, in.SelectionInput)
	if err != nil {
		return mcperr.FromError(err), nil
	}
	text, err := prompt.Build(a.Payload)
	if err != nil {
		return mcperr.FromError(err), nil
	}
	return structured(BuildPromptOutput{Prompt: text, Chars: len(text)}, text), nil
}

// GenerateReport handles generate_report.
func (h *Handlers) GenerateReport(ctx context.Context, req mcp.CallToolRequest, in GenerateReportInput) (*mcp.CallToolResult, error) {
	if !h.deps.AllowWrites {
		return mcperr.Wrapf(mcperr.PermissionDenied, "%s is disabled; set %s=true", ToolGenerateReport, EnableWritesEnv), nil
	}
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcp.NewToolResultError(msg), nil
	}
	dir := in.OutputDir
	if h.deps.OutputDirs != nil {
		canonical, err := h.deps.OutputDirs.ValidateOutputDir(dir)
		if err != nil {
			return mcperr.FromError(err), nil
		}
		dir = canonical
	}

	res, err := h.deps.Runner.Run(ctx, pipeline.Request{
		Path:         in.Path,
		Sheet:        in.Sheet,
		Selection:    in.selection(),
		FilterValues: in.FilterValues,
		OutputDir:    dir,
		SkipSummary:  in.SkipSummary,
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("path", in.Path).Msg("generate_report failed")
		return mcperr.FromError(err), nil
	}

	out := GenerateReportOutput{
		RunID:     res.RunID,
		Artifacts: res.Artifacts,
		Summary:   res.Summary,
		ElapsedMS: res.Elapsed.Milliseconds(),
	}
	lines := []string{fmt.Sprintf("run=%s artifacts=%d elapsed=%s", res.RunID, len(res.Artifacts), res.Elapsed.Round(time.Millisecond))}
	for _, a := range res.Artifacts {
		lines = append(lines, "- "+a.Path)
	}
	return structured(out, strings.Join(lines, "\n")), nil
}

// CloseDataset handles close_dataset.
func (h *Handlers) CloseDataset(ctx context.Context, req mcp.CallToolRequest, in CloseDatasetInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcp.NewToolResultError(msg), nil
	}
	if err := h.deps.Cache.Evict(in.HandleID); err != nil {
		if errors.Is(err, workbooks.ErrHandleNotFound) {
			return mcperr.Wrapf(mcperr.Validation, "unknown handle %s; it may have expired", in.HandleID), nil
		}
		return mcperr.FromError(err), nil
	}
	out := struct {
		Success bool `json:"success"`
	}{Success: true}
	return structured(out, "closed "+in.HandleID), nil
}

func (h *Handlers) analyze(ctx context.Context, path, sheet string, sel SelectionInput) (*workbooks.Handle, *pipeline.Analysis, error) {
	handle, err := h.deps.Cache.Open(ctx, path, sheet)
	if err != nil {
		return nil, nil, err
	}
	a, err := h.deps.Runner.Analyze(handle.Dataset, pipeline.Request{
		Selection:    sel.selection(),
		FilterValues: sel.FilterValues,
	})
	if err != nil {
		return nil, nil, err
	}
	return handle, a, nil
}

// structured attaches a text summary for clients that ignore structured content.
func structured(out any, text string) *mcp.CallToolResult {
	res := mcp.NewToolResultStructured(out, text)
	res.Content = []mcp.Content{mcp.NewTextContent(text)}
	return res
}
