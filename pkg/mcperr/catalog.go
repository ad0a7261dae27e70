package mcperr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Code defines a canonical error code used across the pipeline and tools.
type Code string

const (
	// Validation & Input
	Validation        Code = "VALIDATION"
	InputNotFound     Code = "INPUT_NOT_FOUND"
	UnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	PermissionDenied  Code = "PERMISSION_DENIED"
	CursorInvalid     Code = "CURSOR_INVALID"
	EmptySelection    Code = "EMPTY_SELECTION"

	// Profiling & Templating
	NoNumericColumn Code = "NO_NUMERIC_COLUMN"
	MissingData     Code = "MISSING_DATA"

	// External service
	CredentialMissing Code = "CREDENTIAL_MISSING"
	ExternalService   Code = "EXTERNAL_SERVICE"

	// Resource & Limits
	BusyResource Code = "BUSY_RESOURCE"
	Timeout      Code = "TIMEOUT"

	// IO
	ReadFailed   Code = "READ_FAILED"
	ExportFailed Code = "EXPORT_FAILED"
	Internal     Code = "INTERNAL"
)

// Sentinel errors for the run taxonomy. Packages wrap these with %w so callers
// can match with errors.Is and tools can map them to a Code.
var (
	ErrInputNotFound     = errors.New("input file not found")
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrNoNumericColumn   = errors.New("dataset has no numeric column")
	ErrMissingData       = errors.New("kpi payload missing or malformed")
	ErrCredentialMissing = errors.New("api credential missing")
	ErrExternalService   = errors.New("external summarization service failed")
	ErrEmptySelection    = errors.New("no rows left after applying filters")
	ErrNotAllowed        = errors.New("path not allowed")
	ErrInvalidSelection  = errors.New("invalid column selection")
	ErrCursorInvalid     = errors.New("cursor invalid")
	ErrReadFailed        = errors.New("failed to read spreadsheet")
	ErrExportFailed      = errors.New("failed to write report files")
)

// Entry documents a code's standard message, retry semantics, and next steps.
type Entry struct {
	Code      Code
	Message   string
	Retryable bool
	NextSteps []string
}

// catalog maps canonical codes to guidance. Messages can be overridden per error.
var catalog = map[Code]Entry{
	Validation:        {Code: Validation, Message: "invalid inputs", Retryable: true, NextSteps: []string{"Correct the inputs per schema and retry"}},
	InputNotFound:     {Code: InputNotFound, Message: "input file not found", Retryable: false, NextSteps: []string{"Verify the path and re-run"}},
	UnsupportedFormat: {Code: UnsupportedFormat, Message: "unsupported spreadsheet format", Retryable: false, NextSteps: []string{"Convert to .xlsx or .csv and retry"}},
	PermissionDenied:  {Code: PermissionDenied, Message: "path is outside the allowed directories", Retryable: false, NextSteps: []string{"Move the file into an allowed directory or extend KPIBRIEF_ALLOWED_DIRS"}},
	CursorInvalid:     {Code: CursorInvalid, Message: "cursor is invalid for current context", Retryable: true, NextSteps: []string{"Restart paging from the first page"}},
	EmptySelection:    {Code: EmptySelection, Message: "no rows left after applying filters", Retryable: false, NextSteps: []string{"Widen the category filter"}},

	NoNumericColumn: {Code: NoNumericColumn, Message: "dataset has no numeric column", Retryable: false, NextSteps: []string{"Provide a sheet with at least one numeric column"}},
	MissingData:     {Code: MissingData, Message: "kpi payload missing or malformed", Retryable: false, NextSteps: []string{"Re-run profiling to regenerate kpis.json"}},

	CredentialMissing: {Code: CredentialMissing, Message: "api credential missing", Retryable: false, NextSteps: []string{"Set GROQ_API_KEY in the environment or .env and re-run"}},
	ExternalService:   {Code: ExternalService, Message: "summarization service call failed", Retryable: true, NextSteps: []string{"Check network and service status, then re-run"}},

	BusyResource: {Code: BusyResource, Message: "concurrent request limit reached", Retryable: true, NextSteps: []string{"Retry after a short delay"}},
	Timeout:      {Code: Timeout, Message: "operation exceeded configured time limit", Retryable: true, NextSteps: []string{"Retry or increase KPIBRIEF_OPERATION_TIMEOUT"}},

	ReadFailed:   {Code: ReadFailed, Message: "failed to read spreadsheet", Retryable: true, NextSteps: []string{"Open the file in a spreadsheet tool and re-save it"}},
	ExportFailed: {Code: ExportFailed, Message: "failed to write report files", Retryable: true, NextSteps: []string{"Check output directory permissions"}},
	Internal:     {Code: Internal, Message: "internal error", Retryable: false},
}

// Lookup returns the catalog entry for a code.
func Lookup(code Code) (Entry, bool) {
	e, ok := catalog[code]
	return e, ok
}

// CodeOf classifies an error into a canonical code. Unknown errors map to Internal.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInputNotFound):
		return InputNotFound
	case errors.Is(err, ErrUnsupportedFormat):
		return UnsupportedFormat
	case errors.Is(err, ErrNoNumericColumn):
		return NoNumericColumn
	case errors.Is(err, ErrMissingData):
		return MissingData
	case errors.Is(err, ErrCredentialMissing):
		return CredentialMissing
	case errors.Is(err, ErrExternalService):
		return ExternalService
	case errors.Is(err, ErrEmptySelection):
		return EmptySelection
	case errors.Is(err, ErrNotAllowed):
		return PermissionDenied
	case errors.Is(err, ErrInvalidSelection):
		return Validation
	case errors.Is(err, ErrCursorInvalid):
		return CursorInvalid
	case errors.Is(err, ErrReadFailed):
		return ReadFailed
	case errors.Is(err, ErrExportFailed):
		return ExportFailed
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	}
	return Internal
}

// normalize builds a standard error string including next steps for MCP clients that
// surface only a message string. Format: "CODE: message" followed by a guidance tail.
func normalize(code Code, msg string) string {
	base := strings.TrimSpace(msg)
	e, ok := catalog[code]
	if !ok {
		if base == "" {
			return string(code)
		}
		return fmt.Sprintf("%s: %s", string(code), base)
	}
	if base == "" {
		base = e.Message
	}
	guidance := ""
	if len(e.NextSteps) > 0 {
		guidance = " | nextSteps: " + strings.Join(e.NextSteps, "; ")
	}
	return fmt.Sprintf("%s: %s%s", e.Code, base, guidance)
}

// Message renders the normalized "CODE: message | nextSteps" text for an error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return normalize(CodeOf(err), err.Error())
}

// Retryable reports whether the catalog marks err's code as worth retrying
// unchanged.
func Retryable(err error) bool {
	e, ok := catalog[CodeOf(err)]
	return ok && e.Retryable
}

// Detail is the structured content attached to tool error results.
type Detail struct {
	Code      Code     `json:"code"`
	Message   string   `json:"message"`
	Retryable bool     `json:"retryable"`
	NextSteps []string `json:"nextSteps,omitempty"`
}

func result(code Code, message string) *mcp.CallToolResult {
	res := mcp.NewToolResultError(normalize(code, message))
	d := Detail{Code: code, Message: strings.TrimSpace(message)}
	if e, ok := catalog[code]; ok {
		d.Retryable = e.Retryable
		d.NextSteps = e.NextSteps
		if d.Message == "" {
			d.Message = e.Message
		}
	}
	res.StructuredContent = d
	return res
}

// New returns an MCP error result for a given code and optional message override.
func New(code Code, message string) *mcp.CallToolResult {
	return result(code, message)
}

// Wrapf formats details and returns an MCP error result for the code.
func Wrapf(code Code, format string, args ...any) *mcp.CallToolResult {
	return result(code, fmt.Sprintf(format, args...))
}

// FromError classifies err and returns an MCP error result.
func FromError(err error) *mcp.CallToolResult {
	return result(CodeOf(err), err.Error())
}
