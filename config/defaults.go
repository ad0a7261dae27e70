package config

import "time"

// Default runtime limits and guardrails for the kpibrief tool server.
// They are referenced by internal/runtime and can be overridden from the
// environment (see FromEnv).

const (
	// Concurrency
	DefaultMaxConcurrentRequests  = 4
	DefaultMaxOpenWorkbooks       = 2
	DefaultMaxConcurrentSummaries = 1 // hosted-model calls in flight

	// Payload and row limits
	DefaultPreviewRowLimit = 20 // first 20 rows, as the dashboard preview shows
	DefaultMaxPreviewRows  = 500
)

const (
	// Timeouts
	DefaultOperationTimeout      = 2 * time.Minute
	DefaultAcquireRequestTimeout = 2 * time.Second
	DefaultServiceTimeout        = 60 * time.Second

	// Frame cache (tool server only)
	DefaultFrameIdleTTL       = 10 * time.Minute
	DefaultFrameCleanupPeriod = time.Minute
)

// Column inference thresholds.
const (
	DefaultPercentMatchRatio         = 0.8
	DefaultDateParseRatio            = 0.5
	DefaultCategoricalMaxUniqueRatio = 0.8
)

// Aggregation sizes.
const (
	DefaultCategoricalTopN  = 5
	DefaultBreakdownTopN    = 10
	DefaultCategoryChartTop = 15
	DefaultHistogramBins    = 30
)

// Summarization service defaults.
const (
	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultModel       = "llama-3.1-8b-instant"
	DefaultSystemRole  = "You are an expert data analyst."
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 700
	DefaultReportTitle = "AI-Generated Data Report Summary"
	DefaultOutputDir   = "."
	PrimaryAPIKeyEnv   = "GROQ_API_KEY"
	SecondaryAPIKeyEnv = "KPIBRIEF_API_KEY"
	AllowedDirsEnv     = "KPIBRIEF_ALLOWED_DIRS"
)

// Output artifact names written by a run.
const (
	KPIFile       = "kpis.json"
	PromptFile    = "summary_prompt.txt"
	SummaryFile   = "ai_summary.txt"
	PDFFile       = "AI_Report.pdf"
	DOCXFile      = "AI_Report.docx"
	DashboardFile = "dashboard.json"
	HTMLFile      = "AI_Report.html"
)
