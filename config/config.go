package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Thresholds holds the column inference ratios. They were magic numbers in
// the first version of the tool and are now tunable per run.
type Thresholds struct {
	PercentMatchRatio         float64 `json:"percent_match_ratio" validate:"gt=0,lte=1"`
	DateParseRatio            float64 `json:"date_parse_ratio" validate:"gt=0,lte=1"`
	CategoricalMaxUniqueRatio float64 `json:"categorical_max_unique_ratio" validate:"gt=0,lte=1"`
}

// Aggregation controls Top-N sizes and chart bucketing.
type Aggregation struct {
	CategoricalTopN  int `json:"categorical_top_n" validate:"min=1,max=100"`
	BreakdownTopN    int `json:"breakdown_top_n" validate:"min=1,max=100"`
	CategoryChartTop int `json:"category_chart_top" validate:"min=1,max=100"`
	HistogramBins    int `json:"histogram_bins" validate:"min=1,max=200"`
}

// Service describes the hosted chat-completion endpoint. The API key is not
// stored here; it is read from the environment when the summarize step runs.
type Service struct {
	BaseURL     string        `json:"base_url" validate:"required,url"`
	Model       string        `json:"model" validate:"required"`
	SystemRole  string        `json:"system_role" validate:"required"`
	Temperature float64       `json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `json:"max_tokens" validate:"min=1"`
	Timeout     time.Duration `json:"timeout" validate:"gt=0"`
}

// Server holds the tool server guardrails.
type Server struct {
	MaxConcurrentRequests  int           `json:"max_concurrent_requests" validate:"min=1"`
	MaxOpenWorkbooks       int           `json:"max_open_workbooks" validate:"min=1"`
	MaxConcurrentSummaries int           `json:"max_concurrent_summaries" validate:"min=1"`
	PreviewRowLimit        int           `json:"preview_row_limit" validate:"min=1,ltefield=MaxPreviewRows"`
	MaxPreviewRows         int           `json:"max_preview_rows" validate:"min=1"`
	AcquireRequestTimeout  time.Duration `json:"acquire_request_timeout" validate:"gte=0"`
}

// Config is the complete kpibrief configuration.
type Config struct {
	Thresholds  Thresholds  `json:"thresholds"`
	Aggregation Aggregation `json:"aggregation"`
	Service     Service     `json:"service"`
	ReportTitle string      `json:"report_title" validate:"required"`
	OutputDir   string      `json:"output_dir" validate:"required"`
	Server      Server      `json:"server"`

	OperationTimeout time.Duration `json:"operation_timeout" validate:"gt=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Thresholds: Thresholds{
			PercentMatchRatio:         DefaultPercentMatchRatio,
			DateParseRatio:            DefaultDateParseRatio,
			CategoricalMaxUniqueRatio: DefaultCategoricalMaxUniqueRatio,
		},
		Aggregation: Aggregation{
			CategoricalTopN:  DefaultCategoricalTopN,
			BreakdownTopN:    DefaultBreakdownTopN,
			CategoryChartTop: DefaultCategoryChartTop,
			HistogramBins:    DefaultHistogramBins,
		},
		Service: Service{
			BaseURL:     DefaultBaseURL,
			Model:       DefaultModel,
			SystemRole:  DefaultSystemRole,
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
			Timeout:     DefaultServiceTimeout,
		},
		Server: Server{
			MaxConcurrentRequests:  DefaultMaxConcurrentRequests,
			MaxOpenWorkbooks:       DefaultMaxOpenWorkbooks,
			MaxConcurrentSummaries: DefaultMaxConcurrentSummaries,
			PreviewRowLimit:        DefaultPreviewRowLimit,
			MaxPreviewRows:         DefaultMaxPreviewRows,
			AcquireRequestTimeout:  DefaultAcquireRequestTimeout,
		},
		ReportTitle:      DefaultReportTitle,
		OutputDir:        DefaultOutputDir,
		OperationTimeout: DefaultOperationTimeout,
	}
}

// FromEnv overlays KPIBRIEF_* environment variables on the defaults and
// validates the result.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	var errs []string

	floatVar := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = f
		}
	}
	intVar := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	durVar := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}
	strVar := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	floatVar("KPIBRIEF_PERCENT_RATIO", &cfg.Thresholds.PercentMatchRatio)
	floatVar("KPIBRIEF_DATE_RATIO", &cfg.Thresholds.DateParseRatio)
	floatVar("KPIBRIEF_CATEGORICAL_RATIO", &cfg.Thresholds.CategoricalMaxUniqueRatio)

	intVar("KPIBRIEF_CATEGORICAL_TOP_N", &cfg.Aggregation.CategoricalTopN)
	intVar("KPIBRIEF_BREAKDOWN_TOP_N", &cfg.Aggregation.BreakdownTopN)
	intVar("KPIBRIEF_CATEGORY_CHART_TOP", &cfg.Aggregation.CategoryChartTop)
	intVar("KPIBRIEF_HISTOGRAM_BINS", &cfg.Aggregation.HistogramBins)

	strVar("KPIBRIEF_BASE_URL", &cfg.Service.BaseURL)
	strVar("KPIBRIEF_MODEL", &cfg.Service.Model)
	strVar("KPIBRIEF_SYSTEM_ROLE", &cfg.Service.SystemRole)
	floatVar("KPIBRIEF_TEMPERATURE", &cfg.Service.Temperature)
	intVar("KPIBRIEF_MAX_TOKENS", &cfg.Service.MaxTokens)
	durVar("KPIBRIEF_SERVICE_TIMEOUT", &cfg.Service.Timeout)

	strVar("KPIBRIEF_REPORT_TITLE", &cfg.ReportTitle)
	strVar("KPIBRIEF_OUTPUT_DIR", &cfg.OutputDir)
	durVar("KPIBRIEF_OPERATION_TIMEOUT", &cfg.OperationTimeout)

	intVar("KPIBRIEF_MAX_CONCURRENT_REQUESTS", &cfg.Server.MaxConcurrentRequests)
	intVar("KPIBRIEF_MAX_OPEN_WORKBOOKS", &cfg.Server.MaxOpenWorkbooks)
	intVar("KPIBRIEF_MAX_CONCURRENT_SUMMARIES", &cfg.Server.MaxConcurrentSummaries)
	intVar("KPIBRIEF_PREVIEW_ROWS", &cfg.Server.PreviewRowLimit)
	intVar("KPIBRIEF_MAX_PREVIEW_ROWS", &cfg.Server.MaxPreviewRows)
	durVar("KPIBRIEF_ACQUIRE_TIMEOUT", &cfg.Server.AcquireRequestTimeout)

	if len(errs) > 0 {
		return cfg, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks ranges on every field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			fe := ve[0]
			return fmt.Errorf("config: %s fails %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
