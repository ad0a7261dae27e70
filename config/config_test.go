package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := fromLookup(envOf(map[string]string{
		"KPIBRIEF_PERCENT_RATIO":   "0.9",
		"KPIBRIEF_DATE_RATIO":      "0.4",
		"KPIBRIEF_MAX_TOKENS":      "900",
		"KPIBRIEF_SERVICE_TIMEOUT": "15s",
		"KPIBRIEF_MODEL":           "llama-3.3-70b-versatile",
	}))
	require.NoError(t, err)
	require.Equal(t, 0.9, cfg.Thresholds.PercentMatchRatio)
	require.Equal(t, 0.4, cfg.Thresholds.DateParseRatio)
	require.Equal(t, 900, cfg.Service.MaxTokens)
	require.Equal(t, 15*time.Second, cfg.Service.Timeout)
	require.Equal(t, "llama-3.3-70b-versatile", cfg.Service.Model)
}

func TestFromLookup_RejectsOutOfRange(t *testing.T) {
	_, err := fromLookup(envOf(map[string]string{"KPIBRIEF_PERCENT_RATIO": "1.5"}))
	require.Error(t, err)

	_, err = fromLookup(envOf(map[string]string{"KPIBRIEF_MAX_TOKENS": "lots"}))
	require.Error(t, err)
}

func TestFromLookup_ServerLimits(t *testing.T) {
	cfg, err := fromLookup(envOf(map[string]string{
		"KPIBRIEF_MAX_CONCURRENT_REQUESTS": "8",
		"KPIBRIEF_PREVIEW_ROWS":            "50",
		"KPIBRIEF_ACQUIRE_TIMEOUT":         "500ms",
	}))
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Server.MaxConcurrentRequests)
	require.Equal(t, 50, cfg.Server.PreviewRowLimit)
	require.Equal(t, 500*time.Millisecond, cfg.Server.AcquireRequestTimeout)
	require.Equal(t, DefaultMaxConcurrentSummaries, cfg.Server.MaxConcurrentSummaries)

	_, err = fromLookup(envOf(map[string]string{"KPIBRIEF_PREVIEW_ROWS": "900"}))
	require.Error(t, err)
}

func TestFromLookup_AggregationSizes(t *testing.T) {
	cfg, err := fromLookup(envOf(map[string]string{
		"KPIBRIEF_CATEGORY_CHART_TOP": "25",
		"KPIBRIEF_BREAKDOWN_TOP_N":    "7",
	}))
	require.NoError(t, err)
	require.Equal(t, 25, cfg.Aggregation.CategoryChartTop)
	require.Equal(t, 7, cfg.Aggregation.BreakdownTopN)
	require.Equal(t, DefaultHistogramBins, cfg.Aggregation.HistogramBins)

	_, err = fromLookup(envOf(map[string]string{"KPIBRIEF_CATEGORY_CHART_TOP": "0"}))
	require.Error(t, err)
}
