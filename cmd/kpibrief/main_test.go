package main

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/kpibrief/internal/pipeline"
	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"CA", "NY"}, splitList(" CA, ,NY ,"))
	require.Nil(t, splitList(""))
}

func TestPrintArtifacts(t *testing.T) {
	var buf bytes.Buffer
	printArtifacts(&buf, []pipeline.Artifact{
		{Name: "kpis.json", Path: "out/kpis.json", Bytes: 2048},
		{Name: "AI_Report.pdf", Path: "out/AI_Report.pdf", Bytes: 1_500_000},
	})
	out := buf.String()
	require.Contains(t, out, "kpis.json")
	require.Contains(t, out, "2.0 kB")
	require.Contains(t, out, "1.5 MB")
}

func TestReportError_RetryHint(t *testing.T) {
	var buf bytes.Buffer
	reportError(&buf, fmt.Errorf("summarize: %w", mcperr.ErrExternalService))
	require.Contains(t, buf.String(), "EXTERNAL_SERVICE")
	require.Contains(t, buf.String(), "retryable:")

	buf.Reset()
	reportError(&buf, fmt.Errorf("summarize: %w", mcperr.ErrCredentialMissing))
	require.Contains(t, buf.String(), "CREDENTIAL_MISSING")
	require.NotContains(t, buf.String(), "retryable:")
}
