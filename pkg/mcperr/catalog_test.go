package mcperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOf_WrappedSentinels(t *testing.T) {
	cases := map[error]Code{
		fmt.Errorf("load %q: %w", "x.xlsx", ErrInputNotFound): InputNotFound,
		fmt.Errorf("profile: %w", ErrNoNumericColumn):         NoNumericColumn,
		fmt.Errorf("prompt: %w", ErrMissingData):              MissingData,
		fmt.Errorf("summarize: %w", ErrCredentialMissing):     CredentialMissing,
		fmt.Errorf("summarize: %w", ErrExternalService):       ExternalService,
		fmt.Errorf("filter: %w", ErrEmptySelection):           EmptySelection,
		fmt.Errorf("metric: %w", ErrInvalidSelection):         Validation,
		fmt.Errorf("page: %w", ErrCursorInvalid):              CursorInvalid,
		fmt.Errorf("open: %w: %w", ErrReadFailed, errors.New("zip: not a valid zip file")): ReadFailed,
		fmt.Errorf("export: %w", ErrExportFailed):             ExportFailed,
		errors.New("boom"): Internal,
	}
	for err, want := range cases {
		require.Equal(t, want, CodeOf(err), err.Error())
	}
	require.Equal(t, Code(""), CodeOf(nil))
}

func TestMessage_IncludesNextSteps(t *testing.T) {
	msg := Message(fmt.Errorf("summarize: %w", ErrCredentialMissing))
	require.True(t, strings.HasPrefix(msg, "CREDENTIAL_MISSING: "))
	require.Contains(t, msg, "nextSteps: Set GROQ_API_KEY")
}

func TestFromError_IsToolError(t *testing.T) {
	res := FromError(ErrMissingData)
	require.True(t, res.IsError)

	e, ok := Lookup(ExternalService)
	require.True(t, ok)
	require.True(t, e.Retryable)
}

func TestRetryable_FollowsCatalog(t *testing.T) {
	require.True(t, Retryable(fmt.Errorf("call: %w", ErrExternalService)))
	require.False(t, Retryable(fmt.Errorf("summarize: %w", ErrCredentialMissing)))
	require.False(t, Retryable(nil))
}

func TestToolErrors_CarryStructuredDetail(t *testing.T) {
	res := Wrapf(BusyResource, "limit reached (max=%d)", 2)
	require.True(t, res.IsError)
	d, ok := res.StructuredContent.(Detail)
	require.True(t, ok)
	require.Equal(t, BusyResource, d.Code)
	require.Equal(t, "limit reached (max=2)", d.Message)
	require.True(t, d.Retryable)
	require.Equal(t, []string{"Retry after a short delay"}, d.NextSteps)

	d, ok = New(Timeout, "").StructuredContent.(Detail)
	require.True(t, ok)
	require.Equal(t, "operation exceeded configured time limit", d.Message)

	d, ok = FromError(fmt.Errorf("summarize: %w", ErrCredentialMissing)).StructuredContent.(Detail)
	require.True(t, ok)
	require.Equal(t, CredentialMissing, d.Code)
	require.False(t, d.Retryable)
}
