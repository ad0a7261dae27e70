package runtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/kpibrief/config"
	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

func TestControllerAcquireRelease(t *testing.T) {
	limits := NewLimits(1, 1)
	controller := NewController(limits)

	require.Equal(t, limits, controller.LimitsSnapshot())

	require.NoError(t, controller.AcquireRequest(context.Background()))
	controller.ReleaseRequest()

	require.NoError(t, controller.AcquireWorkbook(context.Background()))
	controller.ReleaseWorkbook()

	require.NoError(t, controller.AcquireSummary(context.Background()))
	controller.ReleaseSummary()
}

func TestNewLimits_Fallbacks(t *testing.T) {
	limits := NewLimits(0, -1)
	require.Equal(t, config.DefaultMaxConcurrentRequests, limits.MaxConcurrentRequests)
	require.Equal(t, config.DefaultMaxOpenWorkbooks, limits.MaxOpenWorkbooks)
	require.Equal(t, config.DefaultMaxConcurrentSummaries, limits.MaxConcurrentSummaries)
	require.Equal(t, config.DefaultPreviewRowLimit, limits.PreviewRowLimit)
	require.Equal(t, config.DefaultOperationTimeout, limits.OperationTimeout)
}

func TestLimitsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.MaxConcurrentRequests = 9
	cfg.Server.PreviewRowLimit = 900
	cfg.Server.MaxPreviewRows = 100
	cfg.OperationTimeout = 0

	limits := LimitsFromConfig(cfg)
	require.Equal(t, 9, limits.MaxConcurrentRequests)
	require.Equal(t, 100, limits.PreviewRowLimit)
	require.Equal(t, config.DefaultOperationTimeout, limits.OperationTimeout)
}

type slowSummarizer struct {
	inFlight, peak atomic.Int32
}

func (s *slowSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return "ok:" + prompt, nil
}

func TestGateSummarizer_SerializesCalls(t *testing.T) {
	ctrl := NewController(NewLimits(4, 4))
	inner := &slowSummarizer{}
	gated := ctrl.GateSummarizer(inner)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := gated.Summarize(context.Background(), "p")
			errs <- err
		}()
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
	}
	require.Equal(t, int32(1), inner.peak.Load())
}

func TestGateSummarizer_CanceledWhileWaiting(t *testing.T) {
	ctrl := NewController(NewLimits(1, 1))
	require.NoError(t, ctrl.AcquireSummary(context.Background()))
	defer ctrl.ReleaseSummary()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := ctrl.GateSummarizer(&slowSummarizer{}).Summarize(ctx, "p")
	require.ErrorIs(t, err, mcperr.ErrExternalService)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
