package service

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipsight/slipsight/internal/backend"
	"github.com/slipsight/slipsight/internal/domain"
)

// =============================================================================
// Test Fixtures
// =============================================================================

// slipPNG is a small valid screenshot for submission tests.
func slipPNG(t *testing.T) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 64))))
	return bytes.NewReader(buf.Bytes())
}

type fakeSlipAnalyzer struct {
	calls    int64
	analysis *domain.BetAnalysis
	err      error
}

func (f *fakeSlipAnalyzer) AnalyzeSlip(ctx context.Context, token string, upload backend.SlipUpload) (*domain.BetAnalysis, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

func newAnalyzer(backend *fakeSlipAnalyzer, fetcher *fakeFetcher) *Analyzer {
	return NewAnalyzer(backend, NewUsageLedger(fetcher, discardLogger()), discardLogger())
}

func freshFetcher() *fakeFetcher {
	return &fakeFetcher{snapshot: &domain.UsageSnapshot{AnalysesUsed: 1, AnalysesRemaining: 4, FreeLimit: 5}}
}

// =============================================================================
// Gate Tests
// =============================================================================

func TestAnalyze_BlockedLocallyWithoutNetworkCall(t *testing.T) {
	be := &fakeSlipAnalyzer{analysis: &domain.BetAnalysis{ID: "a-1"}}
	a := newAnalyzer(be, freshFetcher())
	sess := authedSession("sess-gate")
	sess.SetUsage(&domain.UsageSnapshot{AnalysesUsed: 5, AnalysesRemaining: 0, FreeLimit: 5})

	_, err := a.Analyze(context.Background(), sess, "slip.png", "image/png", slipPNG(t))
	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	assert.True(t, domain.IsUpgradeRequired(err))
	assert.EqualValues(t, 0, atomic.LoadInt64(&be.calls), "an exhausted balance never reaches the backend")
}

func TestAnalyze_UnknownUsageGetsBenefitOfDoubt(t *testing.T) {
	be := &fakeSlipAnalyzer{analysis: &domain.BetAnalysis{ID: "a-7", WinProbability: 42.5}}
	a := newAnalyzer(be, freshFetcher())
	sess := authedSession("sess-nousage")

	got, err := a.Analyze(context.Background(), sess, "slip.png", "image/png", slipPNG(t))
	require.NoError(t, err)
	assert.Equal(t, "a-7", got.ID)
	assert.EqualValues(t, 1, atomic.LoadInt64(&be.calls))
}

func TestAnalyze_BackendUpgradeOverridesLocalAllow(t *testing.T) {
	// Local state says one analysis remains, but the server disagrees.
	be := &fakeSlipAnalyzer{err: domain.UpgradeRequired("backend.analyze", "Free analyses exhausted. Subscribe to continue.")}
	a := newAnalyzer(be, freshFetcher())
	sess := authedSession("sess-override")
	sess.SetUsage(&domain.UsageSnapshot{AnalysesUsed: 4, AnalysesRemaining: 1, FreeLimit: 5})

	_, err := a.Analyze(context.Background(), sess, "slip.png", "image/png", slipPNG(t))
	require.Error(t, err)
	assert.True(t, domain.IsUpgradeRequired(err), "the server's verdict wins over the cached count")
	assert.EqualValues(t, 1, atomic.LoadInt64(&be.calls))
}

// =============================================================================
// Validation and Auth Tests
// =============================================================================

func TestAnalyze_Unauthenticated(t *testing.T) {
	be := &fakeSlipAnalyzer{}
	a := newAnalyzer(be, freshFetcher())
	sess := authedSession("sess-loggedout")
	sess.ClearToken()

	_, err := a.Analyze(context.Background(), sess, "slip.png", "image/png", slipPNG(t))
	require.Error(t, err)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
	assert.EqualValues(t, 0, atomic.LoadInt64(&be.calls))
}

func TestAnalyze_InvalidImageNeverSubmitted(t *testing.T) {
	be := &fakeSlipAnalyzer{}
	a := newAnalyzer(be, freshFetcher())
	sess := authedSession("sess-badimage")

	_, err := a.Analyze(context.Background(), sess, "slip.txt", "text/plain", strings.NewReader("not pixels"))
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.EqualValues(t, 0, atomic.LoadInt64(&be.calls))
}

func TestAnalyze_BackendAuthErrorEndsSession(t *testing.T) {
	be := &fakeSlipAnalyzer{err: domain.Unauthorized("backend.analyze", "Invalid authentication credentials")}
	a := newAnalyzer(be, freshFetcher())
	sess := authedSession("sess-expired")

	_, err := a.Analyze(context.Background(), sess, "slip.png", "image/png", slipPNG(t))
	require.Error(t, err)
	assert.False(t, sess.Authenticated())
}

// =============================================================================
// Refresh-After-Success Tests
// =============================================================================

func TestAnalyze_SuccessRefreshesUsageInBackground(t *testing.T) {
	be := &fakeSlipAnalyzer{analysis: &domain.BetAnalysis{ID: "a-3"}}
	fetcher := &fakeFetcher{snapshot: &domain.UsageSnapshot{AnalysesUsed: 2, AnalysesRemaining: 3, FreeLimit: 5}}
	a := newAnalyzer(be, fetcher)
	sess := authedSession("sess-refresh")
	sess.SetUsage(&domain.UsageSnapshot{AnalysesUsed: 1, AnalysesRemaining: 4, FreeLimit: 5})

	_, err := a.Analyze(context.Background(), sess, "slip.png", "image/png", slipPNG(t))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		usage := sess.Usage()
		return usage != nil && usage.AnalysesRemaining == 3
	}, 2*time.Second, 10*time.Millisecond, "snapshot should pick up the decremented balance")
}

func TestAnalyze_FailedRefreshKeepsOldSnapshot(t *testing.T) {
	be := &fakeSlipAnalyzer{analysis: &domain.BetAnalysis{ID: "a-4"}}
	fetcher := &fakeFetcher{err: domain.Unavailable(context.DeadlineExceeded, "backend.usage", "backend unreachable")}
	a := newAnalyzer(be, fetcher)
	sess := authedSession("sess-stale")
	sess.SetUsage(&domain.UsageSnapshot{AnalysesUsed: 1, AnalysesRemaining: 4, FreeLimit: 5})

	_, err := a.Analyze(context.Background(), sess, "slip.png", "image/png", slipPNG(t))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&fetcher.calls) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	usage := sess.Usage()
	require.NotNil(t, usage)
	assert.Equal(t, 4, usage.AnalysesRemaining)
}
