package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/slipsight/slipsight/internal/domain"
)

// fakeHistoryBackend scripts history endpoint responses.
type fakeHistoryBackend struct {
	entries    []domain.HistoryEntry
	historyErr error
	stats      *domain.UserStats
	statsErr   error
	outcomeErr error

	recordedID      string
	recordedOutcome domain.BetOutcome
	recordCalls     int
}

func (f *fakeHistoryBackend) History(ctx context.Context, token string) ([]domain.HistoryEntry, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.entries, nil
}

func (f *fakeHistoryBackend) Stats(ctx context.Context, token string) (*domain.UserStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return f.stats, nil
}

func (f *fakeHistoryBackend) RecordOutcome(ctx context.Context, token, analysisID string, outcome domain.BetOutcome) error {
	f.recordCalls++
	f.recordedID = analysisID
	f.recordedOutcome = outcome
	return f.outcomeErr
}

// outcomeRequest builds a POST /history/{id}/outcome with the mux path value
// set, as the real router would.
func outcomeRequest(t *testing.T, id string, form url.Values) *http.Request {
	t.Helper()
	req := formRequest(t, "/history/"+id+"/outcome", form)
	req.SetPathValue("id", id)
	return req
}

// =============================================================================
// GET /history
// =============================================================================

func TestHistoryIndex_RendersEntries(t *testing.T) {
	fake := &fakeHistoryBackend{
		entries: []domain.HistoryEntry{
			{BetAnalysis: domain.BetAnalysis{ID: "a-1", WinProbability: 55}},
			{
				BetAnalysis: domain.BetAnalysis{ID: "a-2", WinProbability: 31.5},
				Outcome:     &domain.BetOutcome{Result: domain.OutcomeLost},
			},
		},
		stats: &domain.UserStats{TotalAnalyses: 2, Losses: 1},
	}
	renderer := &fakeRenderer{}
	h := NewHistoryHandler(fake, renderer, testLogger(), false)

	store := testStore(t)
	sess := newAuthedSession(t, store, "bettor@example.com")

	req := withSession(httptest.NewRequest("GET", "/history", nil), sess)
	rec := httptest.NewRecorder()

	h.Index(rec, req)

	if renderer.name != "history" {
		t.Fatalf("expected history template, got %q", renderer.name)
	}
	data := renderer.data.(HistoryPageData)
	if len(data.Entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(data.Entries))
	}
	if data.Stats == nil || data.Stats.Losses != 1 {
		t.Errorf("expected stats, got %+v", data.Stats)
	}
}

func TestHistoryIndex_StatsFailureStillRenders(t *testing.T) {
	fake := &fakeHistoryBackend{
		entries:  []domain.HistoryEntry{{BetAnalysis: domain.BetAnalysis{ID: "a-1"}}},
		statsErr: domain.Unavailable(context.DeadlineExceeded, "backend.stats", "unreachable"),
	}
	renderer := &fakeRenderer{}
	h := NewHistoryHandler(fake, renderer, testLogger(), false)

	store := testStore(t)
	sess := newAuthedSession(t, store, "bettor@example.com")

	req := withSession(httptest.NewRequest("GET", "/history", nil), sess)
	rec := httptest.NewRecorder()

	h.Index(rec, req)

	if renderer.name != "history" {
		t.Fatalf("expected history render despite stats failure, got %q", renderer.name)
	}
	data := renderer.data.(HistoryPageData)
	if data.Stats != nil {
		t.Error("expected nil stats when the fetch fails")
	}
}

func TestHistoryIndex_AuthFailureRedirectsToLogin(t *testing.T) {
	fake := &fakeHistoryBackend{
		historyErr: domain.Unauthorized("backend.history", "token expired"),
	}
	h := NewHistoryHandler(fake, &fakeRenderer{}, testLogger(), false)

	store := testStore(t)
	sess := newAuthedSession(t, store, "bettor@example.com")

	req := withSession(httptest.NewRequest("GET", "/history", nil), sess)
	rec := httptest.NewRecorder()

	h.Index(rec, req)

	assertRedirect(t, rec, "/login?return_to=/history")
	if sess.Authenticated() {
		t.Error("session token should be cleared on auth failure")
	}
}

// =============================================================================
// POST /history/{id}/outcome
// =============================================================================

func TestRecordOutcome_Success(t *testing.T) {
	fake := &fakeHistoryBackend{}
	h := NewHistoryHandler(fake, &fakeRenderer{}, testLogger(), false)

	store := testStore(t)
	sess := newAuthedSession(t, store, "bettor@example.com")

	req := withSession(outcomeRequest(t, "a-7", url.Values{
		"outcome":       {"won"},
		"stake_amount":  {"25.00"},
		"payout_amount": {"61.25"},
	}), sess)
	rec := httptest.NewRecorder()

	h.RecordOutcome(rec, req)

	assertRedirect(t, rec, "/history?outcome_recorded=1")

	if fake.recordedID != "a-7" {
		t.Errorf("expected analysis id a-7, got %q", fake.recordedID)
	}
	if fake.recordedOutcome.Result != domain.OutcomeWon {
		t.Errorf("expected won, got %q", fake.recordedOutcome.Result)
	}
	if fake.recordedOutcome.StakeAmount == nil || *fake.recordedOutcome.StakeAmount != 25.0 {
		t.Errorf("expected stake 25.00, got %v", fake.recordedOutcome.StakeAmount)
	}
	if fake.recordedOutcome.PayoutAmount == nil || *fake.recordedOutcome.PayoutAmount != 61.25 {
		t.Errorf("expected payout 61.25, got %v", fake.recordedOutcome.PayoutAmount)
	}
}

func TestRecordOutcome_WithoutAmounts(t *testing.T) {
	fake := &fakeHistoryBackend{}
	h := NewHistoryHandler(fake, &fakeRenderer{}, testLogger(), false)

	store := testStore(t)
	sess := newAuthedSession(t, store, "bettor@example.com")

	req := withSession(outcomeRequest(t, "a-3", url.Values{
		"outcome": {"push"},
	}), sess)
	rec := httptest.NewRecorder()

	h.RecordOutcome(rec, req)

	assertRedirect(t, rec, "/history?outcome_recorded=1")
	if fake.recordedOutcome.StakeAmount != nil || fake.recordedOutcome.PayoutAmount != nil {
		t.Error("amounts should be omitted when not provided")
	}
}

func TestRecordOutcome_RejectsUnknownResult(t *testing.T) {
	fake := &fakeHistoryBackend{}
	h := NewHistoryHandler(fake, &fakeRenderer{}, testLogger(), false)

	store := testStore(t)
	sess := newAuthedSession(t, store, "bettor@example.com")

	req := withSession(outcomeRequest(t, "a-3", url.Values{
		"outcome": {"voided"},
	}), sess)
	rec := httptest.NewRecorder()

	h.RecordOutcome(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if fake.recordCalls != 0 {
		t.Error("invalid outcome must not reach the backend")
	}
}

func TestRecordOutcome_RejectsNegativeStake(t *testing.T) {
	fake := &fakeHistoryBackend{}
	h := NewHistoryHandler(fake, &fakeRenderer{}, testLogger(), false)

	store := testStore(t)
	sess := newAuthedSession(t, store, "bettor@example.com")

	req := withSession(outcomeRequest(t, "a-3", url.Values{
		"outcome":      {"lost"},
		"stake_amount": {"-5"},
	}), sess)
	rec := httptest.NewRecorder()

	h.RecordOutcome(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if fake.recordCalls != 0 {
		t.Error("invalid stake must not reach the backend")
	}
}

func TestRecordOutcome_RequiresCSRF(t *testing.T) {
	fake := &fakeHistoryBackend{}
	h := NewHistoryHandler(fake, &fakeRenderer{}, testLogger(), false)

	store := testStore(t)
	sess := newAuthedSession(t, store, "bettor@example.com")

	form := url.Values{"outcome": {"won"}}
	req := httptest.NewRequest("POST", "/history/a-3/outcome", nil)
	req.PostForm = form
	req.SetPathValue("id", "a-3")
	req = withSession(req, sess)
	rec := httptest.NewRecorder()

	h.RecordOutcome(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if fake.recordCalls != 0 {
		t.Error("backend should not be called on CSRF failure")
	}
}

func TestRecordOutcome_NotFoundPassthrough(t *testing.T) {
	fake := &fakeHistoryBackend{
		outcomeErr: domain.Errorf(domain.ENOTFOUND, "backend.record_outcome", "Analysis not found"),
	}
	h := NewHistoryHandler(fake, &fakeRenderer{}, testLogger(), false)

	store := testStore(t)
	sess := newAuthedSession(t, store, "bettor@example.com")

	req := withSession(outcomeRequest(t, "missing", url.Values{
		"outcome": {"won"},
	}), sess)
	rec := httptest.NewRecorder()

	h.RecordOutcome(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
