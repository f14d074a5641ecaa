package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/usecase"
)

type fakeRuns struct {
	busy bool
	runs map[string]domain.Run
}

func (f *fakeRuns) Submit(_ context.Context, trigger string) (domain.Run, error) {
	if f.busy {
		return domain.Run{}, usecase.ErrRunInProgress
	}
	run := domain.Run{ID: "r1", Trigger: trigger, State: domain.RunQueued, QueuedAt: time.Unix(0, 0).UTC()}
	f.runs[run.ID] = run
	f.busy = true
	return run, nil
}

func (f *fakeRuns) Status(id string) (domain.Run, bool) {
	run, ok := f.runs[id]
	return run, ok
}

func (f *fakeRuns) Recent(int) []domain.Run {
	out := []domain.Run{}
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out
}

type fakeStore struct {
	items   []domain.StoredItem
	unified *domain.UnifiedScript
	limit   int
}

func (f *fakeStore) Clear(context.Context) (domain.ClearReport, error) { return domain.ClearReport{}, nil }
func (f *fakeStore) ExistsByLink(context.Context, string) (bool, error) { return false, nil }
func (f *fakeStore) CommitBatch(context.Context, domain.UnifiedScript, []domain.NewsDraft) (domain.CommitResult, error) {
	return domain.CommitResult{}, nil
}

func (f *fakeStore) ListItems(_ context.Context, limit int) ([]domain.StoredItem, error) {
	f.limit = limit
	return f.items, nil
}

func (f *fakeStore) LatestUnified(context.Context) (domain.UnifiedScript, bool, error) {
	if f.unified == nil {
		return domain.UnifiedScript{}, false, nil
	}
	return *f.unified, true, nil
}

func serve(t *testing.T, router http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestSubmitAndPollRun(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{runs: map[string]domain.Run{}}
	router := NewRouter(Deps{Runs: runs, Store: &fakeStore{}})

	rec := serve(t, router, http.MethodPost, "/api/runs")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("Location") != "/api/runs/r1" {
		t.Fatalf("missing location header")
	}
	var run domain.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.ID != "r1" || run.Trigger != TriggerAPI || run.State != domain.RunQueued {
		t.Fatalf("unexpected run %+v", run)
	}

	if rec := serve(t, router, http.MethodPost, "/api/runs"); rec.Code != http.StatusConflict {
		t.Fatalf("busy submit status = %d", rec.Code)
	}
	if rec := serve(t, router, http.MethodGet, "/api/runs/r1"); rec.Code != http.StatusOK {
		t.Fatalf("status lookup = %d", rec.Code)
	}
	if rec := serve(t, router, http.MethodGet, "/api/runs/missing"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing run = %d", rec.Code)
	}
	if rec := serve(t, router, http.MethodGet, "/api/runs"); !strings.Contains(rec.Body.String(), `"id":"r1"`) {
		t.Fatalf("recent runs missing r1: %s", rec.Body)
	}
}

func TestListItemsAndLimit(t *testing.T) {
	t.Parallel()

	store := &fakeStore{items: []domain.StoredItem{{
		Item:   domain.NewsItem{ID: 1, Title: "Fees frozen", Link: "https://n.example/f", ImagePath: "f.jpg"},
		Script: domain.ItemScript{Content: "shared"},
	}}}
	router := NewRouter(Deps{Store: store})

	rec := serve(t, router, http.MethodGet, "/api/items?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Items []domain.ResultItem `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].Script != "shared" || body.Items[0].ImagePath != "f.jpg" {
		t.Fatalf("unexpected items %+v", body.Items)
	}
	if store.limit != 5 {
		t.Fatalf("limit not forwarded: %d", store.limit)
	}

	if rec := serve(t, router, http.MethodGet, "/api/items?limit=-1"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}
}

func TestLatestUnified(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	router := NewRouter(Deps{Store: store})
	if rec := serve(t, router, http.MethodGet, "/api/scripts/unified"); rec.Code != http.StatusNotFound {
		t.Fatalf("empty store status = %d", rec.Code)
	}

	store.unified = &domain.UnifiedScript{Content: "Big week"}
	rec := serve(t, router, http.MethodGet, "/api/scripts/unified")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Big week") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("newsdigest_runs_total 0\n"))
	})
	router := NewRouter(Deps{Metrics: metrics})

	if rec := serve(t, router, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := serve(t, router, http.MethodGet, "/metrics"); !strings.Contains(rec.Body.String(), "newsdigest_runs_total") {
		t.Fatalf("metrics not served: %s", rec.Body)
	}
}
