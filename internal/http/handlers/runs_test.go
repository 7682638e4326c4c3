package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tz1211/datadetox/internal/domain/runs"
	"github.com/tz1211/datadetox/internal/pkg/dbctx"
)

type fakeCrawlRunRepo struct {
	rows       []*runs.CrawlRun
	listErr    error
	lastLimit  int
	listCalled int
}

func (f *fakeCrawlRunRepo) Create(_ dbctx.Context, run *runs.CrawlRun) (*runs.CrawlRun, error) {
	return run, nil
}

func (f *fakeCrawlRunRepo) Finish(_ dbctx.Context, _ uuid.UUID, _ string, _ map[string]interface{}) error {
	return nil
}

func (f *fakeCrawlRunRepo) GetLatest(_ dbctx.Context, _ string) (*runs.CrawlRun, error) {
	return nil, nil
}

func (f *fakeCrawlRunRepo) ListRecent(_ dbctx.Context, limit int) ([]*runs.CrawlRun, error) {
	f.listCalled++
	f.lastLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.rows, nil
}

func newRunsRouter(repo *fakeCrawlRunRepo, t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewRunsHandler(newTestLogger(t), repo)
	r := gin.New()
	r.GET("/api/runs", h.ListRuns)
	return r
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	finished := time.Now().UTC()
	repo := &fakeCrawlRunRepo{rows: []*runs.CrawlRun{
		{
			ID:            uuid.New(),
			Stage:         runs.StageCrawl,
			Status:        runs.StatusSucceeded,
			Limit:         100,
			Models:        42,
			Relationships: 61,
			StartedAt:     finished.Add(-time.Minute),
			FinishedAt:    &finished,
		},
	}}
	r := newRunsRouter(repo, t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if repo.lastLimit != 20 {
		t.Fatalf("default limit not applied: got=%d", repo.lastLimit)
	}

	var payload struct {
		Runs []runs.CrawlRun `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(payload.Runs) != 1 {
		t.Fatalf("unexpected run count: %d", len(payload.Runs))
	}
	got := payload.Runs[0]
	if got.Stage != runs.StageCrawl || got.Status != runs.StatusSucceeded || got.Models != 42 {
		t.Fatalf("unexpected run payload: %+v", got)
	}
}

func TestListRunsEmptyLedgerReturnsArray(t *testing.T) {
	t.Parallel()

	repo := &fakeCrawlRunRepo{rows: nil}
	r := newRunsRouter(repo, t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if string(payload["runs"]) != "[]" {
		t.Fatalf("empty ledger should serialize as an array: %s", payload["runs"])
	}
}

func TestListRunsLimitParam(t *testing.T) {
	t.Parallel()

	repo := &fakeCrawlRunRepo{}
	r := newRunsRouter(repo, t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=5", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}
	if repo.lastLimit != 5 {
		t.Fatalf("limit param ignored: got=%d", repo.lastLimit)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=1000", nil))
	if repo.lastLimit != maxRunListLimit {
		t.Fatalf("limit cap not applied: got=%d", repo.lastLimit)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=nope", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit should 400: got=%d", rec.Code)
	}
}

func TestListRunsRepoFailure(t *testing.T) {
	t.Parallel()

	repo := &fakeCrawlRunRepo{listErr: errors.New("db down")}
	r := newRunsRouter(repo, t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}
}
