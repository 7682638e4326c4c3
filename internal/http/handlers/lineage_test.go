package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tz1211/datadetox/internal/domain/lineage"
	pkgerrors "github.com/tz1211/datadetox/internal/pkg/errors"
	"github.com/tz1211/datadetox/internal/platform/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

type fakeLineageService struct {
	lineageCalls []string
	refreshCalls []string
	result       lineage.LineageResult
	err          error
	stats        lineage.Statistics
	statsErr     error
}

func (f *fakeLineageService) Lineage(_ context.Context, entityID string) (lineage.LineageResult, error) {
	f.lineageCalls = append(f.lineageCalls, entityID)
	if f.err != nil {
		return lineage.EmptyLineageResult(), f.err
	}
	out := f.result
	if out.RootID == "" {
		out.RootID = entityID
	}
	return out, nil
}

func (f *fakeLineageService) Refresh(_ context.Context, modelID string) (lineage.LineageResult, error) {
	f.refreshCalls = append(f.refreshCalls, modelID)
	if f.err != nil {
		return lineage.EmptyLineageResult(), f.err
	}
	out := f.result
	if out.RootID == "" {
		out.RootID = modelID
	}
	return out, nil
}

func (f *fakeLineageService) Statistics(_ context.Context) (lineage.Statistics, error) {
	if f.statsErr != nil {
		return lineage.Statistics{}, f.statsErr
	}
	return f.stats, nil
}

func newLineageRouter(svc *fakeLineageService, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewLineageHandler(log, svc)
	r := gin.New()
	r.GET("/api/lineage/*id", h.GetLineage)
	return r
}

func TestGetLineageSlashedID(t *testing.T) {
	t.Parallel()

	root := lineage.ModelEntity(lineage.ModelNode{ID: "org/model", Author: "org", Downloads: 7})
	svc := &fakeLineageService{result: lineage.LineageResult{
		RootID:        "org/model",
		Root:          &root,
		Nodes:         []lineage.Entity{root},
		Relationships: []lineage.Relationship{},
	}}
	r := newLineageRouter(svc, newTestLogger(t))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lineage/org/model", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(svc.lineageCalls) != 1 || svc.lineageCalls[0] != "org/model" {
		t.Fatalf("service saw wrong id: %v", svc.lineageCalls)
	}
	if len(svc.refreshCalls) != 0 {
		t.Fatalf("refresh called without refresh param: %v", svc.refreshCalls)
	}

	var got lineage.LineageResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.RootID != "org/model" || got.Root == nil || len(got.Nodes) != 1 {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestGetLineageUnknownIDStaysOK(t *testing.T) {
	t.Parallel()

	svc := &fakeLineageService{result: lineage.EmptyLineageResult()}
	r := newLineageRouter(svc, newTestLogger(t))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lineage/org/unknown", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unknown id should not error: got=%d", rec.Code)
	}

	var got lineage.LineageResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.RootID != "org/unknown" {
		t.Fatalf("root_id not echoed: %+v", got)
	}
	if got.Root != nil || len(got.Nodes) != 0 || len(got.Relationships) != 0 {
		t.Fatalf("expected empty lineage: %+v", got)
	}
}

func TestGetLineageRefreshParam(t *testing.T) {
	t.Parallel()

	svc := &fakeLineageService{result: lineage.EmptyLineageResult()}
	r := newLineageRouter(svc, newTestLogger(t))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lineage/org/model?refresh=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}
	if len(svc.refreshCalls) != 1 || svc.refreshCalls[0] != "org/model" {
		t.Fatalf("expected one refresh call: %v", svc.refreshCalls)
	}
	if len(svc.lineageCalls) != 0 {
		t.Fatalf("plain lineage path should not run on refresh: %v", svc.lineageCalls)
	}
}

func TestGetLineageMissingID(t *testing.T) {
	t.Parallel()

	svc := &fakeLineageService{}
	r := newLineageRouter(svc, newTestLogger(t))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lineage/", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "missing_model_id" {
		t.Fatalf("unexpected error code: %q", envelope.Error.Code)
	}
	if len(svc.lineageCalls)+len(svc.refreshCalls) != 0 {
		t.Fatalf("service should not be called without an id")
	}
}

func TestGetLineageConnectivityMapsTo502(t *testing.T) {
	t.Parallel()

	svc := &fakeLineageService{err: fmt.Errorf("lineage: %w", pkgerrors.ErrConnectivity)}
	r := newLineageRouter(svc, newTestLogger(t))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lineage/org/model", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "graph_unavailable" {
		t.Fatalf("unexpected error code: %q", envelope.Error.Code)
	}
}
