package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	httpH "github.com/tz1211/datadetox/internal/http/handlers"
)

func TestRouterHealthcheck(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	r := NewRouter(RouterConfig{HealthHandler: httpH.NewHealthHandler(nil)})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}

func TestRouterSkipsUnwiredRoutes(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	r := NewRouter(RouterConfig{})

	for _, path := range []string{"/healthcheck", "/api/runs", "/api/statistics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("unwired route %s should 404: got=%d", path, rec.Code)
		}
	}
}

func TestRouterSetsTraceHeaders(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	r := NewRouter(RouterConfig{HealthHandler: httpH.NewHealthHandler(nil)})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatal("trace id header missing")
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("request id header missing")
	}
}
