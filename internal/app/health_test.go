package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"reconbook/api/internal/store"
)

// pingStore is a MemoryStore whose Ping can be overridden.
type pingStore struct {
	*store.MemoryStore
	pingFn func(context.Context) error
}

func (p *pingStore) Ping(ctx context.Context) error {
	if p.pingFn != nil {
		return p.pingFn(ctx)
	}
	return nil
}

func newHealthServer(t *testing.T, pingFn func(context.Context) error) *HTTPServer {
	t.Helper()
	records := &pingStore{MemoryStore: store.NewMemoryStore(), pingFn: pingFn}
	svc := New(Deps{Checklists: records, Records: records})
	return NewHTTPServer(svc, "*")
}

func TestHealthEndpoint(t *testing.T) {
	server := newHealthServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	server := newHealthServer(t, func(context.Context) error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if status, exists := response["status"]; !exists || status != "ready" {
		t.Errorf("expected status=ready, got %v", status)
	}

	checks, exists := response["checks"].(map[string]any)
	if !exists {
		t.Fatalf("expected checks object, got %v", response["checks"])
	}

	dbCheck, exists := checks["database"].(map[string]any)
	if !exists {
		t.Fatalf("expected database check, got %v", checks["database"])
	}
	if dbStatus := dbCheck["status"]; dbStatus != "ok" {
		t.Errorf("expected database status=ok, got %v", dbStatus)
	}

	searchCheck, exists := checks["search"].(map[string]any)
	if !exists {
		t.Fatalf("expected search check, got %v", checks["search"])
	}
	if backend := searchCheck["backend"]; backend != "store" {
		t.Errorf("expected store search backend, got %v", backend)
	}
	if _, separate := checks["checklists"]; separate {
		t.Error("did not expect a separate checklist check when one store serves both")
	}
}

func TestReadyEndpoint_DatabaseFailure(t *testing.T) {
	server := newHealthServer(t, func(context.Context) error {
		return errors.New("connection refused")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if ok, exists := response["ok"]; !exists || ok != false {
		t.Errorf("expected ok=false, got %v", ok)
	}
	if status := response["status"]; status != "not_ready" {
		t.Errorf("expected status=not_ready, got %v", status)
	}

	checks := response["checks"].(map[string]any)
	dbCheck := checks["database"].(map[string]any)
	if dbStatus := dbCheck["status"]; dbStatus != "error" {
		t.Errorf("expected database status=error, got %v", dbStatus)
	}
	// the driver error is logged, not returned
	if _, exposed := dbCheck["error"]; exposed {
		t.Errorf("expected no error detail in readiness body, got %v", dbCheck)
	}
}

func TestReadyEndpoint_SeparateChecklistStore(t *testing.T) {
	records := &pingStore{MemoryStore: store.NewMemoryStore()}
	checklists := &pingStore{
		MemoryStore: store.NewMemoryStore(),
		pingFn:      func(context.Context) error { return errors.New("redis down") },
	}
	server := NewHTTPServer(New(Deps{Checklists: checklists, Records: records}), "*")

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var response struct {
		Checks map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if got := response.Checks["checklists"]["status"]; got != "error" {
		t.Errorf("expected checklists status=error, got %v", got)
	}
	if got := response.Checks["database"]["status"]; got != "ok" {
		t.Errorf("expected database status=ok, got %v", got)
	}
}

func TestHealthEndpoint_OptionsRequest(t *testing.T) {
	server := newHealthServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for OPTIONS, got %d", rr.Code)
	}
}

func TestHealthEndpoint_CORSHeaders(t *testing.T) {
	server := newHealthServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin=*, got %v", origin)
	}
	if cache := rr.Header().Get("Cache-Control"); cache != "no-store" {
		t.Errorf("expected Cache-Control=no-store, got %v", cache)
	}
	if id := rr.Header().Get("X-Request-ID"); id != "req-123" {
		t.Errorf("expected request id to be echoed, got %q", id)
	}
}

func TestPingMethod(t *testing.T) {
	tests := []struct {
		name      string
		pingError error
		wantError bool
	}{
		{
			name:      "healthy database",
			pingError: nil,
			wantError: false,
		},
		{
			name:      "unhealthy database",
			pingError: errors.New("connection failed"),
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := &pingStore{
				MemoryStore: store.NewMemoryStore(),
				pingFn:      func(context.Context) error { return tt.pingError },
			}
			svc := New(Deps{Checklists: records, Records: records})

			err := svc.Ping(context.Background())
			if (err != nil) != tt.wantError {
				t.Errorf("Ping() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}
