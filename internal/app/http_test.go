package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"reconbook/api/internal/store"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestServer(t *testing.T, opts ...ServerOption) (*HTTPServer, *Service) {
	t.Helper()
	svc, _ := newTestService(t)
	server := NewHTTPServer(svc, "*", opts...)
	t.Cleanup(server.Close)
	return server, svc
}

func do(t *testing.T, server *HTTPServer, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return out
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func TestChecklistRoutes(t *testing.T) {
	server, _ := newTestServer(t)

	rr := do(t, server, http.MethodPost, "/api/checklists", `{"target":"10.0.0.5","items":[{"itemId":1,"checked":true},{"itemId":2}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("POST status = %d, body %s", rr.Code, rr.Body)
	}
	saved := decode[struct {
		Message   string          `json:"message"`
		Checklist store.Checklist `json:"checklist"`
	}](t, rr)
	if saved.Message != "Checklist saved successfully" || len(saved.Checklist.Items) != 2 {
		t.Fatalf("unexpected response %+v", saved)
	}

	rr = do(t, server, http.MethodPut, "/api/checklists/10.0.0.5/item", `{"itemId":2,"notes":"ftp anon"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rr.Code, rr.Body)
	}

	rr = do(t, server, http.MethodGet, "/api/checklists/10.0.0.5", "")
	got := decode[store.Checklist](t, rr)
	want := []store.ChecklistItem{{ItemID: 1, Checked: true}, {ItemID: 2, Notes: "ftp anon"}}
	if diff := cmp.Diff(want, got.Items); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}

	rr = do(t, server, http.MethodGet, "/api/checklists", "")
	summaries := decode[[]ChecklistSummary](t, rr)
	if len(summaries) != 1 || summaries[0].Progress != 50 {
		t.Fatalf("unexpected summaries %+v", summaries)
	}

	rr = do(t, server, http.MethodDelete, "/api/checklists/10.0.0.5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d", rr.Code)
	}
	rr = do(t, server, http.MethodDelete, "/api/checklists/10.0.0.5", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second DELETE status = %d", rr.Code)
	}
	if body := decode[errorBody](t, rr); body.Error != "Checklist not found" {
		t.Errorf("unexpected error body %+v", body)
	}
}

func TestUpsertItemRouteUnchecks(t *testing.T) {
	server, _ := newTestServer(t)

	rr := do(t, server, http.MethodPut, "/api/checklists/10.0.0.5/item", `{"itemId":3,"checked":true,"notes":"open port 22"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("first PUT status = %d, body %s", rr.Code, rr.Body)
	}
	rr = do(t, server, http.MethodPut, "/api/checklists/10.0.0.5/item", `{"itemId":3,"checked":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("second PUT status = %d, body %s", rr.Code, rr.Body)
	}
	updated := decode[struct {
		Checklist store.Checklist `json:"checklist"`
	}](t, rr)
	want := []store.ChecklistItem{{ItemID: 3, Checked: false, Notes: "open port 22"}}
	if diff := cmp.Diff(want, updated.Checklist.Items); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestWebappAliasAndEncodedTargets(t *testing.T) {
	server, _ := newTestServer(t)
	target := "https://app.example/login"

	rr := do(t, server, http.MethodPut, "/api/webapp/https%3A%2F%2Fapp.example%2Flogin/item", `{"itemId":3,"checked":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rr.Code, rr.Body)
	}

	rr = do(t, server, http.MethodGet, "/api/checklists/https%3A%2F%2Fapp.example%2Flogin", "")
	got := decode[store.Checklist](t, rr)
	if got.Target != target || len(got.Items) != 1 {
		t.Fatalf("unexpected checklist %+v", got)
	}
}

func TestChecklistHeadReportsExistence(t *testing.T) {
	server, _ := newTestServer(t)

	if rr := do(t, server, http.MethodHead, "/api/checklists/10.0.0.5", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("HEAD before save = %d", rr.Code)
	}
	do(t, server, http.MethodPut, "/api/checklists/10.0.0.5/item", `{"itemId":1}`)
	rr := do(t, server, http.MethodHead, "/api/checklists/10.0.0.5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("HEAD after save = %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("expected empty HEAD body, got %q", rr.Body)
	}
}

func TestReplaceChecklistBodyErrors(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name    string
		body    string
		code    string
		message string
	}{
		{name: "invalid json", body: `{"target":`, code: "INVALID_BODY", message: "invalid JSON body"},
		{name: "items not array", body: `{"target":"10.0.0.5","items":{"itemId":1}}`, code: "VALIDATION_ERROR", message: "Items must be an array"},
		{name: "items missing", body: `{"target":"10.0.0.5"}`, code: "VALIDATION_ERROR", message: "Target and items are required"},
		{name: "items null", body: `{"target":"10.0.0.5","items":null}`, code: "VALIDATION_ERROR", message: "Target and items are required"},
		{name: "target missing", body: `{"items":[]}`, code: "VALIDATION_ERROR", message: "Target and items are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, server, http.MethodPost, "/api/checklists", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
			}
			if diff := cmp.Diff(errorBody{Code: tt.code, Error: tt.message}, decode[errorBody](t, rr)); diff != "" {
				t.Fatalf("error body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCredentialRoutes(t *testing.T) {
	server, _ := newTestServer(t)

	rr := do(t, server, http.MethodPost, "/api/credentials", `{"username":"admin","password":"pw","host":"10.0.0.5","service":"ssh"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, body %s", rr.Code, rr.Body)
	}
	created := decode[struct {
		Credential store.Credential `json:"credential"`
	}](t, rr).Credential

	rr = do(t, server, http.MethodPut, "/api/credentials/"+created.ID, `{"notes":"root reuse"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rr.Code, rr.Body)
	}

	rr = do(t, server, http.MethodGet, "/api/credentials/"+created.ID, "")
	if got := decode[store.Credential](t, rr); got.Notes != "root reuse" {
		t.Fatalf("unexpected credential %+v", got)
	}

	rr = do(t, server, http.MethodPost, "/api/credentials/save", `{"content":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("save with blank content = %d", rr.Code)
	}

	if rr = do(t, server, http.MethodDelete, "/api/credentials/"+created.ID, ""); rr.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d", rr.Code)
	}
	if rr = do(t, server, http.MethodGet, "/api/credentials/"+created.ID, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("GET after delete = %d", rr.Code)
	}
}

func TestScanRoutes(t *testing.T) {
	server, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"target": "10.0.0.5", "command": "nmap -sV 10.0.0.5", "results": sampleNmap})
	rr := do(t, server, http.MethodPost, "/api/nmap", string(body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, body %s", rr.Code, rr.Body)
	}

	rr = do(t, server, http.MethodPost, "/api/nmap/import?command=nmap+-sV&scanType=service", sampleNmap)
	if rr.Code != http.StatusCreated {
		t.Fatalf("import status = %d, body %s", rr.Code, rr.Body)
	}
	imported := decode[struct {
		Scan store.NmapScan `json:"scan"`
	}](t, rr).Scan
	if imported.Target != "10.0.0.5" || len(imported.Ports) != 2 {
		t.Fatalf("unexpected imported scan %+v", imported)
	}

	rr = do(t, server, http.MethodGet, "/api/nmap/search?target=10.0.0", "")
	if scans := decode[[]store.NmapScan](t, rr); len(scans) != 2 {
		t.Fatalf("expected 2 scans, got %d", len(scans))
	}
	if rr = do(t, server, http.MethodGet, "/api/nmap/search", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("search without target = %d", rr.Code)
	}

	if rr = do(t, server, http.MethodDelete, "/api/nmap/"+imported.ID, ""); rr.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d", rr.Code)
	}
	if rr = do(t, server, http.MethodPut, "/api/nmap/"+imported.ID, `{"notes":"x"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("PUT after delete = %d", rr.Code)
	}
}

func TestSearchRoute(t *testing.T) {
	server, svc := newTestServer(t)
	_, _ = svc.CreateScan(context.Background(), ScanInput{Target: strPtr("10.0.0.5"), Command: strPtr("nmap"), Results: strPtr(sampleNmap), Notes: strPtr("nginx looks old")})

	rr := do(t, server, http.MethodGet, "/api/search?q=nginx&type=nmap_scan", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("search status = %d, body %s", rr.Code, rr.Body)
	}
	if rr = do(t, server, http.MethodGet, "/api/search?q=", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("empty query = %d", rr.Code)
	}
	if rr = do(t, server, http.MethodGet, "/api/search?q=x&type=host", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad type = %d", rr.Code)
	}
}

func TestReportRoutes(t *testing.T) {
	server, _ := newTestServer(t)
	do(t, server, http.MethodPut, "/api/checklists/10.0.0.5/item", `{"itemId":1,"checked":true}`)

	rr := do(t, server, http.MethodGet, "/api/reports/10.0.0.5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("report status = %d, body %s", rr.Code, rr.Body)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="10-0-0-5-report.html"` {
		t.Errorf("unexpected disposition %q", cd)
	}

	if rr = do(t, server, http.MethodGet, "/api/reports/10.0.0.5?format=odt", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad format = %d", rr.Code)
	}
	if rr = do(t, server, http.MethodPost, "/api/reports/10.0.0.5/archive", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("archive without store = %d", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	server, _ := newTestServer(t)
	for _, path := range []string{"/", "/api", "/api/users", "/api/checklists/a/b/c"} {
		if rr := do(t, server, http.MethodGet, path, ""); rr.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, rr.Code)
		}
	}
}

type failingChecklists struct {
	*store.MemoryStore
}

func (failingChecklists) ListChecklists(context.Context) ([]store.Checklist, error) {
	return nil, errors.New("pq: relation \"checklists\" does not exist")
}

func TestServerErrorsAreSanitized(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	memory := store.NewMemoryStore()
	svc := New(Deps{Checklists: failingChecklists{memory}, Records: memory})
	server := NewHTTPServer(svc, "*", WithLogger(zap.New(core)))

	rr := do(t, server, http.MethodGet, "/api/checklists", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if diff := cmp.Diff(errorBody{Code: "SERVER_ERROR", Error: "Server error"}, decode[errorBody](t, rr)); diff != "" {
		t.Fatalf("error body mismatch (-want +got):\n%s", diff)
	}
	if logs.FilterMessage("request failed").Len() != 1 {
		t.Fatalf("expected the cause to be logged, got %v", logs.All())
	}
}

func TestAPITokenRequired(t *testing.T) {
	server, _ := newTestServer(t, WithAPIToken("s3cret"))

	if rr := do(t, server, http.MethodGet, "/api/checklists", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("without token = %d", rr.Code)
	}
	if rr := do(t, server, http.MethodGet, "/api/checklists", "", "X-Auth-Token", "wrong"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d", rr.Code)
	}
	if rr := do(t, server, http.MethodGet, "/api/checklists", "", "X-Auth-Token", "s3cret"); rr.Code != http.StatusOK {
		t.Fatalf("valid token = %d", rr.Code)
	}
	if rr := do(t, server, http.MethodGet, "/api/health", ""); rr.Code != http.StatusOK {
		t.Fatalf("health without token = %d", rr.Code)
	}
	if rr := do(t, server, http.MethodGet, "/api/ready", ""); rr.Code != http.StatusOK {
		t.Fatalf("ready without token = %d", rr.Code)
	}
}

func TestRateLimitPerClient(t *testing.T) {
	// httptest requests arrive from 192.0.2.1
	server, _ := newTestServer(t, WithRateLimit(1, 2), WithTrustedProxies([]netip.Prefix{netip.MustParsePrefix("192.0.2.1/32")}))

	for i := 0; i < 2; i++ {
		if rr := do(t, server, http.MethodGet, "/api/health", "", "X-Forwarded-For", "203.0.113.7"); rr.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rr.Code)
		}
	}
	rr := do(t, server, http.MethodGet, "/api/health", "", "X-Forwarded-For", "203.0.113.7")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr := do(t, server, http.MethodGet, "/api/health", "", "X-Forwarded-For", "198.51.100.2"); rr.Code != http.StatusOK {
		t.Fatalf("other client = %d", rr.Code)
	}
}

func TestRateLimitIgnoresForwardedFromUntrustedPeer(t *testing.T) {
	server, _ := newTestServer(t, WithRateLimit(1, 2))

	for i, hop := range []string{"203.0.113.7", "203.0.113.8"} {
		if rr := do(t, server, http.MethodGet, "/api/health", "", "X-Forwarded-For", hop); rr.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rr.Code)
		}
	}
	rr := do(t, server, http.MethodGet, "/api/health", "", "X-Forwarded-For", "203.0.113.9")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("rotating X-Forwarded-For should not reset the bucket, got %d", rr.Code)
	}
}
