package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"reconbook/api/internal/search"
	"reconbook/api/internal/store"

	"go.uber.org/zap"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
	token      *tokenVerifier
	limiters   *rateLimiterMap
	rateLimit  float64
	rateBurst  int
	proxies    []netip.Prefix
}

type ServerOption func(*HTTPServer)

func WithLogger(logger *zap.Logger) ServerOption {
	return func(s *HTTPServer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAPIToken requires X-Auth-Token on every route except health and ready.
// token may be plaintext or a bcrypt hash from HashToken.
func WithAPIToken(token string) ServerOption {
	return func(s *HTTPServer) {
		if token != "" {
			s.token = newTokenVerifier(token)
		}
	}
}

// WithRateLimit enables a per-client token bucket; rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *HTTPServer) {
		s.rateLimit = rps
		s.rateBurst = burst
	}
}

// WithTrustedProxies lists the peers whose X-Forwarded-For header is believed
// when keying the rate limiter. Without it the limiter uses RemoteAddr.
func WithTrustedProxies(proxies []netip.Prefix) ServerOption {
	return func(s *HTTPServer) {
		s.proxies = proxies
	}
}

func NewHTTPServer(service *Service, corsOrigin string, opts ...ServerOption) *HTTPServer {
	s := &HTTPServer{service: service, corsOrigin: corsOrigin, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.rateLimit > 0 {
		if s.rateBurst <= 0 {
			s.rateBurst = int(s.rateLimit) + 1
		}
		s.limiters = newRateLimiterMap()
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.withRateLimit(s.withAuth(http.HandlerFunc(s.handle))))
}

// Close stops background work owned by the server.
func (s *HTTPServer) Close() {
	if s.limiters != nil {
		s.limiters.stop()
	}
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ok, checks := s.service.Checks(ctx)
		status, statusCode := "ready", http.StatusOK
		if !ok {
			status, statusCode = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ok,
			"status": status,
			"checks": checks,
		})
		return
	}

	parts, err := splitEscapedPath(r.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PATH", "Malformed path encoding", nil)
		return
	}
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch parts[1] {
	case "checklists", "webapp":
		s.handleChecklists(w, r, parts[2:])
	case "credentials":
		s.handleCredentials(w, r, parts[2:])
	case "nmap":
		s.handleScans(w, r, parts[2:])
	case "search":
		s.handleSearch(w, r, parts[2:])
	case "reports":
		s.handleReports(w, r, parts[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 0 || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	query := r.URL.Query()
	filterType, ok := search.ParseResultType(strings.TrimSpace(query.Get("type")))
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "type must be nmap_scan or credential", nil)
		return
	}
	response, err := s.service.Search(r.Context(), search.Query{
		Text:       query.Get("q"),
		FilterType: filterType,
		Limit:      parseLimit(query.Get("limit"), 20),
		Offset:     parseLimit(query.Get("offset"), 0),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleReports(w http.ResponseWriter, r *http.Request, parts []string) {
	format := r.URL.Query().Get("format")

	if len(parts) == 1 && r.Method == http.MethodGet {
		result, err := s.service.ExportReport(r.Context(), parts[0], format)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	if len(parts) == 2 && parts[1] == "archive" && r.Method == http.MethodPost {
		key, err := s.service.ArchiveReport(r.Context(), parts[0], format)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"key": key})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

// fail maps err onto an error response. Unexpected errors are logged and
// hidden behind a generic message.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		s.requestLogger(r).Error("request failed", zap.Error(err))
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.requestLogger(r).Info("request",
			zap.Int("status", writer.status),
			zap.Duration("duration", time.Since(started)),
		)
	})
}

func (s *HTTPServer) withAuth(next http.Handler) http.Handler {
	if s.token == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || r.URL.Path == "/api/health" || r.URL.Path == "/api/ready" {
			next.ServeHTTP(w, r)
			return
		}
		if !s.token.verify(r.Header.Get("X-Auth-Token")) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) withRateLimit(next http.Handler) http.Handler {
	if s.limiters == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := clientAddr(r, s.proxies)
		if !s.limiters.getLimiter(clientIP, s.rateLimit, s.rateBurst).Allow() {
			s.requestLogger(r).Warn("rate limit exceeded", zap.String("client_ip", clientIP))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger returns the server logger annotated with request context.
func (s *HTTPServer) requestLogger(r *http.Request) *zap.Logger {
	requestID, _ := r.Context().Value(requestIDKey{}).(string)
	return s.logger.With(
		zap.String("request_id", requestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Token, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,HEAD,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// splitEscapedPath splits on the escaped path and unescapes each segment, so
// a target such as https%3A%2F%2Fhost%2Flogin stays one segment.
func splitEscapedPath(u *url.URL) ([]string, error) {
	trimmed := strings.Trim(u.EscapedPath(), "/")
	if trimmed == "" {
		return nil, nil
	}
	raw := strings.Split(trimmed, "/")
	parts := make([]string, 0, len(raw))
	for _, segment := range raw {
		decoded, err := url.PathUnescape(segment)
		if err != nil {
			return nil, err
		}
		parts = append(parts, decoded)
	}
	return parts, nil
}

func parseLimit(raw string, fallback int) int {
	if raw = strings.TrimSpace(raw); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
