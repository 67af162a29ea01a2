package delivery

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Vovarama1992/echolite/internal/audio"
	"github.com/Vovarama1992/echolite/internal/gateway"
	"github.com/Vovarama1992/echolite/internal/process"
	"github.com/Vovarama1992/echolite/internal/settings"
	"github.com/Vovarama1992/echolite/internal/stream"
	"github.com/Vovarama1992/echolite/internal/transcribe"
	"github.com/Vovarama1992/echolite/internal/workspace"
)

func newTestRouter(t *testing.T, uploadsPerMinute int) http.Handler {
	t.Helper()
	zl := logger.NewZapLogger(zap.NewNop().Sugar())

	provider := settings.NewProvider(settings.NewFileStore(filepath.Join(t.TempDir(), "models.json")), nil)
	runner := process.NewExecRunner(nil)
	svc := gateway.NewService(
		provider,
		workspace.NewRoot(t.TempDir(), nil),
		audio.NewNormalizer(runner, "", nil),
		transcribe.NewService(runner, nil),
		stream.NewClient(nil, nil),
		nil,
	)

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware(zl))
	RegisterRoutes(r, gateway.NewHandler(svc, zl, nil, 0), settings.NewHandler(provider, zl), uploadsPerMinute)
	return r
}

func TestRoutes(t *testing.T) {
	r := newTestRouter(t, 0)

	tests := []struct {
		method, path string
		body         string
		wantStatus   int
		wantBody     string
	}{
		{http.MethodGet, "/ping", "", http.StatusOK, "pong"},
		{http.MethodGet, "/api/ask-audio", "", http.StatusOK, `"hint"`},
		{http.MethodGet, "/api/transcribe", "", http.StatusOK, `"ok":true`},
		{http.MethodGet, "/api/ask-transcribed", "", http.StatusOK, `"hint"`},
		{http.MethodGet, "/api/config/models", "", http.StatusOK, `"_meta"`},
		{http.MethodPost, "/api/complete", `{"transcript":"","instruction":"x"}`, http.StatusBadRequest, "Missing transcript or instruction"},
		{http.MethodDelete, "/api/complete", "", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
			if rec.Header().Get(requestIDHeader) == "" {
				t.Error("missing request id header")
			}
		})
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	r := newTestRouter(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "caller-42")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "caller-42" {
		t.Errorf("request id = %q, want caller-42", got)
	}
}

func TestUploadRateLimit(t *testing.T) {
	r := newTestRouter(t, 1)

	codes := make([]int, 2)
	for i := range codes {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/transcribe", strings.NewReader("x"))
		req.Header.Set("Content-Type", "text/plain")
		r.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}

	if codes[0] == http.StatusTooManyRequests {
		t.Errorf("first upload limited")
	}
	if codes[1] != http.StatusTooManyRequests {
		t.Errorf("second upload status = %d, want 429", codes[1])
	}
}
