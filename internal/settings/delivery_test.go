package settings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Vovarama1992/go-utils/logger"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T) (*Handler, *Provider) {
	t.Helper()
	p, _ := newTestProvider(t)
	return NewHandler(p, logger.NewZapLogger(zap.NewNop().Sugar())), p
}

func TestHandlerGet(t *testing.T) {
	h, p := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/config/models", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		AskAudio ChatProfile       `json:"askAudio"`
		AskText  ChatProfile       `json:"askText"`
		Meta     map[string]string `json:"_meta"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Meta["path"] != p.Location() {
		t.Errorf("_meta.path = %q, want %q", body.Meta["path"], p.Location())
	}
	if body.AskAudio.Model != Defaults().AskAudio.Model {
		t.Errorf("askAudio.model = %q, want default", body.AskAudio.Model)
	}
}

func TestHandlerPostClampsAndPersists(t *testing.T) {
	h, p := newTestHandler(t)

	payload := `{"askAudio": {"temperature": 7}, "askText": {"temperature": -5, "model": "llama3.2"}}`
	rec := httptest.NewRecorder()
	h.Post(rec, httptest.NewRequest(http.MethodPost, "/api/config/models", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Errorf("body = %s, want ok ack", rec.Body.String())
	}

	cfg, err := p.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AskAudio.Temperature != 2 {
		t.Errorf("askAudio.temperature = %v, want 2", cfg.AskAudio.Temperature)
	}
	if cfg.AskText.Temperature != 0 {
		t.Errorf("askText.temperature = %v, want 0", cfg.AskText.Temperature)
	}
	if cfg.AskText.Model != "llama3.2" {
		t.Errorf("askText.model = %q, want llama3.2", cfg.AskText.Model)
	}
}

func TestHandlerPostNaNKeepsPrior(t *testing.T) {
	h, p := newTestHandler(t)

	seed := Defaults()
	seed.AskAudio.Temperature = 0.9
	if _, err := p.Save(context.Background(), seed); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.Post(rec, httptest.NewRequest(http.MethodPost, "/api/config/models",
		strings.NewReader(`{"askAudio": {"temperature": "NaN"}}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	cfg, err := p.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AskAudio.Temperature != 0.9 {
		t.Errorf("askAudio.temperature = %v, want prior 0.9", cfg.AskAudio.Temperature)
	}
}

func TestHandlerPostBadTemperatureKeepsOtherFields(t *testing.T) {
	h, p := newTestHandler(t)

	seed := Defaults()
	seed.AskAudio.Temperature = 0.9
	if _, err := p.Save(context.Background(), seed); err != nil {
		t.Fatal(err)
	}

	for _, payload := range []string{
		`{"askText": {"model": "llama3.2"}, "askAudio": {"temperature": "abc"}}`,
		`{"askText": {"model": "llama3.2"}, "askAudio": {"temperature": true}}`,
		`{"askText": {"model": "llama3.2"}, "transcribe": {"threads": "x"}, "askAudio": {"temperature": [1]}}`,
	} {
		rec := httptest.NewRecorder()
		h.Post(rec, httptest.NewRequest(http.MethodPost, "/api/config/models", strings.NewReader(payload)))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", payload, rec.Code)
		}

		cfg, err := p.Load(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if cfg.AskText.Model != "llama3.2" {
			t.Errorf("%s: askText.model = %q, want llama3.2", payload, cfg.AskText.Model)
		}
		if cfg.AskAudio.Temperature != 0.9 {
			t.Errorf("%s: askAudio.temperature = %v, want prior 0.9", payload, cfg.AskAudio.Temperature)
		}
	}
}

func TestHandlerPostMalformedBody(t *testing.T) {
	h, p := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Post(rec, httptest.NewRequest(http.MethodPost, "/api/config/models", strings.NewReader(`{oops`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	cfg, err := p.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AskText.Model != Defaults().AskText.Model {
		t.Error("malformed body should persist defaults")
	}
}
