package settings

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/Vovarama1992/go-utils/logger"
)

type Handler struct {
	provider *Provider
	log      *logger.ZapLogger
}

func NewHandler(provider *Provider, log *logger.ZapLogger) *Handler {
	return &Handler{provider: provider, log: log}
}

// GET /api/config/models
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.provider.Load(r.Context())
	if err != nil {
		h.log.Log(logger.LogEntry{Level: "error", Message: "settings load failed", Error: err})
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Settings unavailable", "detail": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Profiles
		Meta map[string]string `json:"_meta"`
	}{
		Profiles: cfg,
		Meta:     map[string]string{"path": h.provider.Location()},
	})
}

// POST /api/config/models
func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read body: " + err.Error()})
		return
	}

	// битый JSON считаем пустым объектом
	merged, err := Merge(Defaults(), body)
	if err != nil {
		h.log.Log(logger.LogEntry{Level: "warn", Message: "settings body ignored", Error: err})
		merged = Defaults()
	}

	if _, err := h.provider.Save(r.Context(), merged); err != nil {
		h.log.Log(logger.LogEntry{Level: "error", Message: "settings save failed", Error: err})
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Settings save failed", "detail": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
