package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/dustin/go-humanize"

	"github.com/Vovarama1992/echolite/internal/ports"
	"github.com/Vovarama1992/echolite/internal/stream"
)

const (
	serviceName     = "echolite"
	multipartMemory = 32 << 20
)

// Reporter — куда слать серверные ошибки (Telegram админа).
type Reporter interface {
	Report(source string, err error, details string)
}

type Handler struct {
	svc       *Service
	log       *logger.ZapLogger
	reporter  Reporter
	maxUpload int64
}

func NewHandler(svc *Service, log *logger.ZapLogger, reporter Reporter, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = 100 << 20
	}
	return &Handler{svc: svc, log: log, reporter: reporter, maxUpload: maxUpload}
}

// POST /api/ask-audio
func (h *Handler) AskAudio(w http.ResponseWriter, r *http.Request) {
	q, cleanup, ok := h.readAudioForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	sink := newHTTPSink(w)
	h.finish(w, r, sink, h.svc.AskAudio(r.Context(), q, sink))
}

// POST /api/transcribe
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	q, cleanup, ok := h.readAudioForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	sink := newHTTPSink(w)
	h.finish(w, r, sink, h.svc.Transcribe(r.Context(), q, sink))
}

// POST /api/ask-transcribed
func (h *Handler) AskTranscribed(w http.ResponseWriter, r *http.Request) {
	q, cleanup, ok := h.readAudioForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	sink := newHTTPSink(w)
	h.finish(w, r, sink, h.svc.AskTranscribed(r.Context(), q, sink))
}

// POST /api/complete
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	var q TranscriptQuestion
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<20)).Decode(&q); err != nil {
		h.log.Log(logger.LogEntry{Level: "warn", Message: "invalid json", Error: err, Service: serviceName})
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}

	sink := newHTTPSink(w)
	h.finish(w, r, sink, h.svc.Complete(r.Context(), q, sink))
}

// Hint — GET на upload-маршрутах подсказывает, как ими пользоваться.
func Hint(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "hint": text})
	}
}

// readAudioForm разбирает multipart. Отсутствие файла — не ошибка формы:
// решение о 400 принимает сервис.
func (h *Handler) readAudioForm(w http.ResponseWriter, r *http.Request) (AudioQuestion, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.log.Log(logger.LogEntry{Level: "warn", Message: "invalid multipart", Error: err, Service: serviceName})
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "Upload exceeds " + humanize.Bytes(uint64(h.maxUpload)),
			})
			return AudioQuestion{}, nil, false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Expected multipart/form-data"})
		return AudioQuestion{}, nil, false
	}

	q := AudioQuestion{Instruction: r.FormValue("instruction")}
	cleanup := func() { _ = r.MultipartForm.RemoveAll() }

	file, header, err := r.FormFile("audio")
	if err != nil {
		return q, cleanup, true
	}
	q.Audio = file
	q.Filename = header.Filename
	q.Size = header.Size

	h.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "upload " + header.Filename + " (" + humanize.Bytes(uint64(header.Size)) + ") " + r.URL.Path,
		Service: serviceName,
	})
	return q, func() {
		file.Close()
		cleanup()
	}, true
}

// finish переводит ошибку сервиса в HTTP-ответ. Если тело уже пошло,
// статус не поменять: соединение обрывается, чтобы клиент не принял
// обрезанный ответ за полный.
func (h *Handler) finish(w http.ResponseWriter, r *http.Request, sink *httpSink, err error) {
	if err == nil {
		return
	}

	if stream.IsCancel(err) && r.Context().Err() != nil {
		h.log.Log(logger.LogEntry{Level: "info", Message: "client went away: " + r.URL.Path, Service: serviceName})
		return
	}

	status, body := classify(err)
	level := "warn"
	if status >= http.StatusInternalServerError {
		level = "error"
		if h.reporter != nil {
			h.reporter.Report(r.Method+" "+r.URL.Path, err, "status "+http.StatusText(status))
		}
	}
	h.log.Log(logger.LogEntry{Level: level, Message: "request failed: " + r.URL.Path, Error: err, Service: serviceName})

	if sink.started {
		panic(http.ErrAbortHandler)
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, map[string]string) {
	var ce *ports.ClientError
	if errors.As(err, &ce) {
		return http.StatusBadRequest, map[string]string{"error": ce.Msg}
	}

	if be, ok := ports.AsBackendError(err); ok {
		switch be.Kind {
		case ports.KindMissingConfig:
			return http.StatusBadRequest, map[string]string{"error": be.Detail, "kind": string(be.Kind)}
		case ports.KindNotImplemented:
			return http.StatusNotImplemented, map[string]string{"error": be.Detail, "kind": string(be.Kind)}
		case ports.KindNetwork, ports.KindBackendRejected, ports.KindMalformedPayload:
			return http.StatusBadGateway, map[string]string{"error": "LLM call failed", "kind": string(be.Kind), "detail": be.Detail}
		default:
			return http.StatusInternalServerError, map[string]string{"error": "Processing failed", "kind": string(be.Kind), "detail": be.Detail}
		}
	}

	return http.StatusInternalServerError, map[string]string{"error": "Processing failed", "detail": err.Error()}
}

// httpSink пишет заголовки при первом фрагменте и сбрасывает каждый фрагмент.
type httpSink struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newHTTPSink(w http.ResponseWriter) *httpSink {
	return &httpSink{w: w, rc: http.NewResponseController(w)}
}

func (s *httpSink) WriteFragment(text string) error {
	if text == "" {
		return nil
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("Cache-Control", "no-store")
		h.Set("X-Content-Type-Options", "nosniff")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := io.WriteString(s.w, text); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
