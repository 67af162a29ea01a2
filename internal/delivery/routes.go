package delivery

import (
	"net/http"
	"time"

	"github.com/Vovarama1992/go-utils/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/Vovarama1992/echolite/internal/gateway"
	"github.com/Vovarama1992/echolite/internal/settings"
)

func RegisterRoutes(
	r chi.Router,
	hGateway *gateway.Handler,
	hSettings *settings.Handler,
	uploadsPerMinute int,
) {
	// --- служебное ---
	r.With(httputil.RecoverMiddleware).Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	// --- настройки моделей ---
	r.With(httputil.RecoverMiddleware).Get("/api/config/models", hSettings.Get)
	r.With(httputil.RecoverMiddleware).Post("/api/config/models", hSettings.Post)

	// --- потоковые ответы ---
	// middleware.Recoverer пропускает http.ErrAbortHandler: обрыв потока
	// после первого байта должен дойти до сервера
	r.Group(func(ar chi.Router) {
		ar.Use(middleware.Recoverer)

		ar.Get("/api/ask-audio", gateway.Hint("Use POST with multipart/form-data (audio + instruction)"))
		ar.Get("/api/transcribe", gateway.Hint("Use POST with multipart/form-data (audio)"))
		ar.Get("/api/ask-transcribed", gateway.Hint("Use POST with multipart/form-data (audio + instruction)"))

		ar.Group(func(ur chi.Router) {
			if uploadsPerMinute > 0 {
				ur.Use(httprate.LimitByIP(uploadsPerMinute, time.Minute))
			}
			ur.Post("/api/ask-audio", hGateway.AskAudio)
			ur.Post("/api/transcribe", hGateway.Transcribe)
			ur.Post("/api/ask-transcribed", hGateway.AskTranscribed)
		})

		ar.Post("/api/complete", hGateway.Complete)
	})
}
