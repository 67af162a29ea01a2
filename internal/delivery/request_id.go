package delivery

import (
	"net/http"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/rs/xid"
)

const requestIDHeader = "X-Request-Id"

// RequestIDMiddleware проставляет X-Request-Id (берёт входящий, если есть)
// и пишет строку лога на каждый запрос.
func RequestIDMiddleware(log *logger.ZapLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = xid.New().String()
				r.Header.Set(requestIDHeader, id)
			}
			w.Header().Set(requestIDHeader, id)

			log.Log(logger.LogEntry{
				Level:   "info",
				Message: r.Method + " " + r.URL.Path + " id=" + id,
				Service: "echolite",
			})
			next.ServeHTTP(w, r)
		})
	}
}
