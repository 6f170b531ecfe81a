package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/api/presenter"
	"github.com/pagopa/interop-platform-state/internal/core"
)

// quietRoutes are polled by orchestrators and only logged when they fail.
var quietRoutes = map[string]bool{
	"/healthz": true,
	"/about":   true,
}

// LoggingMiddleware attaches a request logger to the context and logs the
// outcome under the matched route pattern, so admin lookups do not spread
// partition keys over the log fields.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		l := log.With().
			Str("correlation_id", core.CorrelationID(r.Context())).
			Str("method", r.Method).
			Str("remote", r.RemoteAddr).
			Logger()

		ww := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r.WithContext(l.WithContext(r.Context())))

		if quietRoutes[r.URL.Path] && ww.statusCode < 400 {
			return
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		var event *zerolog.Event
		switch {
		case ww.statusCode >= 500:
			event = l.Error()
		case ww.statusCode >= 400:
			event = l.Warn()
		default:
			event = l.Info()
		}
		event.
			Str("route", route).
			Int("status", ww.statusCode).
			Int("bytes", ww.written).
			Dur("duration", time.Since(start)).
			Msg("http request served")
	})
}

// RecoverMiddleware turns a handler panic into a 500 carrying the correlation id.
// It runs inside LoggingMiddleware so the panic is logged with the request fields.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				log.Ctx(r.Context()).Error().
					Interface("panic", v).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				presenter.Error(w, r, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}
