package middleware

import (
	"net/http"

	"github.com/rs/xid"

	"github.com/pagopa/interop-platform-state/internal/core"
)

const CorrelationIDHeader = "X-Correlation-ID"

func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationIDHeader)
		if id == "" {
			id = xid.New().String()
		}
		w.Header().Set(CorrelationIDHeader, id)

		next.ServeHTTP(w, r.WithContext(core.WithCorrelationID(r.Context(), id)))
	})
}
