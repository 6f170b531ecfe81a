package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/api/presenter"
	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/platformstate"
	"github.com/pagopa/interop-platform-state/internal/stream"
)

// pathKey returns the primary key of the request path. Keys contain '#' and
// arrive percent-encoded.
func pathKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	pk, err := url.PathUnescape(chi.URLParam(r, "pk"))
	if err != nil || pk == "" {
		presenter.Error(w, r, "invalid key", http.StatusBadRequest)
		return "", false
	}
	return pk, true
}

// handlePlatformState returns one platform state entry.
func (s *Server) handlePlatformState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pk, ok := pathKey(w, r)
	if !ok {
		return
	}

	entry, err := s.platform.Lookup(ctx, pk)
	switch {
	case errors.Is(err, platformstate.ErrInvalidKey):
		presenter.Error(w, r, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Ctx(ctx).Error().Err(err).Str("pk", pk).Msg("failed to read platform state")
		presenter.Error(w, r, "failed to read platform state", http.StatusInternalServerError)
		return
	case entry == nil:
		presenter.Error(w, r, "platform state not found", http.StatusNotFound)
		return
	}
	presenter.JSON(w, r, entry.ToItem(), http.StatusOK)
}

// handleTokenState returns one token generation state entry.
func (s *Server) handleTokenState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pk, ok := pathKey(w, r)
	if !ok {
		return
	}

	if _, err := core.ParseTokenGenerationPK(pk); err != nil {
		presenter.Error(w, r, "invalid token generation state key", http.StatusBadRequest)
		return
	}
	entry, err := s.tokens.Get(ctx, pk)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("pk", pk).Msg("failed to read token generation state")
		presenter.Error(w, r, "failed to read token generation state", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		presenter.Error(w, r, "token generation state not found", http.StatusNotFound)
		return
	}
	presenter.JSON(w, r, entry.ToItem(), http.StatusOK)
}

// handleConsumers lists the stream consumers running in this process.
func (s *Server) handleConsumers(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, s.monitor.List(), http.StatusOK)
}

func (s *Server) handleConsumerFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := s.monitor.Failures(chi.URLParam(r, "domain"))
	if err != nil {
		var notFound stream.ConsumerNotFoundError
		if errors.As(err, &notFound) {
			presenter.Error(w, r, err.Error(), http.StatusNotFound)
			return
		}
		presenter.Error(w, r, "failed to read consumer failures", http.StatusInternalServerError)
		return
	}
	presenter.JSON(w, r, failures, http.StatusOK)
}

// handleAdminAudit processes requests to retrieve audit log entries.
func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	reader, ok := s.auditor.(core.AuditReader)
	if !ok {
		presenter.Error(w, r, "the configured auditor cannot be queried", http.StatusNotImplemented)
		return
	}

	// filters
	q := r.URL.Query()
	filterCorrelationID := q.Get("correlation_id")
	filterClientID := q.Get("client_id")
	filterFingerprint := q.Get("fingerprint")

	limit := 50
	if limitStr := q.Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 0 {
			logger.Warn().Str("limit", limitStr).Msg("invalid limit parameter")
			presenter.Error(w, r, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = v
	}

	var entries []core.AuditEntry
	var err error
	if filterCorrelationID != "" || filterClientID != "" || filterFingerprint != "" {
		entries, err = reader.Find(func(entry core.AuditEntry) bool {
			if filterCorrelationID != "" && entry.ID != filterCorrelationID {
				return false
			}
			if filterClientID != "" && entry.ClientID != filterClientID {
				return false
			}
			if filterFingerprint != "" && entry.TokenFingerprint != filterFingerprint {
				return false
			}
			return true
		}, limit)
	} else {
		entries, err = reader.GetRecent(limit)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to retrieve audit logs")
		presenter.Error(w, r, "failed to retrieve audit logs", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	presenter.JSON(w, r, entries, http.StatusOK)
}
