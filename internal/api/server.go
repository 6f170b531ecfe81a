// Package api exposes token issuance and read-only views of the projections over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/api/middleware"
	"github.com/pagopa/interop-platform-state/internal/audit"
	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/platformstate"
	"github.com/pagopa/interop-platform-state/internal/service"
	"github.com/pagopa/interop-platform-state/internal/stream"
	"github.com/pagopa/interop-platform-state/internal/tokenstate"
)

type Server struct {
	tokenService *service.TokenService
	platform     *platformstate.Repository
	tokens       *tokenstate.Repository
	monitor      *stream.Monitor
	auditor      core.Auditor
}

func NewServer(
	tokenService *service.TokenService,
	platform *platformstate.Repository,
	tokens *tokenstate.Repository,
	monitor *stream.Monitor,
	auditor core.Auditor,
) *Server {
	if auditor == nil {
		auditor = audit.NewNoopAuditor()
	}
	if monitor == nil {
		monitor = stream.NewMonitor()
	}
	return &Server{
		tokenService: tokenService,
		platform:     platform,
		tokens:       tokens,
		monitor:      monitor,
		auditor:      auditor,
	}
}

// Routes builds the router. Admin routes are only mounted with an admin key.
func (s *Server) Routes(adminKey []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.CorrelationIDMiddleware,
		middleware.LoggingMiddleware,
		middleware.RecoverMiddleware,
	)

	// public routes
	r.Get(HealthCheckRoute, s.handleHealth)
	r.Get(AboutRoute, s.handleAbout)

	// token routes
	r.Post(IssueTokenRoute, s.handleIssue)
	r.Post(DiagnosticsRoute, s.handleDiagnose)

	if len(adminKey) == 0 {
		log.Warn().Msg("no admin key configured, admin routes are disabled")
		return r
	}
	r.Route(AdminParent, func(r chi.Router) {
		r.Use(middleware.AdminAuth(adminKey))
		r.Get(PlatformStateRoute, s.handlePlatformState)
		r.Get(TokenStateRoute, s.handleTokenState)
		r.Get(ConsumersRoute, s.handleConsumers)
		r.Get(ConsumerFailures, s.handleConsumerFailures)
		r.Get(ListAuditsRoute, s.handleAdminAudit)
	})
	return r
}
