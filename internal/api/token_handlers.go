package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/api/presenter"
	"github.com/pagopa/interop-platform-state/internal/service"
	"github.com/pagopa/interop-platform-state/internal/validation"
)

// Form fields of a client credentials request.
const (
	FormClientID            = "client_id"
	FormClientAssertion     = "client_assertion"
	FormClientAssertionType = "client_assertion_type"
	FormGrantType           = "grant_type"
)

func issueRequest(r *http.Request) service.IssueRequest {
	return service.IssueRequest{
		ClientID:      r.PostFormValue(FormClientID),
		Assertion:     r.PostFormValue(FormClientAssertion),
		AssertionType: r.PostFormValue(FormClientAssertionType),
		GrantType:     r.PostFormValue(FormGrantType),
	}
}

// handleIssue processes client credentials token requests.
func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	if err := r.ParseForm(); err != nil {
		logger.Warn().Err(err).Msg("failed to parse token request form")
		presenter.Error(w, r, "invalid request form", http.StatusBadRequest)
		return
	}

	result, err := s.tokenService.IssueToken(ctx, issueRequest(r))
	if err != nil {
		logger.Warn().Err(err).Msg("token issuance failed")
		presenter.Err(w, r, err, "token issuance failed")
		return
	}

	base := result.Key.Base()
	logger.Info().
		Str("client_id", base.ClientID).
		Str("kid", base.Kid).
		Str("jti", result.Artifact.ID).
		Msg("token issued successfully")

	w.Header().Set("Cache-Control", "no-store")
	presenter.JSON(w, r, result.Artifact, http.StatusOK)
}

// DiagnosticsResponse is the step trail of a client assertion.
type DiagnosticsResponse struct {
	Passed bool                    `json:"passed"`
	Steps  []validation.StepResult `json:"steps"`
	Kind   string                  `json:"client_kind,omitempty"`
}

// handleDiagnose validates a token request without issuing a token.
func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		presenter.Error(w, r, "invalid request form", http.StatusBadRequest)
		return
	}

	res, err := s.tokenService.Diagnose(ctx, issueRequest(r))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("diagnostics failed")
		presenter.Err(w, r, err, "diagnostics failed")
		return
	}

	resp := DiagnosticsResponse{Passed: res.Passed(), Steps: res.Steps}
	if res.Key != nil {
		resp.Kind = string(res.Key.Base().Kind)
	}
	presenter.JSON(w, r, resp, http.StatusOK)
}
