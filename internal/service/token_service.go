// Package service ties validation, issuance and auditing together.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/audit"
	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/issuer"
	"github.com/pagopa/interop-platform-state/internal/validation"
)

// TokenService validates client assertions and issues tokens for them.
type TokenService struct {
	validator *validation.Validator
	issuer    *issuer.Issuer
	auditor   core.Auditor
	now       func() time.Time
}

func NewTokenService(validator *validation.Validator, iss *issuer.Issuer, auditor core.Auditor) *TokenService {
	if auditor == nil {
		auditor = audit.NewNoopAuditor()
	}
	return &TokenService{
		validator: validator,
		issuer:    iss,
		auditor:   auditor,
		now:       time.Now,
	}
}

// IssueToken validates the request and issues a token for the verified key.
// A rejected assertion yields an HTTPError wrapping an AssertionError.
func (s *TokenService) IssueToken(ctx context.Context, req IssueRequest) (*IssueResponse, error) {
	logger := log.Ctx(ctx)
	logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("client_id", req.ClientID)
	})

	auditEntry := core.AuditEntry{
		ID:       core.CorrelationID(ctx),
		Time:     s.now(),
		Action:   audit.ActionTokenIssue,
		ClientID: req.ClientID,
	}
	defer func() {
		if err := s.auditor.Log(auditEntry); err != nil {
			logger.Error().Err(err).Msg("failed to write audit log entry for token issuance")
		}
	}()

	res, err := s.validator.ValidateClientAssertion(ctx, req)
	if err != nil {
		auditEntry.Error = "validation error"
		return nil, httpError(http.StatusInternalServerError, fmt.Errorf("validating client assertion: %w", err))
	}
	if !res.Passed() {
		step := res.FirstFailed()
		auditEntry.Error = "assertion rejected"
		if step != nil {
			auditEntry.FailedStep = step.Name
		}
		status := http.StatusUnauthorized
		if step != nil && step.Name == validation.StepClientAssertion {
			status = http.StatusBadRequest
		}
		return nil, httpError(status, &AssertionError{Result: res})
	}

	base := res.Key.Base()
	auditEntry.Kid = base.Kid
	auditEntry.ClientKind = base.Kind
	if ck, ok := res.Key.(validation.ConsumerKey); ok {
		auditEntry.PurposeID = ck.PurposeID
	}
	logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("kid", base.Kid)
	})

	artifact, err := s.issuer.Issue(ctx, res.Key)
	if err != nil {
		auditEntry.Error = "issuance failed"
		return nil, httpError(http.StatusInternalServerError, fmt.Errorf("issuing token: %w", err))
	}

	auditEntry.Success = true
	auditEntry.TokenID = artifact.ID
	auditEntry.TokenFingerprint = audit.Fingerprint(artifact.Value)
	auditEntry.Metadata = map[string]any{
		"audience":   artifact.Audience,
		"expires_at": artifact.ExpiresAt,
	}

	return &IssueResponse{
		Artifact: artifact,
		Key:      res.Key,
	}, nil
}

// Diagnose runs the validation steps and returns the full trail, whatever the outcome.
// It issues nothing and leaves the state tables alone; only the audit log records the run.
func (s *TokenService) Diagnose(ctx context.Context, req IssueRequest) (*validation.Result, error) {
	res, err := s.validator.ValidateClientAssertion(ctx, req)
	if err != nil {
		return nil, httpError(http.StatusInternalServerError, fmt.Errorf("validating client assertion: %w", err))
	}

	entry := core.AuditEntry{
		ID:       core.CorrelationID(ctx),
		Time:     s.now(),
		Action:   audit.ActionTokenDiagnose,
		ClientID: req.ClientID,
		Success:  res.Passed(),
	}
	if step := res.FirstFailed(); step != nil {
		entry.FailedStep = step.Name
	}
	if err := s.auditor.Log(entry); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to write audit log entry for diagnostics")
	}
	return res, nil
}

// IsRejected reports whether err is a rejected client assertion and returns its trail.
func IsRejected(err error) (*validation.Result, bool) {
	var ae *AssertionError
	if errors.As(err, &ae) {
		return ae.Result, true
	}
	return nil, false
}
