// Package validation checks a client assertion against the Token Generation
// States table in four steps. Every run yields a full trail of step results;
// only store faults are returned as errors. The validator never writes.
package validation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/config"
	"github.com/pagopa/interop-platform-state/internal/core"
)

const (
	AssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	GrantType     = "client_credentials"
)

// Request is a client credentials token request authenticated by a signed assertion.
type Request struct {
	ClientID      string
	Assertion     string
	AssertionType string
	GrantType     string
}

// AssertionClaims are the claims of a client assertion.
type AssertionClaims struct {
	jwt.RegisteredClaims
	PurposeID string `json:"purposeId,omitempty"`
}

// KeyStore reads token generation states.
type KeyStore interface {
	Get(ctx context.Context, pk string) (*core.TokenGenerationEntry, error)
}

type Validator struct {
	keys KeyStore
	cfg  config.ValidationConfig
	now  func() time.Time
}

func New(keys KeyStore, cfg config.ValidationConfig) *Validator {
	return &Validator{
		keys: keys,
		cfg:  cfg,
		now:  time.Now,
	}
}

// WithClock replaces the clock used to check assertion lifetimes, for tests.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// assertion is what the structural step extracted from the request.
type assertion struct {
	raw       string
	clientID  string
	kid       string
	alg       string
	purposeID string
	claims    AssertionClaims
}

func (a *assertion) pk() string {
	return core.TokenGenerationPK(a.clientID, a.kid, a.purposeID)
}

// ValidateClientAssertion runs the four steps. A step runs only if every
// previous step passed; later steps are reported as skipped otherwise.
func (v *Validator) ValidateClientAssertion(ctx context.Context, req Request) (*Result, error) {
	res := &Result{}
	record := func(name string, failures []Failure) bool {
		status := StatusPassed
		if len(failures) > 0 {
			status = StatusFailed
		}
		res.Steps = append(res.Steps, StepResult{Name: name, Status: status, Failures: failures})
		return status == StatusPassed
	}
	skipRest := func() *Result {
		for _, name := range stepOrder[len(res.Steps):] {
			res.Steps = append(res.Steps, StepResult{Name: name, Status: StatusSkipped})
		}
		return res
	}

	a, failures := v.checkAssertion(req)
	if !record(StepClientAssertion, failures) {
		return skipRest(), nil
	}

	entry, failures, err := v.retrieveKey(ctx, a)
	if err != nil {
		return nil, err
	}
	if !record(StepPublicKey, failures) {
		return skipRest(), nil
	}

	if !record(StepSignature, v.verifySignature(a, entry)) {
		return skipRest(), nil
	}

	if !record(StepPlatformStates, checkPlatformStates(entry)) {
		return res, nil
	}

	res.Key = describe(a, entry)
	return res, nil
}

// checkAssertion validates request parameters and the assertion shape without
// verifying the signature. All findings are collected.
func (v *Validator) checkAssertion(req Request) (*assertion, []Failure) {
	var failures []Failure
	fail := func(code, format string, args ...any) {
		failures = append(failures, Failure{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if req.AssertionType != AssertionType {
		fail(CodeInvalidAssertionType, "client_assertion_type must be '%s', got '%s'", AssertionType, req.AssertionType)
	}
	if req.GrantType != GrantType {
		fail(CodeInvalidGrantType, "grant_type must be '%s', got '%s'", GrantType, req.GrantType)
	}
	if req.ClientID == "" {
		fail(CodeClientIDNotProvided, "client_id is required")
	} else if uuid.Validate(req.ClientID) != nil {
		fail(CodeInvalidClientIDFormat, "client_id '%s' is not a valid identifier", req.ClientID)
	}

	a := &assertion{raw: req.Assertion, clientID: req.ClientID}
	token, _, err := jwt.NewParser().ParseUnverified(req.Assertion, &a.claims)
	if err != nil {
		fail(CodeInvalidAssertionFormat, "client_assertion is not a well-formed JWT: %v", err)
		return a, failures
	}

	if kid, _ := token.Header["kid"].(string); kid == "" {
		fail(CodeKidNotFound, "assertion header has no kid")
	} else {
		a.kid = kid
	}
	if alg, _ := token.Header["alg"].(string); alg == "" {
		fail(CodeAlgorithmNotFound, "assertion header has no alg")
	} else if !slices.Contains(v.cfg.Algorithms, alg) {
		fail(CodeAlgorithmNotAllowed, "algorithm '%s' is not allowed, expected one of %s", alg, strings.Join(v.cfg.Algorithms, ", "))
	} else {
		a.alg = alg
	}

	c := a.claims
	if c.Issuer == "" {
		fail(CodeIssuerNotFound, "assertion has no iss claim")
	}
	switch {
	case c.Subject == "":
		fail(CodeSubjectNotFound, "assertion has no sub claim")
	case req.ClientID != "" && c.Subject != req.ClientID:
		fail(CodeInvalidSubject, "sub '%s' does not match client_id '%s'", c.Subject, req.ClientID)
	}
	if c.ID == "" {
		fail(CodeJTINotFound, "assertion has no jti claim")
	}
	if c.IssuedAt == nil {
		fail(CodeIssuedAtNotFound, "assertion has no iat claim")
	}
	if c.ExpiresAt == nil {
		fail(CodeExpirationNotFound, "assertion has no exp claim")
	}
	switch {
	case len(c.Audience) == 0:
		fail(CodeAudienceNotFound, "assertion has no aud claim")
	case !slices.ContainsFunc(c.Audience, func(aud string) bool { return slices.Contains(v.cfg.Audiences, aud) }):
		fail(CodeInvalidAudience, "aud %v does not contain any accepted audience", []string(c.Audience))
	}
	if c.PurposeID != "" {
		if uuid.Validate(c.PurposeID) != nil {
			fail(CodeInvalidPurposeIDFormat, "purposeId '%s' is not a valid identifier", c.PurposeID)
		} else {
			a.purposeID = c.PurposeID
		}
	}
	return a, failures
}

// retrieveKey reads the token generation state the assertion refers to and
// checks that its shape fits the client kind.
func (v *Validator) retrieveKey(ctx context.Context, a *assertion) (*core.TokenGenerationEntry, []Failure, error) {
	pk := a.pk()
	entry, err := v.keys.Get(ctx, pk)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieving key '%s': %w", pk, err)
	}
	if entry == nil {
		return nil, []Failure{{
			Code:    CodeEntryNotFound,
			Message: fmt.Sprintf("no key '%s' for client '%s'", a.kid, a.clientID),
		}}, nil
	}

	key := entry.Key()
	switch {
	case entry.ClientKind == core.ClientKindConsumer && !key.IsPurposeBound():
		return entry, []Failure{{
			Code:    CodePurposeIDNotProvided,
			Message: fmt.Sprintf("client '%s' is a consumer client, the assertion must carry a purposeId", a.clientID),
		}}, nil
	case entry.ClientKind == core.ClientKindAPI && key.IsPurposeBound():
		log.Ctx(ctx).Error().Str("pk", pk).Msg("api client key is bound to a purpose")
		return entry, []Failure{{
			Code:    CodeUnexpectedClientKind,
			Message: fmt.Sprintf("client '%s' is an api client and cannot request purpose '%s'", a.clientID, a.purposeID),
		}}, nil
	case entry.ClientKind == core.ClientKindConsumer:
		if missing := missingPlatformStates(entry); len(missing) > 0 {
			log.Ctx(ctx).Error().Str("pk", pk).Strs("missing", missing).Msg("token generation state is incomplete")
			return entry, []Failure{{
				Code:    CodeMissingPlatformStates,
				Message: fmt.Sprintf("key '%s' lacks %s", pk, strings.Join(missing, ", ")),
			}}, nil
		}
	}
	return entry, nil, nil
}

// missingPlatformStates lists the attributes a purpose-bound consumer key must carry.
func missingPlatformStates(e *core.TokenGenerationEntry) []string {
	var missing []string
	for attr, present := range map[string]bool{
		core.AttrPurposeState:              e.PurposeState != "",
		core.AttrPurposeVersionID:          e.PurposeVersionID != "",
		core.AttrAgreementID:               e.AgreementID != "",
		core.AttrAgreementState:            e.AgreementState != "",
		core.AttrGSIConsumerEService:       e.GSIConsumerEService != "",
		core.AttrGSIEServiceDescriptor:     e.GSIEServiceDescriptor != "",
		core.AttrDescriptorState:           e.DescriptorState != "",
		core.AttrDescriptorAudience:        len(e.DescriptorAudience) > 0,
		core.AttrDescriptorVoucherLifespan: e.DescriptorVoucherLifespan > 0,
	} {
		if !present {
			missing = append(missing, attr)
		}
	}
	slices.Sort(missing)
	return missing
}

// verifySignature checks the assertion signature and lifetime against the stored public key.
func (v *Validator) verifySignature(a *assertion, entry *core.TokenGenerationEntry) []Failure {
	pemBytes, err := base64.StdEncoding.DecodeString(entry.PublicKey)
	if err != nil {
		return []Failure{{Code: CodeInvalidPublicKey, Message: fmt.Sprintf("stored public key is not base64: %v", err)}}
	}
	key, err := publicKey(a.alg, pemBytes)
	if err != nil {
		return []Failure{{Code: CodeInvalidPublicKey, Message: err.Error()}}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(v.cfg.Algorithms),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithTimeFunc(v.now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	_, err = parser.ParseWithClaims(a.raw, &AssertionClaims{}, func(*jwt.Token) (any, error) {
		return key, nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return []Failure{{Code: CodeInvalidSignature, Message: "assertion signature does not match the key"}}
	case errors.Is(err, jwt.ErrTokenExpired):
		return []Failure{{Code: CodeAssertionExpired, Message: "assertion is expired"}}
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return []Failure{{Code: CodeAssertionNotYetValid, Message: "assertion is not valid yet"}}
	default:
		return []Failure{{Code: CodeAssertionVerifyFailed, Message: err.Error()}}
	}
}

func publicKey(alg string, pemBytes []byte) (any, error) {
	switch {
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("parsing RSA public key: %w", err)
		}
		return key, nil
	case strings.HasPrefix(alg, "ES"):
		key, err := jwt.ParseECPublicKeyFromPEM(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("parsing EC public key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported algorithm '%s'", alg)
	}
}

// checkPlatformStates gates consumer keys on an active agreement and descriptor.
// The purpose state is carried along but does not gate.
func checkPlatformStates(entry *core.TokenGenerationEntry) []Failure {
	if entry.ClientKind != core.ClientKindConsumer {
		return nil
	}
	var failures []Failure
	if entry.AgreementState != core.StateActive {
		failures = append(failures, Failure{
			Code:    CodeInactiveAgreement,
			Message: fmt.Sprintf("agreement '%s' is %s", entry.AgreementID, entry.AgreementState),
		})
	}
	if entry.DescriptorState != core.StateActive {
		failures = append(failures, Failure{
			Code:    CodeInactiveEService,
			Message: fmt.Sprintf("e-service descriptor '%s' is %s", entry.GSIEServiceDescriptor, entry.DescriptorState),
		})
	}
	return failures
}

func describe(a *assertion, entry *core.TokenGenerationEntry) KeyDescriptor {
	base := BaseKey{
		ClientID:    a.clientID,
		Kid:         a.kid,
		ConsumerID:  entry.ConsumerID,
		Kind:        entry.ClientKind,
		Algorithm:   a.alg,
		AssertionID: a.claims.ID,
	}
	if entry.ClientKind != core.ClientKindConsumer {
		return APIKey{BaseKey: base}
	}
	eserviceID, descriptorID, _ := core.SplitEServiceDescriptorKey(entry.GSIEServiceDescriptor)
	return ConsumerKey{
		BaseKey:          base,
		PurposeID:        a.purposeID,
		PurposeVersionID: entry.PurposeVersionID,
		PurposeState:     entry.PurposeState,
		AgreementID:      entry.AgreementID,
		EServiceID:       eserviceID,
		DescriptorID:     descriptorID,
		Audience:         slices.Clone(entry.DescriptorAudience),
		VoucherLifespan:  time.Duration(entry.DescriptorVoucherLifespan) * time.Second,
	}
}
