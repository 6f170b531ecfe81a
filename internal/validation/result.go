package validation

import (
	"time"

	"github.com/pagopa/interop-platform-state/internal/core"
)

// Step names, in pipeline order.
const (
	StepClientAssertion = "clientAssertionValidation"
	StepPublicKey       = "publicKeyRetrieval"
	StepSignature       = "clientAssertionSignatureVerification"
	StepPlatformStates  = "platformStatesVerification"
)

var stepOrder = []string{StepClientAssertion, StepPublicKey, StepSignature, StepPlatformStates}

type StepStatus string

const (
	StatusPassed  StepStatus = "PASSED"
	StatusFailed  StepStatus = "FAILED"
	StatusSkipped StepStatus = "SKIPPED"
)

// Failure codes.
const (
	CodeInvalidAssertionType   = "invalidAssertionType"
	CodeInvalidGrantType       = "invalidGrantType"
	CodeClientIDNotProvided    = "clientIdNotProvided"
	CodeInvalidClientIDFormat  = "invalidClientIdFormat"
	CodeInvalidAssertionFormat = "invalidAssertionFormat"
	CodeKidNotFound            = "kidNotFound"
	CodeAlgorithmNotFound      = "algorithmNotFound"
	CodeAlgorithmNotAllowed    = "algorithmNotAllowed"
	CodeIssuerNotFound         = "issuerNotFound"
	CodeSubjectNotFound        = "subjectNotFound"
	CodeInvalidSubject         = "invalidSubject"
	CodeJTINotFound            = "jtiNotFound"
	CodeIssuedAtNotFound       = "issuedAtNotFound"
	CodeExpirationNotFound     = "expirationNotFound"
	CodeAudienceNotFound       = "audienceNotFound"
	CodeInvalidAudience        = "invalidAudience"
	CodeInvalidPurposeIDFormat = "invalidPurposeIdFormat"
	CodeEntryNotFound          = "tokenGenerationStatesEntryNotFound"
	CodePurposeIDNotProvided   = "purposeIdNotProvided"
	CodeUnexpectedClientKind   = "unexpectedClientKind"
	CodeMissingPlatformStates  = "missingPlatformStates"
	CodeInvalidPublicKey       = "invalidPublicKey"
	CodeInvalidSignature       = "invalidSignature"
	CodeAssertionExpired       = "assertionExpired"
	CodeAssertionNotYetValid   = "assertionNotYetValid"
	CodeAssertionVerifyFailed  = "assertionVerificationFailed"
	CodeInactiveAgreement      = "inactiveAgreement"
	CodeInactiveEService       = "inactiveEService"
)

type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type StepResult struct {
	Name     string     `json:"name"`
	Status   StepStatus `json:"status"`
	Failures []Failure  `json:"failures,omitempty"`
}

// Result is the trail of one validation run. Key is only set when every step passed.
type Result struct {
	Steps []StepResult  `json:"steps"`
	Key   KeyDescriptor `json:"-"`
}

// Passed reports whether every step passed.
func (r *Result) Passed() bool {
	for _, s := range r.Steps {
		if s.Status != StatusPassed {
			return false
		}
	}
	return len(r.Steps) == len(stepOrder)
}

// FirstFailed returns the first failed step, nil when none failed.
func (r *Result) FirstFailed() *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Status == StatusFailed {
			return &r.Steps[i]
		}
	}
	return nil
}

// Step returns the result of the named step.
func (r *Result) Step(name string) StepResult {
	for _, s := range r.Steps {
		if s.Name == name {
			return s
		}
	}
	return StepResult{Name: name, Status: StatusSkipped}
}

// KeyDescriptor is the normalized, verified view of the key an assertion was
// signed with. It is either a ConsumerKey or an APIKey.
type KeyDescriptor interface {
	Base() BaseKey
}

// BaseKey holds what every client key carries.
type BaseKey struct {
	ClientID   string
	Kid        string
	ConsumerID string
	Kind       core.ClientKind
	Algorithm  string

	// AssertionID is the jti of the verified assertion.
	AssertionID string
}

// ConsumerKey is a purpose-bound key of a CONSUMER client.
type ConsumerKey struct {
	BaseKey

	PurposeID        string
	PurposeVersionID string
	PurposeState     core.ItemState
	AgreementID      string
	EServiceID       string
	DescriptorID     string
	Audience         []string
	VoucherLifespan  time.Duration
}

func (k ConsumerKey) Base() BaseKey {
	return k.BaseKey
}

// APIKey is a key of an API client. Its token audience comes from configuration.
type APIKey struct {
	BaseKey
}

func (k APIKey) Base() BaseKey {
	return k.BaseKey
}
