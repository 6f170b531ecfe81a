package core

// ItemState is the collapsed projection of a richer domain state.
type ItemState string

const (
	StateActive   ItemState = "ACTIVE"
	StateInactive ItemState = "INACTIVE"
)

func (s ItemState) IsValid() bool {
	switch s {
	case StateActive, StateInactive:
		return true
	default:
		return false
	}
}

// ClientKind tells whether a client requests vouchers for e-services (CONSUMER)
// or for the platform's own API (API).
type ClientKind string

const (
	ClientKindConsumer ClientKind = "CONSUMER"
	ClientKindAPI      ClientKind = "API"
)

func (k ClientKind) IsValid() bool {
	switch k {
	case ClientKindConsumer, ClientKindAPI:
		return true
	default:
		return false
	}
}

// AgreementState is the agreement lifecycle state as carried by agreement events.
type AgreementState string

const (
	AgreementDraft                      AgreementState = "Draft"
	AgreementPending                    AgreementState = "Pending"
	AgreementActive                     AgreementState = "Active"
	AgreementSuspended                  AgreementState = "Suspended"
	AgreementArchived                   AgreementState = "Archived"
	AgreementRejected                   AgreementState = "Rejected"
	AgreementMissingCertifiedAttributes AgreementState = "MissingCertifiedAttributes"
)

// Collapse maps the agreement state to the platform state:
// only an active agreement authorizes anything.
func (s AgreementState) Collapse() ItemState {
	if s == AgreementActive {
		return StateActive
	}
	return StateInactive
}

// DescriptorState is the e-service descriptor lifecycle state.
type DescriptorState string

const (
	DescriptorDraft              DescriptorState = "Draft"
	DescriptorPublished          DescriptorState = "Published"
	DescriptorDeprecated         DescriptorState = "Deprecated"
	DescriptorSuspended          DescriptorState = "Suspended"
	DescriptorArchived           DescriptorState = "Archived"
	DescriptorWaitingForApproval DescriptorState = "WaitingForApproval"
)

// Collapse maps published and deprecated descriptors to ACTIVE.
// Deprecated descriptors still serve existing consumers.
func (s DescriptorState) Collapse() ItemState {
	switch s {
	case DescriptorPublished, DescriptorDeprecated:
		return StateActive
	default:
		return StateInactive
	}
}

// PurposeVersionState is the state of a single purpose version.
type PurposeVersionState string

const (
	PurposeVersionDraft              PurposeVersionState = "Draft"
	PurposeVersionActive             PurposeVersionState = "Active"
	PurposeVersionSuspended          PurposeVersionState = "Suspended"
	PurposeVersionArchived           PurposeVersionState = "Archived"
	PurposeVersionWaitingForApproval PurposeVersionState = "WaitingForApproval"
	PurposeVersionRejected           PurposeVersionState = "Rejected"
)

func (s PurposeVersionState) Collapse() ItemState {
	if s == PurposeVersionActive {
		return StateActive
	}
	return StateInactive
}
