package events

import (
	"context"
	"time"

	"github.com/pagopa/interop-platform-state/internal/core"
)

// Actor names who triggered a suspension or archiving.
type Actor string

const (
	ByConsumer Actor = "Consumer"
	ByProducer Actor = "Producer"
	ByPlatform Actor = "Platform"
	ByUpgrade  Actor = "Upgrade"
)

type Stamp struct {
	Who  string    `json:"who"`
	When time.Time `json:"when"`
}

type AgreementStamps struct {
	Submission *Stamp `json:"submission,omitempty"`
	Activation *Stamp `json:"activation,omitempty"`
	Upgrade    *Stamp `json:"upgrade,omitempty"`
	Archiving  *Stamp `json:"archiving,omitempty"`
}

// Agreement is the agreement snapshot carried by agreement events.
type Agreement struct {
	ID           string              `json:"id"`
	EServiceID   string              `json:"eserviceId"`
	DescriptorID string              `json:"descriptorId"`
	ProducerID   string              `json:"producerId"`
	ConsumerID   string              `json:"consumerId"`
	State        core.AgreementState `json:"state"`
	Stamps       AgreementStamps     `json:"stamps"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// Timestamp orders agreements of the same consumer and e-service:
// activation time, then upgrade time, then creation time.
func (a Agreement) Timestamp() time.Time {
	switch {
	case a.Stamps.Activation != nil && !a.Stamps.Activation.When.IsZero():
		return a.Stamps.Activation.When
	case a.Stamps.Upgrade != nil && !a.Stamps.Upgrade.When.IsZero():
		return a.Stamps.Upgrade.When
	default:
		return a.CreatedAt
	}
}

// AgreementEvent is one of the agreement event types below.
type AgreementEvent interface {
	EventHeader() Header
	Accept(ctx context.Context, h AgreementHandler) error
}

type AgreementHandler interface {
	AgreementAdded(ctx context.Context, e AgreementAdded) error
	AgreementActivated(ctx context.Context, e AgreementActivated) error
	AgreementSuspended(ctx context.Context, e AgreementSuspended) error
	AgreementUnsuspended(ctx context.Context, e AgreementUnsuspended) error
	AgreementUpgraded(ctx context.Context, e AgreementUpgraded) error
	AgreementArchived(ctx context.Context, e AgreementArchived) error
	AgreementDeleted(ctx context.Context, e AgreementDeleted) error
	AgreementPreActivation(ctx context.Context, e AgreementPreActivation) error
}

// AgreementAdded is emitted on creation. An agreement created directly in an
// active or suspended state is the result of an upgrade.
type AgreementAdded struct {
	Header
	Agreement Agreement
}

type AgreementActivated struct {
	Header
	Agreement Agreement
}

type AgreementSuspended struct {
	Header
	Agreement Agreement
	By        Actor
}

type AgreementUnsuspended struct {
	Header
	Agreement Agreement
	By        Actor
}

type AgreementUpgraded struct {
	Header
	Agreement Agreement
}

type AgreementArchived struct {
	Header
	Agreement Agreement
	By        Actor
}

type AgreementDeleted struct {
	Header
	Agreement Agreement
}

// AgreementPreActivation groups the events of an agreement that was never
// activated: draft updates, submission, rejection, missing certified attributes.
type AgreementPreActivation struct {
	Header
	Agreement Agreement
}

func (e AgreementAdded) Accept(ctx context.Context, h AgreementHandler) error {
	return h.AgreementAdded(ctx, e)
}

func (e AgreementActivated) Accept(ctx context.Context, h AgreementHandler) error {
	return h.AgreementActivated(ctx, e)
}

func (e AgreementSuspended) Accept(ctx context.Context, h AgreementHandler) error {
	return h.AgreementSuspended(ctx, e)
}

func (e AgreementUnsuspended) Accept(ctx context.Context, h AgreementHandler) error {
	return h.AgreementUnsuspended(ctx, e)
}

func (e AgreementUpgraded) Accept(ctx context.Context, h AgreementHandler) error {
	return h.AgreementUpgraded(ctx, e)
}

func (e AgreementArchived) Accept(ctx context.Context, h AgreementHandler) error {
	return h.AgreementArchived(ctx, e)
}

func (e AgreementDeleted) Accept(ctx context.Context, h AgreementHandler) error {
	return h.AgreementDeleted(ctx, e)
}

func (e AgreementPreActivation) Accept(ctx context.Context, h AgreementHandler) error {
	return h.AgreementPreActivation(ctx, e)
}

var agreementTypes = map[string]func(Header, Agreement) AgreementEvent{
	"AgreementAdded":     func(h Header, a Agreement) AgreementEvent { return AgreementAdded{h, a} },
	"AgreementActivated": func(h Header, a Agreement) AgreementEvent { return AgreementActivated{h, a} },
	"AgreementUpgraded":  func(h Header, a Agreement) AgreementEvent { return AgreementUpgraded{h, a} },
	"AgreementDeleted":   func(h Header, a Agreement) AgreementEvent { return AgreementDeleted{h, a} },

	"AgreementSuspendedByConsumer":   suspended(ByConsumer),
	"AgreementSuspendedByProducer":   suspended(ByProducer),
	"AgreementSuspendedByPlatform":   suspended(ByPlatform),
	"AgreementUnsuspendedByConsumer": unsuspended(ByConsumer),
	"AgreementUnsuspendedByProducer": unsuspended(ByProducer),
	"AgreementUnsuspendedByPlatform": unsuspended(ByPlatform),
	"AgreementArchivedByConsumer":    archived(ByConsumer),
	"AgreementArchivedByUpgrade":     archived(ByUpgrade),
	"AgreementArchivedByPlatform":    archived(ByPlatform),

	"DraftAgreementUpdated":                            preActivation,
	"AgreementSubmitted":                               preActivation,
	"AgreementRejected":                                preActivation,
	"AgreementSetMissingCertifiedAttributesByPlatform": preActivation,
	"AgreementSetDraftByPlatform":                      preActivation,
}

func suspended(by Actor) func(Header, Agreement) AgreementEvent {
	return func(h Header, a Agreement) AgreementEvent { return AgreementSuspended{h, a, by} }
}

func unsuspended(by Actor) func(Header, Agreement) AgreementEvent {
	return func(h Header, a Agreement) AgreementEvent { return AgreementUnsuspended{h, a, by} }
}

func archived(by Actor) func(Header, Agreement) AgreementEvent {
	return func(h Header, a Agreement) AgreementEvent { return AgreementArchived{h, a, by} }
}

func preActivation(h Header, a Agreement) AgreementEvent {
	return AgreementPreActivation{h, a}
}

// AgreementPayload is the JSON payload of every agreement event.
type AgreementPayload struct {
	Agreement *Agreement `json:"agreement"`
}

// DecodeAgreement turns an envelope of the agreement stream into its event.
func DecodeAgreement(env Envelope) (AgreementEvent, error) {
	build, ok := agreementTypes[env.Type]
	if !ok {
		return nil, unknown(DomainAgreement, env.Type)
	}
	var payload AgreementPayload
	if err := decodeData(env, &payload); err != nil {
		return nil, err
	}
	a := payload.Agreement
	if a == nil {
		return nil, missing(env, "agreement")
	}
	if a.ID == "" || a.ConsumerID == "" || a.EServiceID == "" || a.DescriptorID == "" {
		return nil, missing(env, "agreement identifiers")
	}
	return build(env.header(), *a), nil
}
