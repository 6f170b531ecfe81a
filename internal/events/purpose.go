package events

import (
	"context"
	"time"

	"github.com/pagopa/interop-platform-state/internal/core"
)

type PurposeVersion struct {
	ID        string                   `json:"id"`
	State     core.PurposeVersionState `json:"state"`
	CreatedAt time.Time                `json:"createdAt"`
}

// Purpose is the purpose snapshot carried by purpose events.
type Purpose struct {
	ID         string           `json:"id"`
	EServiceID string           `json:"eserviceId"`
	ConsumerID string           `json:"consumerId"`
	Versions   []PurposeVersion `json:"versions"`
}

// CurrentVersion returns the version that governs the purpose: the active one
// if any, else the most recent suspended or archived one.
func (p Purpose) CurrentVersion() (PurposeVersion, bool) {
	var current PurposeVersion
	found := false
	for _, v := range p.Versions {
		switch v.State {
		case core.PurposeVersionActive:
			return v, true
		case core.PurposeVersionSuspended, core.PurposeVersionArchived:
			if !found || v.CreatedAt.After(current.CreatedAt) {
				current, found = v, true
			}
		}
	}
	return current, found
}

type PurposeEvent interface {
	EventHeader() Header
	Accept(ctx context.Context, h PurposeHandler) error
}

type PurposeHandler interface {
	PurposeActivated(ctx context.Context, e PurposeActivated) error
	PurposeVersionActivated(ctx context.Context, e PurposeVersionActivated) error
	PurposeVersionSuspended(ctx context.Context, e PurposeVersionSuspended) error
	PurposeVersionUnsuspended(ctx context.Context, e PurposeVersionUnsuspended) error
	PurposeArchived(ctx context.Context, e PurposeArchived) error
	PurposeDraftChanged(ctx context.Context, e PurposeDraftChanged) error
}

// PurposeActivated is emitted when the first version of a purpose is activated.
type PurposeActivated struct {
	Header
	Purpose Purpose
}

// PurposeVersionActivated is emitted when a later version becomes active,
// superseding the previous one.
type PurposeVersionActivated struct {
	Header
	Purpose Purpose
}

type PurposeVersionSuspended struct {
	Header
	Purpose Purpose
	By      Actor
}

type PurposeVersionUnsuspended struct {
	Header
	Purpose Purpose
	By      Actor
}

type PurposeArchived struct {
	Header
	Purpose Purpose
}

// PurposeDraftChanged groups events of purposes that never had an active version.
type PurposeDraftChanged struct {
	Header
	Purpose Purpose
}

func (e PurposeActivated) Accept(ctx context.Context, h PurposeHandler) error {
	return h.PurposeActivated(ctx, e)
}

func (e PurposeVersionActivated) Accept(ctx context.Context, h PurposeHandler) error {
	return h.PurposeVersionActivated(ctx, e)
}

func (e PurposeVersionSuspended) Accept(ctx context.Context, h PurposeHandler) error {
	return h.PurposeVersionSuspended(ctx, e)
}

func (e PurposeVersionUnsuspended) Accept(ctx context.Context, h PurposeHandler) error {
	return h.PurposeVersionUnsuspended(ctx, e)
}

func (e PurposeArchived) Accept(ctx context.Context, h PurposeHandler) error {
	return h.PurposeArchived(ctx, e)
}

func (e PurposeDraftChanged) Accept(ctx context.Context, h PurposeHandler) error {
	return h.PurposeDraftChanged(ctx, e)
}

var purposeTypes = map[string]func(Header, Purpose) PurposeEvent{
	"PurposeActivated":           func(h Header, p Purpose) PurposeEvent { return PurposeActivated{h, p} },
	"NewPurposeVersionActivated": func(h Header, p Purpose) PurposeEvent { return PurposeVersionActivated{h, p} },
	"PurposeVersionActivated":    func(h Header, p Purpose) PurposeEvent { return PurposeVersionActivated{h, p} },
	"PurposeArchived":            func(h Header, p Purpose) PurposeEvent { return PurposeArchived{h, p} },

	"PurposeVersionSuspendedByConsumer": func(h Header, p Purpose) PurposeEvent {
		return PurposeVersionSuspended{h, p, ByConsumer}
	},
	"PurposeVersionSuspendedByProducer": func(h Header, p Purpose) PurposeEvent {
		return PurposeVersionSuspended{h, p, ByProducer}
	},
	"PurposeVersionUnsuspendedByConsumer": func(h Header, p Purpose) PurposeEvent {
		return PurposeVersionUnsuspended{h, p, ByConsumer}
	},
	"PurposeVersionUnsuspendedByProducer": func(h Header, p Purpose) PurposeEvent {
		return PurposeVersionUnsuspended{h, p, ByProducer}
	},

	"PurposeAdded":                        purposeDraft,
	"DraftPurposeUpdated":                 purposeDraft,
	"PurposeWaitingForApproval":           purposeDraft,
	"NewPurposeVersionWaitingForApproval": purposeDraft,
	"PurposeVersionRejected":              purposeDraft,
	"DraftPurposeDeleted":                 purposeDraft,
	"WaitingForApprovalPurposeDeleted":    purposeDraft,
}

func purposeDraft(h Header, p Purpose) PurposeEvent {
	return PurposeDraftChanged{h, p}
}

// PurposePayload is the JSON payload of every purpose event.
type PurposePayload struct {
	Purpose *Purpose `json:"purpose"`
}

// DecodePurpose turns an envelope of the purpose stream into its event.
func DecodePurpose(env Envelope) (PurposeEvent, error) {
	build, ok := purposeTypes[env.Type]
	if !ok {
		return nil, unknown(DomainPurpose, env.Type)
	}
	var payload PurposePayload
	if err := decodeData(env, &payload); err != nil {
		return nil, err
	}
	p := payload.Purpose
	if p == nil {
		return nil, missing(env, "purpose")
	}
	if p.ID == "" || p.EServiceID == "" || p.ConsumerID == "" {
		return nil, missing(env, "purpose identifiers")
	}
	return build(env.header(), *p), nil
}
