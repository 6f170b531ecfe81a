package events

import (
	"context"

	"github.com/pagopa/interop-platform-state/internal/core"
)

type Descriptor struct {
	ID              string               `json:"id"`
	Version         string               `json:"version"`
	State           core.DescriptorState `json:"state"`
	Audience        []string             `json:"audience"`
	VoucherLifespan int64                `json:"voucherLifespan"`
}

// EService is the e-service snapshot carried by catalog events.
type EService struct {
	ID          string       `json:"id"`
	ProducerID  string       `json:"producerId"`
	Descriptors []Descriptor `json:"descriptors"`
}

// Descriptor looks a descriptor up by id.
func (s EService) Descriptor(id string) (Descriptor, bool) {
	for _, d := range s.Descriptors {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// DescriptorChange is the subject of every descriptor event: the e-service
// snapshot and the descriptor the event is about.
type DescriptorChange struct {
	EService   EService
	Descriptor Descriptor
}

type CatalogEvent interface {
	EventHeader() Header
	Accept(ctx context.Context, h CatalogHandler) error
}

type CatalogHandler interface {
	EServiceDescriptorPublished(ctx context.Context, e EServiceDescriptorPublished) error
	EServiceDescriptorActivated(ctx context.Context, e EServiceDescriptorActivated) error
	EServiceDescriptorSuspended(ctx context.Context, e EServiceDescriptorSuspended) error
	EServiceDescriptorDeprecated(ctx context.Context, e EServiceDescriptorDeprecated) error
	EServiceDescriptorArchived(ctx context.Context, e EServiceDescriptorArchived) error
	EServiceDescriptorQuotasUpdated(ctx context.Context, e EServiceDescriptorQuotasUpdated) error
	EServiceDescriptorAudienceUpdated(ctx context.Context, e EServiceDescriptorAudienceUpdated) error
	CatalogDraftChanged(ctx context.Context, e CatalogDraftChanged) error
}

// EServiceDescriptorPublished is emitted when a descriptor is published.
// Publishing a new version archives or deprecates the previous one in the
// same snapshot.
type EServiceDescriptorPublished struct {
	Header
	DescriptorChange
}

type EServiceDescriptorActivated struct {
	Header
	DescriptorChange
}

type EServiceDescriptorSuspended struct {
	Header
	DescriptorChange
}

type EServiceDescriptorDeprecated struct {
	Header
	DescriptorChange
}

type EServiceDescriptorArchived struct {
	Header
	DescriptorChange
}

// EServiceDescriptorQuotasUpdated carries a new voucher lifespan.
type EServiceDescriptorQuotasUpdated struct {
	Header
	DescriptorChange
}

type EServiceDescriptorAudienceUpdated struct {
	Header
	DescriptorChange
}

// CatalogDraftChanged groups events touching only unpublished data:
// e-service creation and deletion, draft descriptors.
type CatalogDraftChanged struct {
	Header
	EServiceID string
}

func (e EServiceDescriptorPublished) Accept(ctx context.Context, h CatalogHandler) error {
	return h.EServiceDescriptorPublished(ctx, e)
}

func (e EServiceDescriptorActivated) Accept(ctx context.Context, h CatalogHandler) error {
	return h.EServiceDescriptorActivated(ctx, e)
}

func (e EServiceDescriptorSuspended) Accept(ctx context.Context, h CatalogHandler) error {
	return h.EServiceDescriptorSuspended(ctx, e)
}

func (e EServiceDescriptorDeprecated) Accept(ctx context.Context, h CatalogHandler) error {
	return h.EServiceDescriptorDeprecated(ctx, e)
}

func (e EServiceDescriptorArchived) Accept(ctx context.Context, h CatalogHandler) error {
	return h.EServiceDescriptorArchived(ctx, e)
}

func (e EServiceDescriptorQuotasUpdated) Accept(ctx context.Context, h CatalogHandler) error {
	return h.EServiceDescriptorQuotasUpdated(ctx, e)
}

func (e EServiceDescriptorAudienceUpdated) Accept(ctx context.Context, h CatalogHandler) error {
	return h.EServiceDescriptorAudienceUpdated(ctx, e)
}

func (e CatalogDraftChanged) Accept(ctx context.Context, h CatalogHandler) error {
	return h.CatalogDraftChanged(ctx, e)
}

var descriptorTypes = map[string]func(Header, DescriptorChange) CatalogEvent{
	"EServiceDescriptorPublished": func(h Header, c DescriptorChange) CatalogEvent {
		return EServiceDescriptorPublished{h, c}
	},
	"EServiceDescriptorActivated": func(h Header, c DescriptorChange) CatalogEvent {
		return EServiceDescriptorActivated{h, c}
	},
	"EServiceDescriptorSuspended": func(h Header, c DescriptorChange) CatalogEvent {
		return EServiceDescriptorSuspended{h, c}
	},
	"EServiceDescriptorDeprecated": func(h Header, c DescriptorChange) CatalogEvent {
		return EServiceDescriptorDeprecated{h, c}
	},
	"EServiceDescriptorArchived": func(h Header, c DescriptorChange) CatalogEvent {
		return EServiceDescriptorArchived{h, c}
	},
	"EServiceDescriptorQuotasUpdated": func(h Header, c DescriptorChange) CatalogEvent {
		return EServiceDescriptorQuotasUpdated{h, c}
	},
	"EServiceDescriptorAudienceUpdated": func(h Header, c DescriptorChange) CatalogEvent {
		return EServiceDescriptorAudienceUpdated{h, c}
	},
}

var catalogDraftTypes = map[string]bool{
	"EServiceAdded":                  true,
	"EServiceUpdated":                true,
	"EServiceDeleted":                true,
	"EServiceDraftDescriptorAdded":   true,
	"EServiceDraftDescriptorUpdated": true,
	"EServiceDraftDescriptorDeleted": true,
}

// CatalogPayload is the JSON payload of every catalog event.
type CatalogPayload struct {
	EService     *EService `json:"eservice"`
	DescriptorID string    `json:"descriptorId,omitempty"`
}

// DecodeCatalog turns an envelope of the catalog stream into its event.
func DecodeCatalog(env Envelope) (CatalogEvent, error) {
	build, isDescriptor := descriptorTypes[env.Type]
	if !isDescriptor && !catalogDraftTypes[env.Type] {
		return nil, unknown(DomainCatalog, env.Type)
	}
	var payload CatalogPayload
	if err := decodeData(env, &payload); err != nil {
		return nil, err
	}
	if payload.EService == nil || payload.EService.ID == "" {
		return nil, missing(env, "eservice")
	}
	if !isDescriptor {
		return CatalogDraftChanged{Header: env.header(), EServiceID: payload.EService.ID}, nil
	}

	if payload.DescriptorID == "" {
		return nil, missing(env, "descriptorId")
	}
	d, ok := payload.EService.Descriptor(payload.DescriptorID)
	if !ok {
		return nil, missing(env, "descriptor '"+payload.DescriptorID+"' in eservice snapshot")
	}
	return build(env.header(), DescriptorChange{EService: *payload.EService, Descriptor: d}), nil
}
