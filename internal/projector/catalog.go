package projector

import (
	"context"
	"fmt"

	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/events"
	"github.com/pagopa/interop-platform-state/internal/platformstate"
	"github.com/pagopa/interop-platform-state/internal/tokenstate"
)

var _ events.CatalogHandler = (*Catalog)(nil)

// Catalog projects e-service descriptor events. The descriptor state in the
// event snapshot is authoritative: every descriptor event rewrites state,
// audience and voucher lifespan.
type Catalog struct {
	Stores
}

func NewCatalog(stores Stores) *Catalog {
	return &Catalog{Stores: stores}
}

// EServiceDescriptorPublished also retires descriptors the publication archived.
func (p *Catalog) EServiceDescriptorPublished(ctx context.Context, e events.EServiceDescriptorPublished) error {
	for _, d := range e.EService.Descriptors {
		if d.ID == e.Descriptor.ID || d.State != core.DescriptorArchived {
			continue
		}
		tracked, err := p.Platform.GetCatalog(ctx, e.EService.ID, d.ID)
		if err != nil {
			return err
		}
		if tracked == nil {
			continue
		}
		if err := p.archive(ctx, e.Header, e.EService.ID, d); err != nil {
			return err
		}
	}
	return p.project(ctx, e.Header, e.DescriptorChange)
}

func (p *Catalog) EServiceDescriptorActivated(ctx context.Context, e events.EServiceDescriptorActivated) error {
	return p.project(ctx, e.Header, e.DescriptorChange)
}

func (p *Catalog) EServiceDescriptorSuspended(ctx context.Context, e events.EServiceDescriptorSuspended) error {
	return p.project(ctx, e.Header, e.DescriptorChange)
}

func (p *Catalog) EServiceDescriptorDeprecated(ctx context.Context, e events.EServiceDescriptorDeprecated) error {
	return p.project(ctx, e.Header, e.DescriptorChange)
}

func (p *Catalog) EServiceDescriptorArchived(ctx context.Context, e events.EServiceDescriptorArchived) error {
	return p.project(ctx, e.Header, e.DescriptorChange)
}

func (p *Catalog) EServiceDescriptorQuotasUpdated(ctx context.Context, e events.EServiceDescriptorQuotasUpdated) error {
	return p.project(ctx, e.Header, e.DescriptorChange)
}

func (p *Catalog) EServiceDescriptorAudienceUpdated(ctx context.Context, e events.EServiceDescriptorAudienceUpdated) error {
	return p.project(ctx, e.Header, e.DescriptorChange)
}

func (p *Catalog) CatalogDraftChanged(ctx context.Context, e events.CatalogDraftChanged) error {
	return ignored(ctx, e.Header, "no published descriptor involved")
}

func (p *Catalog) project(ctx context.Context, h events.Header, change events.DescriptorChange) error {
	d := change.Descriptor
	if d.State == core.DescriptorArchived {
		return p.archive(ctx, h, change.EService.ID, d)
	}

	entry := core.CatalogEntry{
		PlatformStatesEntry:       p.base(core.EServiceDescriptorPK(change.EService.ID, d.ID), d.State.Collapse(), h),
		DescriptorAudience:        d.Audience,
		DescriptorVoucherLifespan: d.VoucherLifespan,
	}
	res, err := p.Platform.Guard(ctx, entry.PK, h.Version)
	if err != nil {
		return err
	}
	if res.Decision == platformstate.Skip {
		return nil
	}
	if !res.Exists && (d.State == core.DescriptorDraft || d.State == core.DescriptorWaitingForApproval) {
		return ignored(ctx, h, "descriptor not published")
	}

	return p.commit(ctx, entry, h.Version, res, func() error {
		return p.propagate(ctx, entry)
	}, p.reconcile(entry.PK))
}

func (p *Catalog) propagate(ctx context.Context, entry core.CatalogEntry) error {
	eserviceID, descriptorID, err := core.ParseEServiceDescriptorPK(entry.PK)
	if err != nil {
		return core.Integrity("propagate descriptor", entry.PK, err)
	}
	key := core.EServiceDescriptorKey(eserviceID, descriptorID)
	stats, err := p.Tokens.FanOut(ctx, p.Tokens.Indexes().EServiceDescriptor, key, tokenstate.SetDescriptorInfo(entry))
	if err != nil {
		return fmt.Errorf("propagating descriptor '%s': %w", key, err)
	}
	logFanOut(ctx, "descriptor propagated", stats)
	return nil
}

func (p *Catalog) deactivate(ctx context.Context, eserviceID, descriptorID string) error {
	key := core.EServiceDescriptorKey(eserviceID, descriptorID)
	stats, err := p.Tokens.FanOut(ctx, p.Tokens.Indexes().EServiceDescriptor, key, tokenstate.SetDescriptorState(core.StateInactive))
	if err != nil {
		return fmt.Errorf("deactivating descriptor '%s': %w", key, err)
	}
	logFanOut(ctx, "descriptor deactivated", stats)
	return nil
}

// reconcile rebuilds the rows of the descriptor stored at pk, or deactivates
// them once it was archived.
func (p *Catalog) reconcile(pk string) reconciler {
	return func(ctx context.Context) (int64, bool, error) {
		eserviceID, descriptorID, err := core.ParseEServiceDescriptorPK(pk)
		if err != nil {
			return 0, false, core.Integrity("reconcile descriptor", pk, err)
		}
		stored, err := p.Platform.GetCatalog(ctx, eserviceID, descriptorID)
		if err != nil {
			return 0, false, err
		}
		if stored == nil {
			return 0, false, p.deactivate(ctx, eserviceID, descriptorID)
		}
		if err := p.propagate(ctx, *stored); err != nil {
			return 0, false, err
		}
		return stored.Revision, true, nil
	}
}

// archive deactivates every token generation row of the descriptor and drops
// its platform state entry.
func (p *Catalog) archive(ctx context.Context, h events.Header, eserviceID string, d events.Descriptor) error {
	pk := core.EServiceDescriptorPK(eserviceID, d.ID)
	return p.retire(ctx, pk, h.Version, func() error {
		return p.deactivate(ctx, eserviceID, d.ID)
	}, p.reconcile(pk))
}
