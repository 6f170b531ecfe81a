package projector

import (
	"context"
	"fmt"

	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/events"
	"github.com/pagopa/interop-platform-state/internal/platformstate"
	"github.com/pagopa/interop-platform-state/internal/tokenstate"
)

var _ events.PurposeHandler = (*Purpose)(nil)

// Purpose projects purpose events onto the purpose-bound token generation rows.
type Purpose struct {
	Stores
}

func NewPurpose(stores Stores) *Purpose {
	return &Purpose{Stores: stores}
}

func (p *Purpose) PurposeActivated(ctx context.Context, e events.PurposeActivated) error {
	return p.project(ctx, e.Header, e.Purpose)
}

func (p *Purpose) PurposeVersionActivated(ctx context.Context, e events.PurposeVersionActivated) error {
	return p.project(ctx, e.Header, e.Purpose)
}

func (p *Purpose) PurposeVersionSuspended(ctx context.Context, e events.PurposeVersionSuspended) error {
	return p.project(ctx, e.Header, e.Purpose)
}

func (p *Purpose) PurposeVersionUnsuspended(ctx context.Context, e events.PurposeVersionUnsuspended) error {
	return p.project(ctx, e.Header, e.Purpose)
}

func (p *Purpose) PurposeDraftChanged(ctx context.Context, e events.PurposeDraftChanged) error {
	return ignored(ctx, e.Header, "purpose never activated")
}

func (p *Purpose) PurposeArchived(ctx context.Context, e events.PurposeArchived) error {
	return p.retire(ctx, core.PurposePK(e.Purpose.ID), e.Version, func() error {
		return p.deactivate(ctx, e.Purpose.ID, versionID(e.Purpose))
	}, p.reconcile(e.Purpose.ID))
}

func (p *Purpose) project(ctx context.Context, h events.Header, purpose events.Purpose) error {
	version, ok := purpose.CurrentVersion()
	if !ok {
		return ignored(ctx, h, "purpose has no current version")
	}
	entry := core.PurposeEntry{
		PlatformStatesEntry: p.base(core.PurposePK(purpose.ID), version.State.Collapse(), h),
		VersionID:           version.ID,
		EServiceID:          purpose.EServiceID,
		ConsumerID:          purpose.ConsumerID,
	}

	res, err := p.Platform.Guard(ctx, entry.PK, h.Version)
	if err != nil {
		return err
	}
	if res.Decision == platformstate.Skip {
		return nil
	}

	return p.commit(ctx, entry, h.Version, res, func() error {
		if err := p.propagate(ctx, purpose.ID, entry); err != nil {
			return err
		}
		return p.fillAgreement(ctx, purpose)
	}, p.reconcile(purpose.ID))
}

func (p *Purpose) propagate(ctx context.Context, purposeID string, entry core.PurposeEntry) error {
	stats, err := p.Tokens.FanOut(ctx, p.Tokens.Indexes().Purpose, purposeID, tokenstate.SetPurposeInfo(entry))
	if err != nil {
		return fmt.Errorf("propagating purpose '%s': %w", purposeID, err)
	}
	logFanOut(ctx, "purpose propagated", stats)
	return nil
}

// deactivate marks every row of the purpose inactive. An empty versionID
// keeps the version the rows already carry.
func (p *Purpose) deactivate(ctx context.Context, purposeID, versionID string) error {
	stats, err := p.Tokens.FanOut(ctx, p.Tokens.Indexes().Purpose, purposeID, tokenstate.SetPurposeState(core.StateInactive, versionID))
	if err != nil {
		return fmt.Errorf("deactivating purpose '%s': %w", purposeID, err)
	}
	logFanOut(ctx, "purpose deactivated", stats)
	return nil
}

// reconcile rebuilds the rows of the purpose from its stored entry, or
// deactivates them once it was archived.
func (p *Purpose) reconcile(purposeID string) reconciler {
	return func(ctx context.Context) (int64, bool, error) {
		stored, err := p.Platform.GetPurpose(ctx, purposeID)
		if err != nil {
			return 0, false, err
		}
		if stored == nil {
			return 0, false, p.deactivate(ctx, purposeID, "")
		}
		if err := p.propagate(ctx, purposeID, *stored); err != nil {
			return 0, false, err
		}
		return stored.Revision, true, nil
	}
}

// fillAgreement copies agreement and descriptor info into rows of the purpose
// that were created before the purpose was known and never received it.
func (p *Purpose) fillAgreement(ctx context.Context, purpose events.Purpose) error {
	agreement, err := p.Platform.LatestAgreement(ctx, purpose.ConsumerID, purpose.EServiceID)
	if err != nil || agreement == nil {
		return err
	}
	catalog, err := p.Platform.GetCatalog(ctx, purpose.EServiceID, agreement.DescriptorID)
	if err != nil {
		return err
	}
	mutate := tokenstate.SetAgreementAndDescriptor(tokenstate.AgreementInfo{
		AgreementID:  core.AgreementIDFromPK(agreement.PK),
		State:        agreement.State,
		EServiceID:   purpose.EServiceID,
		DescriptorID: agreement.DescriptorID,
	}, catalog)
	stats, err := p.Tokens.FanOut(ctx, p.Tokens.Indexes().Purpose, purpose.ID, mutate, tokenstate.OnlyIf(tokenstate.MissingDescriptorInfo))
	if err != nil {
		return fmt.Errorf("filling agreement info of purpose '%s': %w", purpose.ID, err)
	}
	logFanOut(ctx, "purpose rows completed", stats)
	return nil
}

func versionID(p events.Purpose) string {
	if v, ok := p.CurrentVersion(); ok {
		return v.ID
	}
	return ""
}
