package projector

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/events"
	"github.com/pagopa/interop-platform-state/internal/platformstate"
	"github.com/pagopa/interop-platform-state/internal/tokenstate"
)

var _ events.AgreementHandler = (*Agreement)(nil)

// Agreement projects agreement events. Only the latest agreement of a
// consumer/e-service pair is propagated to token generation rows.
type Agreement struct {
	Stores
}

func NewAgreement(stores Stores) *Agreement {
	return &Agreement{Stores: stores}
}

func (p *Agreement) AgreementActivated(ctx context.Context, e events.AgreementActivated) error {
	return p.activateOrSuspend(ctx, e.Header, e.Agreement, false)
}

func (p *Agreement) AgreementSuspended(ctx context.Context, e events.AgreementSuspended) error {
	return p.activateOrSuspend(ctx, e.Header, e.Agreement, false)
}

func (p *Agreement) AgreementUnsuspended(ctx context.Context, e events.AgreementUnsuspended) error {
	return p.activateOrSuspend(ctx, e.Header, e.Agreement, false)
}

func (p *Agreement) AgreementUpgraded(ctx context.Context, e events.AgreementUpgraded) error {
	if !activeOrSuspended(e.Agreement.State) {
		return ignored(ctx, e.Header, "upgraded into "+string(e.Agreement.State))
	}
	return p.activateOrSuspend(ctx, e.Header, e.Agreement, false)
}

// AgreementAdded with an active or suspended state is the new agreement of an
// upgrade. It supersedes the previous one, so it is propagated without the
// latest check.
func (p *Agreement) AgreementAdded(ctx context.Context, e events.AgreementAdded) error {
	if !activeOrSuspended(e.Agreement.State) {
		return ignored(ctx, e.Header, "added as "+string(e.Agreement.State))
	}
	return p.activateOrSuspend(ctx, e.Header, e.Agreement, true)
}

func (p *Agreement) AgreementArchived(ctx context.Context, e events.AgreementArchived) error {
	return p.archive(ctx, e.Header, e.Agreement)
}

// AgreementDeleted only matters for agreements that were ever tracked.
func (p *Agreement) AgreementDeleted(ctx context.Context, e events.AgreementDeleted) error {
	existing, err := p.Platform.GetAgreement(ctx, e.Agreement.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ignored(ctx, e.Header, "agreement not tracked")
	}
	return p.archive(ctx, e.Header, e.Agreement)
}

func (p *Agreement) AgreementPreActivation(ctx context.Context, e events.AgreementPreActivation) error {
	return ignored(ctx, e.Header, "agreement never activated")
}

func (p *Agreement) activateOrSuspend(ctx context.Context, h events.Header, a events.Agreement, upgrade bool) error {
	entry := core.AgreementEntry{
		PlatformStatesEntry: p.base(core.AgreementPK(a.ID), a.State.Collapse(), h),
		ConsumerEService:    core.ConsumerEServiceKey(a.ConsumerID, a.EServiceID),
		AgreementTimestamp:  core.FormatTimestamp(a.Timestamp()),
		DescriptorID:        a.DescriptorID,
	}

	res, err := p.Platform.Guard(ctx, entry.PK, h.Version)
	if err != nil {
		return err
	}
	if res.Decision == platformstate.Skip {
		return nil
	}

	return p.commit(ctx, entry, h.Version, res, func() error {
		latest := upgrade
		if !latest {
			var err error
			if latest, err = p.Platform.IsLatestCandidate(ctx, entry); err != nil {
				return err
			}
		}
		if !latest {
			log.Ctx(ctx).Info().
				Str("agreement_id", a.ID).
				Msg("agreement is not the latest of its consumer and e-service, token generation states untouched")
			return nil
		}
		return p.propagate(ctx, entry)
	}, p.reconcile(a))
}

// propagate writes agreement and descriptor info into every token generation
// row of the consumer/e-service pair.
func (p *Agreement) propagate(ctx context.Context, entry core.AgreementEntry) error {
	agreementID := core.AgreementIDFromPK(entry.PK)
	_, eserviceID, ok := core.SplitConsumerEServiceKey(entry.ConsumerEService)
	if !ok {
		return core.Integrity("propagate agreement", entry.PK, fmt.Errorf("malformed %s '%s'", core.AttrConsumerEService, entry.ConsumerEService))
	}

	catalog, err := p.Platform.GetCatalog(ctx, eserviceID, entry.DescriptorID)
	if err != nil {
		return err
	}
	if catalog == nil {
		log.Ctx(ctx).Info().
			Str("eservice_id", eserviceID).
			Str("descriptor_id", entry.DescriptorID).
			Msg("descriptor not tracked yet, propagating agreement info only")
	}

	mutate := tokenstate.SetAgreementAndDescriptor(tokenstate.AgreementInfo{
		AgreementID:  agreementID,
		State:        entry.State,
		EServiceID:   eserviceID,
		DescriptorID: entry.DescriptorID,
	}, catalog)
	stats, err := p.Tokens.FanOut(ctx, p.Tokens.Indexes().ConsumerEService, entry.ConsumerEService, mutate)
	if err != nil {
		return fmt.Errorf("propagating agreement '%s': %w", agreementID, err)
	}
	logFanOut(ctx, "agreement propagated", stats)
	return nil
}

// reconcile rebuilds the rows of the agreement's pair from the latest stored
// agreement, and deactivates them when the pair has none left.
func (p *Agreement) reconcile(a events.Agreement) reconciler {
	return func(ctx context.Context) (int64, bool, error) {
		stored, err := p.Platform.GetAgreement(ctx, a.ID)
		if err != nil {
			return 0, false, err
		}
		latest, err := p.Platform.LatestAgreement(ctx, a.ConsumerID, a.EServiceID)
		if err != nil {
			return 0, false, err
		}
		if latest != nil {
			err = p.propagate(ctx, *latest)
		} else {
			err = p.deactivate(ctx, a)
		}
		if err != nil || stored == nil {
			return 0, false, err
		}
		return stored.Revision, true, nil
	}
}

func (p *Agreement) deactivate(ctx context.Context, a events.Agreement) error {
	key := core.ConsumerEServiceKey(a.ConsumerID, a.EServiceID)
	stats, err := p.Tokens.FanOut(ctx, p.Tokens.Indexes().ConsumerEService, key, tokenstate.SetAgreementState(core.StateInactive))
	if err != nil {
		return fmt.Errorf("deactivating agreement '%s': %w", a.ID, err)
	}
	logFanOut(ctx, "agreement deactivated", stats)
	return nil
}

// archive deactivates the token generation rows of the pair if the agreement
// is the latest one, then removes its platform state entry.
func (p *Agreement) archive(ctx context.Context, h events.Header, a events.Agreement) error {
	return p.retire(ctx, core.AgreementPK(a.ID), 0, func() error {
		latest, err := p.Platform.IsLatestAgreement(ctx, a.ConsumerID, a.EServiceID, a.ID)
		if err != nil {
			return err
		}
		if !latest {
			log.Ctx(ctx).Info().Str("agreement_id", a.ID).Msg("archived agreement is not the latest, token generation states untouched")
			return nil
		}
		return p.deactivate(ctx, a)
	}, nil)
}

func activeOrSuspended(s core.AgreementState) bool {
	return s == core.AgreementActive || s == core.AgreementSuspended
}
