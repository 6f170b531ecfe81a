package projector

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/events"
	"github.com/pagopa/interop-platform-state/internal/platformstate"
)

var _ events.AuthorizationHandler = (*Authorization)(nil)

// Authorization projects client events. It owns the lifecycle of token
// generation rows: one CLIENTKID row per key while a consumer client has no
// purposes (always, for API clients), one CLIENTKIDPURPOSE row per key and
// purpose otherwise.
type Authorization struct {
	Stores
}

func NewAuthorization(stores Stores) *Authorization {
	return &Authorization{Stores: stores}
}

func (p *Authorization) clientEntry(h events.Header, c events.Client) core.ClientEntry {
	keys := make([]core.ClientKeyEntry, 0, len(c.Keys))
	for _, k := range c.Keys {
		keys = append(keys, core.ClientKeyEntry{Kid: k.Kid, PublicKey: k.EncodedPEM})
	}
	return core.ClientEntry{
		PlatformStatesEntry: p.base(core.ClientPK(c.ID), core.StateActive, h),
		ClientKind:          c.Kind,
		ConsumerID:          c.ConsumerID,
		PurposesIDs:         c.Purposes,
		Keys:                keys,
	}
}

// clientFromEntry turns a stored client entry back into a snapshot.
func clientFromEntry(clientID string, e core.ClientEntry) events.Client {
	c := events.Client{
		ID:         clientID,
		ConsumerID: e.ConsumerID,
		Kind:       e.ClientKind,
		Purposes:   e.PurposesIDs,
	}
	for _, k := range e.Keys {
		c.Keys = append(c.Keys, events.ClientKey{Kid: k.Kid, EncodedPEM: k.PublicKey})
	}
	return c
}

// apply guards the client entry, then runs rows and commits the entry of the
// event snapshot.
func (p *Authorization) apply(ctx context.Context, h events.Header, c events.Client, rows func() error) error {
	entry := p.clientEntry(h, c)
	res, err := p.Platform.Guard(ctx, entry.PK, h.Version)
	if err != nil || res.Decision == platformstate.Skip {
		return err
	}
	return p.commit(ctx, entry, h.Version, res, rows, p.reconcile(c))
}

func (p *Authorization) ClientAdded(ctx context.Context, e events.ClientAdded) error {
	_, err := p.Platform.Upsert(ctx, p.clientEntry(e.Header, e.Client), e.Version)
	return err
}

func (p *Authorization) ClientKeyAdded(ctx context.Context, e events.ClientKeyAdded) error {
	return p.apply(ctx, e.Header, e.Client, func() error {
		key, _ := e.Client.Key(e.Kid)
		if !purposeBound(e.Client) {
			return p.Tokens.Upsert(ctx, plainRow(e.Client, key))
		}
		for _, purposeID := range e.Client.Purposes {
			pc, err := p.purposeContext(ctx, e.Client, purposeID)
			if err != nil {
				return err
			}
			if err := p.Tokens.Upsert(ctx, pc.row(e.Client, key)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Authorization) ClientKeyDeleted(ctx context.Context, e events.ClientKeyDeleted) error {
	return p.apply(ctx, e.Header, e.Client, func() error {
		stats, err := p.Tokens.DeleteWhere(ctx, p.Tokens.Indexes().Kid, e.Kid, ofClient(e.Client.ID))
		if err != nil {
			return fmt.Errorf("deleting rows of key '%s': %w", e.Kid, err)
		}
		logFanOut(ctx, "key rows deleted", stats)
		return nil
	})
}

// ClientPurposeAdded specializes the plain rows of the client into rows bound
// to the new purpose, and adds a bound row for every other key.
func (p *Authorization) ClientPurposeAdded(ctx context.Context, e events.ClientPurposeAdded) error {
	return p.apply(ctx, e.Header, e.Client, func() error {
		if e.Client.Kind == core.ClientKindAPI {
			log.Ctx(ctx).Warn().Str("client_id", e.Client.ID).Msg("purpose added to an API client, no token generation rows written")
			return nil
		}
		pc, err := p.purposeContext(ctx, e.Client, e.PurposeID)
		if err != nil {
			return err
		}

		converted := make(map[string]bool)
		err = p.Tokens.Each(ctx, p.Tokens.Indexes().Client, e.Client.ID, func(row core.TokenGenerationEntry) error {
			if row.Key().IsPurposeBound() {
				return nil
			}
			key := events.ClientKey{Kid: row.GSIKid, EncodedPEM: row.PublicKey}
			if _, err := p.Tokens.Replace(ctx, pc.row(e.Client, key), row.PK); err != nil {
				return err
			}
			converted[row.GSIKid] = true
			return nil
		})
		if err != nil {
			return fmt.Errorf("converting rows of client '%s': %w", e.Client.ID, err)
		}

		for _, key := range e.Client.Keys {
			if converted[key.Kid] {
				continue
			}
			if err := p.Tokens.Upsert(ctx, pc.row(e.Client, key)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClientPurposeRemoved drops the rows bound to the purpose. A consumer client
// left without purposes gets its plain rows back.
func (p *Authorization) ClientPurposeRemoved(ctx context.Context, e events.ClientPurposeRemoved) error {
	return p.apply(ctx, e.Header, e.Client, func() error {
		key := core.ClientPurposeKey(e.Client.ID, e.PurposeID)
		stats, err := p.Tokens.DeleteWhere(ctx, p.Tokens.Indexes().ClientPurpose, key, nil)
		if err != nil {
			return fmt.Errorf("deleting rows of '%s': %w", key, err)
		}
		logFanOut(ctx, "purpose rows deleted", stats)

		if purposeBound(e.Client) {
			return nil
		}
		for _, k := range e.Client.Keys {
			if err := p.Tokens.Upsert(ctx, plainRow(e.Client, k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClientDeleted removes every row of the client, then its platform state entry.
func (p *Authorization) ClientDeleted(ctx context.Context, e events.ClientDeleted) error {
	return p.retire(ctx, core.ClientPK(e.Client.ID), 0, func() error {
		return p.deleteRows(ctx, e.Client)
	}, nil)
}

// deleteRows removes every row of the client. The three sweeps overlap on
// purpose: rows missing one of the index attributes are still reached by another.
func (p *Authorization) deleteRows(ctx context.Context, c events.Client) error {
	idx := p.Tokens.Indexes()
	stats, err := p.Tokens.DeleteWhere(ctx, idx.Client, c.ID, nil)
	if err != nil {
		return fmt.Errorf("deleting rows of client '%s': %w", c.ID, err)
	}
	logFanOut(ctx, "client rows deleted", stats)

	for _, k := range c.Keys {
		stats, err := p.Tokens.DeleteWhere(ctx, idx.Kid, k.Kid, ofClient(c.ID))
		if err != nil {
			return fmt.Errorf("deleting rows of key '%s': %w", k.Kid, err)
		}
		logFanOut(ctx, "key rows deleted", stats)
	}
	for _, purposeID := range c.Purposes {
		key := core.ClientPurposeKey(c.ID, purposeID)
		stats, err := p.Tokens.DeleteWhere(ctx, idx.ClientPurpose, key, nil)
		if err != nil {
			return fmt.Errorf("deleting rows of '%s': %w", key, err)
		}
		logFanOut(ctx, "purpose rows deleted", stats)
	}
	return nil
}

// reconcile makes the rows of the client match its stored entry: rows of keys
// or purposes it no longer has are deleted, the others rewritten. A deleted
// client loses every row of the snapshot c.
func (p *Authorization) reconcile(c events.Client) reconciler {
	return func(ctx context.Context) (int64, bool, error) {
		stored, err := p.Platform.GetClient(ctx, c.ID)
		if err != nil {
			return 0, false, err
		}
		if stored == nil {
			return 0, false, p.deleteRows(ctx, c)
		}
		if err := p.syncRows(ctx, clientFromEntry(c.ID, *stored)); err != nil {
			return 0, false, err
		}
		return stored.Revision, true, nil
	}
}

func (p *Authorization) syncRows(ctx context.Context, c events.Client) error {
	want := make(map[string]core.TokenGenerationEntry)
	if purposeBound(c) {
		for _, purposeID := range c.Purposes {
			pc, err := p.purposeContext(ctx, c, purposeID)
			if err != nil {
				return err
			}
			for _, key := range c.Keys {
				row := pc.row(c, key)
				want[row.PK] = row
			}
		}
	} else {
		for _, key := range c.Keys {
			row := plainRow(c, key)
			want[row.PK] = row
		}
	}

	var stale []string
	err := p.Tokens.Each(ctx, p.Tokens.Indexes().Client, c.ID, func(row core.TokenGenerationEntry) error {
		if _, ok := want[row.PK]; !ok {
			stale = append(stale, row.PK)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing rows of client '%s': %w", c.ID, err)
	}
	for _, pk := range stale {
		if err := p.Tokens.Delete(ctx, pk); err != nil {
			return err
		}
	}
	for _, row := range want {
		if err := p.Tokens.Upsert(ctx, row); err != nil {
			return err
		}
	}
	log.Ctx(ctx).Debug().Str("client_id", c.ID).Int("rows", len(want)).Int("deleted", len(stale)).Msg("client rows rebuilt")
	return nil
}

func (p *Authorization) ClientMembershipChanged(ctx context.Context, e events.ClientMembershipChanged) error {
	return ignored(ctx, e.Header, "membership changes carry no authorization data")
}

// purposeContext is the platform state a purpose-bound row denormalizes.
// Entries are point reads and may be missing or stale; later purpose,
// agreement and descriptor events complete the row.
type purposeContext struct {
	purposeID string
	purpose   *core.PurposeEntry
	agreement *core.AgreementEntry
	catalog   *core.CatalogEntry
}

func (p *Authorization) purposeContext(ctx context.Context, c events.Client, purposeID string) (purposeContext, error) {
	pc := purposeContext{purposeID: purposeID}
	var err error
	if pc.purpose, err = p.Platform.GetPurpose(ctx, purposeID); err != nil || pc.purpose == nil {
		return pc, err
	}
	if pc.agreement, err = p.Platform.LatestAgreement(ctx, c.ConsumerID, pc.purpose.EServiceID); err != nil || pc.agreement == nil {
		return pc, err
	}
	pc.catalog, err = p.Platform.GetCatalog(ctx, pc.purpose.EServiceID, pc.agreement.DescriptorID)
	return pc, err
}

func (pc purposeContext) row(c events.Client, key events.ClientKey) core.TokenGenerationEntry {
	row := plainRow(c, key)
	row.PK = core.ClientKidPurposePK(c.ID, key.Kid, pc.purposeID)
	row.GSIClientPurpose = core.ClientPurposeKey(c.ID, pc.purposeID)
	row.GSIPurpose = pc.purposeID

	if pc.purpose == nil {
		return row
	}
	row.PurposeState = pc.purpose.State
	row.PurposeVersionID = pc.purpose.VersionID
	row.GSIConsumerEService = core.ConsumerEServiceKey(c.ConsumerID, pc.purpose.EServiceID)

	if pc.agreement == nil {
		return row
	}
	row.AgreementID = core.AgreementIDFromPK(pc.agreement.PK)
	row.AgreementState = pc.agreement.State
	row.GSIEServiceDescriptor = core.EServiceDescriptorKey(pc.purpose.EServiceID, pc.agreement.DescriptorID)

	if pc.catalog == nil {
		return row
	}
	row.DescriptorState = pc.catalog.State
	row.DescriptorAudience = pc.catalog.DescriptorAudience
	row.DescriptorVoucherLifespan = pc.catalog.DescriptorVoucherLifespan
	return row
}

func plainRow(c events.Client, key events.ClientKey) core.TokenGenerationEntry {
	return core.TokenGenerationEntry{
		PK:         core.ClientKidPK(c.ID, key.Kid),
		ConsumerID: c.ConsumerID,
		ClientKind: c.Kind,
		PublicKey:  key.EncodedPEM,
		GSIClient:  c.ID,
		GSIKid:     key.Kid,
	}
}

// purposeBound reports whether the client's keys are stored per purpose.
func purposeBound(c events.Client) bool {
	return c.Kind == core.ClientKindConsumer && len(c.Purposes) > 0
}

func ofClient(clientID string) func(core.TokenGenerationEntry) bool {
	return func(row core.TokenGenerationEntry) bool {
		return row.GSIClient == clientID
	}
}
