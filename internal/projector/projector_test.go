package projector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/events"
	"github.com/pagopa/interop-platform-state/internal/platformstate"
	"github.com/pagopa/interop-platform-state/internal/store"
	"github.com/pagopa/interop-platform-state/internal/tokenstate"
)

const agreementIndex = "agreement-by-consumer-eservice"

var tokenIndexes = tokenstate.Indexes{
	ConsumerEService:   "token-by-consumer-eservice",
	EServiceDescriptor: "token-by-eservice-descriptor",
	Client:             "token-by-client",
	ClientPurpose:      "token-by-client-purpose",
	Kid:                "token-by-kid",
	Purpose:            "token-by-purpose",
}

var (
	fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	t0       = time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
)

type fixture struct {
	stores   Stores
	platform *store.MemoryTable
	tokens   *store.MemoryTable
}

func newFixture(pageSize int) *fixture {
	clock := func() time.Time { return fixedNow }
	platform := store.NewMemoryTable("platform_states", pageSize, platformstate.Indexes(agreementIndex)...)
	tokens := store.NewMemoryTable("token_generation_states", pageSize, tokenIndexes.Definitions()...)
	return &fixture{
		stores: Stores{
			Platform: platformstate.New(platform, agreementIndex).WithClock(clock),
			Tokens:   tokenstate.New(tokens, tokenIndexes).WithClock(clock),
		},
		platform: platform,
		tokens:   tokens,
	}
}

func header(streamID string, version int64, eventType string) events.Header {
	return events.Header{StreamID: streamID, Version: version, Type: eventType}
}

func agreement(id, descriptorID string, state core.AgreementState, activatedAt time.Time) events.Agreement {
	return events.Agreement{
		ID:           id,
		ConsumerID:   "consumer",
		EServiceID:   "eservice",
		DescriptorID: descriptorID,
		ProducerID:   "producer",
		State:        state,
		CreatedAt:    t0,
		Stamps:       events.AgreementStamps{Activation: &events.Stamp{Who: "u", When: activatedAt}},
	}
}

// seedBoundRow writes a purpose-bound row of the consumer/e-service pair.
func (f *fixture) seedBoundRow(t *testing.T, clientID, kid, purposeID string) string {
	t.Helper()
	row := core.TokenGenerationEntry{
		PK:                  core.ClientKidPurposePK(clientID, kid, purposeID),
		ConsumerID:          "consumer",
		ClientKind:          core.ClientKindConsumer,
		PublicKey:           "cGVt",
		GSIClient:           clientID,
		GSIKid:              kid,
		GSIClientPurpose:    core.ClientPurposeKey(clientID, purposeID),
		GSIPurpose:          purposeID,
		GSIConsumerEService: core.ConsumerEServiceKey("consumer", "eservice"),
		PurposeState:        core.StateActive,
		PurposeVersionID:    "pv1",
	}
	require.NoError(t, f.stores.Tokens.Upsert(context.Background(), row))
	return row.PK
}

func (f *fixture) seedCatalog(t *testing.T, descriptorID string, state core.ItemState) {
	t.Helper()
	_, err := f.stores.Platform.Upsert(context.Background(), core.CatalogEntry{
		PlatformStatesEntry: core.PlatformStatesEntry{
			PK:        core.EServiceDescriptorPK("eservice", descriptorID),
			State:     state,
			Version:   1,
			UpdatedAt: fixedNow,
		},
		DescriptorAudience:        []string{"aud-" + descriptorID},
		DescriptorVoucherLifespan: 600,
	}, 1)
	require.NoError(t, err)
}

func (f *fixture) tokenRow(t *testing.T, pk string) *core.TokenGenerationEntry {
	t.Helper()
	row, err := f.stores.Tokens.Get(context.Background(), pk)
	require.NoError(t, err)
	return row
}

func TestAgreement_DuplicateActivationIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	f.seedCatalog(t, "d1", core.StateActive)
	pk := f.seedBoundRow(t, "client", "k1", "p1")

	p := NewAgreement(f.stores)
	event := events.AgreementActivated{
		Header:    header("a1", 1, "AgreementActivated"),
		Agreement: agreement("a1", "d1", core.AgreementActive, t0),
	}
	require.NoError(t, p.AgreementActivated(ctx, event))

	entry, err := f.stores.Platform.GetAgreement(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, int64(1), entry.Version)
	require.Equal(t, core.StateActive, entry.State)

	row := f.tokenRow(t, pk)
	require.Equal(t, "a1", row.AgreementID)
	require.Equal(t, core.StateActive, row.AgreementState)
	require.Equal(t, core.StateActive, row.DescriptorState)
	require.Equal(t, []string{"aud-d1"}, row.DescriptorAudience)

	// tamper with the row: a second fan-out would overwrite it
	require.NoError(t, f.tokens.Update(ctx, pk, core.Item{core.AttrAgreementState: "INACTIVE"}))

	require.NoError(t, p.AgreementActivated(ctx, event))
	require.Equal(t, core.StateInactive, f.tokenRow(t, pk).AgreementState)

	entry, err = f.stores.Platform.GetAgreement(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, int64(1), entry.Version)
}

func TestAgreement_UpgradeSupersedes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	f.seedCatalog(t, "d1", core.StateActive)
	f.seedCatalog(t, "d2", core.StateActive)
	pk := f.seedBoundRow(t, "client", "k1", "p1")
	p := NewAgreement(f.stores)

	require.NoError(t, p.AgreementActivated(ctx, events.AgreementActivated{
		Header:    header("a1", 1, "AgreementActivated"),
		Agreement: agreement("a1", "d1", core.AgreementActive, t0),
	}))
	require.NoError(t, p.AgreementAdded(ctx, events.AgreementAdded{
		Header:    header("a2", 1, "AgreementAdded"),
		Agreement: agreement("a2", "d2", core.AgreementActive, t0.Add(24*time.Hour)),
	}))

	latest, err := f.stores.Platform.LatestAgreement(ctx, "consumer", "eservice")
	require.NoError(t, err)
	require.Equal(t, core.AgreementPK("a2"), latest.PK)

	row := f.tokenRow(t, pk)
	require.Equal(t, "a2", row.AgreementID)
	require.Equal(t, core.EServiceDescriptorKey("eservice", "d2"), row.GSIEServiceDescriptor)

	// a later event of the superseded agreement updates its own entry only
	require.NoError(t, p.AgreementSuspended(ctx, events.AgreementSuspended{
		Header:    header("a1", 2, "AgreementSuspendedByProducer"),
		Agreement: agreement("a1", "d1", core.AgreementSuspended, t0),
		By:        events.ByProducer,
	}))
	a1, err := f.stores.Platform.GetAgreement(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, int64(2), a1.Version)
	require.Equal(t, core.StateInactive, a1.State)

	row = f.tokenRow(t, pk)
	require.Equal(t, "a2", row.AgreementID)
	require.Equal(t, core.StateActive, row.AgreementState)

	// archiving the superseded agreement does not touch the rows either
	require.NoError(t, p.AgreementArchived(ctx, events.AgreementArchived{
		Header:    header("a1", 3, "AgreementArchivedByUpgrade"),
		Agreement: agreement("a1", "d1", core.AgreementArchived, t0),
		By:        events.ByUpgrade,
	}))
	a1, err = f.stores.Platform.GetAgreement(ctx, "a1")
	require.NoError(t, err)
	require.Nil(t, a1)
	require.Equal(t, core.StateActive, f.tokenRow(t, pk).AgreementState)
}

func TestAgreement_ArchiveLatestDeactivates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	pk := f.seedBoundRow(t, "client", "k1", "p1")
	p := NewAgreement(f.stores)

	require.NoError(t, p.AgreementActivated(ctx, events.AgreementActivated{
		Header:    header("a1", 1, "AgreementActivated"),
		Agreement: agreement("a1", "d1", core.AgreementActive, t0),
	}))
	// descriptor unknown when the agreement was activated
	require.Empty(t, f.tokenRow(t, pk).DescriptorState)

	require.NoError(t, p.AgreementArchived(ctx, events.AgreementArchived{
		Header:    header("a1", 2, "AgreementArchivedByConsumer"),
		Agreement: agreement("a1", "d1", core.AgreementArchived, t0),
		By:        events.ByConsumer,
	}))
	require.Equal(t, core.StateInactive, f.tokenRow(t, pk).AgreementState)
	require.Equal(t, 0, f.platform.Len())
}

func TestAgreement_NoOps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	p := NewAgreement(f.stores)

	require.NoError(t, p.AgreementPreActivation(ctx, events.AgreementPreActivation{
		Header:    header("a1", 1, "AgreementSubmitted"),
		Agreement: agreement("a1", "d1", core.AgreementPending, t0),
	}))
	require.NoError(t, p.AgreementAdded(ctx, events.AgreementAdded{
		Header:    header("a1", 0, "AgreementAdded"),
		Agreement: agreement("a1", "d1", core.AgreementDraft, t0),
	}))
	require.NoError(t, p.AgreementDeleted(ctx, events.AgreementDeleted{
		Header:    header("a1", 2, "AgreementDeleted"),
		Agreement: agreement("a1", "d1", core.AgreementDraft, t0),
	}))
	require.Equal(t, 0, f.platform.Len())
}

func TestAgreement_ConvergesAcrossOrderings(t *testing.T) {
	stream := []events.AgreementEvent{
		events.AgreementActivated{Header: header("a1", 1, "AgreementActivated"), Agreement: agreement("a1", "d1", core.AgreementActive, t0)},
		events.AgreementSuspended{Header: header("a1", 2, "AgreementSuspendedByConsumer"), Agreement: agreement("a1", "d1", core.AgreementSuspended, t0), By: events.ByConsumer},
		events.AgreementUnsuspended{Header: header("a1", 3, "AgreementUnsuspendedByConsumer"), Agreement: agreement("a1", "d1", core.AgreementActive, t0), By: events.ByConsumer},
	}
	orderings := [][]int{
		{0, 1, 2},
		{0, 2, 1},
		{1, 0, 2},
		{1, 2, 0},
		{2, 0, 1},
		{2, 1, 0},
		{0, 0, 1, 1, 2, 2},
		{2, 2, 0, 1, 0},
	}

	snapshot := func(t *testing.T, order []int) (core.Item, core.Item) {
		ctx := context.Background()
		f := newFixture(10)
		f.seedCatalog(t, "d1", core.StateActive)
		pk := f.seedBoundRow(t, "client", "k1", "p1")
		p := NewAgreement(f.stores)
		for _, i := range order {
			require.NoError(t, stream[i].Accept(ctx, p))
		}
		platform, err := f.platform.Get(ctx, core.AgreementPK("a1"))
		require.NoError(t, err)
		// the revision counts writes, which depends on the order
		delete(platform, core.AttrRevision)
		token, err := f.tokens.Get(ctx, pk)
		require.NoError(t, err)
		return platform, token
	}

	wantPlatform, wantToken := snapshot(t, orderings[0])
	require.Equal(t, float64(3), wantPlatform[core.AttrVersion])
	require.Equal(t, "ACTIVE", wantToken[core.AttrAgreementState])

	for _, order := range orderings[1:] {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			platform, token := snapshot(t, order)
			require.Equal(t, wantPlatform, platform)
			require.Equal(t, wantToken, token)
		})
	}
}

// hookTable runs a hook once, right after the first Get or the first Update
// of pk, to interleave two events of the same aggregate deterministically.
type hookTable struct {
	core.Table
	pk       string
	onGet    func()
	onUpdate func()
}

func (h *hookTable) Get(ctx context.Context, pk string) (core.Item, error) {
	item, err := h.Table.Get(ctx, pk)
	if pk == h.pk && h.onGet != nil {
		hook := h.onGet
		h.onGet = nil
		hook()
	}
	return item, err
}

func (h *hookTable) Update(ctx context.Context, pk string, attrs core.Item) error {
	err := h.Table.Update(ctx, pk, attrs)
	if pk == h.pk && h.onUpdate != nil {
		hook := h.onUpdate
		h.onUpdate = nil
		hook()
	}
	return err
}

func TestAgreement_OlderEventLosingTheRaceRebuildsRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	f.seedCatalog(t, "d1", core.StateActive)
	pk := f.seedBoundRow(t, "client", "k1", "p1")

	p := NewAgreement(f.stores)
	require.NoError(t, p.AgreementActivated(ctx, events.AgreementActivated{
		Header: header("a1", 1, "AgreementActivated"), Agreement: agreement("a1", "d1", core.AgreementActive, t0),
	}))

	// the unsuspension (v2) passes the guard, then the suspension (v3) is applied in full
	hooked := &hookTable{Table: f.platform, pk: core.AgreementPK("a1")}
	hooked.onGet = func() {
		require.NoError(t, p.AgreementSuspended(ctx, events.AgreementSuspended{
			Header:    header("a1", 3, "AgreementSuspendedByConsumer"),
			Agreement: agreement("a1", "d1", core.AgreementSuspended, t0),
			By:        events.ByConsumer,
		}))
	}
	racing := NewAgreement(Stores{Platform: platformstate.New(hooked, agreementIndex), Tokens: f.stores.Tokens})
	require.NoError(t, racing.AgreementUnsuspended(ctx, events.AgreementUnsuspended{
		Header:    header("a1", 2, "AgreementUnsuspendedByConsumer"),
		Agreement: agreement("a1", "d1", core.AgreementActive, t0),
		By:        events.ByConsumer,
	}))

	entry, err := f.stores.Platform.GetAgreement(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, int64(3), entry.Version)
	require.Equal(t, core.StateInactive, entry.State)
	require.Equal(t, core.StateInactive, f.tokenRow(t, pk).AgreementState)
}

func TestAgreement_NewerEventOvertakenByOlderRunsAgain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	f.seedCatalog(t, "d1", core.StateActive)
	pk := f.seedBoundRow(t, "client", "k1", "p1")

	p := NewAgreement(f.stores)
	require.NoError(t, p.AgreementActivated(ctx, events.AgreementActivated{
		Header: header("a1", 1, "AgreementActivated"), Agreement: agreement("a1", "d1", core.AgreementActive, t0),
	}))

	// the suspension (v3) has propagated, then the unsuspension (v2) is applied
	// in full before the suspension writes its entry
	hooked := &hookTable{Table: f.tokens, pk: pk}
	hooked.onUpdate = func() {
		require.NoError(t, p.AgreementUnsuspended(ctx, events.AgreementUnsuspended{
			Header:    header("a1", 2, "AgreementUnsuspendedByConsumer"),
			Agreement: agreement("a1", "d1", core.AgreementActive, t0),
			By:        events.ByConsumer,
		}))
	}
	racing := NewAgreement(Stores{Platform: f.stores.Platform, Tokens: tokenstate.New(hooked, tokenIndexes)})
	require.NoError(t, racing.AgreementSuspended(ctx, events.AgreementSuspended{
		Header:    header("a1", 3, "AgreementSuspendedByConsumer"),
		Agreement: agreement("a1", "d1", core.AgreementSuspended, t0),
		By:        events.ByConsumer,
	}))

	entry, err := f.stores.Platform.GetAgreement(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, int64(3), entry.Version)
	require.Equal(t, core.StateInactive, entry.State)
	require.Equal(t, core.StateInactive, f.tokenRow(t, pk).AgreementState)
}

func TestAgreement_ActivationRacingArchive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	f.seedCatalog(t, "d1", core.StateActive)
	pk := f.seedBoundRow(t, "client", "k1", "p1")

	p := NewAgreement(f.stores)
	require.NoError(t, p.AgreementActivated(ctx, events.AgreementActivated{
		Header: header("a1", 1, "AgreementActivated"), Agreement: agreement("a1", "d1", core.AgreementActive, t0),
	}))

	// the unsuspension passes the guard, then the agreement is archived
	hooked := &hookTable{Table: f.platform, pk: core.AgreementPK("a1")}
	hooked.onGet = func() {
		require.NoError(t, p.AgreementArchived(ctx, events.AgreementArchived{
			Header:    header("a1", 3, "AgreementArchivedByConsumer"),
			Agreement: agreement("a1", "d1", core.AgreementArchived, t0),
		}))
	}
	racing := NewAgreement(Stores{Platform: platformstate.New(hooked, agreementIndex), Tokens: f.stores.Tokens})
	require.NoError(t, racing.AgreementUnsuspended(ctx, events.AgreementUnsuspended{
		Header:    header("a1", 2, "AgreementUnsuspendedByConsumer"),
		Agreement: agreement("a1", "d1", core.AgreementActive, t0),
		By:        events.ByConsumer,
	}))

	entry, err := f.stores.Platform.GetAgreement(ctx, "a1")
	require.NoError(t, err)
	require.Nil(t, entry, "an archived agreement must not come back")
	require.Equal(t, core.StateInactive, f.tokenRow(t, pk).AgreementState)
}

func TestAuthorization_OlderKeyEventLosingTheRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	p := NewAuthorization(f.stores)

	require.NoError(t, p.ClientAdded(ctx, events.ClientAdded{Header: header("client", 1, "ClientAdded"), Client: client(nil)}))

	// adding k2 (v2) passes the guard, then k2 is added and deleted again (v3, v4)
	hooked := &hookTable{Table: f.platform, pk: core.ClientPK("client")}
	hooked.onGet = func() {
		require.NoError(t, p.ClientKeyAdded(ctx, events.ClientKeyAdded{
			Header: header("client", 3, "ClientKeyAdded"), Client: client(nil, "k1", "k2"), Kid: "k1",
		}))
		require.NoError(t, p.ClientKeyDeleted(ctx, events.ClientKeyDeleted{
			Header: header("client", 4, "ClientKeyDeleted"), Client: client(nil, "k1"), Kid: "k2",
		}))
	}
	racing := NewAuthorization(Stores{Platform: platformstate.New(hooked, agreementIndex), Tokens: f.stores.Tokens})
	require.NoError(t, racing.ClientKeyAdded(ctx, events.ClientKeyAdded{
		Header: header("client", 2, "ClientKeyAdded"), Client: client(nil, "k2"), Kid: "k2",
	}))

	require.Nil(t, f.tokenRow(t, core.ClientKidPK("client", "k2")), "a deleted key must not come back")
	require.NotNil(t, f.tokenRow(t, core.ClientKidPK("client", "k1")))

	entry, err := f.stores.Platform.GetClient(ctx, "client")
	require.NoError(t, err)
	require.Equal(t, int64(4), entry.Version)
	require.Equal(t, []core.ClientKeyEntry{{Kid: "k1", PublicKey: "pem-k1"}}, entry.Keys)
}

func TestCatalog_PublishSuspendArchive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	p := NewCatalog(f.stores)

	rows := make([]string, 0, 3)
	for _, kid := range []string{"k1", "k2", "k3"} {
		pk := f.seedBoundRow(t, "client", kid, "p1")
		require.NoError(t, f.tokens.Update(ctx, pk, core.Item{core.AttrGSIEServiceDescriptor: core.EServiceDescriptorKey("eservice", "d1")}))
		rows = append(rows, pk)
	}

	change := func(state core.DescriptorState) events.DescriptorChange {
		d := events.Descriptor{ID: "d1", State: state, Audience: []string{"aud"}, VoucherLifespan: 300}
		return events.DescriptorChange{EService: events.EService{ID: "eservice", Descriptors: []events.Descriptor{d}}, Descriptor: d}
	}

	require.NoError(t, p.EServiceDescriptorPublished(ctx, events.EServiceDescriptorPublished{
		Header: header("eservice", 1, "EServiceDescriptorPublished"), DescriptorChange: change(core.DescriptorPublished),
	}))
	for _, pk := range rows {
		row := f.tokenRow(t, pk)
		require.Equal(t, core.StateActive, row.DescriptorState)
		require.Equal(t, int64(300), row.DescriptorVoucherLifespan)
	}

	require.NoError(t, p.EServiceDescriptorSuspended(ctx, events.EServiceDescriptorSuspended{
		Header: header("eservice", 2, "EServiceDescriptorSuspended"), DescriptorChange: change(core.DescriptorSuspended),
	}))
	entry, err := f.stores.Platform.GetCatalog(ctx, "eservice", "d1")
	require.NoError(t, err)
	require.Equal(t, core.StateInactive, entry.State)
	require.Equal(t, int64(2), entry.Version)
	require.Equal(t, core.StateInactive, f.tokenRow(t, rows[0]).DescriptorState)

	// stale redelivery of the publication
	require.NoError(t, p.EServiceDescriptorPublished(ctx, events.EServiceDescriptorPublished{
		Header: header("eservice", 1, "EServiceDescriptorPublished"), DescriptorChange: change(core.DescriptorPublished),
	}))
	require.Equal(t, core.StateInactive, f.tokenRow(t, rows[1]).DescriptorState)

	require.NoError(t, p.EServiceDescriptorArchived(ctx, events.EServiceDescriptorArchived{
		Header: header("eservice", 3, "EServiceDescriptorArchived"), DescriptorChange: change(core.DescriptorArchived),
	}))
	entry, err = f.stores.Platform.GetCatalog(ctx, "eservice", "d1")
	require.NoError(t, err)
	require.Nil(t, entry)
	require.Equal(t, core.StateInactive, f.tokenRow(t, rows[2]).DescriptorState)
}

func TestCatalog_DraftDescriptorIsNotTracked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	d := events.Descriptor{ID: "d1", State: core.DescriptorDraft, VoucherLifespan: 60}

	require.NoError(t, NewCatalog(f.stores).EServiceDescriptorQuotasUpdated(ctx, events.EServiceDescriptorQuotasUpdated{
		Header:           header("eservice", 1, "EServiceDescriptorQuotasUpdated"),
		DescriptorChange: events.DescriptorChange{EService: events.EService{ID: "eservice"}, Descriptor: d},
	}))
	require.Equal(t, 0, f.platform.Len())
}

func client(purposes []string, kids ...string) events.Client {
	c := events.Client{ID: "client", ConsumerID: "consumer", Kind: core.ClientKindConsumer, Purposes: purposes}
	for _, kid := range kids {
		c.Keys = append(c.Keys, events.ClientKey{Kid: kid, EncodedPEM: "pem-" + kid})
	}
	return c
}

func TestAuthorization_KeysAndPurposes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(2)
	p := NewAuthorization(f.stores)

	require.NoError(t, p.ClientAdded(ctx, events.ClientAdded{Header: header("client", 1, "ClientAdded"), Client: client(nil)}))
	require.NoError(t, p.ClientKeyAdded(ctx, events.ClientKeyAdded{Header: header("client", 2, "ClientKeyAdded"), Client: client(nil, "k1"), Kid: "k1"}))
	require.NoError(t, p.ClientKeyAdded(ctx, events.ClientKeyAdded{Header: header("client", 3, "ClientKeyAdded"), Client: client(nil, "k1", "k2"), Kid: "k2"}))

	for _, kid := range []string{"k1", "k2"} {
		row := f.tokenRow(t, core.ClientKidPK("client", kid))
		require.NotNil(t, row)
		require.Equal(t, "pem-"+kid, row.PublicKey)
	}

	// purpose known with an active agreement and descriptor
	_, err := f.stores.Platform.Upsert(ctx, core.PurposeEntry{
		PlatformStatesEntry: core.PlatformStatesEntry{PK: core.PurposePK("p1"), State: core.StateActive, Version: 1, UpdatedAt: fixedNow},
		VersionID:           "pv1",
		EServiceID:          "eservice",
		ConsumerID:          "consumer",
	}, 1)
	require.NoError(t, err)
	f.seedCatalog(t, "d1", core.StateActive)
	require.NoError(t, NewAgreement(f.stores).AgreementActivated(ctx, events.AgreementActivated{
		Header: header("a1", 1, "AgreementActivated"), Agreement: agreement("a1", "d1", core.AgreementActive, t0),
	}))

	require.NoError(t, p.ClientPurposeAdded(ctx, events.ClientPurposeAdded{
		Header: header("client", 4, "ClientPurposeAdded"), Client: client([]string{"p1"}, "k1", "k2"), PurposeID: "p1",
	}))
	for _, kid := range []string{"k1", "k2"} {
		require.Nil(t, f.tokenRow(t, core.ClientKidPK("client", kid)), "plain row must be converted")
		row := f.tokenRow(t, core.ClientKidPurposePK("client", kid, "p1"))
		require.NotNil(t, row)
		require.Equal(t, "pem-"+kid, row.PublicKey)
		require.Equal(t, "a1", row.AgreementID)
		require.Equal(t, core.StateActive, row.AgreementState)
		require.Equal(t, core.StateActive, row.DescriptorState)
		require.Equal(t, core.StateActive, row.PurposeState)
		require.Equal(t, "pv1", row.PurposeVersionID)
	}

	// a key added later gets a bound row straight away
	require.NoError(t, p.ClientKeyAdded(ctx, events.ClientKeyAdded{
		Header: header("client", 5, "ClientKeyAdded"), Client: client([]string{"p1"}, "k1", "k2", "k3"), Kid: "k3",
	}))
	require.NotNil(t, f.tokenRow(t, core.ClientKidPurposePK("client", "k3", "p1")))

	require.NoError(t, p.ClientKeyDeleted(ctx, events.ClientKeyDeleted{
		Header: header("client", 6, "ClientKeyDeleted"), Client: client([]string{"p1"}, "k1", "k3"), Kid: "k2",
	}))
	require.Nil(t, f.tokenRow(t, core.ClientKidPurposePK("client", "k2", "p1")))

	require.NoError(t, p.ClientPurposeRemoved(ctx, events.ClientPurposeRemoved{
		Header: header("client", 7, "ClientPurposeRemoved"), Client: client(nil, "k1", "k3"), PurposeID: "p1",
	}))
	page, err := f.tokens.Query(ctx, core.Query{Index: tokenIndexes.ClientPurpose, Key: core.ClientPurposeKey("client", "p1")})
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.NotNil(t, f.tokenRow(t, core.ClientKidPK("client", "k1")))
	require.NotNil(t, f.tokenRow(t, core.ClientKidPK("client", "k3")))

	entry, err := f.stores.Platform.GetClient(ctx, "client")
	require.NoError(t, err)
	require.Equal(t, int64(7), entry.Version)
	require.Empty(t, entry.PurposesIDs)
}

func TestAuthorization_ClientDeletedSweepsEveryRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(4)
	p := NewAuthorization(f.stores)

	keys := []string{"k1", "k2", "k3"}
	purposes := []string{"p1", "p2", "p3", "p4", "p5"}
	require.NoError(t, p.ClientAdded(ctx, events.ClientAdded{Header: header("client", 1, "ClientAdded"), Client: client(purposes, keys...)}))

	// 3 plain rows and 10 purpose-bound rows
	for _, kid := range keys {
		require.NoError(t, f.stores.Tokens.Upsert(ctx, plainRow(client(nil), events.ClientKey{Kid: kid, EncodedPEM: "pem"})))
	}
	for _, kid := range keys[:2] {
		for _, purposeID := range purposes {
			f.seedBoundRow(t, "client", kid, purposeID)
		}
	}
	// another client sharing a kid
	other := events.Client{ID: "other", ConsumerID: "consumer", Kind: core.ClientKindConsumer}
	require.NoError(t, f.stores.Tokens.Upsert(ctx, plainRow(other, events.ClientKey{Kid: "k1", EncodedPEM: "pem"})))
	require.Equal(t, 14, f.tokens.Len())

	require.NoError(t, p.ClientDeleted(ctx, events.ClientDeleted{Header: header("client", 2, "ClientDeleted"), Client: client(purposes, keys...)}))

	page, err := f.tokens.Query(ctx, core.Query{Index: tokenIndexes.Client, Key: "client"})
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.Equal(t, 1, f.tokens.Len())
	require.NotNil(t, f.tokenRow(t, core.ClientKidPK("other", "k1")))

	entry, err := f.stores.Platform.GetClient(ctx, "client")
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestPurpose_ActivationCompletesRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	f.seedCatalog(t, "d1", core.StateActive)
	require.NoError(t, NewAgreement(f.stores).AgreementActivated(ctx, events.AgreementActivated{
		Header: header("a1", 1, "AgreementActivated"), Agreement: agreement("a1", "d1", core.AgreementActive, t0),
	}))

	// the client learnt about the purpose before the purpose was projected
	auth := NewAuthorization(f.stores)
	require.NoError(t, auth.ClientKeyAdded(ctx, events.ClientKeyAdded{
		Header: header("client", 1, "ClientKeyAdded"), Client: client([]string{"p1"}, "k1"), Kid: "k1",
	}))
	pk := core.ClientKidPurposePK("client", "k1", "p1")
	require.Empty(t, f.tokenRow(t, pk).AgreementID)

	purpose := events.Purpose{
		ID:         "p1",
		EServiceID: "eservice",
		ConsumerID: "consumer",
		Versions:   []events.PurposeVersion{{ID: "pv1", State: core.PurposeVersionActive, CreatedAt: t0}},
	}
	p := NewPurpose(f.stores)
	require.NoError(t, p.PurposeActivated(ctx, events.PurposeActivated{Header: header("p1", 1, "PurposeActivated"), Purpose: purpose}))

	row := f.tokenRow(t, pk)
	require.Equal(t, core.StateActive, row.PurposeState)
	require.Equal(t, "pv1", row.PurposeVersionID)
	require.Equal(t, core.ConsumerEServiceKey("consumer", "eservice"), row.GSIConsumerEService)
	require.Equal(t, "a1", row.AgreementID)
	require.Equal(t, core.StateActive, row.DescriptorState)

	purpose.Versions[0].State = core.PurposeVersionSuspended
	require.NoError(t, p.PurposeVersionSuspended(ctx, events.PurposeVersionSuspended{
		Header: header("p1", 2, "PurposeVersionSuspendedByConsumer"), Purpose: purpose, By: events.ByConsumer,
	}))
	require.Equal(t, core.StateInactive, f.tokenRow(t, pk).PurposeState)

	purpose.Versions[0].State = core.PurposeVersionArchived
	require.NoError(t, p.PurposeArchived(ctx, events.PurposeArchived{Header: header("p1", 3, "PurposeArchived"), Purpose: purpose}))
	entry, err := f.stores.Platform.GetPurpose(ctx, "p1")
	require.NoError(t, err)
	require.Nil(t, entry)
	require.Equal(t, core.StateInactive, f.tokenRow(t, pk).PurposeState)
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	f := newFixture(10)
	d := NewDispatcher(f.stores)

	require.NoError(t, d.Handle(ctx, events.DomainAgreement, events.Envelope{StreamID: "a1", Version: 1, Type: "AgreementTeleported", Data: "{}"}))

	err := d.Handle(ctx, events.DomainAgreement, events.Envelope{StreamID: "a1", Version: 1, Type: "AgreementActivated", Data: "{"})
	require.ErrorIs(t, err, events.ErrMalformedEvent)

	env, err := events.NewEnvelope("client", 1, "ClientAdded", events.AuthorizationPayload{Client: &events.Client{
		ID: "client", ConsumerID: "consumer", Kind: core.ClientKindAPI,
	}})
	require.NoError(t, err)
	require.NoError(t, d.Handle(ctx, events.DomainAuthorization, env))

	entry, err := f.stores.Platform.GetClient(ctx, "client")
	require.NoError(t, err)
	require.Equal(t, core.ClientKindAPI, entry.ClientKind)

	require.Error(t, d.Handle(ctx, "billing", env))
}
