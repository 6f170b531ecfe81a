package tokenstate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/store"
)

var testIndexes = Indexes{
	ConsumerEService:   "token-by-consumer-eservice",
	EServiceDescriptor: "token-by-eservice-descriptor",
	Client:             "token-by-client",
	ClientPurpose:      "token-by-client-purpose",
	Kid:                "token-by-kid",
	Purpose:            "token-by-purpose",
}

var fixedNow = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

func newRepo(pageSize int) (*Repository, *store.MemoryTable) {
	tbl := store.NewMemoryTable("token_generation_states", pageSize, testIndexes.Definitions()...)
	repo := New(tbl, testIndexes).WithClock(func() time.Time { return fixedNow })
	return repo, tbl
}

func purposeRow(client, kid, purpose, consumer, eservice, descriptor string) core.TokenGenerationEntry {
	return core.TokenGenerationEntry{
		PK:                    core.ClientKidPurposePK(client, kid, purpose),
		ConsumerID:            consumer,
		ClientKind:            core.ClientKindConsumer,
		PublicKey:             "cGVt",
		GSIClient:             client,
		GSIKid:                kid,
		GSIClientPurpose:      core.ClientPurposeKey(client, purpose),
		GSIPurpose:            purpose,
		GSIConsumerEService:   core.ConsumerEServiceKey(consumer, eservice),
		GSIEServiceDescriptor: core.EServiceDescriptorKey(eservice, descriptor),
		AgreementID:           "a1",
		AgreementState:        core.StateActive,
		PurposeState:          core.StateActive,
		PurposeVersionID:      "v1",
	}
}

func plainRow(client, kid, consumer string) core.TokenGenerationEntry {
	return core.TokenGenerationEntry{
		PK:         core.ClientKidPK(client, kid),
		ConsumerID: consumer,
		ClientKind: core.ClientKindConsumer,
		PublicKey:  "cGVt",
		GSIClient:  client,
		GSIKid:     kid,
	}
}

func TestUpsert_Overwrites(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(10)

	row := purposeRow("c1", "k1", "p1", "org", "e1", "d1")
	require.NoError(t, repo.Upsert(ctx, row))

	row.AgreementState = core.StateInactive
	require.NoError(t, repo.Upsert(ctx, row))

	got, err := repo.Get(ctx, row.PK)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, core.StateInactive, got.AgreementState)
	require.Equal(t, fixedNow, got.UpdatedAt)
}

func TestGet_Missing(t *testing.T) {
	repo, _ := newRepo(10)
	got, err := repo.Get(context.Background(), core.ClientKidPK("c", "k"))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGet_MalformedKeyIsIntegrityFault(t *testing.T) {
	ctx := context.Background()
	repo, tbl := newRepo(10)
	require.NoError(t, tbl.Put(ctx, core.Item{"pk": "CLIENTKID#only-client", "client_kind": "CONSUMER"}))

	_, err := repo.Get(ctx, "CLIENTKID#only-client")
	require.True(t, core.IsIntegrityError(err))
	require.ErrorIs(t, err, core.ErrCorruptRecord)
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(10)

	plain := plainRow("c1", "k1", "org")
	require.NoError(t, repo.Upsert(ctx, plain))

	bound := purposeRow("c1", "k1", "p1", "org", "e1", "d1")
	replaced, err := repo.Replace(ctx, bound, plain.PK)
	require.NoError(t, err)
	require.True(t, replaced)

	got, err := repo.Get(ctx, plain.PK)
	require.NoError(t, err)
	require.Nil(t, got, "old shape must be gone")

	got, err = repo.Get(ctx, bound.PK)
	require.NoError(t, err)
	require.NotNil(t, got)

	// the plain row is gone now, a second conversion is a skip
	replaced, err = repo.Replace(ctx, bound, plain.PK)
	require.NoError(t, err)
	require.False(t, replaced)
}

func TestFanOut_AcrossPages(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(4)

	for i := 0; i < 11; i++ {
		require.NoError(t, repo.Upsert(ctx, purposeRow("c1", fmt.Sprintf("k%02d", i), "p1", "org", "e1", "d1")))
	}
	// same descriptor key, other e-service rows must not be touched
	require.NoError(t, repo.Upsert(ctx, purposeRow("c2", "k1", "p2", "org", "e2", "d1")))

	stats, err := repo.FanOut(ctx, testIndexes.EServiceDescriptor, core.EServiceDescriptorKey("e1", "d1"),
		SetDescriptorState(core.StateInactive))
	require.NoError(t, err)
	require.Equal(t, 11, stats.Scanned)
	require.Equal(t, 11, stats.Updated)
	require.Equal(t, 3, stats.Pages)

	rows, err := collect(ctx, repo, testIndexes.EServiceDescriptor, core.EServiceDescriptorKey("e1", "d1"))
	require.NoError(t, err)
	for _, r := range rows {
		require.Equal(t, core.StateInactive, r.DescriptorState)
	}

	other, err := repo.Get(ctx, core.ClientKidPurposePK("c2", "k1", "p2"))
	require.NoError(t, err)
	require.Empty(t, other.DescriptorState)
}

func TestFanOut_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo, tbl := newRepo(10)
	require.NoError(t, repo.Upsert(ctx, purposeRow("c1", "k1", "p1", "org", "e1", "d1")))

	catalog := core.CatalogEntry{
		PlatformStatesEntry:       core.PlatformStatesEntry{State: core.StateActive},
		DescriptorAudience:        []string{"aud1"},
		DescriptorVoucherLifespan: 600,
	}
	mutate := SetDescriptorInfo(catalog)
	key := core.EServiceDescriptorKey("e1", "d1")

	_, err := repo.FanOut(ctx, testIndexes.EServiceDescriptor, key, mutate)
	require.NoError(t, err)
	once, err := tbl.Get(ctx, core.ClientKidPurposePK("c1", "k1", "p1"))
	require.NoError(t, err)

	_, err = repo.FanOut(ctx, testIndexes.EServiceDescriptor, key, mutate)
	require.NoError(t, err)
	twice, err := tbl.Get(ctx, core.ClientKidPurposePK("c1", "k1", "p1"))
	require.NoError(t, err)

	require.Equal(t, once, twice)
}

func TestFanOut_OnlyIfMissingDescriptorInfo(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(10)

	fresh := purposeRow("c1", "k1", "p1", "org", "e1", "d1")
	require.NoError(t, repo.Upsert(ctx, fresh))

	filled := purposeRow("c1", "k2", "p1", "org", "e1", "d1")
	filled.DescriptorState = core.StateInactive
	filled.DescriptorVoucherLifespan = 60
	require.NoError(t, repo.Upsert(ctx, filled))

	catalog := core.CatalogEntry{
		PlatformStatesEntry:       core.PlatformStatesEntry{State: core.StateActive},
		DescriptorVoucherLifespan: 300,
	}
	stats, err := repo.FanOut(ctx, testIndexes.ClientPurpose, core.ClientPurposeKey("c1", "p1"),
		SetDescriptorInfo(catalog), OnlyIf(MissingDescriptorInfo))
	require.NoError(t, err)
	require.Equal(t, 1, stats.Updated)
	require.Equal(t, 1, stats.Skipped)

	got, err := repo.Get(ctx, filled.PK)
	require.NoError(t, err)
	require.Equal(t, core.StateInactive, got.DescriptorState)
	require.Equal(t, int64(60), got.DescriptorVoucherLifespan)

	got, err = repo.Get(ctx, fresh.PK)
	require.NoError(t, err)
	require.Equal(t, core.StateActive, got.DescriptorState)
	require.Equal(t, int64(300), got.DescriptorVoucherLifespan)
}

// vanishingTable deletes the row right before the update reaches it.
type vanishingTable struct {
	*store.MemoryTable
	victim string
}

func (v *vanishingTable) Update(ctx context.Context, pk string, attrs core.Item) error {
	if pk == v.victim {
		_ = v.MemoryTable.Delete(ctx, pk)
	}
	return v.MemoryTable.Update(ctx, pk, attrs)
}

func TestFanOut_VanishedRowIsSkipped(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryTable("token_generation_states", 10, testIndexes.Definitions()...)
	tbl := &vanishingTable{MemoryTable: mem, victim: core.ClientKidPurposePK("c1", "k2", "p1")}
	repo := New(tbl, testIndexes)

	for _, kid := range []string{"k1", "k2", "k3"} {
		require.NoError(t, mem.Put(ctx, purposeRow("c1", kid, "p1", "org", "e1", "d1").ToItem()))
	}

	stats, err := repo.FanOut(ctx, testIndexes.Purpose, "p1", SetPurposeState(core.StateInactive, "v2"))
	require.NoError(t, err)
	require.Equal(t, 2, stats.Updated)
	require.Equal(t, 1, stats.Vanished)
	require.Equal(t, 2, mem.Len())
}

func TestFanOut_Cancelled(t *testing.T) {
	repo, _ := newRepo(2)
	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Upsert(ctx, plainRow("c1", fmt.Sprintf("k%d", i), "org")))
	}
	cancel()

	_, err := repo.FanOut(ctx, testIndexes.Client, "c1", SetAgreementState(core.StateActive))
	require.ErrorIs(t, err, context.Canceled)
}

func TestFanOut_CorruptRowStopsSweep(t *testing.T) {
	ctx := context.Background()
	repo, tbl := newRepo(10)
	require.NoError(t, tbl.Put(ctx, core.Item{
		"pk":          core.ClientKidPK("c1", "k1"),
		"client_kind": "ROBOT",
		"gsi_client":  "c1",
	}))

	_, err := repo.FanOut(ctx, testIndexes.Client, "c1", SetAgreementState(core.StateActive))
	require.True(t, core.IsIntegrityError(err))
}

func TestDeleteWhere(t *testing.T) {
	ctx := context.Background()
	repo, tbl := newRepo(3)

	require.NoError(t, repo.Upsert(ctx, plainRow("c1", "shared", "org")))
	require.NoError(t, repo.Upsert(ctx, plainRow("c2", "shared", "org")))

	stats, err := repo.DeleteWhere(ctx, testIndexes.Kid, "shared", func(e core.TokenGenerationEntry) bool {
		return e.GSIClient == "c1"
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Deleted)
	require.Equal(t, 1, stats.Skipped)
	require.Equal(t, 1, tbl.Len())

	got, err := repo.Get(ctx, core.ClientKidPK("c2", "shared"))
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestSetAgreementAndDescriptor(t *testing.T) {
	row := purposeRow("c1", "k1", "p1", "org", "e1", "d1")

	withoutCatalog := SetAgreementAndDescriptor(AgreementInfo{
		AgreementID:  "a2",
		State:        core.StateActive,
		EServiceID:   "e1",
		DescriptorID: "d2",
	}, nil)(row)
	require.Equal(t, "a2", withoutCatalog[core.AttrAgreementID])
	require.Equal(t, "e1#d2", withoutCatalog[core.AttrGSIEServiceDescriptor])
	require.NotContains(t, withoutCatalog, core.AttrDescriptorState)

	withCatalog := SetAgreementAndDescriptor(AgreementInfo{
		AgreementID:  "a2",
		State:        core.StateActive,
		EServiceID:   "e1",
		DescriptorID: "d2",
	}, &core.CatalogEntry{
		PlatformStatesEntry:       core.PlatformStatesEntry{State: core.StateInactive},
		DescriptorAudience:        []string{"aud"},
		DescriptorVoucherLifespan: 120,
	})(row)
	require.Equal(t, "INACTIVE", withCatalog[core.AttrDescriptorState])
	require.Equal(t, []string{"aud"}, withCatalog[core.AttrDescriptorAudience])
	require.Equal(t, int64(120), withCatalog[core.AttrDescriptorVoucherLifespan])
}

func collect(ctx context.Context, repo *Repository, index, key string) ([]core.TokenGenerationEntry, error) {
	var out []core.TokenGenerationEntry
	err := repo.Each(ctx, index, key, func(e core.TokenGenerationEntry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}
