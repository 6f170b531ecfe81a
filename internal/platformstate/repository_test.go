package platformstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/store"
)

const agreementIndex = "agreement-by-consumer-eservice"

func newRepo() *Repository {
	tbl := store.NewMemoryTable("platform_states", 10, Indexes(agreementIndex)...)
	return New(tbl, agreementIndex)
}

func agreementEntry(id, consumer, eservice string, ts time.Time, version int64) core.AgreementEntry {
	return core.AgreementEntry{
		PlatformStatesEntry: core.PlatformStatesEntry{
			PK:        core.AgreementPK(id),
			State:     core.StateActive,
			Version:   version,
			UpdatedAt: ts,
		},
		ConsumerEService:   core.ConsumerEServiceKey(consumer, eservice),
		AgreementTimestamp: core.FormatTimestamp(ts),
		DescriptorID:       "d1",
	}
}

func TestGuard(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	now := time.Now()

	res, err := repo.Guard(ctx, core.AgreementPK("a1"), 1)
	require.NoError(t, err)
	require.Equal(t, Apply, res.Decision)
	require.False(t, res.Exists)

	require.NoError(t, repo.Create(ctx, agreementEntry("a1", "c", "e", now, 3)))

	tests := []struct {
		name     string
		version  int64
		decision Decision
	}{
		{name: "older", version: 2, decision: Skip},
		{name: "same", version: 3, decision: Skip},
		{name: "newer", version: 4, decision: Apply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.Guard(ctx, core.AgreementPK("a1"), tt.version)
			require.NoError(t, err)
			require.Equal(t, tt.decision, res.Decision)
			require.True(t, res.Exists)
			require.Equal(t, int64(3), res.StoredVersion)
		})
	}
}

func TestUpsert_VersionMonotonicity(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	now := time.Now()

	// deliveries out of order and duplicated
	for _, v := range []int64{2, 1, 5, 5, 3, 4} {
		_, err := repo.Upsert(ctx, agreementEntry("a1", "c", "e", now, v), v)
		require.NoError(t, err)
	}

	got, err := repo.GetAgreement(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, int64(5), got.Version)
}

func TestCreate_CollisionIsIntegrityFault(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	entry := agreementEntry("a1", "c", "e", time.Now(), 1)

	require.NoError(t, repo.Create(ctx, entry))
	err := repo.Create(ctx, entry)
	require.Error(t, err)
	require.True(t, core.IsIntegrityError(err))
	require.ErrorIs(t, err, core.ErrCreateCollision)
}

func TestWrite_ConcurrentWriterWins(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	now := time.Now()
	pk := core.AgreementPK("a1")
	require.NoError(t, repo.Create(ctx, agreementEntry("a1", "c", "e", now, 1)))

	// both events pass the guard before either writes
	older, err := repo.Guard(ctx, pk, 2)
	require.NoError(t, err)
	newer, err := repo.Guard(ctx, pk, 3)
	require.NoError(t, err)
	require.Equal(t, Apply, older.Decision)
	require.Equal(t, Apply, newer.Decision)

	written, err := repo.Write(ctx, agreementEntry("a1", "c", "e", now, 3), newer)
	require.NoError(t, err)
	require.True(t, written)

	written, err = repo.Write(ctx, agreementEntry("a1", "c", "e", now, 2), older)
	require.NoError(t, err)
	require.False(t, written, "a write based on a stale read must not land")

	got, err := repo.GetAgreement(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, int64(3), got.Version)
	require.Equal(t, int64(1), got.Revision)

	res, err := repo.Guard(ctx, pk, 2)
	require.NoError(t, err)
	require.Equal(t, Skip, res.Decision)
}

func TestWrite_VanishedEntry(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	pk := core.AgreementPK("a1")
	require.NoError(t, repo.Create(ctx, agreementEntry("a1", "c", "e", time.Now(), 1)))

	res, err := repo.Guard(ctx, pk, 2)
	require.NoError(t, err)
	deleted, err := repo.DeleteIf(ctx, pk, res.Revision)
	require.NoError(t, err)
	require.True(t, deleted)

	written, err := repo.Write(ctx, agreementEntry("a1", "c", "e", time.Now(), 2), res)
	require.NoError(t, err)
	require.False(t, written)

	got, err := repo.GetAgreement(ctx, "a1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestTouchAndDeleteIf(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	pk := core.AgreementPK("a1")
	require.NoError(t, repo.Create(ctx, agreementEntry("a1", "c", "e", time.Now(), 1)))

	touched, err := repo.Touch(ctx, pk, 0)
	require.NoError(t, err)
	require.True(t, touched)

	touched, err = repo.Touch(ctx, pk, 0)
	require.NoError(t, err)
	require.False(t, touched, "revision 0 was already consumed")

	deleted, err := repo.DeleteIf(ctx, pk, 0)
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = repo.DeleteIf(ctx, pk, 1)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = repo.DeleteIf(ctx, pk, 1)
	require.NoError(t, err)
	require.True(t, deleted, "an entry already gone counts as deleted")
}

func TestGet_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	tbl := store.NewMemoryTable("platform_states", 10, Indexes(agreementIndex)...)
	repo := New(tbl, agreementIndex)

	require.NoError(t, tbl.Put(ctx, core.Item{"pk": core.AgreementPK("bad"), "state": "MAYBE", "version": 1}))

	_, err := repo.GetAgreement(ctx, "bad")
	require.Error(t, err)
	require.True(t, core.IsIntegrityError(err))
	require.ErrorIs(t, err, core.ErrCorruptRecord)
}

func TestLatestAgreement(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	latest, err := repo.IsLatestAgreement(ctx, "c", "e", "a1")
	require.NoError(t, err)
	require.True(t, latest, "no tracked agreements is vacuously latest")

	require.NoError(t, repo.Create(ctx, agreementEntry("a1", "c", "e", base, 1)))
	require.NoError(t, repo.Create(ctx, agreementEntry("a2", "c", "e", base.Add(time.Hour), 1)))
	require.NoError(t, repo.Create(ctx, agreementEntry("a3", "c", "other", base.Add(2*time.Hour), 1)))

	got, err := repo.LatestAgreement(ctx, "c", "e")
	require.NoError(t, err)
	require.Equal(t, core.AgreementPK("a2"), got.PK)

	latest, err = repo.IsLatestAgreement(ctx, "c", "e", "a1")
	require.NoError(t, err)
	require.False(t, latest)

	latest, err = repo.IsLatestAgreement(ctx, "c", "e", "a2")
	require.NoError(t, err)
	require.True(t, latest)
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	require.NoError(t, repo.Create(ctx, agreementEntry("a1", "c", "e", time.Now(), 1)))

	entry, err := repo.Lookup(ctx, core.AgreementPK("a1"))
	require.NoError(t, err)
	agreement, ok := entry.(core.AgreementEntry)
	require.True(t, ok, "expected an agreement entry, got %T", entry)
	require.Equal(t, "d1", agreement.DescriptorID)

	entry, err = repo.Lookup(ctx, core.PurposePK("missing"))
	require.NoError(t, err)
	require.Nil(t, entry)

	_, err = repo.Lookup(ctx, "SOMETHING#else")
	require.ErrorIs(t, err, ErrInvalidKey)
}
