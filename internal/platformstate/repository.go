// Package platformstate keeps one collapsed, version-stamped entry per tracked
// aggregate (agreement, e-service descriptor, client, purpose).
//
// Every write is preceded by the version guard: an event whose version is not
// newer than the stored one is skipped. Conditional writes are the only
// coordination between concurrent projectors.
package platformstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/core"
)

// ErrInvalidKey is returned by Lookup for keys of no tracked aggregate.
var ErrInvalidKey = errors.New("invalid platform state key")

// Repository reads and writes the Platform States table.
type Repository struct {
	table          core.Table
	agreementIndex string
	now            func() time.Time
}

func New(table core.Table, agreementIndex string) *Repository {
	return &Repository{
		table:          table,
		agreementIndex: agreementIndex,
		now:            time.Now,
	}
}

// WithClock replaces the clock used for updated_at, for tests.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// Now returns the repository clock in UTC.
func (r *Repository) Now() time.Time {
	return r.now().UTC()
}

// Indexes returns the index definitions the Platform States table must provide.
func Indexes(agreementIndex string) []core.IndexDefinition {
	return []core.IndexDefinition{{
		Name:          agreementIndex,
		PartitionAttr: core.AttrConsumerEService,
		SortAttr:      core.AttrAgreementTimestamp,
	}}
}

func get[T core.Entry](ctx context.Context, table core.Table, pk string) (*T, error) {
	item, err := table.Get(ctx, pk)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading platform state '%s': %w", pk, err)
	}
	entry, err := core.DecodeItem[T](item)
	if err != nil {
		return nil, core.Integrity("read", pk, err)
	}
	return &entry, nil
}

// Get reads the common attributes of any platform state entry; nil when absent.
func (r *Repository) Get(ctx context.Context, pk string) (*core.PlatformStatesEntry, error) {
	return get[core.PlatformStatesEntry](ctx, r.table, pk)
}

func (r *Repository) GetAgreement(ctx context.Context, agreementID string) (*core.AgreementEntry, error) {
	return get[core.AgreementEntry](ctx, r.table, core.AgreementPK(agreementID))
}

func (r *Repository) GetCatalog(ctx context.Context, eserviceID, descriptorID string) (*core.CatalogEntry, error) {
	return get[core.CatalogEntry](ctx, r.table, core.EServiceDescriptorPK(eserviceID, descriptorID))
}

func (r *Repository) GetClient(ctx context.Context, clientID string) (*core.ClientEntry, error) {
	return get[core.ClientEntry](ctx, r.table, core.ClientPK(clientID))
}

func (r *Repository) GetPurpose(ctx context.Context, purposeID string) (*core.PurposeEntry, error) {
	return get[core.PurposeEntry](ctx, r.table, core.PurposePK(purposeID))
}

// Upsert guards the write with the event version, then creates the entry or
// overwrites the existing one, guarding again while concurrent writers move
// it. It reports whether the write was applied.
func (r *Repository) Upsert(ctx context.Context, entry core.Entry, version int64) (bool, error) {
	pk := entry.ToItem().PK()
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		res, err := r.Guard(ctx, pk, version)
		if err != nil || res.Decision == Skip {
			return false, err
		}
		written, err := r.Write(ctx, entry, res)
		if err != nil || written {
			return written, err
		}
	}
}

// Write stores entry according to a guard result obtained earlier for the same
// event: it creates the entry when the guard saw none and overwrites it otherwise.
// Projectors guard first, update dependent token rows, then call Write last so
// that a failure in between leaves the event applicable on redelivery.
//
// The overwrite is a compare-and-swap on the revision the guard read. If
// another writer updated or deleted the entry in between, nothing is written
// and Write reports false: the caller must guard again.
func (r *Repository) Write(ctx context.Context, entry core.Entry, res GuardResult) (bool, error) {
	if res.Decision == Skip {
		return false, nil
	}
	if !res.Exists {
		if err := r.Create(ctx, entry); err != nil {
			return false, err
		}
		return true, nil
	}
	item := entry.ToItem()
	return r.swap(ctx, item.PK(), item, res.Revision)
}

// Create writes a new entry. A collision is a data-integrity fault: creation is
// only attempted after the guard found no entry.
func (r *Repository) Create(ctx context.Context, entry core.Entry) error {
	item := entry.ToItem()
	if err := r.table.Put(ctx, item); err != nil {
		if errors.Is(err, core.ErrConditionFailed) {
			return core.Integrity("create", item.PK(), core.ErrCreateCollision)
		}
		return fmt.Errorf("creating platform state '%s': %w", item.PK(), err)
	}
	log.Ctx(ctx).Debug().Str("pk", item.PK()).Msg("platform state created")
	return nil
}

// Touch bumps the revision of an entry left at revision, without changing it.
// It reports false when the entry moved or vanished in the meantime.
func (r *Repository) Touch(ctx context.Context, pk string, revision int64) (bool, error) {
	return r.swap(ctx, pk, core.Item{core.AttrUpdatedAt: core.FormatTimestamp(r.Now())}, revision)
}

func (r *Repository) swap(ctx context.Context, pk string, attrs core.Item, revision int64) (bool, error) {
	err := r.table.UpdateIf(ctx, pk, attrs, revision)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrConditionFailed):
		log.Ctx(ctx).Info().Str("pk", pk).Msg("platform state deleted concurrently, not written")
		return false, nil
	case errors.Is(err, core.ErrRevisionMismatch):
		log.Ctx(ctx).Info().Str("pk", pk).Int64("revision", revision).Msg("platform state written concurrently, not written")
		return false, nil
	default:
		return false, fmt.Errorf("updating platform state '%s': %w", pk, err)
	}
}

// DeleteIf removes an entry still at revision. It reports false when another
// writer updated the entry in the meantime; an entry already gone counts as deleted.
func (r *Repository) DeleteIf(ctx context.Context, pk string, revision int64) (bool, error) {
	err := r.table.DeleteIf(ctx, pk, revision)
	switch {
	case err == nil, errors.Is(err, core.ErrConditionFailed):
		log.Ctx(ctx).Debug().Str("pk", pk).Msg("platform state deleted")
		return true, nil
	case errors.Is(err, core.ErrRevisionMismatch):
		log.Ctx(ctx).Info().Str("pk", pk).Int64("revision", revision).Msg("platform state written concurrently, not deleted")
		return false, nil
	default:
		return false, fmt.Errorf("deleting platform state '%s': %w", pk, err)
	}
}

// Lookup reads any entry by primary key, decoded by the aggregate its key prefix names.
// It returns nil when the entry is absent.
func (r *Repository) Lookup(ctx context.Context, pk string) (core.Entry, error) {
	prefix, _, _ := strings.Cut(pk, "#")
	switch prefix {
	case core.PrefixAgreement:
		return asEntry[core.AgreementEntry](get[core.AgreementEntry](ctx, r.table, pk))
	case core.PrefixEServiceDescriptor:
		return asEntry[core.CatalogEntry](get[core.CatalogEntry](ctx, r.table, pk))
	case core.PrefixClient:
		return asEntry[core.ClientEntry](get[core.ClientEntry](ctx, r.table, pk))
	case core.PrefixPurpose:
		return asEntry[core.PurposeEntry](get[core.PurposeEntry](ctx, r.table, pk))
	default:
		return nil, fmt.Errorf("%w: unknown platform state key '%s'", ErrInvalidKey, pk)
	}
}

func asEntry[T core.Entry](e *T, err error) (core.Entry, error) {
	if err != nil || e == nil {
		return nil, err
	}
	return *e, nil
}
