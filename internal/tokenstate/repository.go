// Package tokenstate maintains the Token Generation States table: one row per
// client key, or per client key and purpose, denormalizing every fact the
// token issuance path needs.
package tokenstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/config"
	"github.com/pagopa/interop-platform-state/internal/core"
)

// Indexes names the secondary indexes of the Token Generation States table.
type Indexes struct {
	ConsumerEService   string
	EServiceDescriptor string
	Client             string
	ClientPurpose      string
	Kid                string
	Purpose            string
}

// IndexesFromConfig takes the index names configured for the token table.
func IndexesFromConfig(cfg config.IndexConfig) Indexes {
	return Indexes{
		ConsumerEService:   cfg.TokenByConsumerEService,
		EServiceDescriptor: cfg.TokenByEServiceDescriptor,
		Client:             cfg.TokenByClient,
		ClientPurpose:      cfg.TokenByClientPurpose,
		Kid:                cfg.TokenByKid,
		Purpose:            cfg.TokenByPurpose,
	}
}

// Definitions maps each index to the attribute it is partitioned by.
func (i Indexes) Definitions() []core.IndexDefinition {
	return []core.IndexDefinition{
		{Name: i.ConsumerEService, PartitionAttr: core.AttrGSIConsumerEService},
		{Name: i.EServiceDescriptor, PartitionAttr: core.AttrGSIEServiceDescriptor},
		{Name: i.Client, PartitionAttr: core.AttrGSIClient},
		{Name: i.ClientPurpose, PartitionAttr: core.AttrGSIClientPurpose},
		{Name: i.Kid, PartitionAttr: core.AttrGSIKid},
		{Name: i.Purpose, PartitionAttr: core.AttrGSIPurpose},
	}
}

// Repository reads and writes the Token Generation States table.
type Repository struct {
	table   core.Table
	indexes Indexes
	now     func() time.Time
}

func New(table core.Table, indexes Indexes) *Repository {
	return &Repository{
		table:   table,
		indexes: indexes,
		now:     time.Now,
	}
}

// WithClock replaces the clock used for updated_at, for tests.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

func (r *Repository) Indexes() Indexes {
	return r.indexes
}

func (r *Repository) stamp() string {
	return core.FormatTimestamp(r.now())
}

// Get reads a row by primary key; nil when absent.
func (r *Repository) Get(ctx context.Context, pk string) (*core.TokenGenerationEntry, error) {
	item, err := r.table.Get(ctx, pk)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading token generation state '%s': %w", pk, err)
	}
	entry, err := core.DecodeItem[core.TokenGenerationEntry](item)
	if err != nil {
		return nil, core.Integrity("read", pk, err)
	}
	return &entry, nil
}

// Upsert writes a row, overwriting the attributes of an existing one.
// Token rows are derived data: re-writing one on redelivery is idempotent.
func (r *Repository) Upsert(ctx context.Context, entry core.TokenGenerationEntry) error {
	entry.UpdatedAt = r.now()
	item := entry.ToItem()

	err := r.table.Put(ctx, item)
	if err == nil {
		return nil
	}
	if !errors.Is(err, core.ErrConditionFailed) {
		return fmt.Errorf("writing token generation state '%s': %w", entry.PK, err)
	}
	if err := r.table.Update(ctx, entry.PK, item); err != nil {
		if errors.Is(err, core.ErrConditionFailed) {
			// deleted between our put and update; the deleting event wins
			log.Ctx(ctx).Warn().Str("pk", entry.PK).Msg("token generation state vanished during upsert, skipping")
			return nil
		}
		return fmt.Errorf("overwriting token generation state '%s': %w", entry.PK, err)
	}
	return nil
}

// Replace atomically writes entry and deletes oldPK. A missing old row means a
// concurrent removal already happened and is an expected skip.
func (r *Repository) Replace(ctx context.Context, entry core.TokenGenerationEntry, oldPK string) (bool, error) {
	entry.UpdatedAt = r.now()
	if err := r.table.Replace(ctx, entry.ToItem(), oldPK); err != nil {
		if errors.Is(err, core.ErrConditionFailed) {
			log.Ctx(ctx).Warn().
				Str("old_pk", oldPK).
				Str("new_pk", entry.PK).
				Msg("token generation state vanished before conversion, skipping")
			return false, nil
		}
		return false, fmt.Errorf("converting token generation state '%s' into '%s': %w", oldPK, entry.PK, err)
	}
	return true, nil
}

// Delete removes a row. Deleting a missing row is a no-op.
func (r *Repository) Delete(ctx context.Context, pk string) error {
	if err := r.table.Delete(ctx, pk); err != nil {
		return fmt.Errorf("deleting token generation state '%s': %w", pk, err)
	}
	return nil
}
