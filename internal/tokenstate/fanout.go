package tokenstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/core"
)

// Mutation computes the attributes to merge into a matching row.
// It must be pure: the result may depend on the row, never on anything else
// that changes between two applications. A nil result leaves the row untouched.
type Mutation func(entry core.TokenGenerationEntry) core.Item

// FanOutStats summarizes one fan-out sweep.
type FanOutStats struct {
	Pages    int
	Scanned  int
	Updated  int
	Skipped  int
	Vanished int
	Deleted  int
}

type fanOutOptions struct {
	only func(core.TokenGenerationEntry) bool
}

type FanOutOption func(*fanOutOptions)

// OnlyIf restricts a fan-out to rows matching pred. Used to copy descriptor
// info only into purpose-bound rows that never received it.
func OnlyIf(pred func(core.TokenGenerationEntry) bool) FanOutOption {
	return func(o *fanOutOptions) {
		o.only = pred
	}
}

// MissingDescriptorInfo matches rows that were never given descriptor attributes.
func MissingDescriptorInfo(entry core.TokenGenerationEntry) bool {
	return !entry.HasDescriptorInfo()
}

// each pages through every row of the index partition, one page in memory at a time.
func (r *Repository) each(ctx context.Context, index, key string, stats *FanOutStats, fn func(core.TokenGenerationEntry) error) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := r.table.Query(ctx, core.Query{Index: index, Key: key, Cursor: cursor})
		if err != nil {
			return fmt.Errorf("querying token generation states by %s '%s': %w", index, key, err)
		}
		stats.Pages++

		for _, item := range page.Items {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry, err := core.DecodeItem[core.TokenGenerationEntry](item)
			if err != nil {
				return core.Integrity("fan-out "+index, item.PK(), err)
			}
			stats.Scanned++
			if err := fn(entry); err != nil {
				return err
			}
		}

		if page.Next == "" {
			return nil
		}
		cursor = page.Next
	}
}

// FanOut applies mutate to every row whose index attribute equals key.
// Each update is conditioned on the row still existing; rows deleted
// concurrently are skipped. A sweep interrupted midway leaves the remaining
// rows stale until the same or a superseding event is processed again.
func (r *Repository) FanOut(ctx context.Context, index, key string, mutate Mutation, opts ...FanOutOption) (FanOutStats, error) {
	var o fanOutOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.Ctx(ctx).With().Str("index", index).Str("key", key).Logger()

	var stats FanOutStats
	err := r.each(ctx, index, key, &stats, func(entry core.TokenGenerationEntry) error {
		if o.only != nil && !o.only(entry) {
			stats.Skipped++
			return nil
		}
		attrs := mutate(entry)
		if attrs == nil {
			stats.Skipped++
			return nil
		}
		attrs[core.AttrUpdatedAt] = r.stamp()

		if err := r.table.Update(ctx, entry.PK, attrs); err != nil {
			if errors.Is(err, core.ErrConditionFailed) {
				stats.Vanished++
				logger.Warn().Str("pk", entry.PK).Msg("token generation state vanished during fan-out, skipping")
				return nil
			}
			return fmt.Errorf("updating token generation state '%s': %w", entry.PK, err)
		}
		stats.Updated++
		return nil
	})

	logger.Debug().
		Int("pages", stats.Pages).
		Int("scanned", stats.Scanned).
		Int("updated", stats.Updated).
		Int("vanished", stats.Vanished).
		Msg("fan-out finished")
	return stats, err
}

// DeleteWhere deletes every row of the index partition accepted by filter.
// A nil filter deletes the whole partition.
func (r *Repository) DeleteWhere(ctx context.Context, index, key string, filter func(core.TokenGenerationEntry) bool) (FanOutStats, error) {
	var stats FanOutStats
	err := r.each(ctx, index, key, &stats, func(entry core.TokenGenerationEntry) error {
		if filter != nil && !filter(entry) {
			stats.Skipped++
			return nil
		}
		if err := r.Delete(ctx, entry.PK); err != nil {
			return err
		}
		stats.Deleted++
		return nil
	})
	log.Ctx(ctx).Debug().
		Str("index", index).
		Str("key", key).
		Int("deleted", stats.Deleted).
		Msg("fan-out delete finished")
	return stats, err
}

// Each calls fn for every row of an index partition, one page at a time.
// Rows written by fn into the same partition may or may not be visited.
func (r *Repository) Each(ctx context.Context, index, key string, fn func(core.TokenGenerationEntry) error) error {
	var stats FanOutStats
	return r.each(ctx, index, key, &stats, fn)
}
