// Package projector applies domain events to the Platform States and Token
// Generation States tables.
//
// Each handler follows the same order: version guard, token generation rows,
// platform state entry last. A failure after the guard leaves the platform
// entry at its old version, so the redelivered event is applied again and the
// idempotent token writes converge.
//
// The platform entry is written with a compare-and-swap on the revision the
// guard read. A writer that loses the swap has already touched token rows, so
// it either runs again (its event is still the newest) or rebuilds the rows
// from the stored entry and swaps that revision. Every token row write is
// thereby followed by a successful swap of the same writer, and the last swap
// leaves the rows matching the stored entry.
package projector

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/events"
	"github.com/pagopa/interop-platform-state/internal/platformstate"
	"github.com/pagopa/interop-platform-state/internal/tokenstate"
)

// Stores bundles the two tables every projector writes to.
type Stores struct {
	Platform *platformstate.Repository
	Tokens   *tokenstate.Repository
}

// base returns the common attributes of a platform state entry written for h.
func (s Stores) base(pk string, state core.ItemState, h events.Header) core.PlatformStatesEntry {
	return core.PlatformStatesEntry{
		PK:        pk,
		State:     state,
		Version:   h.Version,
		UpdatedAt: s.Platform.Now(),
	}
}

// reconciler rebuilds the token generation rows of one aggregate from its
// stored platform state entry and returns that entry's revision. When the
// entry is gone it retires the rows instead and reports found false.
type reconciler func(ctx context.Context) (revision int64, found bool, err error)

// commit runs apply, then writes entry according to res. Both are repeated
// while other writers move the entry; once the stored entry is at least as new
// as the event, the rows are rebuilt from it.
func (s Stores) commit(ctx context.Context, entry core.Entry, version int64, res platformstate.GuardResult, apply func() error, reconcile reconciler) error {
	pk := entry.ToItem().PK()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := apply(); err != nil {
			return err
		}
		written, err := s.Platform.Write(ctx, entry, res)
		if err != nil || written {
			return err
		}

		existed := res.Exists
		if res, err = s.Platform.Guard(ctx, pk, version); err != nil {
			return err
		}
		if res.Decision == platformstate.Skip || (existed && !res.Exists) {
			return s.settle(ctx, pk, reconcile)
		}
		log.Ctx(ctx).Info().Str("pk", pk).Msg("platform state moved by an older event, applying again")
	}
}

// retire runs apply, then deletes the entry at pk, both again while other
// writers move the entry. A positive version guards the deletion like any
// write; zero applies it whatever the stored version.
func (s Stores) retire(ctx context.Context, pk string, version int64, apply func() error, reconcile reconciler) error {
	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return err
		}
		var (
			res platformstate.GuardResult
			err error
		)
		if version > 0 {
			res, err = s.Platform.Guard(ctx, pk, version)
		} else {
			res, err = s.Platform.Observe(ctx, pk)
		}
		if err != nil {
			return err
		}
		if res.Decision == platformstate.Skip {
			if first {
				return nil
			}
			return s.settle(ctx, pk, reconcile)
		}

		if err := apply(); err != nil {
			return err
		}
		if !res.Exists {
			return nil
		}
		deleted, err := s.Platform.DeleteIf(ctx, pk, res.Revision)
		if err != nil || deleted {
			return err
		}
	}
}

// settle rebuilds the rows from the stored entry until a rebuild is not
// overtaken by another writer.
func (s Stores) settle(ctx context.Context, pk string, reconcile reconciler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Ctx(ctx).Info().Str("pk", pk).Msg("rebuilding token generation states from the stored platform state")
		revision, found, err := reconcile(ctx)
		if err != nil || !found {
			return err
		}
		touched, err := s.Platform.Touch(ctx, pk, revision)
		if err != nil || touched {
			return err
		}
	}
}

func ignored(ctx context.Context, h events.Header, reason string) error {
	log.Ctx(ctx).Info().Str("reason", reason).Msgf("event %s not applied", h.Type)
	return nil
}

func logFanOut(ctx context.Context, what string, stats tokenstate.FanOutStats) {
	log.Ctx(ctx).Debug().
		Int("updated", stats.Updated).
		Int("deleted", stats.Deleted).
		Int("vanished", stats.Vanished).
		Int("skipped", stats.Skipped).
		Msg(what)
}
