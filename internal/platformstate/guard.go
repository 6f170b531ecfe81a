package platformstate

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Decision is the outcome of the version guard.
type Decision int

const (
	Apply Decision = iota
	Skip
)

func (d Decision) String() string {
	if d == Skip {
		return "skip"
	}
	return "apply"
}

// GuardResult carries the decision and what the guard observed.
type GuardResult struct {
	Decision Decision

	// Exists is true when an entry was stored for the aggregate.
	Exists bool

	// StoredVersion is the version of that entry, zero if absent.
	StoredVersion int64

	// Revision is the revision of that entry. Write only overwrites the entry
	// while it is still at this revision.
	Revision int64
}

// Guard decides whether an event carrying version may be applied to the
// aggregate identified by pk. Stored versions never decrease: an event whose
// version is not newer than the stored one is skipped.
//
// A skip is an expected outcome under at-least-once delivery. It is logged, not returned as an error.
func (r *Repository) Guard(ctx context.Context, pk string, version int64) (GuardResult, error) {
	res, err := r.Observe(ctx, pk)
	if err != nil {
		return res, err
	}
	if res.Exists && res.StoredVersion >= version {
		res.Decision = Skip
		log.Ctx(ctx).Info().
			Str("pk", pk).
			Int64("stored_version", res.StoredVersion).
			Int64("incoming_version", version).
			Msg("skipping event: stored version is not older")
	}
	return res, nil
}

// Observe reads what the guard compares against, without deciding on a
// version. Deletions that carry no comparable version start from it.
func (r *Repository) Observe(ctx context.Context, pk string) (GuardResult, error) {
	existing, err := r.Get(ctx, pk)
	if err != nil {
		return GuardResult{}, err
	}
	if existing == nil {
		return GuardResult{Decision: Apply}, nil
	}
	return GuardResult{
		Decision:      Apply,
		Exists:        true,
		StoredVersion: existing.Version,
		Revision:      existing.Revision,
	}, nil
}
