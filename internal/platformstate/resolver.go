package platformstate

import (
	"context"
	"fmt"

	"github.com/pagopa/interop-platform-state/internal/core"
)

// LatestAgreement returns the agreement entry that is authoritative for the
// (consumer, e-service) pair: the one with the most recent agreement timestamp.
// It returns nil if the pair has no tracked agreement.
func (r *Repository) LatestAgreement(ctx context.Context, consumerID, eserviceID string) (*core.AgreementEntry, error) {
	page, err := r.table.Query(ctx, core.Query{
		Index:      r.agreementIndex,
		Key:        core.ConsumerEServiceKey(consumerID, eserviceID),
		Limit:      1,
		Descending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("querying agreements of consumer '%s' for e-service '%s': %w", consumerID, eserviceID, err)
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	entry, err := core.DecodeItem[core.AgreementEntry](page.Items[0])
	if err != nil {
		return nil, core.Integrity("resolve latest agreement", page.Items[0].PK(), err)
	}
	return &entry, nil
}

// IsLatestAgreement reports whether agreementID may author the authorization
// answer for its pair. A pair without tracked agreements is vacuously latest.
func (r *Repository) IsLatestAgreement(ctx context.Context, consumerID, eserviceID, agreementID string) (bool, error) {
	latest, err := r.LatestAgreement(ctx, consumerID, eserviceID)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return true, nil
	}
	return core.AgreementIDFromPK(latest.PK) == agreementID, nil
}

// IsLatestCandidate reports whether candidate would be the latest agreement of
// its pair once stored, without storing it. Ties on the timestamp are broken
// by primary key, the same order the index returns.
func (r *Repository) IsLatestCandidate(ctx context.Context, candidate core.AgreementEntry) (bool, error) {
	consumerID, eserviceID, ok := core.SplitConsumerEServiceKey(candidate.ConsumerEService)
	if !ok {
		return false, core.Integrity("resolve latest agreement", candidate.PK, fmt.Errorf("malformed %s '%s'", core.AttrConsumerEService, candidate.ConsumerEService))
	}
	latest, err := r.LatestAgreement(ctx, consumerID, eserviceID)
	if err != nil {
		return false, err
	}
	if latest == nil || latest.PK == candidate.PK {
		return true, nil
	}
	if candidate.AgreementTimestamp != latest.AgreementTimestamp {
		return candidate.AgreementTimestamp > latest.AgreementTimestamp, nil
	}
	return candidate.PK > latest.PK, nil
}
