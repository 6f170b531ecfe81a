package projector

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/events"
)

// Dispatcher decodes envelopes of one domain and hands them to its projector.
type Dispatcher struct {
	agreement     *Agreement
	catalog       *Catalog
	purpose       *Purpose
	authorization *Authorization
}

func NewDispatcher(stores Stores) *Dispatcher {
	return &Dispatcher{
		agreement:     NewAgreement(stores),
		catalog:       NewCatalog(stores),
		purpose:       NewPurpose(stores),
		authorization: NewAuthorization(stores),
	}
}

// Handle applies one envelope of the given domain. Events of an unknown type
// are logged and dropped; every other failure is returned so that the
// envelope is delivered again.
func (d *Dispatcher) Handle(ctx context.Context, domain string, env events.Envelope) error {
	logger := log.Ctx(ctx).With().
		Str("domain", domain).
		Str("event_type", env.Type).
		Str("stream_id", env.StreamID).
		Int64("version", env.Version).
		Logger()
	ctx = logger.WithContext(ctx)

	err := d.dispatch(ctx, domain, env)
	if errors.Is(err, events.ErrUnknownEventType) {
		logger.Warn().Err(err).Msg("dropping event of unknown type")
		return nil
	}
	if err != nil {
		return fmt.Errorf("projecting %s event %s v%d of '%s': %w", domain, env.Type, env.Version, env.StreamID, err)
	}
	logger.Debug().Msg("event projected")
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, domain string, env events.Envelope) error {
	switch domain {
	case events.DomainAgreement:
		e, err := events.DecodeAgreement(env)
		if err != nil {
			return err
		}
		return e.Accept(ctx, d.agreement)
	case events.DomainCatalog:
		e, err := events.DecodeCatalog(env)
		if err != nil {
			return err
		}
		return e.Accept(ctx, d.catalog)
	case events.DomainPurpose:
		e, err := events.DecodePurpose(env)
		if err != nil {
			return err
		}
		return e.Accept(ctx, d.purpose)
	case events.DomainAuthorization:
		e, err := events.DecodeAuthorization(env)
		if err != nil {
			return err
		}
		return e.Accept(ctx, d.authorization)
	default:
		return fmt.Errorf("unknown domain '%s'", domain)
	}
}
