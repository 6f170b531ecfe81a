// Package events defines the versioned domain events the projectors consume.
//
// Every domain is a closed set of event types. Each set comes with a Handler
// interface holding one method per type, so a projector that misses a type
// does not compile.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// domains
const (
	DomainAgreement     = "agreement"
	DomainCatalog       = "catalog"
	DomainPurpose       = "purpose"
	DomainAuthorization = "authorization"
)

var (
	// ErrUnknownEventType is returned for a type outside the domain's event set.
	// Such events are acknowledged and never applied.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrMalformedEvent is returned for an envelope or payload that cannot be decoded.
	ErrMalformedEvent = errors.New("malformed event")
)

// Envelope is the transport form of a domain event.
type Envelope struct {
	// StreamID is the id of the aggregate the event belongs to.
	StreamID string `mapstructure:"stream_id"`
	// Version increases monotonically within one stream.
	Version int64  `mapstructure:"version"`
	Type    string `mapstructure:"type"`
	// Data is the JSON payload: a snapshot of the aggregate at event time.
	Data string `mapstructure:"data"`
}

// Header carries the envelope metadata into decoded events.
type Header struct {
	StreamID string
	Version  int64
	Type     string
}

func (h Header) EventHeader() Header {
	return h
}

// DecodeEnvelope decodes the field map of a stream message. Numeric fields
// arrive as strings and are converted.
func DecodeEnvelope(values map[string]any) (Envelope, error) {
	var env Envelope
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &env,
	})
	if err != nil {
		return env, fmt.Errorf("creating decoder: %w", err)
	}
	if err := decoder.Decode(values); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	switch {
	case env.Type == "":
		return env, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	case env.StreamID == "":
		return env, fmt.Errorf("%w: missing stream_id", ErrMalformedEvent)
	case env.Version < 0:
		return env, fmt.Errorf("%w: negative version %d", ErrMalformedEvent, env.Version)
	}
	return env, nil
}

// NewEnvelope encodes payload into an envelope.
func NewEnvelope(streamID string, version int64, eventType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", eventType, err)
	}
	return Envelope{StreamID: streamID, Version: version, Type: eventType, Data: string(data)}, nil
}

// Values returns the field map written to the stream.
func (e Envelope) Values() map[string]any {
	return map[string]any{
		"stream_id": e.StreamID,
		"version":   e.Version,
		"type":      e.Type,
		"data":      e.Data,
	}
}

func (e Envelope) header() Header {
	return Header{StreamID: e.StreamID, Version: e.Version, Type: e.Type}
}

func decodeData(env Envelope, into any) error {
	if err := json.Unmarshal([]byte(env.Data), into); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedEvent, env.Type, err)
	}
	return nil
}

func unknown(domain, eventType string) error {
	return fmt.Errorf("%w: %s event '%s'", ErrUnknownEventType, domain, eventType)
}

func missing(env Envelope, what string) error {
	return fmt.Errorf("%w: %s payload without %s", ErrMalformedEvent, env.Type, what)
}

// Validate reports whether env decodes into a known event of domain.
func Validate(domain string, env Envelope) error {
	var err error
	switch domain {
	case DomainAgreement:
		_, err = DecodeAgreement(env)
	case DomainCatalog:
		_, err = DecodeCatalog(env)
	case DomainPurpose:
		_, err = DecodePurpose(env)
	case DomainAuthorization:
		_, err = DecodeAuthorization(env)
	default:
		err = fmt.Errorf("unknown domain '%s'", domain)
	}
	return err
}
