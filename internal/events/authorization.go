package events

import (
	"context"

	"github.com/pagopa/interop-platform-state/internal/core"
)

type ClientKey struct {
	Kid string `json:"kid"`
	// EncodedPEM is the base64 encoded PEM of the public key.
	EncodedPEM string `json:"encodedPem"`
	Algorithm  string `json:"algorithm,omitempty"`
	Use        string `json:"use,omitempty"`
}

// Client is the client snapshot carried by authorization events.
type Client struct {
	ID         string          `json:"id"`
	ConsumerID string          `json:"consumerId"`
	Kind       core.ClientKind `json:"kind"`
	Keys       []ClientKey     `json:"keys"`
	Purposes   []string        `json:"purposes"`
}

// Key looks a key up by kid.
func (c Client) Key(kid string) (ClientKey, bool) {
	for _, k := range c.Keys {
		if k.Kid == kid {
			return k, true
		}
	}
	return ClientKey{}, false
}

type AuthorizationEvent interface {
	EventHeader() Header
	Accept(ctx context.Context, h AuthorizationHandler) error
}

type AuthorizationHandler interface {
	ClientAdded(ctx context.Context, e ClientAdded) error
	ClientKeyAdded(ctx context.Context, e ClientKeyAdded) error
	ClientKeyDeleted(ctx context.Context, e ClientKeyDeleted) error
	ClientPurposeAdded(ctx context.Context, e ClientPurposeAdded) error
	ClientPurposeRemoved(ctx context.Context, e ClientPurposeRemoved) error
	ClientDeleted(ctx context.Context, e ClientDeleted) error
	ClientMembershipChanged(ctx context.Context, e ClientMembershipChanged) error
}

type ClientAdded struct {
	Header
	Client Client
}

type ClientKeyAdded struct {
	Header
	Client Client
	Kid    string
}

type ClientKeyDeleted struct {
	Header
	Client Client
	Kid    string
}

type ClientPurposeAdded struct {
	Header
	Client    Client
	PurposeID string
}

type ClientPurposeRemoved struct {
	Header
	Client    Client
	PurposeID string
}

type ClientDeleted struct {
	Header
	Client Client
}

// ClientMembershipChanged groups user and admin changes, which carry no
// authorization data.
type ClientMembershipChanged struct {
	Header
	Client Client
}

func (e ClientAdded) Accept(ctx context.Context, h AuthorizationHandler) error {
	return h.ClientAdded(ctx, e)
}

func (e ClientKeyAdded) Accept(ctx context.Context, h AuthorizationHandler) error {
	return h.ClientKeyAdded(ctx, e)
}

func (e ClientKeyDeleted) Accept(ctx context.Context, h AuthorizationHandler) error {
	return h.ClientKeyDeleted(ctx, e)
}

func (e ClientPurposeAdded) Accept(ctx context.Context, h AuthorizationHandler) error {
	return h.ClientPurposeAdded(ctx, e)
}

func (e ClientPurposeRemoved) Accept(ctx context.Context, h AuthorizationHandler) error {
	return h.ClientPurposeRemoved(ctx, e)
}

func (e ClientDeleted) Accept(ctx context.Context, h AuthorizationHandler) error {
	return h.ClientDeleted(ctx, e)
}

func (e ClientMembershipChanged) Accept(ctx context.Context, h AuthorizationHandler) error {
	return h.ClientMembershipChanged(ctx, e)
}

// AuthorizationPayload is the JSON payload of every authorization event.
type AuthorizationPayload struct {
	Client    *Client `json:"client"`
	Kid       string  `json:"kid,omitempty"`
	PurposeID string  `json:"purposeId,omitempty"`
}

// DecodeAuthorization turns an envelope of the authorization stream into its event.
func DecodeAuthorization(env Envelope) (AuthorizationEvent, error) {
	switch env.Type {
	case "ClientAdded", "ClientKeyAdded", "ClientKeyDeleted", "ClientPurposeAdded",
		"ClientPurposeRemoved", "ClientDeleted", "ClientUserAdded", "ClientUserDeleted",
		"ClientAdminSet", "ClientAdminRemoved":
	default:
		return nil, unknown(DomainAuthorization, env.Type)
	}

	var payload AuthorizationPayload
	if err := decodeData(env, &payload); err != nil {
		return nil, err
	}
	c := payload.Client
	if c == nil || c.ID == "" {
		return nil, missing(env, "client")
	}
	if c.ConsumerID == "" || !c.Kind.IsValid() {
		return nil, missing(env, "client consumer or kind")
	}
	h := env.header()

	switch env.Type {
	case "ClientAdded":
		return ClientAdded{h, *c}, nil
	case "ClientKeyAdded":
		if payload.Kid == "" {
			return nil, missing(env, "kid")
		}
		if _, ok := c.Key(payload.Kid); !ok {
			return nil, missing(env, "key '"+payload.Kid+"' in client snapshot")
		}
		return ClientKeyAdded{h, *c, payload.Kid}, nil
	case "ClientKeyDeleted":
		if payload.Kid == "" {
			return nil, missing(env, "kid")
		}
		return ClientKeyDeleted{h, *c, payload.Kid}, nil
	case "ClientPurposeAdded":
		if payload.PurposeID == "" {
			return nil, missing(env, "purposeId")
		}
		return ClientPurposeAdded{h, *c, payload.PurposeID}, nil
	case "ClientPurposeRemoved":
		if payload.PurposeID == "" {
			return nil, missing(env, "purposeId")
		}
		return ClientPurposeRemoved{h, *c, payload.PurposeID}, nil
	case "ClientDeleted":
		return ClientDeleted{h, *c}, nil
	default:
		return ClientMembershipChanged{h, *c}, nil
	}
}
