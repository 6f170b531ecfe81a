package client

import (
	"context"
	"net/url"

	"github.com/pagopa/interop-platform-state/internal/api"
	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/stream"
)

// PlatformState reads one platform state entry as stored.
func (c *Client) PlatformState(ctx context.Context, pk string) (map[string]any, string, error) {
	var item map[string]any
	correlation, err := c.get(ctx, c.url().setPath(api.AdminPlatformStates+url.PathEscape(pk)).build(), &item)
	return item, correlation, err
}

// TokenState reads one token generation state entry as stored.
func (c *Client) TokenState(ctx context.Context, pk string) (map[string]any, string, error) {
	var item map[string]any
	correlation, err := c.get(ctx, c.url().setPath(api.AdminTokenStates+url.PathEscape(pk)).build(), &item)
	return item, correlation, err
}

// Consumers lists the stream consumers of the server process.
func (c *Client) Consumers(ctx context.Context) ([]stream.Status, string, error) {
	var resp []stream.Status
	correlation, err := c.get(ctx, c.url().setPath(api.AdminConsumers).build(), &resp)
	return resp, correlation, err
}

func (c *Client) ConsumerFailures(ctx context.Context, domain string) ([]stream.Failure, string, error) {
	var resp []stream.Failure
	correlation, err := c.get(ctx, c.url().setPath(api.AdminConsumers+"/"+url.PathEscape(domain)+"/failures").build(), &resp)
	return resp, correlation, err
}

type ListAuditsOpts struct {
	Limit uint

	CorrelationID string
	ClientID      string
	Fingerprint   string
}

// ListAudits retrieves the latest audit entries from the server.
func (c *Client) ListAudits(ctx context.Context, opts ListAuditsOpts) ([]core.AuditEntry, string, error) {
	ub := c.url().setPath(api.AdminAudits)
	if opts.Limit > 0 {
		ub = ub.addQueryParam("limit", opts.Limit)
	}
	if opts.CorrelationID != "" {
		ub = ub.addQueryParam("correlation_id", opts.CorrelationID)
	}
	if opts.ClientID != "" {
		ub = ub.addQueryParam("client_id", opts.ClientID)
	}
	if opts.Fingerprint != "" {
		ub = ub.addQueryParam("fingerprint", opts.Fingerprint)
	}
	var resp []core.AuditEntry
	correlation, err := c.get(ctx, ub.build(), &resp)
	return resp, correlation, err
}
