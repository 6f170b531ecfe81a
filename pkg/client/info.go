package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pagopa/interop-platform-state/internal/api"
	"github.com/pagopa/interop-platform-state/internal/buildinfo"
)

// About returns the build information of the server.
func (c *Client) About(ctx context.Context) (*buildinfo.Info, string, error) {
	var info buildinfo.Info
	correlation, err := c.get(ctx, c.url().setPath(api.AboutRoute).build(), &info)
	return &info, correlation, err
}

// Health returns the health report of the server. A degraded server answers
// 503 with the same body, which is decoded rather than turned into an error.
func (c *Client) Health(ctx context.Context) (*api.Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url().setPath(api.HealthCheckRoute).build(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, parseErrorResponse(resp)
	}

	var health api.Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decoding health report: %w", err)
	}
	return &health, nil
}
