package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pagopa/interop-platform-state/internal/api"
	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/validation"
)

func tokenForm(req validation.Request) url.Values {
	return url.Values{
		api.FormClientID:            {req.ClientID},
		api.FormClientAssertion:     {req.Assertion},
		api.FormClientAssertionType: {req.AssertionType},
		api.FormGrantType:           {req.GrantType},
	}
}

// IssueToken exchanges a client assertion for an access token.
// A rejected assertion yields an APIError carrying the validation steps.
func (c *Client) IssueToken(ctx context.Context, req validation.Request) (*core.TokenArtifact, string, error) {
	var artifact core.TokenArtifact
	correlation, err := c.postForm(ctx, c.url().setPath(api.IssueTokenRoute).build(), tokenForm(req), &artifact)
	if err != nil {
		return nil, correlation, err
	}
	return &artifact, correlation, nil
}

// Diagnose runs the validation steps of a token request on the server.
func (c *Client) Diagnose(ctx context.Context, req validation.Request) (*api.DiagnosticsResponse, string, error) {
	var resp api.DiagnosticsResponse
	correlation, err := c.postForm(ctx, c.url().setPath(api.DiagnosticsRoute).build(), tokenForm(req), &resp)
	if err != nil {
		return nil, correlation, err
	}
	return &resp, correlation, nil
}

func correlationFromResponse(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	return resp.Header.Get("X-Correlation-ID")
}
