package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pagopa/interop-platform-state/internal/api/presenter"
	"github.com/pagopa/interop-platform-state/internal/validation"
)

var ErrInvalidSession = fmt.Errorf("invalid session token")

type APIError struct {
	StatusCode    int
	CorrelationID string
	Message       string

	// Steps is the validation trail of a rejected client assertion.
	Steps []validation.StepResult
}

func (e APIError) Error() string {
	return fmt.Sprintf("api error: '%s' (correlation: %s)", e.Message, e.CorrelationID)
}

func (c *Client) get(ctx context.Context, target string, result any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) postForm(ctx context.Context, target string, form url.Values, result any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", target, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, result)
}

func parseErrorResponse(resp *http.Response) error {
	var errResp presenter.ErrorResponse
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d and unreadable body: %w", resp.StatusCode, err)
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		if errResp.Error == "invalid session token" {
			return ErrInvalidSession
		}
		return APIError{
			StatusCode:    resp.StatusCode,
			CorrelationID: errResp.CorrelationID,
			Message:       errResp.Error,
			Steps:         errResp.Steps,
		}
	}
	return fmt.Errorf("api error: *unparsed '%s' (status %d)", string(body), resp.StatusCode)
}

func (c *Client) do(req *http.Request, result any) (string, error) {
	// inject auth token if available
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("connection failed: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode >= 400 {
		return correlationFromResponse(resp), parseErrorResponse(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return correlationFromResponse(resp), fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return correlationFromResponse(resp), nil
}
