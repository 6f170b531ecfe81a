// Package client is a small HTTP client for the platform state service.
package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

type Option func(*Client)

// WithAuthToken sets the operator token sent to admin routes.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type urlBuilder struct {
	base  string
	path  string
	query url.Values
}

func (c *Client) url() *urlBuilder {
	return &urlBuilder{base: c.baseURL, query: url.Values{}}
}

func (b *urlBuilder) setPath(path string) *urlBuilder {
	b.path = path
	return b
}

func (b *urlBuilder) addQueryParam(key string, value any) *urlBuilder {
	b.query.Add(key, fmt.Sprint(value))
	return b
}

func (b *urlBuilder) build() string {
	u := b.base + b.path
	if len(b.query) > 0 {
		u += "?" + b.query.Encode()
	}
	return u
}
