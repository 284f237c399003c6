// Package remote evaluates decisions against a curia-api instance over HTTP,
// for application layers that do not embed the engine in-process.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"curia.org/internal/authz"
	"curia.org/internal/registry"
)

// ErrUnauthorized indicates the forwarded credential was missing or invalid.
var ErrUnauthorized = errors.New("remote: unauthorized")

// Client calls the decision check endpoint of a remote curia-api.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport, for tests and custom timeouts.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithToken sets a default bearer token. Per-call tokens from WithBearer
// take precedence, so a service can forward each end user's identity.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient creates a client for the given base URL, e.g. "http://curia:8080".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type bearerKey struct{}

// WithBearer returns a context carrying the end-user token to forward.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, strings.TrimSpace(token))
}

// CheckRequest mirrors POST /v1/authz/check.
type CheckRequest struct {
	Action       string `json:"action"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty"`
	CaseID       string `json:"case_id,omitempty"`
	ThreadID     string `json:"thread_id,omitempty"`
}

// CheckResponse is the decision as presented to the caller. When Conceal is
// set the caller must render the target as not existing.
type CheckResponse struct {
	Allowed bool   `json:"allowed"`
	Rule    string `json:"rule"`
	Reason  string `json:"reason"`
	Conceal bool   `json:"conceal"`
}

// Check evaluates one decision. A denied decision is returned with a nil
// error; errors represent transport or service failures, mapped onto the
// engine's sentinels where possible.
func (c *Client) Check(ctx context.Context, req CheckRequest) (CheckResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return CheckResponse{}, fmt.Errorf("remote: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/authz/check", bytes.NewReader(body))
	if err != nil {
		return CheckResponse{}, fmt.Errorf("remote: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token := c.bearer(ctx); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return CheckResponse{}, fmt.Errorf("%w: %v", authz.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out CheckResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
			return CheckResponse{}, fmt.Errorf("remote: decode response: %w", err)
		}
		return out, nil
	case http.StatusUnauthorized:
		return CheckResponse{}, ErrUnauthorized
	case http.StatusBadRequest:
		return CheckResponse{}, fmt.Errorf("%w: rejected check request", registry.ErrInvalidInput)
	case http.StatusServiceUnavailable:
		return CheckResponse{}, authz.ErrStoreUnavailable
	default:
		return CheckResponse{}, fmt.Errorf("remote: unexpected status %d", resp.StatusCode)
	}
}

// CanView asks whether the authenticated user may read the resource.
func (c *Client) CanView(ctx context.Context, resourceType, resourceID string) (CheckResponse, error) {
	action := "view"
	if resourceType == "audit" {
		action = "view_audit"
	}
	return c.Check(ctx, CheckRequest{Action: action, ResourceType: resourceType, ResourceID: resourceID})
}

// CanMutate asks whether the authenticated user may perform the mutating
// action on the resource.
func (c *Client) CanMutate(ctx context.Context, action, resourceType, resourceID string) (CheckResponse, error) {
	return c.Check(ctx, CheckRequest{Action: action, ResourceType: resourceType, ResourceID: resourceID})
}

func (c *Client) bearer(ctx context.Context) string {
	if v, ok := ctx.Value(bearerKey{}).(string); ok && v != "" {
		return v
	}
	return c.token
}
