// Package openai implements the realtime.Negotiator interface against the
// OpenAI Realtime API: an HTTP credential mint followed by an SDP
// offer/answer exchange authorised by the ephemeral token.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loquihq/loqui/pkg/realtime"
)

var _ realtime.Negotiator = (*Client)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "https://api.openai.com/v1/realtime"

	requestTimeout = 30 * time.Second
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the model requested for sessions.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL overrides the base API URL. Primarily used in tests to point
// at a local mock server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient overrides the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client implements realtime.Negotiator for the OpenAI Realtime API.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// New creates a Client with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// mintRequest is the JSON body for the session-credential endpoint.
type mintRequest struct {
	Model        string `json:"model"`
	Voice        string `json:"voice,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// mintResponse is the subset of the credential response the core consumes.
type mintResponse struct {
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// MintCredential implements [realtime.Negotiator]. It POSTs the session
// configuration to the sessions endpoint and extracts the ephemeral
// client secret.
func (c *Client) MintCredential(ctx context.Context, params realtime.SessionParams) (realtime.Credential, error) {
	body, err := json.Marshal(mintRequest{
		Model:        c.model,
		Voice:        params.Voice,
		Instructions: params.Instructions,
	})
	if err != nil {
		return realtime.Credential{}, fmt.Errorf("openai realtime: marshal mint request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return realtime.Credential{}, fmt.Errorf("openai realtime: build mint request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return realtime.Credential{}, fmt.Errorf("openai realtime: mint credential: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return realtime.Credential{}, fmt.Errorf("openai realtime: mint credential: %s", readAPIError(resp))
	}

	var mr mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return realtime.Credential{}, fmt.Errorf("openai realtime: decode mint response: %w", err)
	}
	if mr.ClientSecret.Value == "" {
		return realtime.Credential{}, fmt.Errorf("openai realtime: mint response carries no client secret")
	}

	cred := realtime.Credential{Token: mr.ClientSecret.Value}
	if mr.ClientSecret.ExpiresAt > 0 {
		cred.ExpiresAt = time.Unix(mr.ClientSecret.ExpiresAt, 0)
	}
	return cred, nil
}

// Negotiate implements [realtime.Negotiator]. It POSTs the raw SDP offer
// under the ephemeral credential and returns the SDP answer.
func (c *Client) Negotiate(ctx context.Context, cred realtime.Credential, offerSDP string) (string, error) {
	if cred.Token == "" {
		return "", fmt.Errorf("openai realtime: negotiate: empty credential")
	}

	endpoint := c.baseURL + "?model=" + url.QueryEscape(c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("openai realtime: build negotiate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai realtime: negotiate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("openai realtime: negotiate: %s", readAPIError(resp))
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai realtime: read answer: %w", err)
	}
	if len(answer) == 0 {
		return "", fmt.Errorf("openai realtime: negotiate returned an empty answer")
	}
	return string(answer), nil
}

// readAPIError summarises a non-2xx response body for error wrapping. The
// endpoint usually returns {"error":{"message":...}}; fall back to the raw
// body when it does not.
func readAPIError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
