// Package mock provides a scriptable realtime.Negotiator for tests.
package mock

import (
	"context"
	"sync"

	"github.com/loquihq/loqui/pkg/realtime"
)

var _ realtime.Negotiator = (*Negotiator)(nil)

// Negotiator records calls and returns scripted results.
type Negotiator struct {
	// MintErr and NegotiateErr, when non-nil, are returned by the
	// corresponding methods.
	MintErr      error
	NegotiateErr error

	// Answer is the SDP answer returned by Negotiate. Defaults to a stub.
	Answer string

	mu         sync.Mutex
	mintCalls  []realtime.SessionParams
	negotiated []string
}

// MintCredential implements [realtime.Negotiator].
func (n *Negotiator) MintCredential(_ context.Context, params realtime.SessionParams) (realtime.Credential, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.MintErr != nil {
		return realtime.Credential{}, n.MintErr
	}
	n.mintCalls = append(n.mintCalls, params)
	return realtime.Credential{Token: "ephemeral-test-token"}, nil
}

// Negotiate implements [realtime.Negotiator].
func (n *Negotiator) Negotiate(_ context.Context, _ realtime.Credential, offerSDP string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.NegotiateErr != nil {
		return "", n.NegotiateErr
	}
	n.negotiated = append(n.negotiated, offerSDP)
	if n.Answer != "" {
		return n.Answer, nil
	}
	return "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=answer\r\n", nil
}

// MintCalls returns the recorded credential requests.
func (n *Negotiator) MintCalls() []realtime.SessionParams {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]realtime.SessionParams, len(n.mintCalls))
	copy(out, n.mintCalls)
	return out
}

// NegotiateCalls returns the offers submitted for negotiation.
func (n *Negotiator) NegotiateCalls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.negotiated))
	copy(out, n.negotiated)
	return out
}
