// Package realtime defines the Negotiator interface for the external
// negotiation endpoint: the service that mints short-lived credentials and
// performs SDP offer/answer exchange for a realtime voice session.
//
// The wire payloads are an external contract owned by the endpoint; this
// package models only the two operations the session core consumes. All
// implementations must be safe for concurrent use.
package realtime

import (
	"context"
	"time"
)

// SessionParams carries the per-session configuration forwarded to the
// negotiation endpoint when minting a credential.
type SessionParams struct {
	// Instructions is the system-level prompt defining the AI persona's
	// behaviour for this session.
	Instructions string

	// Voice selects the synthesised voice. Empty means the endpoint's
	// default.
	Voice string

	// ScenarioLabel is a free-form label for the training scenario. Purely
	// informational; some endpoints ignore it.
	ScenarioLabel string
}

// Credential is a short-lived token authorising one offer/answer exchange.
type Credential struct {
	// Token is the ephemeral secret presented during negotiation.
	Token string

	// ExpiresAt is when the token stops being accepted. Zero when the
	// endpoint does not report an expiry.
	ExpiresAt time.Time
}

// Negotiator is the abstraction over the negotiation endpoint.
type Negotiator interface {
	// MintCredential requests an ephemeral credential configured with the
	// given session parameters.
	MintCredential(ctx context.Context, params SessionParams) (Credential, error)

	// Negotiate submits the local SDP offer under the credential and
	// returns the remote SDP answer.
	Negotiate(ctx context.Context, cred Credential, offerSDP string) (answerSDP string, err error)
}
