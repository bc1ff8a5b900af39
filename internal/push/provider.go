// Package push turns stored notifications into immediate in-band socket
// delivery plus out-of-band mobile push, with failure-tolerant fan-out
// and write-behind pruning of dead tokens.
package push

import (
	"context"
)

// Outcome classifies one provider send attempt per token.
type Outcome int

const (
	// OutcomeOK: the provider accepted the message for this token.
	OutcomeOK Outcome = iota
	// OutcomeInvalidToken: the provider's "gone"/"not registered" error
	// class. The subscription is dead and should be pruned.
	OutcomeInvalidToken
	// OutcomeTransient: network or provider-side outage. Logged and
	// dropped for this attempt.
	OutcomeTransient
)

// Target is one deliverable token plus the subscription it belongs to,
// so outcomes can be tied back to rows for pruning and stat bumps.
type Target struct {
	SubscriptionID int64
	Token          string
}

// Result is the per-token outcome of a provider send.
type Result struct {
	Target  Target
	Outcome Outcome
	Err     error
}

// Provider is one third-party push transport (FCM, Expo). Send delivers
// the payload to a batch of tokens and reports one result per target;
// implementations handle their own batching limits.
type Provider interface {
	Name() string
	Send(ctx context.Context, payload Payload, targets []Target) []Result
}
