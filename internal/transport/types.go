// Package transport defines the outbound delivery contract consumed by the
// scheduler and the inbound registration contract consumed by adapters.
package transport

import (
	"context"

	"github.com/qugok/birthday-bot/internal/catalog"
	"github.com/qugok/birthday-bot/internal/state"
)

// Outcome classifies the result of a delivery attempt.
type Outcome int

const (
	// Delivered means the provider confirmed the send.
	Delivered Outcome = iota
	// TransientFailure covers everything expected to succeed on a later
	// attempt: network blips, rate limits, timeouts.
	TransientFailure
	// PermanentFailure means the recipient can never again receive content
	// (access revoked). The scheduler blocks the recipient.
	PermanentFailure
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case PermanentFailure:
		return "permanent"
	default:
		return "transient"
	}
}

// Sender performs the actual network send and owns failure classification,
// so the scheduler never inspects provider-specific error payloads.
type Sender interface {
	Send(ctx context.Context, recipientID int64, item catalog.Item) error
	// Classify maps a Send error to an Outcome. Classify(nil) is Delivered.
	Classify(err error) Outcome
}

// Registrar is implemented by the scheduler: "ensure this recipient exists
// in the schedule". Idempotent; created reports whether the recipient was
// new. Adapters always acknowledge the requester regardless of the result.
type Registrar interface {
	Register(ctx context.Context, id int64, profile state.Profile) (created bool, err error)
}
