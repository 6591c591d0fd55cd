package relay

import (
	"encoding/json"
	"time"
)

// State is the lifecycle phase of a channel worker.
type State int

const (
	StateStarting State = iota
	StateSubscribed
	StateListening
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateSubscribed:
		return "subscribed"
	case StateListening:
		return "listening"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Reason says why a worker stopped.
type Reason string

const (
	ReasonInvalidDestination Reason = "invalid_destination"
	ReasonConnectFailed      Reason = "connect_failed"
	ReasonSubscribeFailed    Reason = "subscribe_failed"
	ReasonStreamClosed       Reason = "stream_closed"
	ReasonStreamFailed       Reason = "stream_failed"
	ReasonCancelled          Reason = "cancelled"
	ReasonPanicked           Reason = "panicked"
)

// Termination is the final result of a worker run.
type Termination struct {
	Reason Reason
	Err    error
}

// Outcome classifies what happened to a single received event.
type Outcome string

const (
	OutcomeDelivered       Outcome = "delivered"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeTransformFailed Outcome = "transform_failed"
	OutcomeDeliveryFailed  Outcome = "delivery_failed"
	OutcomeMalformed       Outcome = "malformed"
)

// Status is an observer's copy of a worker's state.
type Status struct {
	Channel     string
	Topic       string
	State       State
	Termination *Termination
	Since       time.Time
}

// MarshalJSON renders the status for the /statusz endpoint.
func (s Status) MarshalJSON() ([]byte, error) {
	out := struct {
		Channel string    `json:"channel"`
		Topic   string    `json:"topic"`
		State   string    `json:"state"`
		Since   time.Time `json:"since"`
		Reason  Reason    `json:"reason,omitempty"`
		Error   string    `json:"error,omitempty"`
	}{
		Channel: s.Channel,
		Topic:   s.Topic,
		State:   s.State.String(),
		Since:   s.Since,
	}
	if s.Termination != nil {
		out.Reason = s.Termination.Reason
		if s.Termination.Err != nil {
			out.Error = s.Termination.Err.Error()
		}
	}
	return json.Marshal(out)
}
