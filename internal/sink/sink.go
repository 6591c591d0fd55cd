package sink

import (
	"context"

	"github.com/lsm/relay/internal/chat"
)

// Sink delivers chat messages to a destination channel.
// Implementations must be safe for concurrent use by many workers.
type Sink interface {
	// Deliver sends msg to dest. It is called once per message; callers do
	// not retry on error.
	Deliver(ctx context.Context, dest chat.DestinationID, msg *chat.Message) error

	// Close performs graceful shutdown.
	Close() error
}
