// Package envelope unwraps payloads that arrive inside a transport envelope
// before handing them to the channel's transform.
package envelope

import (
	"encoding/json"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/lsm/relay/internal/chat"
	"github.com/lsm/relay/internal/transform"
)

// Envelope kinds accepted in channel configuration.
const (
	None        = ""
	CloudEvents = "cloudevents"
)

// Wrap returns inner wrapped for the named envelope kind.
func Wrap(kind string, inner transform.Transformer) (transform.Transformer, error) {
	switch kind {
	case None, "none":
		return inner, nil
	case CloudEvents:
		return &cloudEvent{inner: inner}, nil
	default:
		return nil, fmt.Errorf("unknown envelope %q", kind)
	}
}

// cloudEvent decodes a structured-mode CloudEvent and transforms its data.
type cloudEvent struct {
	inner transform.Transformer
}

func (c *cloudEvent) Transform(payload []byte) (*chat.Message, error) {
	event := cloudevents.NewEvent()
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode cloudevent: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cloudevent: %w", err)
	}
	data := event.Data()
	if len(data) == 0 {
		return nil, fmt.Errorf("cloudevent %s has no data", event.ID())
	}
	return c.inner.Transform(data)
}
