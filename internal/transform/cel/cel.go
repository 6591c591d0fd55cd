// Package cel builds chat messages from JSON payloads with a CEL expression.
//
// The expression sees the decoded payload as `payload` and must evaluate to
// null, false or an empty map (nothing to deliver) or to a map with string
// keys:
//
//	payload.kind == "ban"
//	  ? {"title": payload.admin, "body": payload.reason, "footer": payload.server}
//	  : {}
//
// Recognised keys are title, body, footer and color (an int 0xRRGGBB).
// At least one of title or body must be non-empty.
package cel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/ext"

	"github.com/lsm/relay/internal/chat"
)

// Option configures a Transformer.
type Option func(*Transformer)

// WithClock sets the clock used to timestamp messages.
func WithClock(now func() time.Time) Option {
	return func(t *Transformer) { t.now = now }
}

// WithDefaultColor sets the color used when the expression does not set one.
func WithDefaultColor(c chat.Color) Option {
	return func(t *Transformer) { t.color = c }
}

// Transformer evaluates a compiled CEL program against each payload.
type Transformer struct {
	program cel.Program
	now     func() time.Time
	color   chat.Color
}

// NewTransformer compiles expression and returns a ready-to-use Transformer.
func NewTransformer(expression string, opts ...Option) (*Transformer, error) {
	env, err := cel.NewEnv(
		cel.Variable("payload", cel.DynType),
		ext.Strings(),
		ext.Encoders(),
		ext.Math(),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}

	t := &Transformer{program: prg, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Transform implements transform.Transformer.
func (t *Transformer) Transform(payload []byte) (*chat.Message, error) {
	var parsed any
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	out, _, err := t.program.Eval(map[string]any{"payload": parsed})
	if err != nil {
		return nil, fmt.Errorf("cel eval: %w", err)
	}

	switch v := out.(type) {
	case types.Null:
		return nil, nil
	case types.Bool:
		if !bool(v) {
			return nil, nil
		}
		return nil, fmt.Errorf("cel result: true is not a message")
	case traits.Mapper:
		if v.Size() == types.IntZero {
			return nil, nil
		}
		return t.toMessage(v)
	default:
		return nil, fmt.Errorf("cel result: unsupported type %s", out.Type().TypeName())
	}
}

func (t *Transformer) toMessage(m traits.Mapper) (*chat.Message, error) {
	msg := &chat.Message{Timestamp: t.now(), Color: t.color}

	it := m.Iterator()
	for it.HasNext() == types.True {
		key := it.Next()
		name, ok := key.(types.String)
		if !ok {
			return nil, fmt.Errorf("cel result: non-string key %v", key.Value())
		}
		val := m.Get(key)

		switch string(name) {
		case "title":
			s, err := stringField(name, val)
			if err != nil {
				return nil, err
			}
			msg.Title = s
		case "body":
			s, err := stringField(name, val)
			if err != nil {
				return nil, err
			}
			msg.Body = s
		case "footer":
			s, err := stringField(name, val)
			if err != nil {
				return nil, err
			}
			msg.Footer = s
		case "color":
			c, err := colorField(val)
			if err != nil {
				return nil, err
			}
			msg.Color = c
		default:
			return nil, fmt.Errorf("cel result: unknown key %q", string(name))
		}
	}

	if msg.Title == "" && msg.Body == "" {
		return nil, fmt.Errorf("cel result: title and body are both empty")
	}
	return msg, nil
}

func stringField(name types.String, val ref.Val) (string, error) {
	switch v := val.(type) {
	case types.String:
		return string(v), nil
	case types.Null:
		return "", nil
	default:
		return "", fmt.Errorf("cel result: %s must be a string, got %s", string(name), val.Type().TypeName())
	}
}

func colorField(val ref.Val) (chat.Color, error) {
	var n int64
	switch v := val.(type) {
	case types.Int:
		n = int64(v)
	case types.Uint:
		n = int64(v)
	case types.Double:
		n = int64(v)
	default:
		return 0, fmt.Errorf("cel result: color must be a number, got %s", val.Type().TypeName())
	}
	if n < 0 || n > 0xFFFFFF {
		return 0, fmt.Errorf("cel result: color %d out of range", n)
	}
	return chat.Color(n), nil
}
