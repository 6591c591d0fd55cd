// Package builtin resolves transform names used in channel configuration to
// Transformer values.
package builtin

import (
	"fmt"
	"sort"

	"github.com/lsm/relay/internal/transform"
	"github.com/lsm/relay/internal/transform/asay"
	celxform "github.com/lsm/relay/internal/transform/cel"
	"github.com/lsm/relay/internal/transform/envelope"
)

// Spec describes the transform bound to one channel.
type Spec struct {
	Kind     string `yaml:"kind"`
	Expr     string `yaml:"expr,omitempty"`     // cel only
	Envelope string `yaml:"envelope,omitempty"` // "" or "cloudevents"
}

// Factory builds a Transformer from a Spec.
type Factory func(Spec) (transform.Transformer, error)

var factories = map[string]Factory{
	"asay": func(Spec) (transform.Transformer, error) { return asay.New(), nil },
	// access, round and meta are published by the game server but have no
	// relay formatting yet.
	"access": noop,
	"round":  noop,
	"meta":   noop,
	"cel": func(s Spec) (transform.Transformer, error) {
		if s.Expr == "" {
			return nil, fmt.Errorf("cel transform requires expr")
		}
		return celxform.NewTransformer(s.Expr, celxform.WithDefaultColor(asay.AccentColor))
	},
}

func noop(Spec) (transform.Transformer, error) { return transform.Noop, nil }

// Kinds lists the known transform kinds in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build returns the Transformer described by s, wrapped in its envelope.
func Build(s Spec) (transform.Transformer, error) {
	f, ok := factories[s.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown transform kind %q (known: %v)", s.Kind, Kinds())
	}
	tr, err := f(s)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", s.Kind, err)
	}
	wrapped, err := envelope.Wrap(s.Envelope, tr)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", s.Kind, err)
	}
	return wrapped, nil
}
