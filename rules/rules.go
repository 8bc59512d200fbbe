package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
)

// Rules maps a submission kind to its ordered policy strings.
type Rules map[string][]string

// Default returns the built-in policy set.
func Default() Rules {
	return Rules{
		"text":  {"no hate speech", "no adult content"},
		"image": {"no violence", "no adult content"},
	}
}

// Clone returns a deep copy.
func (r Rules) Clone() Rules {
	if r == nil {
		return nil
	}
	out := make(Rules, len(r))
	for k, v := range r {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// For returns the policies for one kind.
func (r Rules) For(kind string) []string { return r[kind] }

// Keys returns the kinds in prompt order: text, image, then the rest sorted.
func (r Rules) Keys() []string {
	keys := make([]string, 0, len(r))
	for _, k := range []string{"text", "image"} {
		if _, ok := r[k]; ok {
			keys = append(keys, k)
		}
	}
	rest := make([]string, 0, len(r))
	for k := range r {
		if k != "text" && k != "image" {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// MarshalJSON writes compact JSON with keys in Keys order.
func (r Rules) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		policies := r[k]
		if policies == nil {
			policies = []string{}
		}
		vb, err := json.Marshal(policies)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String returns the prompt form of the rules.
func (r Rules) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Provider supplies rules to the classification stage.
type Provider interface {
	Get(ctx context.Context) (Rules, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Rules, error)

// Get implements Provider.
func (f ProviderFunc) Get(ctx context.Context) (Rules, error) { return f(ctx) }

// StaticProvider always returns the same rules.
type StaticProvider struct {
	rules Rules
}

// NewStaticProvider copies rules. A nil map means Default.
func NewStaticProvider(r Rules) *StaticProvider {
	if r == nil {
		r = Default()
	}
	return &StaticProvider{rules: r.Clone()}
}

// Get returns a copy of the configured rules.
func (p *StaticProvider) Get(context.Context) (Rules, error) {
	return p.rules.Clone(), nil
}
