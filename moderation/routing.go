package moderation

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

// ExplainMode selects how flagged items are routed to the explanation stage.
type ExplainMode string

const (
	// ExplainRandom explains a flagged item with probability Probability.
	ExplainRandom ExplainMode = "random"
	// ExplainAlways explains every flagged item.
	ExplainAlways ExplainMode = "always"
	// ExplainNever never explains.
	ExplainNever ExplainMode = "never"
)

// DefaultExplainProbability is the coin weight of ExplainRandom.
const DefaultExplainProbability = 0.5

// ParseExplainMode parses a mode name; empty means ExplainRandom.
func ParseExplainMode(s string) (ExplainMode, error) {
	switch m := ExplainMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ExplainRandom, nil
	case ExplainRandom, ExplainAlways, ExplainNever:
		return m, nil
	default:
		return "", fmt.Errorf("unknown explain mode %q", s)
	}
}

// NeedsReview reports whether a raw classification asks for human review.
func NeedsReview(classification string) bool {
	return strings.Contains(strings.ToLower(strings.TrimSpace(classification)), "flag")
}

// RoutingPolicy decides whether a run continues to the explanation stage.
// Safe for concurrent use.
type RoutingPolicy struct {
	mode        ExplainMode
	probability float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRoutingPolicy creates a policy. A nil src uses the shared runtime source.
func NewRoutingPolicy(mode ExplainMode, probability float64, src rand.Source) (*RoutingPolicy, error) {
	if mode == "" {
		mode = ExplainRandom
	}
	if _, err := ParseExplainMode(string(mode)); err != nil {
		return nil, err
	}
	if probability < 0 || probability > 1 {
		return nil, fmt.Errorf("explain probability %v out of range [0,1]", probability)
	}
	p := &RoutingPolicy{mode: mode, probability: probability}
	if src != nil {
		p.rng = rand.New(src)
	}
	return p, nil
}

// DefaultRoutingPolicy is ExplainRandom with DefaultExplainProbability.
func DefaultRoutingPolicy() *RoutingPolicy {
	return &RoutingPolicy{mode: ExplainRandom, probability: DefaultExplainProbability}
}

// Mode returns the configured mode.
func (p *RoutingPolicy) Mode() ExplainMode { return p.mode }

// ShouldExplain reports whether to run the explanation stage.
func (p *RoutingPolicy) ShouldExplain(classification string) bool {
	if !NeedsReview(classification) {
		return false
	}
	switch p.mode {
	case ExplainAlways:
		return true
	case ExplainNever:
		return false
	default:
		return p.draw() < p.probability
	}
}

func (p *RoutingPolicy) draw() float64 {
	if p.rng == nil {
		return rand.Float64()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}
