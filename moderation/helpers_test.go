package moderation

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/BaSui01/modguard/llm"
)

var errModelDown = errors.New("model unavailable")

// scriptedModel answers by stage, recognized from the system prompt.
type scriptedModel struct {
	mu    sync.Mutex
	calls [][]llm.Message

	analysis, classification, explanation   string
	failAnalysis, failClassify, failExplain bool
}

func (m *scriptedModel) Invoke(_ context.Context, messages []llm.Message) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, messages)
	m.mu.Unlock()

	system := messages[0].Text()
	switch {
	case strings.Contains(system, "Analyzer"):
		if m.failAnalysis {
			return "", errModelDown
		}
		return m.analysis, nil
	case strings.Contains(system, "classification agent"):
		if m.failClassify {
			return "", errModelDown
		}
		return m.classification, nil
	case strings.Contains(system, "moderation assistant"):
		if m.failExplain {
			return "", errModelDown
		}
		return m.explanation, nil
	}
	return "", errors.New("unexpected prompt")
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *scriptedModel) call(i int) []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

var failingModel = ModelFunc(func(context.Context, []llm.Message) (string, error) {
	return "", errModelDown
})

func mustRouting(mode ExplainMode) *RoutingPolicy {
	p, err := NewRoutingPolicy(mode, DefaultExplainProbability, nil)
	if err != nil {
		panic(err)
	}
	return p
}
