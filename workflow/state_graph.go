package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const (
	// START is the virtual node preceding the entry node.
	START = "__start__"
	// END is the virtual terminal node.
	END = "__end__"
)

// Reducer defines how a node's partial update is merged into the state.
type Reducer[S any] func(current S, update S) S

// LastValue is the default reducer: the update replaces the state.
func LastValue[S any](_ S, update S) S { return update }

// NodeFunc executes one node and returns a partial state update.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// RouterFunc picks the next branch key after a node ran.
type RouterFunc[S any] func(ctx context.Context, state S) (string, error)

type branch[S any] struct {
	router  RouterFunc[S]
	pathMap map[string]string
}

// StateGraph is a builder for a state machine whose nodes share one state
// value of type S. Build errors are collected and reported by Compile.
type StateGraph[S any] struct {
	nodes    map[string]NodeFunc[S]
	order    []string
	edges    map[string]string
	branches map[string]branch[S]
	entry    string
	reducer  Reducer[S]
	errs     []error
}

// NewStateGraph creates an empty graph. A nil reducer means LastValue.
func NewStateGraph[S any](reducer Reducer[S]) *StateGraph[S] {
	if reducer == nil {
		reducer = LastValue[S]
	}
	return &StateGraph[S]{
		nodes:    make(map[string]NodeFunc[S]),
		edges:    make(map[string]string),
		branches: make(map[string]branch[S]),
		reducer:  reducer,
	}
}

// AddNode registers a node.
func (g *StateGraph[S]) AddNode(name string, fn NodeFunc[S]) *StateGraph[S] {
	switch {
	case name == "" || name == START || name == END:
		g.errs = append(g.errs, fmt.Errorf("invalid node name %q", name))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("node %s: function is nil", name))
	default:
		if _, exists := g.nodes[name]; exists {
			g.errs = append(g.errs, fmt.Errorf("node %s already exists", name))
			return g
		}
		g.nodes[name] = fn
		g.order = append(g.order, name)
	}
	return g
}

// AddEdge adds an unconditional transition. AddEdge(START, n) sets the entry node.
func (g *StateGraph[S]) AddEdge(from, to string) *StateGraph[S] {
	if from == START {
		return g.SetEntryPoint(to)
	}
	if from == END {
		g.errs = append(g.errs, fmt.Errorf("END cannot have outgoing edges"))
		return g
	}
	if g.hasOutgoing(from) {
		return g
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdges routes from a node through router. The router result is
// looked up in pathMap; with a nil pathMap the result is used as the node name.
func (g *StateGraph[S]) AddConditionalEdges(from string, router RouterFunc[S], pathMap map[string]string) *StateGraph[S] {
	if router == nil {
		g.errs = append(g.errs, fmt.Errorf("node %s: router is nil", from))
		return g
	}
	if g.hasOutgoing(from) {
		return g
	}
	var copied map[string]string
	if pathMap != nil {
		copied = make(map[string]string, len(pathMap))
		for k, v := range pathMap {
			copied[k] = v
		}
	}
	g.branches[from] = branch[S]{router: router, pathMap: copied}
	return g
}

func (g *StateGraph[S]) hasOutgoing(from string) bool {
	if _, exists := g.edges[from]; exists {
		g.errs = append(g.errs, fmt.Errorf("node %s already has an outgoing edge", from))
		return true
	}
	if _, exists := g.branches[from]; exists {
		g.errs = append(g.errs, fmt.Errorf("node %s already has conditional edges", from))
		return true
	}
	return false
}

// SetEntryPoint sets the first node to run.
func (g *StateGraph[S]) SetEntryPoint(name string) *StateGraph[S] {
	if g.entry != "" && g.entry != name {
		g.errs = append(g.errs, fmt.Errorf("entry point already set to %s", g.entry))
		return g
	}
	g.entry = name
	return g
}

// Compile validates the graph and returns an executable form.
func (g *StateGraph[S]) Compile(opts ...CompileOption) (*CompiledGraph[S], error) {
	if err := g.validate(); err != nil {
		return nil, err
	}

	cg := &CompiledGraph[S]{
		nodes:    make(map[string]NodeFunc[S], len(g.nodes)),
		edges:    make(map[string]string, len(g.edges)),
		branches: make(map[string]branch[S], len(g.branches)),
		entry:    g.entry,
		reducer:  g.reducer,
		compileSettings: compileSettings{
			name:      "state_graph",
			stepLimit: DefaultStepLimit,
		},
	}
	for k, v := range g.nodes {
		cg.nodes[k] = v
	}
	for k, v := range g.edges {
		cg.edges[k] = v
	}
	for k, v := range g.branches {
		cg.branches[k] = v
	}
	for _, opt := range opts {
		opt(&cg.compileSettings)
	}
	cg.init()
	return cg, nil
}

func (g *StateGraph[S]) validate() error {
	errs := append([]error(nil), g.errs...)

	if g.entry == "" {
		errs = append(errs, fmt.Errorf("graph has no entry point"))
	} else if _, ok := g.nodes[g.entry]; !ok {
		errs = append(errs, fmt.Errorf("entry node not found: %s", g.entry))
	}

	known := func(name string) bool {
		if name == END {
			return true
		}
		_, ok := g.nodes[name]
		return ok
	}

	for _, from := range sortedKeys(g.edges) {
		to := g.edges[from]
		if !known(from) {
			errs = append(errs, fmt.Errorf("edge source not found: %s", from))
		}
		if !known(to) {
			errs = append(errs, fmt.Errorf("edge target not found: %s -> %s", from, to))
		}
	}
	for _, from := range sortedKeys(g.branches) {
		if !known(from) {
			errs = append(errs, fmt.Errorf("conditional edge source not found: %s", from))
		}
		pm := g.branches[from].pathMap
		for _, key := range sortedKeys(pm) {
			if !known(pm[key]) {
				errs = append(errs, fmt.Errorf("conditional target not found: %s[%s] -> %s", from, key, pm[key]))
			}
		}
	}

	for _, name := range g.order {
		_, hasEdge := g.edges[name]
		_, hasBranch := g.branches[name]
		if !hasEdge && !hasBranch {
			errs = append(errs, fmt.Errorf("node %s has no outgoing edge", name))
		}
	}

	if len(errs) == 0 {
		reached := g.reachable()
		for _, name := range g.order {
			if !reached[name] {
				errs = append(errs, fmt.Errorf("node %s is unreachable from entry %s", name, g.entry))
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return &ValidationError{Problems: msgs}
}

// reachable 从入口做 BFS。pathMap 为 nil 的分支可以路由到任意节点。
func (g *StateGraph[S]) reachable() map[string]bool {
	seen := map[string]bool{}
	queue := []string{g.entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == END || seen[cur] {
			continue
		}
		seen[cur] = true
		if to, ok := g.edges[cur]; ok {
			queue = append(queue, to)
		}
		if b, ok := g.branches[cur]; ok {
			if b.pathMap == nil {
				queue = append(queue, g.order...)
				continue
			}
			for _, to := range b.pathMap {
				queue = append(queue, to)
			}
		}
	}
	return seen
}

// ValidationError lists every structural problem found by Compile.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid state graph: " + strings.Join(e.Problems, "; ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
