package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/modguard/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultStepLimit bounds the number of node executions per Invoke.
const DefaultStepLimit = 25

// ErrStepLimitExceeded is returned when a run executes more nodes than allowed.
var ErrStepLimitExceeded = errors.New("workflow: step limit exceeded")

// NodeError wraps a failure (or recovered panic) of a single node.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string { return fmt.Sprintf("node %s failed: %v", e.Node, e.Err) }
func (e *NodeError) Unwrap() error { return e.Err }

// RoutingError is returned when a router yields a key with no target.
type RoutingError struct {
	From string
	Key  string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("no route from %s for key %q", e.From, e.Key)
}

// NodeEvent describes one finished node execution.
type NodeEvent struct {
	RunID    string
	Graph    string
	Node     string
	Next     string
	Step     int
	Duration time.Duration
	Err      error
}

// Observer receives node lifecycle events. Implementations must be safe for
// concurrent use.
type Observer interface {
	NodeFinished(ctx context.Context, ev NodeEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev NodeEvent)

// NodeFinished implements Observer.
func (f ObserverFunc) NodeFinished(ctx context.Context, ev NodeEvent) { f(ctx, ev) }

// CompileOption configures a CompiledGraph.
type CompileOption func(*compileSettings)

type compileSettings struct {
	name      string
	logger    *zap.Logger
	observer  Observer
	stepLimit int
	tracer    trace.Tracer
}

// WithName sets the graph name used in logs and spans.
func WithName(name string) CompileOption {
	return func(s *compileSettings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) CompileOption {
	return func(s *compileSettings) { s.logger = logger }
}

// WithObserver registers an Observer.
func WithObserver(o Observer) CompileOption {
	return func(s *compileSettings) { s.observer = o }
}

// WithStepLimit overrides DefaultStepLimit. Non-positive values are ignored.
func WithStepLimit(n int) CompileOption {
	return func(s *compileSettings) {
		if n > 0 {
			s.stepLimit = n
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) CompileOption {
	return func(s *compileSettings) { s.tracer = t }
}

// CompiledGraph is an immutable, validated graph. Invoke is safe for
// concurrent use; each call owns its state.
type CompiledGraph[S any] struct {
	compileSettings

	nodes    map[string]NodeFunc[S]
	edges    map[string]string
	branches map[string]branch[S]
	entry    string
	reducer  Reducer[S]
}

func (cg *CompiledGraph[S]) init() {
	if cg.logger == nil {
		cg.logger = zap.NewNop()
	}
	cg.logger = cg.logger.With(zap.String("component", "workflow"), zap.String("graph", cg.name))
	if cg.tracer == nil {
		cg.tracer = otel.Tracer("modguard/workflow")
	}
}

// Name returns the graph name.
func (cg *CompiledGraph[S]) Name() string { return cg.name }

// Invoke runs the graph from the entry node until END and returns the final state.
// On error the state accumulated so far is returned alongside it.
func (cg *CompiledGraph[S]) Invoke(ctx context.Context, initial S) (S, error) {
	runID, ok := types.RunID(ctx)
	if !ok {
		runID = uuid.NewString()
		ctx = types.WithRunID(ctx, runID)
	}
	log := cg.logger.With(zap.String("run_id", runID))
	log.Debug("starting graph execution", zap.String("entry", cg.entry))

	start := time.Now()
	state := initial
	current := cg.entry

	for step := 1; current != END; step++ {
		if step > cg.stepLimit {
			log.Error("step limit exceeded", zap.Int("limit", cg.stepLimit), zap.String("node", current))
			return state, fmt.Errorf("%w (%d) at node %s", ErrStepLimitExceeded, cg.stepLimit, current)
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		nodeStart := time.Now()
		next, newState, err := cg.step(ctx, current, state)
		state = newState
		cg.emit(ctx, NodeEvent{
			RunID:    runID,
			Graph:    cg.name,
			Node:     current,
			Next:     next,
			Step:     step,
			Duration: time.Since(nodeStart),
			Err:      err,
		})
		if err != nil {
			log.Error("node execution failed", zap.String("node", current), zap.Error(err))
			return state, err
		}
		log.Debug("node completed", zap.String("node", current), zap.String("next", next))
		current = next
	}

	log.Debug("graph execution completed", zap.Duration("duration", time.Since(start)))
	return state, nil
}

// step runs one node inside a span, merges its update and resolves the next node.
func (cg *CompiledGraph[S]) step(ctx context.Context, name string, state S) (next string, out S, err error) {
	ctx, span := cg.tracer.Start(ctx, "workflow.node "+name,
		trace.WithAttributes(
			attribute.String("workflow.graph", cg.name),
			attribute.String("workflow.node", name),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	update, err := cg.runNode(ctx, name, state)
	if err != nil {
		return "", state, err
	}
	merged := cg.reducer(state, update)

	next, err = cg.route(ctx, name, merged)
	if err != nil {
		return "", merged, err
	}
	span.SetAttributes(attribute.String("workflow.next", next))
	return next, merged, nil
}

func (cg *CompiledGraph[S]) runNode(ctx context.Context, name string, state S) (update S, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &NodeError{Node: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	update, err = cg.nodes[name](ctx, state)
	if err != nil {
		return update, &NodeError{Node: name, Err: err}
	}
	return update, nil
}

func (cg *CompiledGraph[S]) route(ctx context.Context, from string, state S) (next string, err error) {
	if to, ok := cg.edges[from]; ok {
		return to, nil
	}
	defer func() {
		if r := recover(); r != nil {
			next, err = "", &NodeError{Node: from, Err: fmt.Errorf("router panic: %v", r)}
		}
	}()
	b := cg.branches[from]
	key, err := b.router(ctx, state)
	if err != nil {
		return "", &NodeError{Node: from, Err: fmt.Errorf("router: %w", err)}
	}
	target := key
	if b.pathMap != nil {
		var ok bool
		if target, ok = b.pathMap[key]; !ok {
			return "", &RoutingError{From: from, Key: key}
		}
	}
	if target == END {
		return END, nil
	}
	if _, ok := cg.nodes[target]; !ok {
		return "", &RoutingError{From: from, Key: key}
	}
	return target, nil
}

func (cg *CompiledGraph[S]) emit(ctx context.Context, ev NodeEvent) {
	if cg.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			cg.logger.Warn("observer panicked", zap.Any("panic", r))
		}
	}()
	cg.observer.NodeFinished(ctx, ev)
}
