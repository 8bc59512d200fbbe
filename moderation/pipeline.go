package moderation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/modguard/rules"
	"github.com/BaSui01/modguard/types"
	"github.com/BaSui01/modguard/workflow"
)

// Result is the outcome of one moderation run.
type Result struct {
	Analysis       string  `json:"analysis"`
	Classification string  `json:"classification"`
	Explanation    *string `json:"explanation,omitempty"`
	Label          Label   `json:"label"`

	// FailSafe is set when the run aborted and the conservative default was returned.
	FailSafe  bool       `json:"-"`
	Fallbacks []Fallback `json:"-"`
}

// FailSafeResult is returned whenever a run cannot complete.
func FailSafeResult() Result {
	return Result{Classification: FailSafeClassification, Label: LabelFlagged, FailSafe: true}
}

// RunEvent summarizes a finished run for metrics.
type RunEvent struct {
	Kind      Kind
	Label     Label
	FailSafe  bool
	Explained bool
	Fallbacks []Fallback
	Duration  time.Duration
}

// RunObserver is notified after every run.
type RunObserver interface {
	RunFinished(ctx context.Context, ev RunEvent)
}

// Config wires a Pipeline.
type Config struct {
	Model   ModelClient
	Rules   rules.Provider
	Routing *RoutingPolicy
	Logger  *zap.Logger

	// NodeObserver receives per-stage events from the graph engine.
	NodeObserver workflow.Observer
	RunObserver  RunObserver
	StepLimit    int
}

// runState is the graph state: the per-run stage context travels with the
// pipeline state so stage functions hold no captured configuration.
type runState struct {
	sc    *StageContext
	state PipelineState
}

func mergeRun(cur, upd runState) runState {
	cur.state = cur.state.Merge(upd.state)
	return cur
}

// Pipeline runs the analyze -> classify -> (explain) graph. Safe for concurrent use.
type Pipeline struct {
	graph   *workflow.CompiledGraph[runState]
	model   ModelClient
	rules   rules.Provider
	routing *RoutingPolicy
	logger  *zap.Logger
	runObs  RunObserver
}

// New compiles the moderation graph.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Model == nil {
		return nil, types.NewConfigurationError("moderation: model client is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Rules == nil {
		cfg.Rules = rules.NewStaticProvider(nil)
	}
	if cfg.Routing == nil {
		cfg.Routing = DefaultRoutingPolicy()
	}

	p := &Pipeline{
		model:   cfg.Model,
		rules:   cfg.Rules,
		routing: cfg.Routing,
		logger:  cfg.Logger.With(zap.String("component", "moderation")),
		runObs:  cfg.RunObserver,
	}

	g := workflow.NewStateGraph[runState](mergeRun).
		AddNode(StageAnalysis, node(AnalysisStage)).
		AddNode(StageClassification, node(ClassificationStage)).
		AddNode(StageExplanation, node(ExplanationStage)).
		AddEdge(workflow.START, StageAnalysis).
		AddEdge(StageAnalysis, StageClassification).
		AddConditionalEdges(StageClassification, p.route, map[string]string{
			StageExplanation: StageExplanation,
			workflow.END:     workflow.END,
		}).
		AddEdge(StageExplanation, workflow.END)

	compiled, err := g.Compile(
		workflow.WithName("moderation"),
		workflow.WithLogger(cfg.Logger),
		workflow.WithObserver(cfg.NodeObserver),
		workflow.WithStepLimit(cfg.StepLimit),
	)
	if err != nil {
		return nil, types.NewInternalError("moderation: compile graph", err)
	}
	p.graph = compiled
	return p, nil
}

type stageFunc func(context.Context, *StageContext, PipelineState) (PipelineState, error)

func node(fn stageFunc) workflow.NodeFunc[runState] {
	return func(ctx context.Context, rs runState) (runState, error) {
		upd, err := fn(ctx, rs.sc, rs.state)
		return runState{state: upd}, err
	}
}

func (p *Pipeline) route(_ context.Context, rs runState) (string, error) {
	if p.routing.ShouldExplain(rs.state.Classification) {
		return StageExplanation, nil
	}
	return workflow.END, nil
}

// Moderate validates an untrusted submission and runs it. Only validation
// failures are returned as errors; no model call is made for them.
func (p *Pipeline) Moderate(ctx context.Context, sub Submission) (Result, error) {
	in, err := NewInput(sub)
	if err != nil {
		return Result{}, err
	}
	return p.Run(ctx, in), nil
}

// Run moderates a validated input. It never fails: any error escaping the
// stages is logged and replaced by FailSafeResult.
func (p *Pipeline) Run(ctx context.Context, in ModerationInput) Result {
	start := time.Now()
	log := p.logger
	if rid, ok := types.RequestID(ctx); ok {
		log = log.With(zap.String("request_id", rid))
	}

	res, explained := p.run(ctx, in, log)

	p.notify(ctx, log, RunEvent{
		Kind:      in.Kind,
		Label:     res.Label,
		FailSafe:  res.FailSafe,
		Explained: explained,
		Fallbacks: res.Fallbacks,
		Duration:  time.Since(start),
	})
	log.Info("moderation run finished",
		zap.String("kind", string(in.Kind)),
		zap.String("label", string(res.Label)),
		zap.Bool("fail_safe", res.FailSafe),
		zap.Int("fallbacks", len(res.Fallbacks)),
		zap.Duration("duration", time.Since(start)),
	)
	return res
}

func (p *Pipeline) notify(ctx context.Context, log *zap.Logger, ev RunEvent) {
	if p.runObs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("run observer panicked", zap.Any("panic", r))
		}
	}()
	p.runObs.RunFinished(ctx, ev)
}

// run 内任何 panic（规则来源、路由、归并）都收敛为 fail-safe 结果
func (p *Pipeline) run(ctx context.Context, in ModerationInput, log *zap.Logger) (res Result, explained bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("moderation run panicked, returning fail-safe result", zap.Any("panic", r))
			res, explained = FailSafeResult(), false
		}
	}()

	valid, err := Validate(in)
	if err != nil {
		log.Error("moderation run rejected invalid input", zap.Error(err))
		return FailSafeResult(), false
	}

	r, err := p.rules.Get(ctx)
	if err != nil || r == nil {
		log.Warn("rules unavailable, using defaults", zap.Error(err))
		r = rules.Default()
	}

	initial := runState{
		sc:    &StageContext{Model: p.model, Rules: r, Logger: log},
		state: PipelineState{Input: valid},
	}
	final, err := p.graph.Invoke(ctx, initial)
	if err != nil {
		log.Error("moderation graph failed, returning fail-safe result", zap.Error(err))
		fs := FailSafeResult()
		fs.Fallbacks = final.state.Fallbacks
		return fs, false
	}

	st := final.state
	return Result{
		Analysis:       st.Analysis,
		Classification: st.Classification,
		Explanation:    st.Explanation,
		Label:          NormalizeLabel(st.Classification),
		Fallbacks:      st.Fallbacks,
	}, st.Has(FieldExplanation)
}
