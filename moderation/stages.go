package moderation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/modguard/llm"
	"github.com/BaSui01/modguard/rules"
)

// Node names of the moderation graph.
const (
	StageAnalysis       = "analyze_content"
	StageClassification = "classify_decision"
	StageExplanation    = "explain_flagged_content"
)

// ModelClient performs one generative model call. Implementations must be
// safe for concurrent use; llm.ChatModel is the production implementation.
type ModelClient interface {
	Invoke(ctx context.Context, messages []llm.Message) (string, error)
}

// ModelFunc adapts a function to ModelClient.
type ModelFunc func(ctx context.Context, messages []llm.Message) (string, error)

// Invoke implements ModelClient.
func (f ModelFunc) Invoke(ctx context.Context, messages []llm.Message) (string, error) {
	return f(ctx, messages)
}

// StageContext is the per-run environment handed to every stage.
type StageContext struct {
	Model  ModelClient
	Rules  rules.Rules
	Logger *zap.Logger
}

func (sc *StageContext) logger() *zap.Logger {
	if sc.Logger == nil {
		return zap.NewNop()
	}
	return sc.Logger
}

// call invokes the model and turns a failure into Recover(fallback, err).
func (sc *StageContext) call(ctx context.Context, stage string, messages []llm.Message, fallback string) Outcome[string] {
	out, err := sc.Model.Invoke(ctx, messages)
	if err != nil {
		sc.logger().Warn("model call failed, using fallback",
			zap.String("stage", stage),
			zap.Error(err),
		)
		return Recover(fallback, err)
	}
	return OK(out)
}

// AnalysisStage summarizes the input. A failed model call yields an empty
// analysis; an unsupported input kind is returned as an error.
func AnalysisStage(ctx context.Context, sc *StageContext, state PipelineState) (PipelineState, error) {
	messages, err := analysisMessages(state.Input)
	if err != nil {
		return PipelineState{}, err
	}
	out := sc.call(ctx, StageAnalysis, messages, "")
	sc.logger().Debug("analysis finished", zap.Int("length", len(out.Value)), zap.Bool("recovered", out.Recovered()))
	return analysisUpdate(out, StageAnalysis), nil
}

func analysisMessages(in ModerationInput) ([]llm.Message, error) {
	switch in.Kind {
	case KindText:
		return []llm.Message{
			llm.NewSystemMessage(textAnalyzerPrompt),
			llm.NewUserMessage(textAnalysisPrompt(in.Text)),
		}, nil
	case KindImage:
		mime := in.Image.MIMEType
		if mime == "" {
			mime = DefaultImageMIMEType
		}
		return []llm.Message{
			llm.NewSystemMessage(imageAnalyzerPrompt),
			llm.NewUserMessageWithParts(
				llm.TextPart(imageAnalysisText),
				llm.ImageDataPart(mime, in.Image.Data),
			),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedInput, in.Kind)
	}
}

// ClassificationStage asks for a one-word label. The raw response is kept;
// a failed call yields FailSafeClassification.
func ClassificationStage(ctx context.Context, sc *StageContext, state PipelineState) (PipelineState, error) {
	analysis := state.Analysis
	if analysis == "" {
		analysis = NoAnalysisPlaceholder
	}
	r := sc.Rules
	if r == nil {
		r = rules.Default()
	}
	out := sc.call(ctx, StageClassification, []llm.Message{
		llm.NewSystemMessage(classifierPrompt(r)),
		llm.NewUserMessage(analysis),
	}, FailSafeClassification)
	sc.logger().Debug("classification finished", zap.String("classification", out.Value), zap.Bool("recovered", out.Recovered()))
	return classificationUpdate(out, StageClassification), nil
}

// ExplanationStage justifies a manual review. A failed call yields ExplanationFallback.
func ExplanationStage(ctx context.Context, sc *StageContext, state PipelineState) (PipelineState, error) {
	out := sc.call(ctx, StageExplanation, []llm.Message{
		llm.NewSystemMessage(explainerPrompt),
		llm.NewUserMessage(explanationRequest(state.Analysis, state.Classification)),
	}, ExplanationFallback)
	return explanationUpdate(out, StageExplanation), nil
}
