package moderation

// Field marks which fields a partial state update carries.
type Field uint8

const (
	FieldAnalysis Field = 1 << iota
	FieldClassification
	FieldExplanation
)

// Fallback records a stage that degraded to its default value.
type Fallback struct {
	Stage string
	Err   error
}

// PipelineState is the record threaded through one run. Stages return a
// partial PipelineState whose Set mask names the fields to overwrite.
type PipelineState struct {
	Input          ModerationInput
	Analysis       string
	Classification string
	Explanation    *string

	Set       Field
	Fallbacks []Fallback
}

// Has reports whether f is marked in the update mask.
func (s PipelineState) Has(f Field) bool { return s.Set&f != 0 }

// Merge applies update field-wise. Input is never replaced; fallbacks accumulate.
func (s PipelineState) Merge(update PipelineState) PipelineState {
	out := s
	if update.Has(FieldAnalysis) {
		out.Analysis = update.Analysis
	}
	if update.Has(FieldClassification) {
		out.Classification = update.Classification
	}
	if update.Has(FieldExplanation) {
		if update.Explanation == nil {
			out.Explanation = nil
		} else {
			v := *update.Explanation
			out.Explanation = &v
		}
	}
	out.Set |= update.Set
	if len(update.Fallbacks) > 0 {
		out.Fallbacks = append(append([]Fallback(nil), s.Fallbacks...), update.Fallbacks...)
	}
	return out
}

func analysisUpdate(o Outcome[string], stage string) PipelineState {
	return PipelineState{Analysis: o.Value, Set: FieldAnalysis, Fallbacks: o.fallbacks(stage)}
}

func classificationUpdate(o Outcome[string], stage string) PipelineState {
	return PipelineState{Classification: o.Value, Set: FieldClassification, Fallbacks: o.fallbacks(stage)}
}

func explanationUpdate(o Outcome[string], stage string) PipelineState {
	v := o.Value
	return PipelineState{Explanation: &v, Set: FieldExplanation, Fallbacks: o.fallbacks(stage)}
}
