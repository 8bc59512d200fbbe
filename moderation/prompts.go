package moderation

import "github.com/BaSui01/modguard/rules"

const (
	textAnalyzerPrompt  = "You are a Text Analyzer. Be concise and neutral."
	imageAnalyzerPrompt = "You are an Image Analyzer. Be concise and neutral."
	imageAnalysisText   = "Analyze the following image."
	explainerPrompt     = "You are a content moderation assistant. Briefly explain in one or two sentences why the content may require a manual review."

	// NoAnalysisPlaceholder replaces an empty analysis in the classification request.
	NoAnalysisPlaceholder = "No analysis available"
	// NoPriorAnalysisPlaceholder replaces an empty analysis in the explanation request.
	NoPriorAnalysisPlaceholder = "No prior analysis available."
	// FailSafeClassification is used whenever a label cannot be obtained.
	FailSafeClassification = "flagged"
	// ExplanationFallback is returned when the explanation call fails.
	ExplanationFallback = "Additional review recommended, but an explanation could not be generated."
)

func textAnalysisPrompt(text string) string {
	return `Analyze the following text and summarize any policy-relevant signals: "` + text + `"`
}

func classifierPrompt(r rules.Rules) string {
	return "You are a content classification agent. Classify the content as 'approved', 'flagged for review', or 'rejected', based on the latest rules. " +
		r.String() +
		". Respond with just one word exactly: approved, flagged, or rejected."
}

func explanationRequest(analysis, classification string) string {
	if analysis == "" {
		analysis = NoPriorAnalysisPlaceholder
	}
	if classification == "" {
		classification = FailSafeClassification
	}
	return analysis + "\nClassification: " + classification
}
