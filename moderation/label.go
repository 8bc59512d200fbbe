package moderation

import "strings"

// Label is the normalized classification.
type Label string

const (
	LabelApproved Label = "approved"
	LabelFlagged  Label = "flagged"
	LabelRejected Label = "rejected"
)

// NormalizeLabel maps raw model output onto a Label. Stricter labels win when
// the text is ambiguous and unrecognized output is flagged.
func NormalizeLabel(raw string) Label {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "reject"):
		return LabelRejected
	case strings.Contains(s, "flag"):
		return LabelFlagged
	case strings.Contains(s, "approv"):
		return LabelApproved
	default:
		return LabelFlagged
	}
}

// Valid reports whether l is one of the three labels.
func (l Label) Valid() bool {
	return l == LabelApproved || l == LabelFlagged || l == LabelRejected
}
