package moderation

// Outcome is the result of a best-effort step: either the computed value, or
// a fallback value together with the error that forced it.
type Outcome[T any] struct {
	Value T
	Err   error
}

// OK wraps a successful value.
func OK[T any](v T) Outcome[T] { return Outcome[T]{Value: v} }

// Recover wraps a fallback value and the error that caused it.
func Recover[T any](fallback T, err error) Outcome[T] {
	return Outcome[T]{Value: fallback, Err: err}
}

// Recovered reports whether the value is a fallback.
func (o Outcome[T]) Recovered() bool { return o.Err != nil }

func (o Outcome[T]) fallbacks(stage string) []Fallback {
	if !o.Recovered() {
		return nil
	}
	return []Fallback{{Stage: stage, Err: o.Err}}
}
