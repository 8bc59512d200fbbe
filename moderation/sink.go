package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// SubmissionLog is the durable record of one moderation request.
type SubmissionLog struct {
	Type           string
	Text           *string
	Analysis       string
	Classification string
	Explanation    *string
	CreatedAt      time.Time
}

// NewSubmissionLog builds the log record for a finished run. submittedText is
// the raw text field of the request; it is kept for image submissions too.
func NewSubmissionLog(in ModerationInput, submittedText string, res Result) SubmissionLog {
	log := SubmissionLog{
		Type:           string(in.Kind),
		Analysis:       res.Analysis,
		Classification: res.Classification,
		CreatedAt:      time.Now().UTC(),
	}
	if submittedText != "" {
		log.Text = &submittedText
	}
	if res.Explanation != nil && *res.Explanation != "" {
		exp := *res.Explanation
		log.Explanation = &exp
	}
	return log
}

// ResultSink persists submission logs.
type ResultSink interface {
	Record(ctx context.Context, log SubmissionLog) error
}

// ResultSinkFunc adapts a function to ResultSink.
type ResultSinkFunc func(ctx context.Context, log SubmissionLog) error

// Record implements ResultSink.
func (f ResultSinkFunc) Record(ctx context.Context, log SubmissionLog) error { return f(ctx, log) }

// Sinks records to every sink concurrently. A failing sink does not stop the
// others; all failures are joined.
type Sinks []ResultSink

// Record implements ResultSink.
func (s Sinks) Record(ctx context.Context, log SubmissionLog) error {
	// 不用 errgroup.WithContext：单个 sink 失败不取消其余写入
	var g errgroup.Group
	errs := make([]error, len(s))
	for i, sink := range s {
		if sink == nil {
			continue
		}
		g.Go(func() error {
			if err := sink.Record(ctx, log); err != nil {
				errs[i] = fmt.Errorf("sink %d: %w", i, err)
			}
			return errs[i]
		})
	}
	if g.Wait() == nil {
		return nil
	}
	return errors.Join(errs...)
}
