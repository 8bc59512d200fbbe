package moderation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSubmissionLog(t *testing.T) {
	exp := "needs a look"
	tests := []struct {
		name     string
		in       ModerationInput
		text     string
		res      Result
		wantText *string
		wantExp  bool
	}{
		{
			name:     "text submission",
			in:       TextInput("  hello "),
			text:     "  hello ",
			res:      Result{Analysis: "a", Classification: "approved"},
			wantText: strPtr("  hello "),
		},
		{
			name:     "image with caption keeps text",
			in:       ImageInput([]byte{1}, "a.png", "image/png"),
			text:     "caption",
			res:      Result{Analysis: "a", Classification: "flagged", Explanation: &exp},
			wantText: strPtr("caption"),
			wantExp:  true,
		},
		{
			name: "image without text",
			in:   ImageInput([]byte{1}, "a.png", "image/png"),
			res:  Result{Classification: "flagged", Explanation: strPtr("")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := NewSubmissionLog(tt.in, tt.text, tt.res)
			assert.Equal(t, string(tt.in.Kind), log.Type)
			assert.Equal(t, tt.wantText, log.Text)
			assert.Equal(t, tt.res.Analysis, log.Analysis)
			assert.Equal(t, tt.res.Classification, log.Classification)
			if tt.wantExp {
				require.NotNil(t, log.Explanation)
				assert.Equal(t, exp, *log.Explanation)
			} else {
				assert.Nil(t, log.Explanation)
			}
			assert.False(t, log.CreatedAt.IsZero())
		})
	}
}

func TestSinks_Record(t *testing.T) {
	var okCalls atomic.Int32
	ok := ResultSinkFunc(func(context.Context, SubmissionLog) error {
		okCalls.Add(1)
		return nil
	})
	errA := errors.New("db down")
	errB := errors.New("mongo down")
	failA := ResultSinkFunc(func(context.Context, SubmissionLog) error { return errA })
	failB := ResultSinkFunc(func(context.Context, SubmissionLog) error { return errB })

	require.NoError(t, Sinks{ok, nil, ok}.Record(context.Background(), SubmissionLog{}))
	assert.Equal(t, int32(2), okCalls.Load())

	err := Sinks{failA, ok, failB}.Record(context.Background(), SubmissionLog{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Contains(t, err.Error(), "sink 0")
	assert.Contains(t, err.Error(), "sink 2")
	assert.Equal(t, int32(3), okCalls.Load(), "a failing sink does not stop the others")

	assert.NoError(t, Sinks{}.Record(context.Background(), SubmissionLog{}))
}

func strPtr(s string) *string { return &s }
