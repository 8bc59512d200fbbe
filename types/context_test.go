package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()

	_, ok := RequestID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithTenantID(ctx, "tenant-1")
	ctx = WithUserID(ctx, "")

	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)

	run, _ := RunID(ctx)
	assert.Equal(t, "run-1", run)

	trace, _ := TraceID(ctx)
	assert.Equal(t, "trace-1", trace)

	tenant, _ := TenantID(ctx)
	assert.Equal(t, "tenant-1", tenant)

	// empty values count as absent
	_, ok = UserID(ctx)
	assert.False(t, ok)
}
