package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetCaller_and_Caller(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Caller(ctx))

	ctx2 := SetCaller(ctx, "batch-cli")
	assert.Equal(t, "batch-cli", Caller(ctx2))
	assert.Empty(t, Caller(ctx))

	ctx3 := SetCaller(ctx2, "api:review-portal")
	assert.Equal(t, "api:review-portal", Caller(ctx3))
	assert.Equal(t, "batch-cli", Caller(ctx2))
}
