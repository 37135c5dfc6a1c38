package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))

	ctx = WithRequestID(ctx, "abc-123")
	assert.Equal(t, "abc-123", RequestID(ctx))
}

func TestGetZapLogger(t *testing.T) {
	l, err := GetZapLogger(WithRequestID(context.Background(), "abc-123"))
	require.NoError(t, err)
	require.NotNil(t, l)

	l2, err := GetZapLogger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core, l2.Core())
}
