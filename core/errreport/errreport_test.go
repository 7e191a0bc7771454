package errreport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledWithoutDSN(t *testing.T) {
	flush, err := Init(Options{})
	require.NoError(t, err)
	require.NotNil(t, flush)
	assert.False(t, Enabled())

	assert.NotPanics(t, func() {
		Capture(context.Background(), errors.New("boom"))
		Recover(context.Background(), "panic value")
		flush()
	})
}

func TestInitRejectsBadDSN(t *testing.T) {
	_, err := Init(Options{DSN: "::not a dsn::"})
	assert.Error(t, err)
	assert.False(t, Enabled())
}
