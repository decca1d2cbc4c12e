package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerInitializesOnFirstUse(t *testing.T) {
	l := L()
	require.NotNil(t, l)
	require.NotNil(t, S())

	// Init is idempotent, repeated calls keep the same logger.
	Init()
	assert.Same(t, l, L())

	assert.NotPanics(t, Sync)
}
