package sentry_ext

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSuppressesRepeatedErrors(t *testing.T) {
	c, err := newCache(0)
	require.NoError(t, err)

	assert.True(t, c.shouldCapture(errors.New("connection reset")))
	assert.False(t, c.shouldCapture(errors.New("connection reset")))
	assert.True(t, c.shouldCapture(errors.New("a different error")))
}

func TestObservabilityPackagePath(t *testing.T) {
	// The path is hard-coded in stacktrace.go to avoid an import cycle;
	// make sure it stays in sync with the module path.
	assert.Equal(t,
		"github.com/framehub/framehub/core/internal/sentry_ext",
		sentryExtPackage,
	)
}
