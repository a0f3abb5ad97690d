// Package observabilitytest provides loggers for use in tests.
package observabilitytest

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/framehub/framehub/core/internal/observability"
)

// NewTestLogger returns a logger captured by the testing framework.
//
// Messages are shown in the test output on failure, which helps
// debugging flaky concurrency tests.
func NewTestLogger(t *testing.T) *observability.CoreLogger {
	t.Helper()
	return observability.NewCoreLogger(
		slog.New(slog.NewJSONHandler(
			&testWriter{t},
			&slog.HandlerOptions{},
		)),
		nil,
	)
}

// NewRecordingTestLogger is like NewTestLogger but also returns a buffer
// that captures log messages.
func NewRecordingTestLogger(t *testing.T) (
	*observability.CoreLogger,
	*bytes.Buffer,
) {
	t.Helper()

	recordedLogs := &bytes.Buffer{}
	writer := io.MultiWriter(&testWriter{t}, recordedLogs)

	return observability.NewCoreLogger(
		slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{})),
		nil,
	), recordedLogs
}

type testWriter struct {
	t *testing.T
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
