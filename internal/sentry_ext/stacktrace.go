package sentry_ext

import (
	"reflect"
	"strings"

	"github.com/getsentry/sentry-go"
)

var (
	// observabilityPackage is the Go import path of the logger that calls
	// into this package.
	//
	// Hard-coded to avoid an import cycle. A unit test checks it against
	// the real package path.
	observabilityPackage = "github.com/framehub/framehub/core/internal/observability"

	// sentryExtPackage is the Go import path of this package.
	sentryExtPackage = reflect.TypeOf((*Client)(nil)).Elem().PkgPath()
)

// RemoveLoggerFrames strips logging infrastructure frames from the top
// of each stack trace so the top frame is the caller of the logger.
func RemoveLoggerFrames(
	event *sentry.Event,
	hint *sentry.EventHint,
) *sentry.Event {
	for _, exception := range event.Exception {
		if exception.Stacktrace == nil {
			continue
		}

		// Frames are ordered caller-first.
		frames := exception.Stacktrace.Frames
		for len(frames) > 0 && shouldHideFrame(&frames[len(frames)-1]) {
			frames = frames[:len(frames)-1]
		}

		exception.Stacktrace.Frames = frames
	}

	return event
}

func shouldHideFrame(frame *sentry.Frame) bool {
	return strings.HasPrefix(frame.Module, observabilityPackage) ||
		strings.HasPrefix(frame.Module, sentryExtPackage)
}
