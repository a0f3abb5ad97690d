// Package sentry_ext reports client errors to Sentry.
package sentry_ext

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

type Params struct {
	// DSN is the Data Source Name for the Sentry project.
	//
	// If empty, the client is disabled and captures nothing.
	DSN string

	// Disabled turns off all reporting regardless of the DSN.
	Disabled bool

	// AttachStacktrace attaches stack traces to captured messages.
	AttachStacktrace bool

	// Release is the version of the uploader.
	Release string

	// Commit is the git commit hash the binary was built from.
	Commit string

	// Environment is the deployment environment, e.g. "production".
	Environment string

	// BeforeSend modifies events before they are sent.
	BeforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event

	// LRUSize is the size of the recent-error cache.
	LRUSize int
}

// Client wraps the Sentry SDK with recent-error de-duplication.
type Client struct {
	// recent tracks errors sent recently so that a task failure repeated
	// across a large batch is reported once, not once per file.
	recent *cache
}

// New initializes the Sentry SDK and returns a capture client.
//
// With no DSN, or with Disabled set, the returned client drops
// everything, so callers never need to nil-check.
func New(params Params) *Client {
	if params.Disabled {
		params.DSN = ""
	}
	if params.BeforeSend == nil {
		params.BeforeSend = RemoveLoggerFrames
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              params.DSN,
		AttachStacktrace: params.AttachStacktrace,
		Release:          params.Release,
		Dist:             params.Commit,
		Environment:      params.Environment,
		BeforeSend:       params.BeforeSend,
	}); err != nil {
		slog.Error("sentry_ext: failed to initialize sentry", "err", err)
	}

	recent, err := newCache(params.LRUSize)
	if err != nil {
		slog.Error("sentry_ext: failed to create cache", "err", err)
		return nil
	}

	return &Client{recent: recent}
}

// CaptureException sends an error-level event enriched with tags.
func (s *Client) CaptureException(err error, tags map[string]string) {
	if s == nil || !s.recent.shouldCapture(err) {
		return
	}

	localHub := sentry.CurrentHub().Clone()
	localHub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
	})
	localHub.CaptureException(err)
}

// CaptureMessage sends an info-level event enriched with tags.
func (s *Client) CaptureMessage(msg string, tags map[string]string) {
	if s == nil || !s.recent.shouldCapture(errors.New(msg)) {
		return
	}

	localHub := sentry.CurrentHub().Clone()
	localHub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
	})
	localHub.CaptureMessage(msg)
}

// Reraise captures a recovered panic value and panics again.
func (s *Client) Reraise(val any, tags map[string]string) {
	if val == nil {
		return
	}

	err, ok := val.(error)
	if !ok {
		err = fmt.Errorf("%v", val)
	}
	s.CaptureException(err, tags)

	sentry.Flush(time.Second * 2)
	panic(val)
}

// Flush waits for buffered events to be sent, up to the timeout.
func (s *Client) Flush(timeout time.Duration) bool {
	return sentry.CurrentHub().Flush(timeout)
}
