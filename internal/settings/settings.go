// Package settings defines uploader configuration.
package settings

import (
	"fmt"
	"time"
)

// Settings configures the upload engine and its collaborators.
//
// The zero value is not valid; use New for documented defaults.
type Settings struct {
	// BaseURL is the gallery API endpoint for destination allocation
	// and upload confirmation.
	BaseURL string

	// APIToken authorizes gallery API calls.
	APIToken string

	// MinConcurrency is the lower bound on parallel transfers.
	MinConcurrency int

	// MaxConcurrency is the upper bound on parallel transfers.
	MaxConcurrency int

	// InitialConcurrency is the conservative starting parallelism for a
	// new batch.
	InitialConcurrency int

	// IncreaseStep is added to the concurrency target when the recent
	// window looks healthy.
	IncreaseStep int

	// DecreaseStep is subtracted on failure or a sharp throughput drop.
	// Larger than IncreaseStep so a congested link backs off quickly.
	DecreaseStep int

	// SampleWindow is how many recent outcomes the controller keeps.
	SampleWindow int

	// RecomputeEvery is the sample cadence at which the controller
	// recomputes its target.
	RecomputeEvery int

	// SuccessRateThreshold is the minimum recent success rate required
	// for an increase.
	SuccessRateThreshold float64

	// ThroughputDropFactor is the fraction of previous throughput below
	// which the controller treats the link as regressing.
	ThroughputDropFactor float64

	// IncreaseCooldown is how long increases stay disabled after a
	// decrease.
	IncreaseCooldown time.Duration

	// PrefetchConcurrency bounds background destination allocation.
	// Allocation is a cheap metadata call, so this is typically higher
	// than transfer concurrency.
	PrefetchConcurrency int

	// CompressionEnabled turns on client-side image compression.
	CompressionEnabled bool

	// CompressionQuality is the JPEG quality used when re-encoding,
	// in [1, 100].
	CompressionQuality int

	// MaxDimension, if non-zero, downscales images so neither side
	// exceeds it.
	MaxDimension int

	// TransferTimeout bounds a single transfer attempt so a stalled
	// connection cannot hold an upload slot indefinitely.
	TransferTimeout time.Duration

	// ConfirmBatchDelay is how long completed uploads are collected
	// before a confirmation batch is sent.
	ConfirmBatchDelay time.Duration

	// RetryMax is passed to the retryable HTTP clients.
	RetryMax int
}

// New returns settings with the documented defaults applied.
func New() *Settings {
	return &Settings{
		MinConcurrency:       1,
		MaxConcurrency:       8,
		InitialConcurrency:   2,
		IncreaseStep:         1,
		DecreaseStep:         2,
		SampleWindow:         20,
		RecomputeEvery:       3,
		SuccessRateThreshold: 0.9,
		ThroughputDropFactor: 0.7,
		IncreaseCooldown:     5 * time.Second,
		PrefetchConcurrency:  16,
		CompressionEnabled:   true,
		CompressionQuality:   85,
		TransferTimeout:      2 * time.Minute,
		ConfirmBatchDelay:    50 * time.Millisecond,
		RetryMax:             5,
	}
}

// Validate reports configuration errors.
//
// This is the only place the engine fails synchronously; everything
// past construction is reported per task.
func (s *Settings) Validate() error {
	if s.MinConcurrency < 1 {
		return fmt.Errorf("settings: MinConcurrency must be at least 1, got %d", s.MinConcurrency)
	}
	if s.MaxConcurrency < s.MinConcurrency {
		return fmt.Errorf(
			"settings: MaxConcurrency (%d) below MinConcurrency (%d)",
			s.MaxConcurrency, s.MinConcurrency,
		)
	}
	if s.InitialConcurrency < s.MinConcurrency || s.InitialConcurrency > s.MaxConcurrency {
		return fmt.Errorf(
			"settings: InitialConcurrency (%d) outside [%d, %d]",
			s.InitialConcurrency, s.MinConcurrency, s.MaxConcurrency,
		)
	}
	if s.IncreaseStep < 1 || s.DecreaseStep < 1 {
		return fmt.Errorf("settings: concurrency steps must be positive")
	}
	if s.SampleWindow < 1 || s.RecomputeEvery < 1 {
		return fmt.Errorf("settings: sample window and cadence must be positive")
	}
	if s.SuccessRateThreshold < 0 || s.SuccessRateThreshold > 1 {
		return fmt.Errorf(
			"settings: SuccessRateThreshold must be in [0, 1], got %v",
			s.SuccessRateThreshold,
		)
	}
	if s.CompressionEnabled &&
		(s.CompressionQuality < 1 || s.CompressionQuality > 100) {
		return fmt.Errorf(
			"settings: CompressionQuality must be in [1, 100], got %d",
			s.CompressionQuality,
		)
	}
	if s.PrefetchConcurrency < 1 {
		return fmt.Errorf(
			"settings: PrefetchConcurrency must be at least 1, got %d",
			s.PrefetchConcurrency,
		)
	}
	return nil
}
