package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/framehub/framehub/core/internal/api"
	"github.com/framehub/framehub/core/internal/clients"
	"github.com/framehub/framehub/core/internal/congestion"
	"github.com/framehub/framehub/core/internal/observability"
	"github.com/framehub/framehub/core/internal/preflight"
	"github.com/framehub/framehub/core/internal/sentry_ext"
	"github.com/framehub/framehub/core/internal/settings"
	"github.com/framehub/framehub/core/internal/transfer"
	"github.com/framehub/framehub/core/internal/uploader"
	"github.com/framehub/framehub/core/internal/version"
)

// this is set by the build script and used by the observability package
var commit string

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

func main() {
	baseURL := flag.String("url", "",
		"Gallery API base URL, e.g. https://gallery.example.com.")
	token := flag.String("token", os.Getenv("FRAMEHUB_API_TOKEN"),
		"Gallery API token. Defaults to the FRAMEHUB_API_TOKEN environment variable.")
	galleryID := flag.String("gallery", "",
		"Identifier of the gallery to upload into.")
	dir := flag.String("dir", ".",
		"Directory to upload images from.")
	noCompression := flag.Bool("no-compression", false,
		"Uploads original bytes instead of re-encoding images as JPEG.")
	quality := flag.Int("quality", 85,
		"JPEG quality used when re-encoding, 1 to 100.")
	maxDimension := flag.Int("max-dimension", 0,
		"Downscales images so neither side exceeds this many pixels. 0 disables downscaling.")
	maxConcurrency := flag.Int("max-concurrency", 8,
		"Upper bound for the adaptive transfer parallelism.")
	logLevel := flag.Int("log-level", 0,
		"Specifies the log level to use for logging. -4: debug, 0: info, 4: warn, 8: error.")
	disableAnalytics := flag.Bool("no-observability", false,
		"Disables error reporting analytics.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "============================================\n")
		fmt.Fprintf(os.Stderr, "         FrameHub Upload Configuration      \n")
		fmt.Fprintf(os.Stderr, "============================================\n")
		fmt.Fprintf(os.Stderr, "Version: %s\n", version.Version)
		fmt.Fprintf(os.Stderr, "Commit SHA: %s\n\n", commit)
		fmt.Fprintf(os.Stderr, "Use the following flags to configure the uploader:\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *baseURL == "" || *galleryID == "" {
		fmt.Fprintln(os.Stderr, "both -url and -gallery are required")
		flag.Usage()
		os.Exit(2)
	}

	// set up sentry reporting
	sentryClient := sentry_ext.New(sentry_ext.Params{
		Disabled:         *disableAnalytics,
		AttachStacktrace: true,
		Release:          version.Version,
		Commit:           commit,
		Environment:      version.Environment,
	})
	defer sentryClient.Flush(2)

	logger := observability.NewCoreLogger(
		slog.New(slog.NewJSONHandler(
			os.Stderr,
			&slog.HandlerOptions{Level: slog.Level(*logLevel)},
		)),
		&observability.CoreLoggerParams{Sentry: sentryClient},
	)

	s := settings.New()
	s.BaseURL = *baseURL
	s.APIToken = *token
	s.MaxConcurrency = *maxConcurrency
	s.CompressionEnabled = !*noCompression
	s.CompressionQuality = *quality
	s.MaxDimension = *maxDimension
	if s.InitialConcurrency > s.MaxConcurrency {
		s.InitialConcurrency = s.MaxConcurrency
	}

	files, err := collectImages(*dir)
	if err != nil {
		logger.Error("main: failed to scan directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		logger.Info("main: no images found", "dir", *dir)
		return
	}

	logger.Info(
		"main: starting upload",
		"gallery", *galleryID,
		"files", len(files),
		"compression", s.CompressionEnabled,
		"max-concurrency", s.MaxConcurrency,
	)

	apiHTTP := clients.NewRetryClient(
		clients.WithRetryClientLogger(logger),
		clients.WithRetryClientRetryMax(s.RetryMax),
		clients.WithRetryClientHttpAuthTransport(s.APIToken, nil),
	)
	transferHTTP := clients.NewRetryClient(
		clients.WithRetryClientLogger(logger),
		clients.WithRetryClientRetryMax(s.RetryMax),
		clients.WithRetryClientRetryPolicy(clients.TransferRetryPolicy),
	)

	apiClient := api.New(s.BaseURL, apiHTTP, logger)

	done := make(chan struct{})
	engine, err := uploader.New(uploader.Params{
		Settings:     s,
		ContainerID:  *galleryID,
		Logger:       logger,
		FS:           afero.NewOsFs(),
		Preflight:    preflight.NewOptimizer(apiClient, s.PrefetchConcurrency, logger),
		Controller:   congestion.NewController(s, logger),
		FileTransfer: transfer.NewDefaultFileTransfer(transferHTTP, logger),
		Confirmer:    apiClient,
		Callbacks: uploader.Callbacks{
			OnFileUpdate: func(snapshot uploader.TaskSnapshot) {
				if snapshot.Status.Terminal() {
					logger.Info(
						"main: file done",
						"name", snapshot.Name,
						"status", snapshot.Status.String(),
						"error", snapshot.Error,
					)
				}
			},
			OnAllComplete: func() { close(done) },
		},
	})
	if err != nil {
		logger.Error("main: failed to start uploader, exiting", "error", err)
		os.Exit(1)
	}
	defer engine.Destroy()

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	engine.AddFiles(files)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			stats := engine.Stats()
			logger.Info(
				"main: upload finished",
				"completed", stats.Completed,
				"failed", stats.Failed,
				"uploaded-bytes", stats.UploadedBytes,
				"compression-saved-bytes", stats.CompressionSavedBytes,
			)
			if stats.Failed > 0 {
				os.Exit(1)
			}
			return
		case <-ticker.C:
			stats := engine.Stats()
			logger.Info(
				"main: progress",
				"completed", stats.Completed,
				"in-progress", stats.InProgress,
				"pending", stats.Pending,
				"failed", stats.Failed,
				"throughput-bps", int64(stats.AverageThroughput),
				"eta-seconds", int64(stats.ETASeconds),
			)
		case sig := <-c:
			logger.Info("main: received shutdown signal", "signal", sig.String())
			engine.Cancel()
			<-done
			os.Exit(130)
		}
	}
}

// collectImages lists the image files directly inside dir.
func collectImages(dir string) ([]uploader.File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []uploader.File
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		files = append(files, uploader.File{
			Path: filepath.Join(dir, entry.Name()),
		})
	}
	return files, nil
}
