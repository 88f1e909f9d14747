package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"sourcefs/internal/config"
	"sourcefs/internal/event"
	"sourcefs/internal/logging"
	"sourcefs/internal/metrics"
	"sourcefs/internal/roots"
	"sourcefs/internal/scan"
	"sourcefs/internal/version"
	"sourcefs/internal/vfs"
)

func run(args []string, out, errOut io.Writer) int {
	opts, err := parseArgs(args, errOut)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		return exitUsage
	}
	if opts.ShowVersion {
		fmt.Fprintln(out, version.String())
		return exitOK
	}

	cfg, err := buildConfig(opts)
	if err != nil {
		fmt.Fprintf(errOut, "sourcefs: %v\n", err)
		return exitUsage
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	return runHost(cfg, opts, out, errOut, signalCh)
}

// runHost owns the reconciliation loop: it feeds worker results into
// the Vfs as they arrive and commits the pending change log on a fixed
// cadence, writing one log line per committed change. It runs until a
// signal arrives or, with -once, until every root's bulk scan has been
// committed.
func runHost(cfg config.Config, opts options, out, errOut io.Writer, signalCh <-chan os.Signal) int {
	logger, closeLog, err := buildLogger(cfg, out)
	if err != nil {
		fmt.Fprintf(errOut, "sourcefs: %v\n", err)
		return exitRuntime
	}
	defer closeLog()

	registry := &metrics.Registry{}
	bus := event.NewBus[event.ScanEvent](context.Background(), event.BusOptions{
		Name:     "scan_events",
		Registry: registry,
	})
	scanEvents, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for scanEvent := range scanEvents {
			logScanEvent(logger, scanEvent)
		}
	}()

	v, ids, err := vfs.NewWithOptions(cfg.Specs(), vfs.Options{
		DisableWatch: cfg.Watch.Disabled,
		Debounce:     cfg.Debounce(),
		ResultBuffer: cfg.ResultBuffer,
		Logger:       logger,
		Bus:          bus,
		Registry:     registry,
	})
	if err != nil {
		fmt.Fprintf(errOut, "sourcefs: %v\n", err)
		bus.Close()
		return exitRuntime
	}
	for _, id := range ids {
		logger.Info("tracking root", map[string]string{"root": v.RootPath(id)})
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()
	stopSignalWatch := watchShutdownSignals(logger, shutdownCancel, signalCh)
	defer stopSignalWatch()

	// Stop the worker first so the result channel closes, then apply
	// whatever it had already buffered before the final commit.
	coordinator := newShutdownCoordinator(logger)
	coordinator.Add("scan worker", func(context.Context) error {
		return v.Shutdown()
	})
	coordinator.Add("drain results", func(context.Context) error {
		for result := range v.Results() {
			v.HandleResult(result)
		}
		emitChanges(v, logger, v.Commit())
		return nil
	})
	coordinator.Add("event bus", func(context.Context) error {
		bus.Close()
		<-progressDone
		return nil
	})

	waiting := make(map[roots.ID]struct{}, len(ids))
	for _, id := range ids {
		waiting[id] = struct{}{}
	}

	ticker := time.NewTicker(cfg.CommitInterval())
	defer ticker.Stop()

	exit := exitOK
	running := true
	for running {
		select {
		case <-shutdownCtx.Done():
			running = false
		case result, ok := <-v.Results():
			if !ok {
				logger.Error("scan worker exited unexpectedly", nil)
				exit = exitRuntime
				running = false
				continue
			}
			v.HandleResult(result)
			if scanned, isBulk := result.(scan.RootScanned); isBulk {
				delete(waiting, scanned.Root)
			}
		case <-ticker.C:
			emitChanges(v, logger, v.Commit())
			if opts.Once && len(waiting) == 0 {
				logger.Info("all roots committed", nil)
				running = false
			}
		}
	}

	if err := coordinator.Run(context.Background()); err != nil {
		logger.Error("shutdown failed", map[string]string{"error": err.Error()})
		if exit == exitOK {
			exit = exitRuntime
		}
	}
	if opts.DumpMetrics {
		_ = registry.WritePrometheus(errOut)
	}
	return exit
}

func buildLogger(cfg config.Config, out io.Writer) (*logging.Logger, func(), error) {
	output := out
	closeLog := func() {}
	useColor := cfg.Log.Color
	if cfg.Log.File != "" {
		file, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
		closeLog = func() { _ = file.Close() }
		useColor = false
	}
	logger := logging.NewWithOptions(logging.Options{
		Output:   output,
		MinLevel: cfg.Level(),
		Color:    useColor,
	})
	return logger, closeLog, nil
}

// emitChanges writes one line per committed change. This stream is the
// host's primary output; everything else is progress logging.
func emitChanges(v *vfs.Vfs, logger *logging.Logger, changes []vfs.Change) {
	for _, change := range changes {
		switch change := change.(type) {
		case vfs.AddRoot:
			logger.Info("root loaded", map[string]string{
				"root":  v.RootPath(change.Root),
				"files": strconv.Itoa(len(change.Files)),
			})
		case vfs.AddFile:
			logger.Info("file added", map[string]string{
				"path":  v.FilePath(change.File),
				"bytes": strconv.Itoa(len(change.Text)),
			})
		case vfs.ChangeFile:
			logger.Info("file changed", map[string]string{
				"path":  v.FilePath(change.File),
				"bytes": strconv.Itoa(len(change.Text)),
			})
		case vfs.RemoveFile:
			logger.Info("file removed", map[string]string{
				"path": v.FilePath(change.File),
			})
		}
	}
}

func logScanEvent(logger *logging.Logger, scanEvent event.ScanEvent) {
	switch scanEvent.EventType {
	case event.TypeScanStarted:
		logger.Info("bulk scan started", map[string]string{
			"root": scanEvent.Root,
		})
	case event.TypeScanCompleted:
		logger.Info("bulk scan completed", map[string]string{
			"root":  scanEvent.Root,
			"files": strconv.Itoa(scanEvent.Files),
		})
	case event.TypeWatchError:
		logger.Warn("watch error", map[string]string{
			"root":  scanEvent.Root,
			"error": scanEvent.Error,
		})
	}
}
