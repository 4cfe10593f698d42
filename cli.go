package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/evildarkarchon/unpackrr/config"
	"github.com/evildarkarchon/unpackrr/internal/extract"
	"github.com/evildarkarchon/unpackrr/internal/journal"
	"github.com/evildarkarchon/unpackrr/internal/logging"
	"github.com/evildarkarchon/unpackrr/internal/retry"
	"github.com/evildarkarchon/unpackrr/internal/scan"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// runCLI scans a root and extracts every usable archive in it. The first
// interrupt cancels the batch after in-flight archives finish; a second one
// exits immediately.
func runCLI(args []string) int {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitFailure
	}

	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	concurrency := flags.Int("concurrency", cfg.Concurrency, "parallel extractions (1-8, 0 for CPU count)")
	destination := flags.String("destination", cfg.Destination, "output directory override")
	postAction := flags.String("post-action", cfg.PostAction, "keep, backup or delete archives after extraction")
	withRetry := flags.Bool("retry", false, "retry transient tool failures")
	includeBad := flags.Bool("include-bad", !cfg.IgnoreBadFiles, "also attempt archives with unreadable headers")
	threshold := flags.String("threshold", "", "skip archives larger than this size, e.g. 200MB")
	autoThreshold := flags.Bool("auto-threshold", false, fmt.Sprintf("keep only the %d smallest archives when there are more", scan.ArchiveLimit))
	flags.Usage = func() {
		fmt.Fprintln(flags.Output(), "usage: unpackrr run [flags] <root>")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}

	root := cfg.ScanRoot
	if flags.NArg() > 0 {
		root = flags.Arg(0)
	}
	if root == "" {
		flags.Usage()
		return exitUsage
	}

	logger, err := newCLILogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return exitFailure
	}
	defer func() { _ = logger.Sync() }()

	action, err := extract.ParsePostAction(*postAction)
	if err != nil {
		logger.Error("invalid post action", zap.Error(err))
		return exitUsage
	}
	var limit int64
	limited := false
	if *threshold != "" && !*autoThreshold {
		limit, err = scan.ParseSize(*threshold)
		if err != nil {
			logger.Error("invalid threshold", zap.Error(err))
			return exitUsage
		}
		limited = true
	}

	journalService, err := journal.NewServiceFromConfig(cfg, logger)
	if err != nil {
		logger.Error("failed to open journal", zap.Error(err))
		return exitFailure
	}
	defer func() { _ = journalService.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filter := scan.NewFilter(cfg.Settings.Postfixes, cfg.Settings.IgnoredFiles)
	inventory, err := scanRoot(ctx, logger, root, filter)
	if err != nil {
		return exitFailure
	}

	if !*includeBad {
		inventory.FilterBad()
	}
	if *autoThreshold {
		if limit, limited = inventory.AutoThreshold(scan.ArchiveLimit); !limited {
			logger.Info("archive count within limit, no threshold needed",
				zap.Int("archives", inventory.Len()),
				zap.Int("limit", scan.ArchiveLimit),
			)
		}
	}
	if limited {
		hidden := inventory.FilterBySize(limit)
		logger.Info("applied size threshold",
			zap.String("threshold", scan.FormatSize(limit)),
			zap.Int("skipped", hidden),
		)
	}

	entries := inventory.Entries()
	if len(entries) == 0 {
		logger.Info("nothing to extract", zap.String("root", root))
		return exitOK
	}

	opts := extract.Options{
		ToolPath:    cfg.ToolPath,
		Destination: *destination,
		Concurrency: *concurrency,
		PostAction:  action,
		BackupDir:   cfg.BackupDir,
	}
	if *withRetry {
		policy := retry.Default()
		opts.Retry = &policy
	}

	orchestrator := extract.NewOrchestrator(logger)
	result := runCLIBatch(logger, journalService, len(entries), journalService.RecordOutcome, func(progress chan<- extract.Event, control <-chan extract.Control) *extract.BatchResult {
		return orchestrator.ExtractAll(ctx, entries, opts, progress, control)
	})

	if result.Failed > 0 || result.Total() < len(entries) {
		return exitFailure
	}
	return exitOK
}

// runCheck verifies every archive under a root without extracting into it.
// A quick check lists each archive; -deep unpacks it into a temporary
// directory instead.
func runCheck(args []string) int {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitFailure
	}

	flags := flag.NewFlagSet("check", flag.ContinueOnError)
	deep := flags.Bool("deep", false, "unpack each archive into a temporary directory")
	concurrency := flags.Int("concurrency", cfg.Concurrency, "parallel checks (1-8, 0 for CPU count)")
	withRetry := flags.Bool("retry", false, "retry transient tool failures")
	flags.Usage = func() {
		fmt.Fprintln(flags.Output(), "usage: unpackrr check [flags] <root>")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}

	root := cfg.ScanRoot
	if flags.NArg() > 0 {
		root = flags.Arg(0)
	}
	if root == "" {
		flags.Usage()
		return exitUsage
	}

	logger, err := newCLILogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return exitFailure
	}
	defer func() { _ = logger.Sync() }()

	journalService, err := journal.NewServiceFromConfig(cfg, logger)
	if err != nil {
		logger.Error("failed to open journal", zap.Error(err))
		return exitFailure
	}
	defer func() { _ = journalService.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inventory, err := scanRoot(ctx, logger, root, nil)
	if err != nil {
		return exitFailure
	}
	entries := inventory.Entries()
	if len(entries) == 0 {
		logger.Info("nothing to check", zap.String("root", root))
		return exitOK
	}

	opts := extract.Options{
		ToolPath:    cfg.ToolPath,
		Concurrency: *concurrency,
	}
	if *withRetry {
		policy := retry.Default()
		opts.Retry = &policy
	}

	orchestrator := extract.NewOrchestrator(logger)
	result := runCLIBatch(logger, journalService, len(entries), journalService.RecordCheckOutcome, func(progress chan<- extract.Event, control <-chan extract.Control) *extract.BatchResult {
		return orchestrator.CheckAll(ctx, entries, opts, *deep, progress, control)
	})

	for _, outcome := range result.Outcomes {
		if !outcome.Success {
			logger.Warn("archive failed check",
				zap.String("archive", outcome.Path),
				zap.String("error", outcome.Error),
			)
		}
	}
	logger.Info("check summary",
		zap.Int("ok", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Int("unchecked", len(entries)-result.Total()),
	)

	if result.Failed > 0 || result.Total() < len(entries) {
		return exitFailure
	}
	return exitOK
}

func newCLILogger(cfg *config.Config) (*logging.Logger, error) {
	format := cfg.LogFormat
	if format == "" {
		format = logging.FormatConsole
	}
	return logging.NewLoggerWithFormat(cfg.LogLevel, format)
}

func scanRoot(ctx context.Context, logger *logging.Logger, root string, filter *scan.Filter) (*scan.Inventory, error) {
	progress := make(chan scan.Event, 64)
	logged := make(chan struct{})
	go func() {
		defer close(logged)
		logScanEvents(logger, progress)
	}()

	inventory, err := scan.NewScanner(logger).Scan(ctx, root, filter, progress)
	close(progress)
	<-logged
	if err != nil {
		logger.Error("scan failed", zap.String("root", root), zap.Error(err))
		return nil, err
	}
	return inventory, nil
}

// runCLIBatch journals and logs a batch while forwarding signals to it as
// control messages.
func runCLIBatch(logger *logging.Logger, journalService *journal.Service, total int, record func(string, extract.Outcome), execute func(chan<- extract.Event, <-chan extract.Control) *extract.BatchResult) *extract.BatchResult {
	control := make(chan extract.Control, 4)
	stopSignals := forwardSignals(logger, control)
	defer stopSignals()

	batchID := uuid.New().String()
	journalService.RecordBatchStarted(batchID, total)

	progress := make(chan extract.Event, 256)
	logged := make(chan struct{})
	go func() {
		defer close(logged)
		logBatchEvents(logger, progress)
	}()

	result := execute(progress, control)
	close(progress)
	<-logged

	for _, outcome := range result.Outcomes {
		record(batchID, outcome)
	}
	journalService.RecordBatchFinished(batchID, result, total)
	return result
}

func forwardSignals(logger *logging.Logger, control chan<- extract.Control) func() {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, append([]os.Signal{os.Interrupt, syscall.SIGTERM}, pauseSignals()...)...)

	done := make(chan struct{})
	go func() {
		cancelled, paused := false, false
		for {
			select {
			case <-done:
				return
			case sig := <-signals:
				if isPauseSignal(sig) {
					paused = !paused
					next := extract.Resume
					if paused {
						next = extract.Pause
					}
					logger.Info("toggling pause", zap.String("control", next.String()))
					sendControl(control, next)
					continue
				}
				if cancelled {
					logger.Warn("second interrupt, exiting without waiting")
					os.Exit(130)
				}
				cancelled = true
				logger.Info("interrupt received, finishing in-flight archives")
				sendControl(control, extract.Cancel)
			}
		}
	}()

	return func() {
		signal.Stop(signals)
		close(done)
	}
}

func sendControl(control chan<- extract.Control, c extract.Control) {
	select {
	case control <- c:
	default:
	}
}

func logScanEvents(logger *logging.Logger, events <-chan scan.Event) {
	for event := range events {
		switch e := event.(type) {
		case scan.ScanStarted:
			logger.Info("scan started", zap.Int("mod_folders", e.Dirs))
		case scan.FolderStarted:
			logger.Debug("scanning mod folder",
				zap.String("folder", e.Name),
				zap.Int("index", e.Index),
				zap.Int("total", e.Total),
			)
		case scan.ArchiveFound:
			logger.Debug("archive found",
				zap.String("archive", e.Name),
				zap.String("folder", e.ModFolder),
			)
		case scan.ScanComplete:
			logger.Info("scan complete", zap.Int("archives", e.Total))
		}
	}
}

func logBatchEvents(logger *logging.Logger, events <-chan extract.Event) {
	for event := range events {
		switch e := event.(type) {
		case extract.FileStarted:
			logger.Info("processing",
				zap.String("archive", e.Name),
				zap.Int("current", e.Current),
				zap.Int("total", e.Total),
			)
		case extract.FileCompleted:
			if e.Success {
				logger.Info("archive done", zap.String("archive", e.Name))
			} else {
				logger.Warn("archive failed",
					zap.String("archive", e.Name),
					zap.String("error", e.Error),
				)
			}
		case extract.StateChanged:
			logger.Debug("batch state changed", zap.String("state", e.State.String()))
		case extract.BatchFinished:
			logger.Info("batch finished",
				zap.Int("successful", e.Successful),
				zap.Int("failed", e.Failed),
			)
		}
	}
}
