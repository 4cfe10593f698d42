// Package extract runs the external unpacking tool over a set of archives
// with bounded concurrency, reporting progress and obeying pause, resume and
// cancel requests.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/evildarkarchon/unpackrr/internal/bsarch"
	"github.com/evildarkarchon/unpackrr/internal/logging"
	"github.com/evildarkarchon/unpackrr/internal/retry"
	"github.com/evildarkarchon/unpackrr/internal/scan"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const MaxConcurrency = 8

// ConcurrencyLimit clamps requested to 1..MaxConcurrency, using the CPU count
// when requested is not positive.
func ConcurrencyLimit(requested int) int {
	limit := requested
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return max(1, min(limit, MaxConcurrency))
}

type Orchestrator struct {
	logger *logging.Logger
}

func NewOrchestrator(logger *logging.Logger) *Orchestrator {
	return &Orchestrator{logger: logger}
}

// work processes one archive and returns an optional note for the outcome.
type work func(ctx context.Context, run *batchRun, entry scan.Entry) (string, error)

type batchRun struct {
	mode     string
	entries  []scan.Entry
	opts     Options
	runner   *bsarch.Runner
	progress chan<- Event
	state    State
	work     work
}

func (b *batchRun) setState(state State) {
	if b.state == state {
		return
	}
	b.state = state
	send(b.progress, StateChanged{State: state})
}

// ExtractAll blocks until every dispatched archive has finished. Control
// messages are read between dispatches: Pause stops new work, Resume
// restarts it and Cancel stops dispatching while in-flight archives finish.
// Cancelling ctx acts like Cancel, as does closing control while paused.
// Running tool processes are never killed.
func (o *Orchestrator) ExtractAll(ctx context.Context, entries []scan.Entry, opts Options, progress chan<- Event, control <-chan Control) *BatchResult {
	return o.runAll(ctx, "extraction", entries, opts, progress, control, o.extract)
}

// CheckAll verifies archives without keeping anything. A quick check lists
// each archive; a deep check unpacks it into a temporary directory that is
// removed afterwards. Destination and post action are ignored. Scheduling
// and control behave as in ExtractAll.
func (o *Orchestrator) CheckAll(ctx context.Context, entries []scan.Entry, opts Options, deep bool, progress chan<- Event, control <-chan Control) *BatchResult {
	if deep {
		return o.runAll(ctx, "deep check", entries, opts, progress, control, o.deepCheck)
	}
	return o.runAll(ctx, "check", entries, opts, progress, control, o.quickCheck)
}

func (o *Orchestrator) runAll(ctx context.Context, mode string, entries []scan.Entry, opts Options, progress chan<- Event, control <-chan Control, process work) *BatchResult {
	limit := ConcurrencyLimit(opts.Concurrency)
	run := &batchRun{
		mode:     mode,
		entries:  entries,
		opts:     opts,
		runner:   bsarch.NewRunner(bsarch.ResolvePath(opts.ToolPath), o.logger),
		progress: progress,
		state:    StateIdle,
		work:     process,
	}

	total := len(entries)
	result := NewBatchResult()
	results := make(chan Outcome, total)
	sem := semaphore.NewWeighted(int64(limit))
	workCtx := context.WithoutCancel(ctx)
	done := ctx.Done()

	o.logger.Info(mode+" started",
		zap.Int("archives", total),
		zap.Int("concurrency", limit),
		zap.String("tool", run.runner.Path()),
	)
	run.setState(StateRunning)

	next, inFlight := 0, 0

	handle := func(c Control, ok bool) {
		if !ok {
			control = nil
			if run.state == StatePaused {
				c = Cancel
			} else {
				return
			}
		}
		switch c {
		case Pause:
			if run.state == StateRunning {
				o.logger.Info(mode+" paused", zap.Int("dispatched", next))
				run.setState(StatePaused)
			}
		case Resume:
			if run.state == StatePaused {
				o.logger.Info(mode+" resumed", zap.Int("dispatched", next))
				run.setState(StateRunning)
			}
		case Cancel:
			if run.state == StateRunning || run.state == StatePaused {
				o.logger.Info(mode+" cancelling",
					zap.Int("dispatched", next),
					zap.Int("in_flight", inFlight),
				)
				run.setState(StateCancelling)
			}
		}
	}

	for {
		select {
		case c, ok := <-control:
			handle(c, ok)
			continue
		case <-done:
			done = nil
			handle(Cancel, true)
			continue
		default:
		}

		if run.state == StateRunning && next < total && sem.TryAcquire(1) {
			entry, current := entries[next], next+1
			next++
			inFlight++
			go func() {
				outcome := o.processOne(workCtx, run, entry, current, total)
				sem.Release(1)
				results <- outcome
			}()
			continue
		}

		if inFlight == 0 && (next >= total || run.state == StateCancelling) {
			break
		}

		select {
		case c, ok := <-control:
			handle(c, ok)
		case <-done:
			done = nil
			handle(Cancel, true)
		case outcome := <-results:
			inFlight--
			result.Add(outcome)
		}
	}

	run.setState(StateFinished)
	o.logger.Info(mode+" finished",
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", total-result.Total()),
	)
	send(progress, BatchFinished{Successful: result.Successful, Failed: result.Failed})

	return result
}

func (o *Orchestrator) processOne(ctx context.Context, run *batchRun, entry scan.Entry, current, total int) Outcome {
	start := time.Now()
	send(run.progress, FileStarted{Name: entry.FileName, Path: entry.Path, Current: current, Total: total})

	outcome := Outcome{
		Path: entry.Path,
		Name: entry.FileName,
	}

	note, err := run.work(ctx, run, entry)
	if err != nil {
		outcome.Error = err.Error()
		o.logger.Warn(run.mode+" failed",
			zap.String("archive", entry.Path),
			zap.Error(err),
		)
	} else {
		outcome.Success = true
	}
	outcome.Note = note
	outcome.Duration = time.Since(start)

	send(run.progress, FileCompleted{
		Name:    entry.FileName,
		Path:    entry.Path,
		Success: outcome.Success,
		Error:   outcome.Error,
	})
	return outcome
}

func (o *Orchestrator) extract(ctx context.Context, run *batchRun, entry scan.Entry) (string, error) {
	if err := o.unpack(ctx, run, entry, OutputDir(entry.Path, run.opts.Destination)); err != nil {
		return "", err
	}
	if err := o.applyPostAction(ctx, entry.Path, run.opts); err != nil {
		o.logger.Warn("post extraction step failed",
			zap.String("archive", entry.Path),
			zap.String("action", string(run.opts.PostAction)),
			zap.Error(err),
		)
		return err.Error(), nil
	}
	return "", nil
}

func (o *Orchestrator) quickCheck(ctx context.Context, run *batchRun, entry scan.Entry) (string, error) {
	if err := o.validate(run, entry); err != nil {
		return "", err
	}
	files, err := withRetry(ctx, o, run, func() ([]string, error) {
		return run.runner.List(ctx, entry.Path)
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d files listed", len(files)), nil
}

func (o *Orchestrator) deepCheck(ctx context.Context, run *batchRun, entry scan.Entry) (string, error) {
	dir, err := os.MkdirTemp("", "unpackrr-check-")
	if err != nil {
		return "", fmt.Errorf("failed to create check directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			o.logger.Warn("failed to remove check directory", zap.String("dir", dir), zap.Error(err))
		}
	}()
	return "", o.unpack(ctx, run, entry, dir)
}

func (o *Orchestrator) validate(run *batchRun, entry scan.Entry) error {
	if info, err := os.Stat(entry.Path); err != nil || info.IsDir() {
		return &ArchiveNotFoundError{Path: entry.Path}
	}
	return run.runner.Validate()
}

func withRetry[T any](ctx context.Context, o *Orchestrator, run *batchRun, op func() (T, error)) (T, error) {
	if run.opts.Retry == nil {
		return op()
	}
	return retry.Do(ctx, retry.New(*run.opts.Retry, o.logger), op)
}

func (o *Orchestrator) unpack(ctx context.Context, run *batchRun, entry scan.Entry, outputDir string) error {
	if err := o.validate(run, entry); err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	_, err := withRetry(ctx, o, run, func() (bsarch.Output, error) {
		return run.runner.Unpack(ctx, entry.Path, outputDir)
	})
	return err
}

// OutputDir resolves where an archive unpacks to.
func OutputDir(archivePath, destination string) string {
	archiveDir := filepath.Dir(archivePath)
	if destination == "" {
		return archiveDir
	}
	if filepath.IsAbs(destination) {
		return destination
	}
	return filepath.Join(archiveDir, destination)
}
