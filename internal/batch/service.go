// Package batch owns the cached inventory and the extraction and check
// batches started against it, fanning their events out to the journal, the websocket hub and
// SSE subscribers.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/evildarkarchon/unpackrr/config"
	"github.com/evildarkarchon/unpackrr/internal/bsarch"
	"github.com/evildarkarchon/unpackrr/internal/extract"
	"github.com/evildarkarchon/unpackrr/internal/journal"
	"github.com/evildarkarchon/unpackrr/internal/logging"
	"github.com/evildarkarchon/unpackrr/internal/retry"
	"github.com/evildarkarchon/unpackrr/internal/scan"
	"github.com/evildarkarchon/unpackrr/internal/validation"
	"github.com/evildarkarchon/unpackrr/internal/websocket"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	progressBuffer = 256
	controlBuffer  = 8
)

type Publisher interface {
	PublishScanEvent(event scan.Event)
	PublishExtractionEvent(batchID string, event extract.Event)
	PublishInventoryChanged(root, reason string)
	PublishError(err error, context string)
}

type Options struct {
	ScanRoot       string
	Filter         *scan.Filter
	IgnoreBadFiles bool
	Extract        extract.Options
}

type Service struct {
	opts         Options
	scanner      *scan.Scanner
	orchestrator *extract.Orchestrator
	runner       *bsarch.Runner
	journal      *journal.Service
	publisher    Publisher
	logger       *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	scanMutex sync.Mutex
	mutex     sync.RWMutex
	root      string
	inventory *scan.Inventory
	stale     bool
	batches   map[string]*Batch
	active    string
}

func NewService(opts Options, scanner *scan.Scanner, orchestrator *extract.Orchestrator, journalService *journal.Service, publisher Publisher, logger *logging.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	logger.Debug("batch service initialized",
		zap.String("scan_root", opts.ScanRoot),
		zap.Bool("ignore_bad_files", opts.IgnoreBadFiles),
	)
	return &Service{
		opts:         opts,
		scanner:      scanner,
		orchestrator: orchestrator,
		runner:       bsarch.NewRunner(bsarch.ResolvePath(opts.Extract.ToolPath), logger),
		journal:      journalService,
		publisher:    publisher,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		batches:      make(map[string]*Batch),
	}
}

func NewServiceFromConfig(cfg *config.Config, scanner *scan.Scanner, orchestrator *extract.Orchestrator, journalService *journal.Service, hub *websocket.Hub, logger *logging.Logger) (*Service, error) {
	filter := scan.NewFilter(cfg.Settings.Postfixes, cfg.Settings.IgnoredFiles)

	postAction, err := extract.ParsePostAction(cfg.PostAction)
	if err != nil {
		return nil, err
	}

	opts := Options{
		ScanRoot:       cfg.ScanRoot,
		Filter:         filter,
		IgnoreBadFiles: cfg.IgnoreBadFiles,
		Extract: extract.Options{
			ToolPath:    cfg.ToolPath,
			Destination: cfg.Destination,
			Concurrency: cfg.Concurrency,
			PostAction:  postAction,
			BackupDir:   cfg.BackupDir,
		},
	}
	return NewService(opts, scanner, orchestrator, journalService, hub, logger), nil
}

func (s *Service) ToolAvailable() bool {
	return s.runner.Available()
}

func (s *Service) ToolPath() string {
	return s.runner.Path()
}

// Scan replaces the cached inventory. An empty root means the configured
// scan root; any other root must lie inside it when one is configured.
func (s *Service) Scan(ctx context.Context, root string) (InventoryResponse, error) {
	target, err := validation.SanitizePath(s.opts.ScanRoot, root)
	if err != nil {
		return InventoryResponse{}, fmt.Errorf("invalid scan root: %w", err)
	}

	if !s.scanMutex.TryLock() {
		return InventoryResponse{}, ErrScanInProgress
	}
	defer s.scanMutex.Unlock()

	progress := make(chan scan.Event, progressBuffer)
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		for event := range progress {
			s.publisher.PublishScanEvent(event)
		}
	}()

	inventory, err := s.scanner.Scan(ctx, target, s.opts.Filter, progress)
	close(progress)
	<-pumped
	if err != nil {
		s.publisher.PublishError(err, "scan")
		return InventoryResponse{}, err
	}

	s.mutex.Lock()
	s.root = target
	s.inventory = inventory
	s.stale = false
	response := s.snapshotLocked()
	s.mutex.Unlock()

	s.publisher.PublishInventoryChanged(target, "scan")
	return response, nil
}

// Inventory sorts the cached inventory and returns it. A size limit only
// narrows the returned view; indices for RemoveEntry stay those of the
// full inventory.
func (s *Service) Inventory(key scan.SortKey, descending bool, limit SizeLimit) (InventoryResponse, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.inventory == nil {
		return InventoryResponse{}, ErrNoInventory
	}
	if key != "" {
		s.inventory.Sort(key, descending)
	}

	threshold, ok, err := limit.resolve(s.inventory)
	if err != nil {
		return InventoryResponse{}, err
	}
	if !ok {
		return s.snapshotLocked(), nil
	}

	view := scan.NewInventory(s.inventory.Entries())
	hidden := view.FilterBySize(threshold)
	response := snapshot(s.root, s.stale, view)
	response.Threshold = threshold
	response.Hidden = hidden
	return response, nil
}

func (s *Service) RemoveEntry(index int) (scan.Entry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.inventory == nil {
		return scan.Entry{}, ErrNoInventory
	}
	entry, ok := s.inventory.Remove(index)
	if !ok {
		return scan.Entry{}, ErrIndexOutOfRange
	}
	return entry, nil
}

func (s *Service) FilterBad() (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.inventory == nil {
		return 0, ErrNoInventory
	}
	return s.inventory.FilterBad(), nil
}

func (s *Service) snapshotLocked() InventoryResponse {
	return snapshot(s.root, s.stale, s.inventory)
}

func snapshot(root string, stale bool, inventory *scan.Inventory) InventoryResponse {
	return InventoryResponse{
		Root:           root,
		Stale:          stale,
		Entries:        inventory.Entries(),
		TotalSize:      inventory.TotalSize(),
		TotalFileCount: inventory.TotalFileCount(),
		BadCount:       inventory.BadCount(),
		BadIndices:     inventory.BadIndices(),
	}
}

func (s *Service) ListArchive(ctx context.Context, path string) (ListResponse, error) {
	archivePath, err := validation.SanitizeArchivePath(s.opts.ScanRoot, path)
	if err != nil {
		return ListResponse{}, err
	}
	if err := s.runner.Validate(); err != nil {
		return ListResponse{}, err
	}

	files, err := retry.Do(ctx, retry.New(retry.Quick(), s.logger), func() ([]string, error) {
		return s.runner.List(ctx, archivePath)
	})
	if err != nil {
		return ListResponse{}, err
	}
	return ListResponse{Path: archivePath, Files: files, Count: len(files)}, nil
}

// StartBatch selects entries from the cached inventory and extracts them in
// the background. Only one batch runs at a time.
func (s *Service) StartBatch(req StartRequest) (string, error) {
	opts, err := s.batchOptions(req)
	if err != nil {
		return "", err
	}

	s.mutex.Lock()
	if s.active != "" {
		s.mutex.Unlock()
		return "", ErrBatchActive
	}
	entries, err := s.selectLocked(req.IDs, req.SizeLimit)
	if err != nil {
		s.mutex.Unlock()
		return "", err
	}

	batch := s.registerLocked(KindExtract, len(entries))
	s.mutex.Unlock()

	s.logger.Info("batch started",
		zap.String("batch_id", batch.ID),
		zap.Int("archives", len(entries)),
		zap.String("post_action", string(opts.PostAction)),
	)
	s.journal.RecordBatchStarted(batch.ID, len(entries))

	go s.runBatch(batch, opts, func(progress chan<- extract.Event) *extract.BatchResult {
		return s.orchestrator.ExtractAll(s.ctx, entries, opts, progress, batch.control)
	})
	return batch.ID, nil
}

// StartCheck scans root for every archive, ignoring the configured filter
// and the cached inventory, and verifies them in the background. A check
// takes the same single batch slot as an extraction.
func (s *Service) StartCheck(ctx context.Context, req CheckRequest) (string, error) {
	target, err := validation.SanitizePath(s.opts.ScanRoot, req.Root)
	if err != nil {
		return "", fmt.Errorf("invalid check root: %w", err)
	}
	if s.ActiveBatch() != "" {
		return "", ErrBatchActive
	}

	inventory, err := s.scanner.Scan(ctx, target, nil, nil)
	if err != nil {
		return "", err
	}
	entries := inventory.Entries()
	if len(entries) == 0 {
		return "", ErrNothingToCheck
	}

	opts := s.opts.Extract
	if req.Concurrency > 0 {
		opts.Concurrency = req.Concurrency
	}
	if req.Retry && opts.Retry == nil {
		policy := retry.Default()
		opts.Retry = &policy
	}

	s.mutex.Lock()
	if s.active != "" {
		s.mutex.Unlock()
		return "", ErrBatchActive
	}
	batch := s.registerLocked(KindCheck, len(entries))
	s.mutex.Unlock()

	s.logger.Info("check started",
		zap.String("batch_id", batch.ID),
		zap.String("root", target),
		zap.Int("archives", len(entries)),
		zap.Bool("deep", req.Deep),
	)
	s.journal.RecordBatchStarted(batch.ID, len(entries))

	go s.runBatch(batch, opts, func(progress chan<- extract.Event) *extract.BatchResult {
		return s.orchestrator.CheckAll(s.ctx, entries, opts, req.Deep, progress, batch.control)
	})
	return batch.ID, nil
}

func (s *Service) registerLocked(kind Kind, total int) *Batch {
	batchID := uuid.New().String()
	batch := &Batch{
		ID:          batchID,
		Kind:        kind,
		StartTime:   time.Now(),
		State:       extract.StateIdle,
		Total:       total,
		Broadcaster: NewBroadcaster(batchID, s.logger),
		control:     make(chan extract.Control, controlBuffer),
		done:        make(chan struct{}),
	}
	s.batches[batchID] = batch
	s.active = batchID
	return batch
}

func (s *Service) batchOptions(req StartRequest) (extract.Options, error) {
	opts := s.opts.Extract

	destination, err := validation.ValidateDestination(s.opts.ScanRoot, req.Destination)
	if err != nil {
		return opts, fmt.Errorf("invalid destination: %w", err)
	}
	if destination != "" {
		opts.Destination = destination
	}

	if req.PostAction != "" {
		action, err := extract.ParsePostAction(req.PostAction)
		if err != nil {
			return opts, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		opts.PostAction = action
	}

	if req.Concurrency > 0 {
		opts.Concurrency = req.Concurrency
	}
	if req.Retry && opts.Retry == nil {
		policy := retry.Default()
		opts.Retry = &policy
	}
	return opts, nil
}

func (s *Service) selectLocked(ids []string, limit SizeLimit) ([]scan.Entry, error) {
	if s.inventory == nil {
		return nil, ErrNoInventory
	}
	threshold, limited, err := limit.resolve(s.inventory)
	if err != nil {
		return nil, err
	}

	var entries []scan.Entry
	if len(ids) == 0 {
		entries = s.inventory.Entries()
	} else {
		for _, id := range ids {
			entry, ok := s.inventory.Find(id)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, id)
			}
			entries = append(entries, entry)
		}
	}

	entries = slices.DeleteFunc(entries, func(entry scan.Entry) bool {
		return (s.opts.IgnoreBadFiles && entry.Bad) || (limited && entry.FileSize > threshold)
	})
	if len(entries) == 0 {
		return nil, ErrNothingToExtract
	}
	return entries, nil
}

func (s *Service) runBatch(batch *Batch, opts extract.Options, execute func(progress chan<- extract.Event) *extract.BatchResult) {
	progress := make(chan extract.Event, progressBuffer)
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		for event := range progress {
			s.track(batch, event)
			s.publisher.PublishExtractionEvent(batch.ID, event)
			batch.Broadcaster.Broadcast(event)
		}
	}()

	result := execute(progress)
	close(progress)
	<-pumped

	for _, outcome := range result.Outcomes {
		if batch.Kind == KindCheck {
			s.journal.RecordCheckOutcome(batch.ID, outcome)
		} else {
			s.journal.RecordOutcome(batch.ID, outcome)
		}
	}
	s.journal.RecordBatchFinished(batch.ID, result, batch.Total)

	endTime := time.Now()
	s.mutex.Lock()
	batch.EndTime = &endTime
	batch.State = extract.StateFinished
	batch.Result = result
	batch.Completed = result.Total()
	batch.Successful = result.Successful
	batch.Failed = result.Failed
	s.active = ""
	changed := batch.Kind == KindExtract && opts.PostAction != extract.PostActionKeep && result.Successful > 0
	if changed {
		s.stale = true
	}
	root := s.root
	s.mutex.Unlock()

	s.logger.Info("batch finished",
		zap.String("batch_id", batch.ID),
		zap.String("kind", string(batch.Kind)),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", endTime.Sub(batch.StartTime)),
	)

	if changed {
		s.publisher.PublishInventoryChanged(root, string(opts.PostAction))
	}
	batch.Broadcaster.BroadcastComplete(result)
	close(batch.done)
}

func (s *Service) track(batch *Batch, event extract.Event) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	switch e := event.(type) {
	case extract.StateChanged:
		batch.State = e.State
	case extract.FileCompleted:
		batch.Completed++
		if e.Success {
			batch.Successful++
		} else {
			batch.Failed++
		}
	}
}

func (s *Service) Get(batchID string) (BatchStatus, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	batch, ok := s.batches[batchID]
	if !ok {
		return BatchStatus{}, ErrBatchNotFound
	}
	return batch.status(), nil
}

// Batches lists every batch of this process, newest first.
func (s *Service) Batches() []BatchStatus {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	statuses := make([]BatchStatus, 0, len(s.batches))
	for _, batch := range s.batches {
		statuses = append(statuses, batch.status())
	}
	slices.SortFunc(statuses, func(a, b BatchStatus) int {
		return b.StartTime.Compare(a.StartTime)
	})
	return statuses
}

func (s *Service) ActiveBatch() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.active
}

func (s *Service) Control(batchID string, control extract.Control) error {
	s.mutex.RLock()
	batch, ok := s.batches[batchID]
	s.mutex.RUnlock()
	if !ok {
		return ErrBatchNotFound
	}

	select {
	case <-batch.done:
		return ErrBatchFinished
	default:
	}

	select {
	case batch.control <- control:
		s.logger.Debug("batch control queued",
			zap.String("batch_id", batchID),
			zap.String("control", control.String()),
		)
		return nil
	default:
		return ErrControlQueueFull
	}
}

// Wait blocks until the batch finishes or ctx is done.
func (s *Service) Wait(ctx context.Context, batchID string) error {
	s.mutex.RLock()
	batch, ok := s.batches[batchID]
	s.mutex.RUnlock()
	if !ok {
		return ErrBatchNotFound
	}

	select {
	case <-batch.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stream replays the batch's events to writer and then follows it live
// until the batch finishes or ctx is done.
func (s *Service) Stream(ctx context.Context, batchID string, writer io.Writer) error {
	s.mutex.RLock()
	batch, ok := s.batches[batchID]
	s.mutex.RUnlock()
	if !ok {
		return ErrBatchNotFound
	}

	subscriberID := uuid.New().String()
	batch.Broadcaster.Subscribe(subscriberID, writer)
	defer batch.Broadcaster.Unsubscribe(subscriberID)

	err := s.Wait(ctx, batchID)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// WatchChanges marks the inventory stale on every signal from changes and
// rescans when no batch is running.
func (s *Service) WatchChanges(ctx context.Context, changes <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			s.onFilesystemChange(ctx)
		}
	}
}

func (s *Service) onFilesystemChange(ctx context.Context) {
	s.mutex.Lock()
	root, busy := s.root, s.active != ""
	if s.inventory != nil {
		s.stale = true
	}
	s.mutex.Unlock()

	if root == "" {
		root = s.opts.ScanRoot
	}
	if root == "" {
		return
	}
	if busy {
		s.publisher.PublishInventoryChanged(root, "filesystem")
		return
	}

	if _, err := s.Scan(ctx, root); err != nil && !errors.Is(err, ErrScanInProgress) {
		s.logger.Warn("rescan after filesystem change failed",
			zap.String("root", root),
			zap.Error(err),
		)
	}
}

// Shutdown cancels the active batch and waits for its in-flight archives.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	active := s.ActiveBatch()
	if active == "" {
		return nil
	}
	s.logger.Info("waiting for active batch to finish", zap.String("batch_id", active))
	return s.Wait(ctx, active)
}
