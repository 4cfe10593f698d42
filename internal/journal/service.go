// Package journal appends one JSON line per extraction or check outcome and
// batch lifecycle change, rotating the file once it passes a size limit.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/evildarkarchon/unpackrr/internal/extract"
	"github.com/evildarkarchon/unpackrr/internal/logging"

	"go.uber.org/zap"
)

const (
	EventBatchStarted     = "batch.started"
	EventBatchFinished    = "batch.finished"
	EventArchiveExtracted = "archive.extracted"
	EventArchiveFailed    = "archive.failed"
	EventArchiveVerified  = "archive.verified"
	EventArchiveInvalid   = "archive.invalid"
)

const rotationTimestampFormat = "20060102-150405"

type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"`
	BatchID    string    `json:"batch_id"`
	Path       string    `json:"path,omitempty"`
	Name       string    `json:"name,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Note       string    `json:"note,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Successful int       `json:"successful,omitempty"`
	Failed     int       `json:"failed,omitempty"`
	Total      int       `json:"total,omitempty"`
}

type Service struct {
	logger       *logging.Logger
	fileWriter   *os.File
	writeMutex   sync.Mutex
	enabled      bool
	filePath     string
	maxSizeBytes int64
	rotations    int
}

// NewService returns a disabled journal when filePath is empty.
func NewService(filePath string, maxSizeBytes int64, logger *logging.Logger) (*Service, error) {
	if filePath == "" {
		return &Service{enabled: false, logger: logger}, nil
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	service := &Service{
		logger:       logger,
		enabled:      true,
		filePath:     filePath,
		maxSizeBytes: maxSizeBytes,
	}
	if err := service.openFile(); err != nil {
		return nil, err
	}

	logger.Info("extraction journal initialized",
		zap.String("path", filePath),
		zap.Int64("max_size_bytes", maxSizeBytes),
	)
	return service, nil
}

func (s *Service) Enabled() bool {
	return s.enabled
}

func (s *Service) openFile() error {
	file, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal %s: %w", s.filePath, err)
	}
	s.fileWriter = file
	return nil
}

func (s *Service) rotatedPath() string {
	ext := filepath.Ext(s.filePath)
	base := strings.TrimSuffix(s.filePath, ext)
	stamp := time.Now().Format(rotationTimestampFormat)
	return fmt.Sprintf("%s-%s-%d%s", base, stamp, s.rotations, ext)
}

func (s *Service) rotateLocked() error {
	if err := s.fileWriter.Close(); err != nil {
		s.logger.Warn("failed to close journal during rotation", zap.Error(err))
	}
	s.fileWriter = nil

	s.rotations++
	target := s.rotatedPath()
	if err := os.Rename(s.filePath, target); err != nil {
		if openErr := s.openFile(); openErr != nil {
			return fmt.Errorf("failed to reopen journal after rotation error: %w", openErr)
		}
		return fmt.Errorf("failed to rotate journal: %w", err)
	}

	s.logger.Info("rotated extraction journal", zap.String("rotated_to", target))
	return s.openFile()
}

func (s *Service) checkSizeRotation() {
	if s.maxSizeBytes <= 0 || s.fileWriter == nil {
		return
	}

	info, err := s.fileWriter.Stat()
	if err != nil {
		s.logger.Warn("failed to stat journal for size check", zap.Error(err))
		return
	}
	if info.Size() >= s.maxSizeBytes {
		if err := s.rotateLocked(); err != nil {
			s.logger.Error("failed to rotate journal", zap.Error(err))
		}
	}
}

func (s *Service) Write(record Record) error {
	if !s.enabled {
		return nil
	}

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	if s.fileWriter == nil {
		if err := s.openFile(); err != nil {
			return err
		}
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal journal record: %w", err)
	}
	if _, err := s.fileWriter.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write journal record: %w", err)
	}

	s.checkSizeRotation()
	return nil
}

func (s *Service) RecordOutcome(batchID string, outcome extract.Outcome) {
	eventType := EventArchiveExtracted
	if !outcome.Success {
		eventType = EventArchiveFailed
	}
	s.recordOutcome(eventType, batchID, outcome)
}

func (s *Service) RecordCheckOutcome(batchID string, outcome extract.Outcome) {
	eventType := EventArchiveVerified
	if !outcome.Success {
		eventType = EventArchiveInvalid
	}
	s.recordOutcome(eventType, batchID, outcome)
}

func (s *Service) recordOutcome(eventType, batchID string, outcome extract.Outcome) {
	s.log(Record{
		EventType:  eventType,
		BatchID:    batchID,
		Path:       outcome.Path,
		Name:       outcome.Name,
		Success:    outcome.Success,
		Error:      outcome.Error,
		Note:       outcome.Note,
		DurationMs: outcome.Duration.Milliseconds(),
	})
}

func (s *Service) RecordBatchStarted(batchID string, total int) {
	s.log(Record{
		EventType: EventBatchStarted,
		BatchID:   batchID,
		Success:   true,
		Total:     total,
	})
}

func (s *Service) RecordBatchFinished(batchID string, result *extract.BatchResult, total int) {
	s.log(Record{
		EventType:  EventBatchFinished,
		BatchID:    batchID,
		Success:    result.Failed == 0 && result.Total() == total,
		Successful: result.Successful,
		Failed:     result.Failed,
		Total:      total,
	})
}

func (s *Service) log(record Record) {
	if err := s.Write(record); err != nil {
		s.logger.Error("failed to journal record",
			zap.String("event_type", record.EventType),
			zap.String("batch_id", record.BatchID),
			zap.Error(err),
		)
	}
}

func (s *Service) Close() error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	if s.fileWriter != nil {
		err := s.fileWriter.Close()
		s.fileWriter = nil
		return err
	}
	return nil
}
