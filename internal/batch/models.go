package batch

import (
	"fmt"
	"time"

	"github.com/evildarkarchon/unpackrr/internal/extract"
	"github.com/evildarkarchon/unpackrr/internal/scan"
)

type ScanRequest struct {
	Root string `json:"root"`
}

type ListRequest struct {
	Path string `json:"path"`
}

type ListResponse struct {
	Path  string   `json:"path"`
	Files []string `json:"files"`
	Count int      `json:"count"`
}

// SizeLimit keeps archives at or below Threshold, a size such as "200MB".
// Auto derives the threshold from the archive limit and wins over
// Threshold; when the inventory is already within the limit nothing is cut.
type SizeLimit struct {
	Threshold string `json:"threshold"`
	Auto      bool   `json:"auto_threshold"`
}

func (l SizeLimit) resolve(inventory *scan.Inventory) (int64, bool, error) {
	if l.Auto {
		threshold, ok := inventory.AutoThreshold(scan.ArchiveLimit)
		return threshold, ok, nil
	}
	if l.Threshold == "" {
		return 0, false, nil
	}
	threshold, err := scan.ParseSize(l.Threshold)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return threshold, true, nil
}

type StartRequest struct {
	IDs         []string `json:"ids"`
	Destination string   `json:"destination"`
	PostAction  string   `json:"post_action"`
	Concurrency int      `json:"concurrency"`
	Retry       bool     `json:"retry"`
	SizeLimit
}

type CheckRequest struct {
	Root        string `json:"root"`
	Deep        bool   `json:"deep"`
	Concurrency int    `json:"concurrency"`
	Retry       bool   `json:"retry"`
}

type StartResponse struct {
	BatchID string `json:"batchId"`
}

type InventoryResponse struct {
	Root           string       `json:"root"`
	Stale          bool         `json:"stale"`
	Entries        []scan.Entry `json:"entries"`
	TotalSize      int64        `json:"total_size"`
	TotalFileCount uint64       `json:"total_file_count"`
	BadCount       int          `json:"bad_count"`
	BadIndices     []int        `json:"bad_indices"`
	Threshold      int64        `json:"threshold,omitempty"`
	Hidden         int          `json:"hidden,omitempty"`
}

type Kind string

const (
	KindExtract Kind = "extract"
	KindCheck   Kind = "check"
)

type Batch struct {
	ID          string
	Kind        Kind
	StartTime   time.Time
	EndTime     *time.Time
	State       extract.State
	Total       int
	Completed   int
	Successful  int
	Failed      int
	Result      *extract.BatchResult
	Broadcaster *Broadcaster

	control chan extract.Control
	done    chan struct{}
}

type BatchStatus struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	State      extract.State     `json:"state"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    *time.Time        `json:"end_time,omitempty"`
	Total      int               `json:"total"`
	Completed  int               `json:"completed"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Outcomes   []extract.Outcome `json:"outcomes,omitempty"`
}

func (b *Batch) status() BatchStatus {
	status := BatchStatus{
		ID:         b.ID,
		Kind:       b.Kind,
		State:      b.State,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
		Total:      b.Total,
		Completed:  b.Completed,
		Successful: b.Successful,
		Failed:     b.Failed,
	}
	if b.Result != nil {
		status.Outcomes = b.Result.Outcomes
	}
	return status
}
