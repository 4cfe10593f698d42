package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/evildarkarchon/unpackrr/internal/retry"
)

type Control int

const (
	Pause Control = iota + 1
	Resume
	Cancel
)

func (c Control) String() string {
	switch c {
	case Pause:
		return "pause"
	case Resume:
		return "resume"
	case Cancel:
		return "cancel"
	default:
		return fmt.Sprintf("control(%d)", int(c))
	}
}

type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCancelling
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCancelling:
		return "cancelling"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type PostAction string

const (
	PostActionKeep   PostAction = "keep"
	PostActionBackup PostAction = "backup"
	PostActionDelete PostAction = "delete"
)

func ParsePostAction(value string) (PostAction, error) {
	switch action := PostAction(strings.ToLower(strings.TrimSpace(value))); action {
	case "", PostActionKeep:
		return PostActionKeep, nil
	case PostActionBackup, PostActionDelete:
		return action, nil
	default:
		return "", fmt.Errorf("unknown post action: %s", value)
	}
}

// Options is a read-only snapshot taken when a batch starts.
type Options struct {
	ToolPath string
	// Destination overrides the output directory. Relative values resolve
	// against each archive's folder. Empty means the archive's folder.
	Destination string
	// Concurrency of zero or less means runtime.NumCPU. Always clamped to 1..8.
	Concurrency int
	PostAction  PostAction
	// BackupDir defaults to "backup" beside each archive.
	BackupDir string
	// Retry wraps each tool invocation when set.
	Retry *retry.Config
}

type Outcome struct {
	Path     string        `json:"path"`
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Note     string        `json:"note,omitempty"`
	Duration time.Duration `json:"-"`
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	type alias Outcome
	return json.Marshal(struct {
		alias
		DurationMs int64 `json:"duration_ms"`
	}{
		alias:      alias(o),
		DurationMs: o.Duration.Milliseconds(),
	})
}

type BatchResult struct {
	Outcomes   []Outcome `json:"outcomes"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
}

func NewBatchResult() *BatchResult {
	return &BatchResult{Outcomes: []Outcome{}}
}

func (r *BatchResult) Add(outcome Outcome) {
	r.Outcomes = append(r.Outcomes, outcome)
	if outcome.Success {
		r.Successful++
	} else {
		r.Failed++
	}
}

func (r *BatchResult) Total() int {
	return len(r.Outcomes)
}

func (r *BatchResult) SuccessfulFiles() []string {
	var paths []string
	for _, outcome := range r.Outcomes {
		if outcome.Success {
			paths = append(paths, outcome.Path)
		}
	}
	return paths
}

func (r *BatchResult) FailedFiles() []string {
	var paths []string
	for _, outcome := range r.Outcomes {
		if !outcome.Success {
			paths = append(paths, outcome.Path)
		}
	}
	return paths
}
