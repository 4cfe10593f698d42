package scan

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

type Entry struct {
	ID        string `json:"id"`
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
	FileCount uint32 `json:"file_count"`
	ModFolder string `json:"mod_folder"`
	Path      string `json:"path"`
	Bad       bool   `json:"bad"`
}

// EntryID derives a stable identifier from an archive's absolute path.
func EntryID(path string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(path))
}

type EventKind string

const (
	EventScanStarted   EventKind = "scan_started"
	EventFolderStarted EventKind = "folder_started"
	EventArchiveFound  EventKind = "archive_found"
	EventScanComplete  EventKind = "scan_complete"
)

// Event is one of ScanStarted, FolderStarted, ArchiveFound or ScanComplete.
type Event interface {
	Kind() EventKind
	scanEvent()
}

type ScanStarted struct {
	Dirs int `json:"dirs"`
}

type FolderStarted struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	Total int    `json:"total"`
}

type ArchiveFound struct {
	Name      string `json:"name"`
	ModFolder string `json:"mod_folder"`
}

type ScanComplete struct {
	Total int `json:"total"`
}

func (ScanStarted) Kind() EventKind   { return EventScanStarted }
func (FolderStarted) Kind() EventKind { return EventFolderStarted }
func (ArchiveFound) Kind() EventKind  { return EventArchiveFound }
func (ScanComplete) Kind() EventKind  { return EventScanComplete }

func (ScanStarted) scanEvent()   {}
func (FolderStarted) scanEvent() {}
func (ArchiveFound) scanEvent()  {}
func (ScanComplete) scanEvent()  {}

// send never blocks and tolerates a closed channel; progress is best-effort.
func send(progress chan<- Event, event Event) {
	if progress == nil {
		return
	}
	defer func() { _ = recover() }()
	select {
	case progress <- event:
	default:
	}
}
