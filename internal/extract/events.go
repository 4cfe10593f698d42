package extract

type EventKind string

const (
	EventFileStarted   EventKind = "file_started"
	EventFileCompleted EventKind = "file_completed"
	EventBatchFinished EventKind = "batch_finished"
	EventStateChanged  EventKind = "state_changed"
)

// Event is one of FileStarted, FileCompleted, BatchFinished or StateChanged.
type Event interface {
	Kind() EventKind
	extractEvent()
}

type FileStarted struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

type FileCompleted struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type BatchFinished struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type StateChanged struct {
	State State `json:"state"`
}

func (FileStarted) Kind() EventKind   { return EventFileStarted }
func (FileCompleted) Kind() EventKind { return EventFileCompleted }
func (BatchFinished) Kind() EventKind { return EventBatchFinished }
func (StateChanged) Kind() EventKind  { return EventStateChanged }

func (FileStarted) extractEvent()   {}
func (FileCompleted) extractEvent() {}
func (BatchFinished) extractEvent() {}
func (StateChanged) extractEvent()  {}

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
