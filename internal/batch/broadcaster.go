package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/evildarkarchon/unpackrr/internal/extract"
	"github.com/evildarkarchon/unpackrr/internal/logging"

	"go.uber.org/zap"
)

type StreamMessageType string

const (
	StreamTypeProgress StreamMessageType = "progress"
	StreamTypeComplete StreamMessageType = "complete"
	StreamTypeError    StreamMessageType = "error"
)

type Message struct {
	Type       StreamMessageType `json:"type"`
	Event      string            `json:"event,omitempty"`
	Data       any               `json:"data,omitempty"`
	Successful *int              `json:"successful,omitempty"`
	Failed     *int              `json:"failed,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

type Subscriber struct {
	ID     string
	Writer io.Writer
}

// Broadcaster fans a batch's events out to SSE subscribers. Late subscribers
// first receive everything logged so far.
type Broadcaster struct {
	batchID      string
	subscribers  map[string]*Subscriber
	messageLog   []Message
	mu           sync.RWMutex
	completed    bool
	completeOnce sync.Once
	logger       *logging.Logger
}

func NewBroadcaster(batchID string, logger *logging.Logger) *Broadcaster {
	return &Broadcaster{
		batchID:     batchID,
		subscribers: make(map[string]*Subscriber),
		messageLog:  make([]Message, 0, 100),
		logger:      logger,
	}
}

func (b *Broadcaster) Subscribe(subscriberID string, writer io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[subscriberID] = &Subscriber{
		ID:     subscriberID,
		Writer: writer,
	}

	for _, msg := range b.messageLog {
		if err := writeMessage(writer, msg); err != nil {
			delete(b.subscribers, subscriberID)
			return
		}
	}

	b.logger.Debug("stream subscriber joined",
		zap.String("batch_id", b.batchID),
		zap.String("subscriber_id", subscriberID),
		zap.Int("replayed", len(b.messageLog)),
	)
}

func (b *Broadcaster) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, subscriberID)
	b.logger.Debug("stream subscriber left",
		zap.String("batch_id", b.batchID),
		zap.String("subscriber_id", subscriberID),
		zap.Int("remaining", len(b.subscribers)),
	)
}

func (b *Broadcaster) Broadcast(event extract.Event) {
	b.append(Message{
		Type:      StreamTypeProgress,
		Event:     string(event.Kind()),
		Data:      event,
		Timestamp: time.Now(),
	})
}

func (b *Broadcaster) BroadcastComplete(result *extract.BatchResult) {
	b.completeOnce.Do(func() {
		successful, failed := result.Successful, result.Failed
		b.append(Message{
			Type:       StreamTypeComplete,
			Successful: &successful,
			Failed:     &failed,
			Timestamp:  time.Now(),
		})

		b.mu.Lock()
		b.completed = true
		subscriberCount := len(b.subscribers)
		b.mu.Unlock()

		b.logger.Debug("batch stream completed",
			zap.String("batch_id", b.batchID),
			zap.Int("subscribers", subscriberCount),
		)
	})
}

func (b *Broadcaster) BroadcastError(errorMsg string) {
	b.append(Message{
		Type:      StreamTypeError,
		Data:      errorMsg,
		Timestamp: time.Now(),
	})
}

func (b *Broadcaster) append(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.completed {
		return
	}

	b.messageLog = append(b.messageLog, msg)

	for id, sub := range b.subscribers {
		if err := writeMessage(sub.Writer, msg); err != nil {
			delete(b.subscribers, id)
		}
	}
}

func (b *Broadcaster) IsCompleted() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.completed
}

func (b *Broadcaster) MessageCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messageLog)
}

func writeMessage(writer io.Writer, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(writer, "data: %s\n\n", data); err != nil {
		return err
	}

	if flusher, ok := writer.(interface{ Flush() }); ok {
		defer func() { _ = recover() }()
		flusher.Flush()
	}
	return nil
}
