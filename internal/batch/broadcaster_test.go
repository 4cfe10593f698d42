package batch

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/evildarkarchon/unpackrr/internal/extract"
	"github.com/evildarkarchon/unpackrr/internal/logging"

	"github.com/smartystreets/assertions/should"
	"github.com/smartystreets/gunit"
)

func TestBroadcasterFixture(t *testing.T) {
	gunit.Run(new(BroadcasterFixture), t)
}

type BroadcasterFixture struct {
	*gunit.Fixture
	broadcaster *Broadcaster
}

func (this *BroadcasterFixture) Setup() {
	this.broadcaster = NewBroadcaster("batch-1", logging.NewNopLogger())
}

func decodeStream(raw string) []Message {
	var messages []Message
	for _, frame := range strings.Split(raw, "\n\n") {
		payload, ok := strings.CutPrefix(frame, "data: ")
		if !ok {
			continue
		}
		var message Message
		if err := json.Unmarshal([]byte(payload), &message); err != nil {
			panic(err)
		}
		messages = append(messages, message)
	}
	return messages
}

func (this *BroadcasterFixture) TestLateSubscriberReceivesReplay() {
	this.broadcaster.Broadcast(extract.StateChanged{State: extract.StateRunning})
	this.broadcaster.Broadcast(extract.FileStarted{Name: "a.ba2", Current: 1, Total: 1})

	var buffer bytes.Buffer
	this.broadcaster.Subscribe("late", &buffer)
	this.broadcaster.Broadcast(extract.FileCompleted{Name: "a.ba2", Success: true})

	messages := decodeStream(buffer.String())
	this.So(len(messages), should.Equal, 3)
	this.So(messages[0].Event, should.Equal, "state_changed")
	this.So(messages[1].Event, should.Equal, "file_started")
	this.So(messages[2].Event, should.Equal, "file_completed")
	this.So(messages[2].Type, should.Equal, StreamTypeProgress)
}

func (this *BroadcasterFixture) TestCompleteIsSentOnceAndClosesTheLog() {
	var buffer bytes.Buffer
	this.broadcaster.Subscribe("sub", &buffer)

	result := extract.NewBatchResult()
	result.Add(extract.Outcome{Path: "a.ba2", Success: true})
	this.broadcaster.BroadcastComplete(result)
	this.broadcaster.BroadcastComplete(result)
	this.broadcaster.Broadcast(extract.FileStarted{Name: "late.ba2"})

	messages := decodeStream(buffer.String())
	this.So(len(messages), should.Equal, 1)
	this.So(messages[0].Type, should.Equal, StreamTypeComplete)
	this.So(*messages[0].Successful, should.Equal, 1)
	this.So(*messages[0].Failed, should.Equal, 0)
	this.So(this.broadcaster.IsCompleted(), should.BeTrue)
	this.So(this.broadcaster.MessageCount(), should.Equal, 1)
}

type brokenWriter struct{ writes int }

func (w *brokenWriter) Write([]byte) (int, error) {
	w.writes++
	return 0, errors.New("connection reset")
}

func (this *BroadcasterFixture) TestFailingSubscriberIsDropped() {
	broken := &brokenWriter{}
	this.broadcaster.Subscribe("broken", broken)

	this.broadcaster.Broadcast(extract.FileStarted{Name: "a.ba2"})
	this.broadcaster.Broadcast(extract.FileStarted{Name: "b.ba2"})

	this.So(broken.writes, should.Equal, 1)
}

func (this *BroadcasterFixture) TestErrorsAreLogged() {
	var buffer bytes.Buffer
	this.broadcaster.Subscribe("sub", &buffer)
	this.broadcaster.BroadcastError("tool missing")

	messages := decodeStream(buffer.String())
	this.So(len(messages), should.Equal, 1)
	this.So(messages[0].Type, should.Equal, StreamTypeError)
	this.So(messages[0].Data, should.Equal, "tool missing")
}
