package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evildarkarchon/unpackrr/internal/extract"
	"github.com/evildarkarchon/unpackrr/internal/logging"

	"github.com/smartystreets/assertions/should"
	"github.com/smartystreets/gunit"
)

func TestJournalFixture(t *testing.T) {
	gunit.Run(new(JournalFixture), t)
}

type JournalFixture struct {
	*gunit.Fixture
	dir  string
	path string
}

func (this *JournalFixture) Setup() {
	dir, err := os.MkdirTemp("", "unpackrr-journal-")
	this.So(err, should.BeNil)
	this.dir = dir
	this.path = filepath.Join(dir, "logs", "journal.jsonl")
}

func (this *JournalFixture) Teardown() {
	_ = os.RemoveAll(this.dir)
}

func (this *JournalFixture) readRecords(path string) []Record {
	file, err := os.Open(path)
	this.So(err, should.BeNil)
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record Record
		this.So(json.Unmarshal(scanner.Bytes(), &record), should.BeNil)
		records = append(records, record)
	}
	return records
}

func (this *JournalFixture) TestOutcomesAreAppendedAsJSONLines() {
	service, err := NewService(this.path, 0, logging.NewNopLogger())
	this.So(err, should.BeNil)

	service.RecordBatchStarted("batch-1", 2)
	service.RecordOutcome("batch-1", extract.Outcome{Path: "/m/a.ba2", Name: "a.ba2", Success: true, Duration: 1500 * time.Millisecond})
	service.RecordOutcome("batch-1", extract.Outcome{Path: "/m/b.ba2", Name: "b.ba2", Error: "tool exited with code 1"})
	this.So(service.Close(), should.BeNil)

	records := this.readRecords(this.path)
	this.So(records, should.HaveLength, 3)
	this.So(records[0].EventType, should.Equal, EventBatchStarted)
	this.So(records[0].Total, should.Equal, 2)
	this.So(records[1].EventType, should.Equal, EventArchiveExtracted)
	this.So(records[1].DurationMs, should.Equal, int64(1500))
	this.So(records[2].EventType, should.Equal, EventArchiveFailed)
	this.So(records[2].Error, should.Equal, "tool exited with code 1")
	this.So(records[2].BatchID, should.Equal, "batch-1")
}

func (this *JournalFixture) TestCheckOutcomesUseTheirOwnEventTypes() {
	service, err := NewService(this.path, 0, logging.NewNopLogger())
	this.So(err, should.BeNil)

	service.RecordCheckOutcome("check-1", extract.Outcome{Path: "/m/a.ba2", Success: true, Note: "2 files listed"})
	service.RecordCheckOutcome("check-1", extract.Outcome{Path: "/m/b.ba2", Error: "unable to read archive"})
	this.So(service.Close(), should.BeNil)

	records := this.readRecords(this.path)
	this.So(records, should.HaveLength, 2)
	this.So(records[0].EventType, should.Equal, EventArchiveVerified)
	this.So(records[0].Note, should.Equal, "2 files listed")
	this.So(records[1].EventType, should.Equal, EventArchiveInvalid)
	this.So(records[1].Success, should.BeFalse)
}

func (this *JournalFixture) TestBatchFinishedSummarizesResult() {
	service, err := NewService(this.path, 0, logging.NewNopLogger())
	this.So(err, should.BeNil)
	result := extract.NewBatchResult()
	result.Add(extract.Outcome{Success: true})
	result.Add(extract.Outcome{Success: true})

	service.RecordBatchFinished("b", result, 3)
	this.So(service.Close(), should.BeNil)

	records := this.readRecords(this.path)
	this.So(records[0].Successful, should.Equal, 2)
	this.So(records[0].Total, should.Equal, 3)
	this.So(records[0].Success, should.BeFalse)
}

func (this *JournalFixture) TestRotatesPastSizeLimit() {
	service, err := NewService(this.path, 64, logging.NewNopLogger())
	this.So(err, should.BeNil)

	for i := 0; i < 3; i++ {
		service.RecordOutcome("b", extract.Outcome{Path: "/mods/SomeMod/some_archive_main.ba2", Success: true})
	}
	this.So(service.Close(), should.BeNil)

	entries, err := os.ReadDir(filepath.Dir(this.path))
	this.So(err, should.BeNil)
	rotated := 0
	for _, entry := range entries {
		if entry.Name() != "journal.jsonl" && strings.HasPrefix(entry.Name(), "journal-") && strings.HasSuffix(entry.Name(), ".jsonl") {
			rotated++
		}
	}
	this.So(rotated, should.Equal, 3)
}

func (this *JournalFixture) TestDisabledJournalWritesNothing() {
	service, err := NewService("", 0, logging.NewNopLogger())
	this.So(err, should.BeNil)

	service.RecordOutcome("b", extract.Outcome{Path: "x"})

	this.So(service.Enabled(), should.BeFalse)
	this.So(service.Close(), should.BeNil)
}
