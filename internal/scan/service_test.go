package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/evildarkarchon/unpackrr/internal/logging"

	"github.com/smartystreets/assertions/should"
	"github.com/smartystreets/gunit"
)

var defaultPostfixes = []string{"main.ba2", "materials.ba2", "misc.ba2", "scripts.ba2"}

func TestScannerFixture(t *testing.T) {
	gunit.Run(new(ScannerFixture), t)
}

type ScannerFixture struct {
	*gunit.Fixture
	root    string
	scanner *Scanner
}

func (this *ScannerFixture) Setup() {
	root, err := os.MkdirTemp("", "unpackrr-scan-")
	this.So(err, should.BeNil)
	this.root = root
	this.scanner = NewScanner(logging.NewNopLogger())
}

func (this *ScannerFixture) Teardown() {
	_ = os.RemoveAll(this.root)
}

func (this *ScannerFixture) scan(filter *Filter) *Inventory {
	inventory, err := this.scanner.Scan(context.Background(), this.root, filter, nil)
	this.So(err, should.BeNil)
	return inventory
}

func (this *ScannerFixture) names(inventory *Inventory) []string {
	var names []string
	for _, entry := range inventory.Entries() {
		names = append(names, entry.FileName)
	}
	return names
}

func (this *ScannerFixture) TestPostfixFilterKeepsMatchingArchives() {
	writeFile(this.root, "ModA", "ModA - Main.ba2", archiveBytes(10, 0))
	writeFile(this.root, "ModA", "ModA - Textures.ba2", archiveBytes(10, 0))
	writeFile(this.root, "ModA", "readme.txt", []byte("hi"))

	inventory := this.scan(NewFilter(defaultPostfixes, nil))

	this.So(this.names(inventory), should.Resemble, []string{"ModA - Main.ba2"})
	entry, _ := inventory.Get(0)
	this.So(entry.ModFolder, should.Equal, "ModA")
	this.So(entry.FileCount, should.Equal, uint32(10))
	this.So(entry.Bad, should.BeFalse)
	this.So(entry.ID, should.Equal, EntryID(entry.Path))
}

func (this *ScannerFixture) TestExactRelativePathIgnoresOnlyThatFile() {
	writeFile(this.root, "ModA", "x_main.ba2", archiveBytes(1, 0))
	writeFile(this.root, "ModB", "x_main.ba2", archiveBytes(1, 10))

	inventory := this.scan(NewFilter(defaultPostfixes, []string{filepath.Join("ModA", "x_main.ba2")}))

	this.So(inventory.Len(), should.Equal, 1)
	entry, _ := inventory.Get(0)
	this.So(entry.ModFolder, should.Equal, "ModB")
}

func (this *ScannerFixture) TestExactAbsolutePathIgnoresFile() {
	path := writeFile(this.root, "ModA", "a_main.ba2", archiveBytes(1, 0))
	writeFile(this.root, "ModA", "b_main.ba2", archiveBytes(1, 0))

	inventory := this.scan(NewFilter(defaultPostfixes, []string{path}))

	this.So(this.names(inventory), should.Resemble, []string{"b_main.ba2"})
}

func (this *ScannerFixture) TestBadHeaderIsFlaggedNotDropped() {
	writeFile(this.root, "ModA", "broken_main.ba2", []byte("not an archive at all, definitely"))
	writeFile(this.root, "ModA", "short_main.ba2", []byte("BTDX"))

	inventory := this.scan(NewFilter(defaultPostfixes, nil))

	this.So(inventory.Len(), should.Equal, 2)
	this.So(inventory.BadCount(), should.Equal, 2)
	for _, entry := range inventory.Entries() {
		this.So(entry.FileCount, should.Equal, uint32(0))
	}
}

func (this *ScannerFixture) TestNestedFoldersAreNotScanned() {
	writeFile(this.root, "ModA", "top_main.ba2", archiveBytes(1, 0))
	writeFile(this.root, filepath.Join("ModA", "nested"), "deep_main.ba2", archiveBytes(1, 0))
	writeFile(this.root, ".", "root_main.ba2", archiveBytes(1, 0))

	inventory := this.scan(NewFilter(defaultPostfixes, nil))

	this.So(this.names(inventory), should.Resemble, []string{"top_main.ba2"})
}

func (this *ScannerFixture) TestEmptyRootScansToEmptyInventory() {
	events := make(chan Event, 16)

	inventory, err := this.scanner.Scan(context.Background(), this.root, NewFilter(defaultPostfixes, nil), events)

	this.So(err, should.BeNil)
	this.So(inventory.Len(), should.Equal, 0)
	this.So(<-events, should.Resemble, ScanStarted{Dirs: 0})
	this.So(<-events, should.Resemble, ScanComplete{Total: 0})
}

func (this *ScannerFixture) TestResultIsSortedBySizeDescending() {
	writeFile(this.root, "ModA", "small_main.ba2", archiveBytes(1, 0))
	writeFile(this.root, "ModB", "large_main.ba2", archiveBytes(1, 500))
	writeFile(this.root, "ModC", "medium_main.ba2", archiveBytes(1, 100))

	inventory := this.scan(NewFilter(defaultPostfixes, nil))

	this.So(this.names(inventory), should.Resemble, []string{"large_main.ba2", "medium_main.ba2", "small_main.ba2"})
}

func (this *ScannerFixture) TestProgressEventsBracketTheScan() {
	writeFile(this.root, "ModA", "a_main.ba2", archiveBytes(1, 0))
	writeFile(this.root, "ModB", "b_main.ba2", archiveBytes(1, 0))
	events := make(chan Event, 16)

	_, err := this.scanner.Scan(context.Background(), this.root, NewFilter(defaultPostfixes, nil), events)
	close(events)

	this.So(err, should.BeNil)
	var kinds []EventKind
	for event := range events {
		kinds = append(kinds, event.Kind())
	}
	this.So(kinds, should.HaveLength, 6)
	this.So(kinds[0], should.Equal, EventScanStarted)
	this.So(kinds[len(kinds)-1], should.Equal, EventScanComplete)
}

func (this *ScannerFixture) TestFullProgressChannelDoesNotBlock() {
	writeFile(this.root, "ModA", "a_main.ba2", archiveBytes(1, 0))
	events := make(chan Event)

	inventory, err := this.scanner.Scan(context.Background(), this.root, NewFilter(defaultPostfixes, nil), events)

	this.So(err, should.BeNil)
	this.So(inventory.Len(), should.Equal, 1)
}

func (this *ScannerFixture) TestNilFilterKeepsEveryArchive() {
	writeFile(this.root, "ModA", "a - Textures.ba2", archiveBytes(1, 0))
	writeFile(this.root, "ModA", "b.BA2", archiveBytes(1, 0))

	inventory := this.scan(nil)

	this.So(inventory.Len(), should.Equal, 2)
}

func (this *ScannerFixture) TestMissingRoot() {
	_, err := this.scanner.Scan(context.Background(), filepath.Join(this.root, "absent"), nil, nil)

	this.So(errors.Is(err, ErrPathNotFound), should.BeTrue)
}

func (this *ScannerFixture) TestRootIsAFile() {
	path := writeFile(this.root, ".", "file.txt", nil)

	_, err := this.scanner.Scan(context.Background(), path, nil, nil)

	this.So(errors.Is(err, ErrNotADirectory), should.BeTrue)
}

func (this *ScannerFixture) TestCancelledContextAborts() {
	writeFile(this.root, "ModA", "a_main.ba2", archiveBytes(1, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inventory, err := this.scanner.Scan(ctx, this.root, nil, nil)

	this.So(inventory, should.BeNil)
	this.So(errors.Is(err, context.Canceled), should.BeTrue)
}
