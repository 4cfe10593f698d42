//go:build !windows

package bsarch

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

const stubScript = `#!/bin/sh
if [ "$2" = "-list" ]; then
  printf 'Archive: %s\nFiles: 2\n\nmeshes/a.nif\n  textures/b.dds  \n' "$1"
  exit 0
fi
case "$2" in
  *fail*) echo "cannot open archive" >&2; exit 3 ;;
  *marker*) echo "Error: bad block"; exit 0 ;;
esac
touch "$3/unpacked"
echo "Unpacking $2"
`

var stubTool string

func TestRunnerFixture(t *testing.T) {
	dir := t.TempDir()
	stubTool = filepath.Join(dir, "bsarch")
	if err := os.WriteFile(stubTool, []byte(stubScript), 0755); err != nil {
		t.Fatal(err)
	}
	gunit.Run(new(RunnerFixture), t)
}

type RunnerFixture struct {
	*gunit.Fixture
	runner *Runner
	out    string
}

func (this *RunnerFixture) Setup() {
	this.runner = NewRunner(stubTool, logging.NewNopLogger())
	out, err := os.MkdirTemp("", "unpackrr-bsarch-")
	this.So(err, should.BeNil)
	this.out = out
}

func (this *RunnerFixture) Teardown() {
	_ = os.RemoveAll(this.out)
}

func (this *RunnerFixture) TestUnpackSucceeds() {
	output, err := this.runner.Unpack(context.Background(), "mod_main.ba2", this.out)

	this.So(err, should.BeNil)
	this.So(output.ExitCode, should.Equal, 0)
	this.So(output.Stdout, should.ContainSubstring, "mod_main.ba2")
	_, statErr := os.Stat(filepath.Join(this.out, "unpacked"))
	this.So(statErr, should.BeNil)
}

func (this *RunnerFixture) TestNonZeroExitFails() {
	output, err := this.runner.Unpack(context.Background(), "fail_main.ba2", this.out)

	var failed *ToolFailedError
	this.So(errors.As(err, &failed), should.BeTrue)
	this.So(output.ExitCode, should.Equal, 3)
	this.So(err.Error(), should.ContainSubstring, "cannot open archive")
	this.So(failed.Transient(), should.BeTrue)
}

func (this *RunnerFixture) TestErrorMarkerWithZeroExitFails() {
	output, err := this.runner.Unpack(context.Background(), "marker_main.ba2", this.out)

	this.So(err, should.NotBeNil)
	this.So(output.ExitCode, should.Equal, 0)
	this.So(err.Error(), should.ContainSubstring, "tool reported error")
}

func (this *RunnerFixture) TestListFiltersSummaryLines() {
	files, err := this.runner.List(context.Background(), "mod_main.ba2")

	this.So(err, should.BeNil)
	this.So(files, should.Resemble, []string{"meshes/a.nif", "textures/b.dds"})
}

func (this *RunnerFixture) TestMissingToolIsReported() {
	runner := NewRunner(filepath.Join(this.out, "nope.exe"), logging.NewNopLogger())

	_, err := runner.List(context.Background(), "x.ba2")

	this.So(errors.Is(err, ErrToolNotFound), should.BeTrue)
	this.So(runner.Available(), should.BeFalse)
}

func (this *RunnerFixture) TestDirectoryIsNotATool() {
	runner := NewRunner(this.out, logging.NewNopLogger())

	this.So(errors.Is(runner.Validate(), ErrToolNotFound), should.BeTrue)
}

func TestOutputFixture(t *testing.T) {
	gunit.Run(new(OutputFixture), t)
}

type OutputFixture struct {
	*gunit.Fixture
}

func (this *OutputFixture) TestMarkerIsCaseInsensitive() {
	this.So(HasErrorMarker("all good", ""), should.BeFalse)
	this.So(HasErrorMarker("ERROR: broken", ""), should.BeTrue)
	this.So(HasErrorMarker("", "error: broken"), should.BeTrue)
}

func (this *OutputFixture) TestSucceededNeedsBoth() {
	this.So(Output{ExitCode: 0, Stdout: "done"}.Succeeded(), should.BeTrue)
	this.So(Output{ExitCode: 1, Stdout: "done"}.Succeeded(), should.BeFalse)
	this.So(Output{ExitCode: 0, Stderr: "Error: x"}.Succeeded(), should.BeFalse)
}

func (this *OutputFixture) TestFailureReasonPrefersStderr() {
	reason := Output{ExitCode: 2, Stdout: "out", Stderr: "err"}.FailureReason()

	this.So(reason, should.Equal, "tool exited with code 2: err")
}

func (this *OutputFixture) TestParseListingOnEmptyOutput() {
	this.So(ParseListing("\n\n"), should.BeEmpty)
}

func (this *OutputFixture) TestResolvePathPrefersConfigured() {
	this.So(ResolvePath("/opt/tools/BSArch.exe"), should.Equal, "/opt/tools/BSArch.exe")
	this.So(filepath.Base(ResolvePath("")), should.Equal, DefaultExecutable)
}
