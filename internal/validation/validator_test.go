package validation

import (
	"path/filepath"
	"testing"

	"github.com/smartystreets/assertions/should"
	"github.com/smartystreets/gunit"
)

func TestValidatorFixture(t *testing.T) {
	gunit.Run(new(ValidatorFixture), t)
}

type ValidatorFixture struct {
	*gunit.Fixture
}

func (this *ValidatorFixture) TestBatchID() {
	this.So(ValidateBatchID("3f2b8c1e-9a4d-4e6f-8b2a-1c3d5e7f9a0b"), should.BeNil)
	this.So(ValidateBatchID("not-a-uuid"), should.Equal, ErrInvalidBatchID)
	this.So(ValidateBatchID(""), should.Equal, ErrInvalidBatchID)
}

func (this *ValidatorFixture) TestRelativePathResolvesUnderBase() {
	path, err := SanitizePath("/srv/mods", "ModA")

	this.So(err, should.BeNil)
	this.So(path, should.Equal, filepath.Clean("/srv/mods/ModA"))
}

func (this *ValidatorFixture) TestTraversalIsRejected() {
	_, err := SanitizePath("/srv/mods", "../etc")
	this.So(err, should.Equal, ErrPathTraversal)

	_, err = SanitizePath("/srv/mods", "/etc/passwd")
	this.So(err, should.Equal, ErrPathTraversal)
}

func (this *ValidatorFixture) TestDotDotPrefixedNameIsAllowed() {
	path, err := SanitizePath("/srv/mods", "..hidden")

	this.So(err, should.BeNil)
	this.So(path, should.Equal, filepath.Clean("/srv/mods/..hidden"))
}

func (this *ValidatorFixture) TestEmptyRequestMeansBase() {
	path, err := SanitizePath("/srv/mods", "")

	this.So(err, should.BeNil)
	this.So(path, should.Equal, filepath.Clean("/srv/mods"))

	_, err = SanitizePath("", "")
	this.So(err, should.Equal, ErrEmptyPath)
}

func (this *ValidatorFixture) TestNoBaseMeansNoConfinement() {
	path, err := SanitizePath("", "/anywhere/at/all")

	this.So(err, should.BeNil)
	this.So(path, should.Equal, filepath.Clean("/anywhere/at/all"))
}

func (this *ValidatorFixture) TestArchivePathNeedsExtension() {
	_, err := SanitizeArchivePath("/srv/mods", "ModA/readme.txt")
	this.So(err, should.Equal, ErrNotAnArchive)

	path, err := SanitizeArchivePath("/srv/mods", "ModA/x_main.BA2")
	this.So(err, should.BeNil)
	this.So(path, should.Equal, filepath.Clean("/srv/mods/ModA/x_main.BA2"))
}

func (this *ValidatorFixture) TestDestination() {
	dest, err := ValidateDestination("/srv/mods", "")
	this.So(err, should.BeNil)
	this.So(dest, should.BeEmpty)

	dest, err = ValidateDestination("/srv/mods", "unpacked/data")
	this.So(err, should.BeNil)
	this.So(dest, should.Equal, filepath.Clean("unpacked/data"))

	_, err = ValidateDestination("/srv/mods", "../../outside")
	this.So(err, should.Equal, ErrPathTraversal)

	_, err = ValidateDestination("/srv/mods", "/tmp/out")
	this.So(err, should.Equal, ErrPathTraversal)

	dest, err = ValidateDestination("/srv/mods", "/srv/mods/out")
	this.So(err, should.BeNil)
	this.So(dest, should.Equal, filepath.Clean("/srv/mods/out"))
}
