package logging

import (
	"testing"

	"github.com/smartystreets/assertions/should"
	"github.com/smartystreets/gunit"
	"go.uber.org/zap/zapcore"
)

func TestLoggerFixture(t *testing.T) {
	gunit.Run(new(LoggerFixture), t)
}

type LoggerFixture struct {
	*gunit.Fixture
}

func (this *LoggerFixture) TestLevels() {
	level, err := parseLogLevel("WARNING")
	this.So(err, should.BeNil)
	this.So(level, should.Equal, zapcore.WarnLevel)

	level, err = parseLogLevel("")
	this.So(err, should.BeNil)
	this.So(level, should.Equal, zapcore.InfoLevel)

	_, err = parseLogLevel("fatal")
	this.So(err, should.NotBeNil)
}

func (this *LoggerFixture) TestFormats() {
	logger, err := NewLoggerWithFormat("debug", FormatConsole)
	this.So(err, should.BeNil)
	this.So(logger.GetZap().Core().Enabled(zapcore.DebugLevel), should.BeTrue)

	logger, err = NewLogger("error")
	this.So(err, should.BeNil)
	this.So(logger.GetZap().Core().Enabled(zapcore.WarnLevel), should.BeFalse)

	_, err = NewLoggerWithFormat("info", "xml")
	this.So(err, should.NotBeNil)
}

func (this *LoggerFixture) TestNamedAndWithKeepTheCore() {
	logger := NewNopLogger().Named("scan").With()
	this.So(logger.GetZap(), should.NotBeNil)
}
