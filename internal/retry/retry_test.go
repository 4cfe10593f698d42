package retry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/evildarkarchon/unpackrr/internal/logging"

	"github.com/smartystreets/assertions/should"
	"github.com/smartystreets/gunit"
)

func TestRetryFixture(t *testing.T) {
	gunit.Run(new(RetryFixture), t)
}

type RetryFixture struct {
	*gunit.Fixture
	naps []time.Duration
}

func (this *RetryFixture) newRetrier(config Config) *Retrier {
	retrier := New(config, logging.NewNopLogger())
	retrier.sleep = func(_ context.Context, d time.Duration) error {
		this.naps = append(this.naps, d)
		return nil
	}
	return retrier
}

func failingTimes(n int, err error) (func() (string, error), *int) {
	calls := 0
	return func() (string, error) {
		calls++
		if calls <= n {
			return "", err
		}
		return "done", nil
	}, &calls
}

func (this *RetryFixture) TestSucceedsAfterTwoTransientFailures() {
	config := Config{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond, BackoffMultiplier: 2, MaxDelay: time.Second}
	op, calls := failingTimes(2, syscall.EAGAIN)

	result, err := Do(context.Background(), this.newRetrier(config), op)

	this.So(err, should.BeNil)
	this.So(result, should.Equal, "done")
	this.So(*calls, should.Equal, 3)
	this.So(this.naps, should.Resemble, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond})
}

func (this *RetryFixture) TestPermanentErrorIsNotRetried() {
	op, calls := failingTimes(5, fs.ErrNotExist)

	_, err := Do(context.Background(), this.newRetrier(Default()), op)

	this.So(errors.Is(err, fs.ErrNotExist), should.BeTrue)
	this.So(*calls, should.Equal, 1)
	this.So(this.naps, should.BeEmpty)
}

func (this *RetryFixture) TestGivesUpAfterMaxAttemptsRetries() {
	op, calls := failingTimes(100, ErrTransient)

	_, err := Do(context.Background(), this.newRetrier(Default()), op)

	this.So(errors.Is(err, ErrTransient), should.BeTrue)
	this.So(*calls, should.Equal, 4)
}

func (this *RetryFixture) TestDelayIsCappedAtMaxDelay() {
	config := Config{MaxAttempts: 4, InitialDelay: 400 * time.Millisecond, BackoffMultiplier: 2, MaxDelay: time.Second}
	op, _ := failingTimes(100, syscall.ETIMEDOUT)

	_, _ = Do(context.Background(), this.newRetrier(config), op)

	this.So(this.naps, should.Resemble, []time.Duration{
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	})
}

func (this *RetryFixture) TestRunWrapsErrorOnlyOperations() {
	calls := 0
	err := this.newRetrier(Quick()).Run(context.Background(), func() error {
		calls++
		if calls == 1 {
			return fmt.Errorf("rename: %w", syscall.EACCES)
		}
		return nil
	})

	this.So(err, should.BeNil)
	this.So(calls, should.Equal, 2)
}

func (this *RetryFixture) TestCancelledContextStopsBackoff() {
	retrier := New(Config{MaxAttempts: 3, InitialDelay: time.Hour, BackoffMultiplier: 2, MaxDelay: time.Hour}, logging.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	op, calls := failingTimes(100, ErrTransient)

	_, err := Do(ctx, retrier, op)

	this.So(errors.Is(err, context.Canceled), should.BeTrue)
	this.So(*calls, should.Equal, 1)
}

func (this *RetryFixture) TestPresets() {
	this.So(Quick(), should.Resemble, Config{MaxAttempts: 2, InitialDelay: 50 * time.Millisecond, BackoffMultiplier: 1.5, MaxDelay: time.Second})
	this.So(Default(), should.Resemble, Config{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, BackoffMultiplier: 2, MaxDelay: 5 * time.Second})
	this.So(Persistent(), should.Resemble, Config{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond, BackoffMultiplier: 2, MaxDelay: 10 * time.Second})
}

func TestClassifyFixture(t *testing.T) {
	gunit.Run(new(ClassifyFixture), t)
}

type ClassifyFixture struct {
	*gunit.Fixture
}

type markedError struct{ transient bool }

func (e markedError) Error() string   { return "marked" }
func (e markedError) Transient() bool { return e.transient }

type timeoutError struct{}

func (timeoutError) Error() string { return "timed out" }
func (timeoutError) Timeout() bool { return true }

func (this *ClassifyFixture) TestTransientKinds() {
	this.So(IsTransient(syscall.EINTR), should.BeTrue)
	this.So(IsTransient(&os.PathError{Op: "open", Path: "x", Err: syscall.EAGAIN}), should.BeTrue)
	this.So(IsTransient(fmt.Errorf("wrapped: %w", syscall.EADDRINUSE)), should.BeTrue)
	this.So(IsTransient(os.ErrPermission), should.BeTrue)
	this.So(IsTransient(os.ErrDeadlineExceeded), should.BeTrue)
	this.So(IsTransient(timeoutError{}), should.BeTrue)
	this.So(IsTransient(markedError{transient: true}), should.BeTrue)
}

func (this *ClassifyFixture) TestPermanentKinds() {
	this.So(IsTransient(nil), should.BeFalse)
	this.So(IsTransient(errors.New("boom")), should.BeFalse)
	this.So(IsTransient(fs.ErrNotExist), should.BeFalse)
	this.So(IsTransient(markedError{transient: false}), should.BeFalse)
}
