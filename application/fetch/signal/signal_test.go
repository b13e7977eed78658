package signal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestAbort(t *testing.T) {
	c := NewController()
	s := c.Signal()

	assert.False(t, s.Aborted())
	assert.NoError(t, s.Reason())

	reason := errors.New("user cancelled")
	c.Abort(reason)
	c.Abort(errors.New("ignored"))

	assert.True(t, s.Aborted())
	assert.Equal(t, reason, s.Reason())

	select {
	case <-s.Done():
	default:
		t.Fatal("done channel is not closed")
	}
}

func TestAbortNilReason(t *testing.T) {
	c := NewController()
	c.Abort(nil)

	assert.ErrorIs(t, c.Signal().Reason(), ErrAborted)
}

func TestSubscribe(t *testing.T) {
	c := NewController()

	var calls []error
	c.Signal().Subscribe(func(reason error) { calls = append(calls, reason) })
	unsubscribe := c.Signal().Subscribe(func(error) { t.Fatal("unsubscribed callback ran") })
	unsubscribe()
	unsubscribe()

	c.Abort(ErrTimeout)
	c.Abort(ErrTimeout)

	assert.Equal(t, []error{ErrTimeout}, calls)
}

func TestSubscribeAfterAbort(t *testing.T) {
	s := Aborted(nil)

	var called int
	unsubscribe := s.Subscribe(func(reason error) {
		called++
		assert.ErrorIs(t, reason, ErrAborted)
	})
	unsubscribe()

	assert.Equal(t, 1, called)
}

func TestConcurrentAbort(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewController()

	var mu sync.Mutex
	var calls int
	c.Signal().Subscribe(func(error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Abort(nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
}

func TestAbortError(t *testing.T) {
	reason := errors.New("navigated away")
	err := error(&AbortError{Reason: reason})

	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, reason)
	assert.Equal(t, reason, errors.Cause(err))
	assert.Equal(t, "operation was aborted: navigated away", err.Error())

	assert.Equal(t, "operation was aborted", (&AbortError{Reason: ErrAborted}).Error())
}

func TestFromContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	s, stop := FromContext(ctx)
	defer stop()

	assert.False(t, s.Aborted())
	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("signal did not abort")
	}
	assert.ErrorIs(t, s.Reason(), context.Canceled)
}

func TestFromContextDone(t *testing.T) {
	cause := errors.New("shutdown")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)

	s, stop := FromContext(ctx)
	defer stop()

	assert.True(t, s.Aborted())
	assert.Equal(t, cause, s.Reason())
}

func TestFromContextBackground(t *testing.T) {
	s, stop := FromContext(context.Background())
	stop()

	assert.False(t, s.Aborted())
}

func TestTimeout(t *testing.T) {
	clk := clock.NewMock()

	s, stop := Timeout(clk, time.Second)
	defer stop()

	clk.Add(999 * time.Millisecond)
	assert.False(t, s.Aborted())

	clk.Add(time.Millisecond)
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		require.Fail(t, "signal did not time out")
	}
	assert.Equal(t, ErrTimeout, s.Reason())
}

func TestTimeoutStopped(t *testing.T) {
	clk := clock.NewMock()

	s, stop := Timeout(clk, time.Second)
	stop()

	clk.Add(time.Minute)
	assert.False(t, s.Aborted())
}

func TestAny(t *testing.T) {
	first, second := NewController(), NewController()

	s, stop := Any(first.Signal(), nil, second.Signal())
	defer stop()
	assert.False(t, s.Aborted())

	reason := errors.New("second")
	second.Abort(reason)
	first.Abort(errors.New("first"))

	assert.True(t, s.Aborted())
	assert.Equal(t, reason, s.Reason())
}

func TestAnyAlreadyAborted(t *testing.T) {
	reason := errors.New("early")

	s, stop := Any(NewController().Signal(), Aborted(reason))
	defer stop()

	assert.True(t, s.Aborted())
	assert.Equal(t, reason, s.Reason())
}

func TestAnyStop(t *testing.T) {
	c := NewController()

	s, stop := Any(c.Signal())
	stop()
	c.Abort(nil)

	assert.False(t, s.Aborted())
}
