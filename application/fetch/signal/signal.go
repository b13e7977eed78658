// Package signal implements abort signals used to cancel fetches.
//
// A [Signal] aborts at most once. Observers either poll it, wait on [Signal.Done]
// or subscribe a callback which runs exactly once, even when it is registered late.
//
// Reference: https://dom.spec.whatwg.org/#interface-abortsignal
package signal

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

var (
	ErrAborted = errors.New("operation was aborted")
	ErrTimeout = errors.New("operation timed out")
)

// AbortError is the error an aborted operation fails with.
// It matches [ErrAborted] and unwraps to the reason given to the abort.
type AbortError struct {
	Reason error
}

func (e *AbortError) Error() string {
	if e.Reason == nil || e.Reason == ErrAborted {
		return ErrAborted.Error()
	}
	return ErrAborted.Error() + ": " + e.Reason.Error()
}

func (e *AbortError) Is(target error) bool { return target == ErrAborted }

func (e *AbortError) Unwrap() error { return e.Reason }

func (e *AbortError) Cause() error { return e.Reason }

type Signal struct {
	mu          sync.Mutex
	done        chan struct{}
	reason      error
	subscribers map[uint64]func(error)
	nextID      uint64
}

func newSignal() *Signal {
	return &Signal{
		done:        make(chan struct{}),
		subscribers: make(map[uint64]func(error)),
	}
}

func (s *Signal) Aborted() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Reason returns the abort reason, or nil if the signal hasn't aborted.
func (s *Signal) Reason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Done returns a channel closed once the signal aborts.
func (s *Signal) Done() <-chan struct{} { return s.done }

// Subscribe registers fn to run with the reason once the signal aborts.
// fn runs immediately if the signal has already aborted.
// The returned func unsubscribes fn. It is safe to call more than once.
func (s *Signal) Subscribe(fn func(reason error)) (unsubscribe func()) {
	s.mu.Lock()
	if s.reason != nil {
		reason := s.reason
		s.mu.Unlock()
		fn(reason)
		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Signal) abort(reason error) {
	if reason == nil {
		reason = ErrAborted
	}

	s.mu.Lock()
	if s.reason != nil {
		s.mu.Unlock()
		return
	}
	s.reason = reason
	subscribers := s.subscribers
	s.subscribers = nil
	close(s.done)
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(reason)
	}
}

// Controller owns a [Signal] and is the only way to abort it.
type Controller struct {
	signal *Signal
}

func NewController() *Controller {
	return &Controller{signal: newSignal()}
}

func (c *Controller) Signal() *Signal { return c.signal }

// Abort aborts the signal with reason. Nil reason means [ErrAborted].
// Only the first call has an effect.
func (c *Controller) Abort(reason error) { c.signal.abort(reason) }

// Aborted returns a signal which has already aborted with reason.
func Aborted(reason error) *Signal {
	s := newSignal()
	s.abort(reason)
	return s
}

// FromContext returns a signal aborting once ctx is done, with the context's cause.
// The returned stop func releases the watch on ctx.
func FromContext(ctx context.Context) (s *Signal, stop func()) {
	s = newSignal()
	if ctx.Done() == nil {
		return s, func() {}
	}
	if ctx.Err() != nil {
		s.abort(context.Cause(ctx))
		return s, func() {}
	}

	stopped := context.AfterFunc(ctx, func() { s.abort(context.Cause(ctx)) })
	return s, func() { stopped() }
}

// Timeout returns a signal aborting with [ErrTimeout] after d on clk.
// The returned stop func stops the timer.
func Timeout(clk clock.Clock, d time.Duration) (s *Signal, stop func()) {
	s = newSignal()
	timer := clk.AfterFunc(d, func() { s.abort(ErrTimeout) })
	return s, func() { timer.Stop() }
}

// Any returns a signal aborting as soon as one of signals aborts, with its reason.
// Nil signals are ignored. The returned stop func detaches from the inputs.
func Any(signals ...*Signal) (s *Signal, stop func()) {
	s = newSignal()

	var unsubscribes []func()
	for _, in := range signals {
		if in == nil {
			continue
		}
		if in.Aborted() {
			s.abort(in.Reason())
			break
		}
		unsubscribes = append(unsubscribes, in.Subscribe(s.abort))
	}

	return s, func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}
}
