package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Reply is the result of a round trip.
type Reply struct {
	StatusCode int
	Headers    []Field
	Body       io.ReadCloser

	// Trailers is called once the body has been read until the end. It may be nil.
	Trailers func() []Field
}

// RoundTripFunc performs a single exchange.
// Cancelling ctx must unblock both the call and reads of the returned body.
type RoundTripFunc func(ctx context.Context, d Descriptor) (*Reply, error)

type RoundTripOptions struct {
	// ChunkSize is the size of the buffer body chunks are read into.
	// Zero means DefaultChunkSize.
	ChunkSize int
	// Limiter throttles the start of exchanges. Nil means unlimited.
	Limiter *rate.Limiter
}

const DefaultChunkSize = 16 * 1024

// RoundTrip is a [Dispatcher] driving handlers from a [RoundTripFunc].
// Every exchange runs on its own goroutine.
type RoundTrip struct {
	roundTrip RoundTripFunc
	opts      RoundTripOptions

	logger *slog.Logger
	clock  clock.Clock

	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

var _ Dispatcher = (*RoundTrip)(nil)

func NewRoundTrip(
	fn RoundTripFunc,
	logger *slog.Logger,
	clock clock.Clock,
	opts RoundTripOptions,
) *RoundTrip {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	return &RoundTrip{
		roundTrip: fn,
		opts:      opts,
		logger:    logger,
		clock:     clock,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (rt *RoundTrip) Dispatch(d Descriptor, h Handler) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.closed {
		return ErrClosed
	}

	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		rt.exchange(d, h)
	}()

	return nil
}

// Close cancels ongoing exchanges and waits for them to finish.
func (rt *RoundTrip) Close() error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	rt.mu.Unlock()

	rt.cancel(ErrClosed)
	rt.wg.Wait()
	return nil
}

func (rt *RoundTrip) exchange(d Descriptor, h Handler) {
	logger := rt.logger.With(
		slog.String("exchange", uuid.NewString()),
		slog.String("method", d.Method),
		slog.String("url", d.URL()),
	)
	start := rt.clock.Now()

	ctx, cancel := context.WithCancelCause(rt.ctx)
	defer cancel(nil)

	h.OnConnect(func(reason error) {
		if reason == nil {
			reason = ErrAborted
		}
		cancel(reason)
	})

	fail := func(err error) {
		if ctx.Err() != nil {
			err = context.Cause(ctx)
		}
		logger.Debug("exchange failed", slog.Any("error", err), slog.Duration("elapsed", rt.clock.Since(start)))
		h.OnError(err)
	}

	if err := ctx.Err(); err != nil {
		fail(err)
		return
	}

	if rt.opts.Limiter != nil {
		if err := rt.opts.Limiter.Wait(ctx); err != nil {
			fail(errors.Wrap(err, "waiting for rate limiter"))
			return
		}
	}

	logger.Debug("exchange started")

	reply, err := rt.roundTrip(ctx, d)
	if err != nil {
		fail(errors.Wrap(err, "round trip"))
		return
	}
	defer reply.Body.Close()

	resumeCh := make(chan struct{}, 1)
	resume := func() {
		select {
		case resumeCh <- struct{}{}:
		default:
		}
	}
	waitResume := func() bool {
		select {
		case <-resumeCh:
			return true
		case <-ctx.Done():
			fail(ctx.Err())
			return false
		}
	}

	if !h.OnHeaders(reply.StatusCode, reply.Headers, resume) && !waitResume() {
		return
	}

	buf := make([]byte, rt.opts.ChunkSize)
	for {
		n, err := reply.Body.Read(buf)
		if n > 0 && !h.OnData(buf[:n]) && !waitResume() {
			return
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			fail(errors.Wrap(err, "reading body"))
			return
		}
	}

	var trailers []Field
	if reply.Trailers != nil {
		trailers = reply.Trailers()
	}

	logger.Debug("exchange completed",
		slog.Int("status", reply.StatusCode),
		slog.Duration("elapsed", rt.clock.Since(start)),
	)
	h.OnComplete(trailers)
}
