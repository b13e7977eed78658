package body

import (
	"bytes"
	"context"
	"fetch-stack/lib/ds/queue"
	"io"
	"sync"
)

// source produces the chunks of a body.
type source interface {
	// next blocks until a chunk is available.
	// It returns [io.EOF] when the source is exhausted.
	next(ctx context.Context) ([]byte, error)
	cancel(reason error)
}

// stream is a source fed by a producer through [Writer].
type stream struct {
	mu      sync.Mutex
	chunks  *queue.Chunks
	closed  bool
	err     error
	changed chan struct{} // closed and replaced on every state change.

	highWaterMark int
	paused        bool
	resume        func()
}

var _ source = (*stream)(nil)

func newStream(highWaterMark int) *stream {
	return &stream{
		chunks:        queue.NewChunks(),
		changed:       make(chan struct{}),
		highWaterMark: highWaterMark,
	}
}

func (s *stream) next(ctx context.Context) ([]byte, error) {
	for {
		chunk, wait, ok, err := s.poll()
		if ok {
			return chunk, err
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// poll returns a chunk or a terminal error if one is available.
// Otherwise it returns a channel which is closed on the next state change.
func (s *stream) poll() (chunk []byte, wait <-chan struct{}, ok bool, err error) {
	s.mu.Lock()

	if s.err != nil {
		s.mu.Unlock()
		return nil, nil, true, s.err
	}

	if c, qErr := s.chunks.Dequeue(); qErr == nil {
		var resume func()
		if s.paused && s.chunks.Size() < s.highWaterMark {
			s.paused = false
			resume = s.resume
		}
		s.mu.Unlock()

		if resume != nil {
			resume()
		}
		return c, nil, true, nil
	}

	if s.closed {
		s.mu.Unlock()
		return nil, nil, true, io.EOF
	}

	wait = s.changed
	s.mu.Unlock()

	return nil, wait, false, nil
}

// write enqueues a copy of chunk.
// It returns false when the producer should pause until resumed.
func (s *stream) write(chunk []byte) (flowing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.err != nil {
		return false
	}

	if len(chunk) > 0 {
		s.chunks.Enqueue(bytes.Clone(chunk))
		s.broadcastLocked()
	}

	if s.highWaterMark > 0 && s.chunks.Size() >= s.highWaterMark {
		s.paused = true
		return false
	}

	return true
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.err != nil {
		return
	}
	s.closed = true
	s.broadcastLocked()
}

func (s *stream) cancel(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return
	}
	s.err = reason
	s.chunks.Clear()
	s.broadcastLocked()
}

func (s *stream) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Writer is the producer side of a streamed [Body].
type Writer struct {
	body *Body
	s    *stream
}

// Write hands chunk to the body. The chunk is copied.
// A false return asks the producer to pause until the resume callback fires.
func (w *Writer) Write(chunk []byte) (flowing bool) { return w.s.write(chunk) }

// Close ends the body gracefully. Buffered chunks are still delivered.
func (w *Writer) Close() { w.s.close() }

// Error errors the body with err.
func (w *Writer) Error(err error) { w.body.Error(err) }

// OnResume registers fn to be called once buffered data drains
// below the high-water mark after a Write returned false.
func (w *Writer) OnResume(fn func()) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	w.s.resume = fn
}

// readerSource reads chunks from an [io.Reader] on demand.
type readerSource struct {
	r      io.Reader
	readMu sync.Mutex // serializes reads.
	buf    []byte

	mu  sync.Mutex
	err error
}

var _ source = (*readerSource)(nil)

const readerChunkSize = 32 * 1024

func (rs *readerSource) next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rs.readMu.Lock()
	defer rs.readMu.Unlock()

	if rs.buf == nil {
		rs.buf = make([]byte, readerChunkSize)
	}

	for {
		if err := rs.failure(); err != nil {
			return nil, err
		}

		n, err := rs.r.Read(rs.buf)
		if n > 0 {
			return bytes.Clone(rs.buf[:n]), nil
		}
		if err != nil {
			rs.mu.Lock()
			if rs.err == nil {
				rs.err = err
			}
			err = rs.err
			rs.mu.Unlock()
			return nil, err
		}
	}
}

func (rs *readerSource) failure() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.err
}

// cancel doesn't wait for an ongoing read.
// Closing the reader is expected to unblock it.
func (rs *readerSource) cancel(reason error) {
	rs.mu.Lock()
	if rs.err != nil {
		rs.mu.Unlock()
		return
	}
	rs.err = reason
	rs.mu.Unlock()

	if c, ok := rs.r.(io.Closer); ok {
		_ = c.Close()
	}
}
