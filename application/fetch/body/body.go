// Package body implements single-consumption byte streams attached to requests and responses.
//
// A [Body] becomes disturbed on the first read attempt and never reverts.
// Once errored, every reader observes the stored error, including readers
// blocked waiting for the next chunk.
//
// Reference: https://fetch.spec.whatwg.org/#bodies
package body

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrBodyUsed = errors.New("body already used")

	// errReleased cancels a body whose reader stopped before the end.
	errReleased = errors.New("body released by reader")
)

type Body struct {
	src    source
	length int64

	mu        sync.Mutex
	disturbed bool
	done      bool // drained until the end.
	err       error
	parent    *Body
	branches  []*Body
	onEnd     []func()
}

func newBody(src source, length int64) *Body {
	return &Body{src: src, length: length}
}

// NewStream creates a body fed by the returned [Writer].
// Writes report back-pressure once highWaterMark bytes are buffered.
// Zero or negative highWaterMark disables back-pressure.
func NewStream(highWaterMark int) (*Body, *Writer) {
	s := newStream(highWaterMark)
	b := newBody(s, -1)
	return b, &Writer{body: b, s: s}
}

// FromBytes creates a body holding p. p must not be modified afterwards.
func FromBytes(p []byte) *Body {
	s := newStream(0)
	s.chunks.Enqueue(p)
	s.closed = true
	return newBody(s, int64(len(p)))
}

// FromReader creates a body reading from r on demand.
// If r is an [io.Closer], it is closed when the body is cancelled.
func FromReader(r io.Reader) *Body {
	return newBody(&readerSource{r: r}, -1)
}

// Length returns the total length if it is known. Otherwise it returns -1.
func (b *Body) Length() int64 { return b.length }

func (b *Body) Disturbed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disturbed
}

// Errored returns the error the body was errored with, if any.
func (b *Body) Errored() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// acquire marks the body disturbed. It fails if the body can't be read.
func (b *Body) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return b.err
	}
	if b.disturbed {
		return ErrBodyUsed
	}

	b.disturbed = true
	return nil
}

func (b *Body) next(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	if b.err != nil {
		b.mu.Unlock()
		return nil, b.err
	}
	if b.done {
		b.mu.Unlock()
		return nil, io.EOF
	}
	b.mu.Unlock()

	chunk, err := b.src.next(ctx)

	b.mu.Lock()
	switch {
	case b.err != nil:
		// Errored while waiting. The stored error is authoritative.
		err = b.err
		b.mu.Unlock()
		return nil, err
	case err == io.EOF:
		b.done = true
		b.mu.Unlock()
		b.notifyEnd()
		return nil, io.EOF
	case err != nil && err == ctx.Err():
		// The caller gave up. The body stays readable.
		b.mu.Unlock()
		return nil, err
	case err != nil:
		b.mu.Unlock()
		b.fail(err)
		return nil, err
	}
	b.mu.Unlock()

	return chunk, nil
}

// Chunks returns the sequence of chunks of the body.
// The sequence can be ranged over only once and ends with the first error.
// Stopping early cancels the body.
func (b *Body) Chunks(ctx context.Context) (iter.Seq2[[]byte, error], error) {
	if err := b.acquire(); err != nil {
		return nil, err
	}

	var once sync.Once
	return func(yield func([]byte, error) bool) {
		first := false
		once.Do(func() { first = true })
		if !first {
			yield(nil, ErrBodyUsed)
			return
		}

		for {
			chunk, err := b.next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				b.Cancel(errReleased)
				return
			}
		}
	}, nil
}

// Reader returns the body as an [io.ReadCloser].
// Closing it before the end cancels the body.
func (b *Body) Reader(ctx context.Context) (io.ReadCloser, error) {
	if err := b.acquire(); err != nil {
		return nil, err
	}
	return &reader{ctx: ctx, b: b}, nil
}

// Bytes reads the whole body.
func (b *Body) Bytes(ctx context.Context) ([]byte, error) {
	if err := b.acquire(); err != nil {
		return nil, err
	}
	return b.readAll(ctx)
}

// Text reads the whole body as UTF-8 text.
// Leading BOM is stripped and invalid sequences are replaced with U+FFFD.
// Reference: https://encoding.spec.whatwg.org/#utf-8-decode
func (b *Body) Text(ctx context.Context) (string, error) {
	raw, err := b.Bytes(ctx)
	if err != nil {
		return "", err
	}
	return decodeUTF8(raw)
}

// JSON reads the whole body and decodes it into v.
func (b *Body) JSON(ctx context.Context, v any) error {
	text, err := b.Text(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return errors.Wrap(err, "decoding body as json")
	}
	return nil
}

func (b *Body) readAll(ctx context.Context) ([]byte, error) {
	var out []byte
	if b.length > 0 {
		out = make([]byte, 0, b.length)
	}

	for {
		chunk, err := b.next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
}

// Cancel errors the body with reason unless it has been read until the end.
// Reference: https://streams.spec.whatwg.org/#readable-stream-cancel
func (b *Body) Cancel(reason error) { b.fail(reason) }

// Error errors the body with reason unless it has been read until the end.
// Unlike [Body.Cancel], it is used when the failure comes from the producer.
// Reference: https://streams.spec.whatwg.org/#readable-stream-error
func (b *Body) Error(reason error) { b.fail(reason) }

// fail errors the body and the bodies split from it.
// A body read until the end keeps its state, but its branches may still
// hold unread chunks and are errored anyway.
func (b *Body) fail(reason error) {
	if reason == nil {
		reason = errors.New("body errored")
	}

	b.mu.Lock()
	ended := b.done || b.err != nil
	if !ended {
		b.failLocked(reason)
	}
	branches := b.branches
	b.mu.Unlock()

	if !ended {
		b.src.cancel(reason)
	}
	for _, branch := range branches {
		branch.fail(reason)
	}

	b.notifyEnd()
}

// OnEnd registers fn to run once the body is read until the end or errored.
// A body split by [Body.Tee] or [Body.Transfer] ends once all of its branches have.
// fn runs immediately if the body has already ended.
func (b *Body) OnEnd(fn func()) {
	b.mu.Lock()
	b.onEnd = append(b.onEnd, fn)
	b.mu.Unlock()

	b.notifyEnd()
}

func (b *Body) ended() bool {
	b.mu.Lock()
	own := b.done || b.err != nil
	branches := b.branches
	b.mu.Unlock()

	if len(branches) == 0 {
		return own
	}
	for _, branch := range branches {
		if !branch.ended() {
			return false
		}
	}
	return true
}

// notifyEnd runs the end callbacks of b and its ancestors which have ended.
func (b *Body) notifyEnd() {
	for cur := b; cur != nil; {
		if !cur.ended() {
			return
		}

		cur.mu.Lock()
		hooks := cur.onEnd
		cur.onEnd = nil
		parent := cur.parent
		cur.mu.Unlock()

		for _, fn := range hooks {
			fn()
		}
		cur = parent
	}
}

func (b *Body) failLocked(reason error) {
	if b.err == nil {
		b.err = reason
	}
}

// Tee splits the body into two independent bodies reading the same chunks.
// The body itself becomes disturbed. Erroring it errors both branches.
// Reference: https://streams.spec.whatwg.org/#readable-stream-tee
func (b *Body) Tee() (*Body, *Body, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disturbed {
		return nil, nil, ErrBodyUsed
	}
	b.disturbed = true

	t := &tee{parent: b, sem: make(chan struct{}, 1)}
	first := newBody(t.branch(0), b.length)
	second := newBody(t.branch(1), b.length)
	first.parent, second.parent = b, b

	if b.err != nil {
		first.failLocked(b.err)
		second.failLocked(b.err)
	}
	b.branches = []*Body{first, second}

	return first, second, nil
}

// Transfer moves the content of b into a new body. b becomes disturbed.
// Erroring b errors the new body too.
func (b *Body) Transfer() (*Body, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return nil, b.err
	}
	if b.disturbed {
		return nil, ErrBodyUsed
	}
	b.disturbed = true

	moved := newBody(b.src, b.length)
	moved.parent = b
	b.branches = []*Body{moved}
	return moved, nil
}

type reader struct {
	ctx context.Context
	b   *Body

	cur []byte
	err error
}

func (r *reader) Read(p []byte) (int, error) {
	for len(r.cur) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.cur, r.err = r.b.next(r.ctx)
	}

	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

func (r *reader) Close() error {
	if r.err == nil {
		r.b.Cancel(errReleased)
		r.err = io.ErrClosedPipe
	}
	return nil
}

func decodeUTF8(raw []byte) (string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return "", errors.Wrap(err, "decoding body as utf-8")
	}
	return string(out), nil
}
