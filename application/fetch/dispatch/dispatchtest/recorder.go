// Package dispatchtest provides a scripted dispatcher for tests.
package dispatchtest

import (
	"context"
	"fetch-stack/application/fetch/dispatch"
	"sync"
)

// Recorder records dispatched exchanges and lets tests drive their handlers.
type Recorder struct {
	// Err is returned from Dispatch when set.
	Err error

	mu        sync.Mutex
	exchanges []*Exchange
	notify    chan *Exchange
}

var _ dispatch.Dispatcher = (*Recorder)(nil)

func New() *Recorder {
	return &Recorder{notify: make(chan *Exchange, 64)}
}

func (r *Recorder) Dispatch(d dispatch.Descriptor, h dispatch.Handler) error {
	if r.Err != nil {
		return r.Err
	}

	ex := &Exchange{Descriptor: d, Handler: h}

	r.mu.Lock()
	r.exchanges = append(r.exchanges, ex)
	r.mu.Unlock()

	select {
	case r.notify <- ex:
	default:
	}
	return nil
}

// Next waits for the next dispatched exchange.
func (r *Recorder) Next(ctx context.Context) (*Exchange, error) {
	select {
	case ex := <-r.notify:
		return ex, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Recorder) Exchanges() []*Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Exchange(nil), r.exchanges...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exchanges)
}

// Exchange is a recorded exchange.
// Its helpers invoke the handler synchronously on the calling goroutine.
type Exchange struct {
	Descriptor dispatch.Descriptor
	Handler    dispatch.Handler

	mu      sync.Mutex
	aborts  []error
	resumes int
}

// Connect calls OnConnect with an abort func recording its reasons.
func (ex *Exchange) Connect() {
	ex.Handler.OnConnect(func(reason error) {
		ex.mu.Lock()
		defer ex.mu.Unlock()
		ex.aborts = append(ex.aborts, reason)
	})
}

// Headers calls OnHeaders with a resume func counting its calls.
// Fields are given as name, value pairs.
func (ex *Exchange) Headers(statusCode int, pairs ...string) bool {
	var fields []dispatch.Field
	for idx := 0; idx+1 < len(pairs); idx += 2 {
		fields = append(fields, dispatch.NewField(pairs[idx], pairs[idx+1]))
	}

	return ex.Handler.OnHeaders(statusCode, fields, func() {
		ex.mu.Lock()
		defer ex.mu.Unlock()
		ex.resumes++
	})
}

func (ex *Exchange) Data(chunk string) bool { return ex.Handler.OnData([]byte(chunk)) }

func (ex *Exchange) Complete() { ex.Handler.OnComplete(nil) }

func (ex *Exchange) Error(err error) { ex.Handler.OnError(err) }

// Aborts returns reasons the exchange was aborted with, in order.
func (ex *Exchange) Aborts() []error {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return append([]error(nil), ex.aborts...)
}

func (ex *Exchange) Resumes() int {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.resumes
}
