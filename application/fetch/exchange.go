package fetch

import (
	"context"
	"fetch-stack/application/fetch/body"
	"fetch-stack/application/fetch/dispatch"
	"fetch-stack/application/fetch/header"
	"fetch-stack/application/fetch/signal"
	"fetch-stack/application/fetch/status"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type state uint8

const (
	stateIdle state = iota
	stateDispatched
	stateCompleted
	stateErrored
	stateAborted
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateDispatched:
		return "dispatched"
	case stateCompleted:
		return "completed"
	case stateErrored:
		return "errored"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

var errNoResponse = errors.New("exchange completed without a response")

// exchange drives a single fetch. It is the dispatcher's handler for the exchange.
//
// Dispatcher callbacks and the abort may race with each other.
// Once locallyAborted is set, it wins over everything reported by the dispatcher.
type exchange struct {
	client  *Client
	req     *Request
	pending *Pending

	signal     *signal.Signal
	stopSignal func()

	logger *slog.Logger
	start  time.Time

	mu             sync.Mutex // guards the fields below.
	state          state
	locallyAborted bool
	abortErr       error
	abortLive      func(reason error)
	internal       *responseModel
	resBody        *body.Body // the unsplit body, nil for a response without body.
	writer         *body.Writer
	terminal       bool // OnComplete or OnError has been received.
	unsubscribe    func()
	finished       bool
}

var _ dispatch.Handler = (*exchange)(nil)

func (c *Client) newExchange(ctx context.Context, req *Request, p *Pending) *exchange {
	ctxSignal, stopCtx := signal.FromContext(ctx)
	sig, stopAny := signal.Any(req.signal, ctxSignal)

	return &exchange{
		client:     c,
		req:        req,
		pending:    p,
		signal:     sig,
		stopSignal: func() { stopAny(); stopCtx() },
		logger: c.logger.With(
			slog.String("method", req.method),
			slog.String("url", serializeURL(req.url)),
		),
		start: c.clock.Now(),
	}
}

func (ex *exchange) run() {
	if ex.signal.Aborted() {
		ex.onAbort(ex.signal.Reason())
		return
	}

	if ex.req.mode == ModeSameOrigin && ex.client.origin != nil && !sameOrigin(ex.client.origin, ex.req.url) {
		ex.fail(&NetworkError{cause: errors.Errorf("cross-origin request to %s in same-origin mode", serializeOrigin(ex.req.url))})
		return
	}

	d, err := ex.req.descriptor(context.Background())
	if err != nil {
		ex.fail(typeError(err))
		return
	}

	ex.dispatch(d)
}

// dispatch hands d to the dispatcher unless the signal aborts first.
func (ex *exchange) dispatch(d dispatch.Descriptor) {
	ex.mu.Lock()
	ex.state = stateDispatched
	ex.mu.Unlock()

	unsubscribe := ex.signal.Subscribe(ex.onAbort)

	ex.mu.Lock()
	ex.unsubscribe = unsubscribe
	finished := ex.finished
	ex.mu.Unlock()

	if finished {
		// Aborted while subscribing.
		unsubscribe()
		return
	}

	ex.logger.Debug("dispatching request")
	if err := ex.client.dispatcher.Dispatch(d, ex); err != nil {
		ex.OnError(errors.Wrap(err, "dispatching request"))
	}
}

// fail settles the fetch with err before anything has been dispatched.
func (ex *exchange) fail(err error) {
	ex.mu.Lock()
	ex.state = stateErrored
	ex.mu.Unlock()

	ex.pending.settle(nil, err)
	ex.finish()
}

func (ex *exchange) OnConnect(abort func(reason error)) {
	ex.mu.Lock()
	if ex.locallyAborted {
		reason := ex.abortErr
		ex.mu.Unlock()
		abort(reason)
		return
	}
	ex.abortLive = abort
	ex.mu.Unlock()
}

func (ex *exchange) OnHeaders(statusCode int, fields []dispatch.Field, resume func()) bool {
	ex.mu.Lock()

	if ex.locallyAborted || ex.state != stateDispatched {
		ex.mu.Unlock()
		return true
	}

	code := uint(max(statusCode, 0))
	if status.IsInformational(code) && code != status.SwitchingProtocols.Code {
		ex.mu.Unlock()
		ex.logger.Debug("skipping interim response", slog.Uint64("status", uint64(code)))
		return true
	}

	headers, err := header.New(header.GuardResponse, toHeaderFields(fields)...)
	if err != nil {
		ex.state = stateErrored
		abort := ex.abortLive
		ex.mu.Unlock()

		err = &NetworkError{cause: errors.Wrap(err, "invalid response headers")}
		ex.pending.settle(nil, err)
		if abort != nil {
			abort(err)
		}
		ex.finish()
		return true
	}

	var b *body.Body
	if !status.IsNullBody(code) && ex.req.method != "HEAD" {
		b, ex.writer = body.NewStream(ex.client.opts.HighWaterMark)
		ex.writer.OnResume(resume)
	}

	var statusText string
	if st, ok := status.FromCode(code); ok {
		statusText = st.ReasonPhrase
	}

	ex.internal = newNetworkResponse(code, statusText, headers, b, ex.req.url)
	ex.resBody = b
	ex.state = stateCompleted

	typ := ex.client.classify(ex.req)
	res := &Response{m: filter(ex.internal, typ)}
	ex.mu.Unlock()

	ex.logger.Debug("response received",
		slog.Uint64("status", uint64(code)),
		slog.String("type", typ.String()),
	)
	ex.pending.settle(res, nil)

	if typ == TypeOpaque && b != nil {
		// Nobody can read an opaque body.
		b.Cancel(errors.New("opaque response body is not readable"))
	}

	return true
}

func (ex *exchange) OnData(chunk []byte) bool {
	ex.mu.Lock()
	if ex.locallyAborted || ex.state != stateCompleted || ex.writer == nil {
		ex.mu.Unlock()
		return true
	}
	w, b, abort := ex.writer, ex.resBody, ex.abortLive
	ex.mu.Unlock()

	if w.Write(chunk) {
		return true
	}

	if err := b.Errored(); err != nil {
		// The body is gone, so is the rest of the exchange.
		if abort != nil {
			abort(err)
		}
		return true
	}

	return false
}

func (ex *exchange) OnComplete(trailers []dispatch.Field) {
	ex.mu.Lock()
	if ex.locallyAborted || ex.terminal || ex.state == stateErrored || ex.state == stateAborted {
		ex.mu.Unlock()
		return
	}
	ex.terminal = true

	switch ex.state {
	case stateCompleted:
		w, b := ex.writer, ex.resBody
		ex.mu.Unlock()

		ex.logger.Debug("response body completed", slog.Int("trailers", len(trailers)))
		if w != nil {
			w.Close()
		}
		if b != nil {
			// Buffered data can still be aborted until it is read.
			b.OnEnd(ex.finish)
			return
		}
	default:
		ex.state = stateErrored
		ex.mu.Unlock()

		ex.pending.settle(nil, &NetworkError{cause: errNoResponse})
	}

	ex.finish()
}

func (ex *exchange) OnError(err error) {
	ex.mu.Lock()
	if ex.locallyAborted {
		ex.mu.Unlock()
		ex.logger.Debug("suppressing error of aborted exchange", slog.Any("error", err))
		return
	}
	if ex.terminal || ex.state == stateErrored || ex.state == stateAborted {
		ex.mu.Unlock()
		return
	}
	ex.terminal = true

	netErr := &NetworkError{cause: err}

	switch ex.state {
	case stateCompleted:
		w := ex.writer
		ex.mu.Unlock()

		if w != nil {
			w.Error(netErr)
		}
		ex.logger.Debug("response body errored", slog.Any("error", err))
	default:
		ex.state = stateErrored
		ex.mu.Unlock()

		ex.pending.settle(nil, netErr)
		ex.logger.Debug("fetch failed", slog.Any("error", err))
	}

	ex.finish()
}

// onAbort aborts the fetch with reason.
// Reference: https://fetch.spec.whatwg.org/#abort-fetch
func (ex *exchange) onAbort(reason error) {
	err := &signal.AbortError{Reason: reason}

	ex.mu.Lock()
	if ex.locallyAborted || ex.finished {
		ex.mu.Unlock()
		return
	}
	ex.locallyAborted = true
	ex.abortErr = err
	if ex.state != stateCompleted {
		ex.state = stateAborted
	}
	if ex.internal != nil {
		ex.internal.aborted.Store(true)
	}
	abort, resBody := ex.abortLive, ex.resBody
	if ex.terminal {
		abort = nil
	}
	ex.mu.Unlock()

	ex.logger.Debug("aborting fetch", slog.Any("reason", reason))

	if abort != nil {
		abort(err)
	}
	if reqBody := ex.req.body; reqBody != nil {
		// No-op once the body has been sent entirely.
		reqBody.Cancel(err)
	}
	if resBody != nil {
		resBody.Error(err)
	}

	ex.pending.settle(nil, err)
	ex.finish()
}

// finish releases the abort signal. The exchange can't be aborted afterwards.
// After a complete response, it runs once the response body has ended.
func (ex *exchange) finish() {
	ex.mu.Lock()
	if ex.finished {
		ex.mu.Unlock()
		return
	}
	ex.finished = true
	unsubscribe := ex.unsubscribe
	ex.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	ex.stopSignal()

	ex.logger.Debug("fetch finished", slog.Duration("elapsed", ex.client.clock.Since(ex.start)))
}

func toHeaderFields(fields []dispatch.Field) []header.Field {
	converted := make([]header.Field, 0, len(fields))
	for _, f := range fields {
		converted = append(converted, header.Field{Name: string(f.Name), Value: string(f.Value)})
	}
	return converted
}
