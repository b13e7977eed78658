package dispatch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"
)

type RoundTripTestSuite struct {
	suite.Suite

	server *httptest.Server
	rt     *RoundTrip
}

func TestRoundTripTestSuite(t *testing.T) {
	suite.Run(t, new(RoundTripTestSuite))
}

func (s *RoundTripTestSuite) SetupTest() {
	mux := http.NewServeMux()
	mux.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo", r.Header.Get("X-Token"))
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "hello world")
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(w, r.Body)
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hello", http.StatusFound)
	})
	mux.HandleFunc("/stall", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "first")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	s.server = httptest.NewServer(mux)
	s.rt = NewRoundTrip(
		HTTPClient(s.server.Client()),
		slog.New(slog.DiscardHandler),
		clock.New(),
		RoundTripOptions{ChunkSize: 4},
	)
}

func (s *RoundTripTestSuite) TearDownTest() {
	s.NoError(s.rt.Close())
	s.server.Close()
	s.server.Client().CloseIdleConnections()
	goleak.VerifyNone(s.T())
}

func (s *RoundTripTestSuite) descriptor(method, path string) Descriptor {
	return Descriptor{Origin: s.server.URL, Path: path, Method: method, ContentLength: -1}
}

func (s *RoundTripTestSuite) TestExchange() {
	d := s.descriptor(http.MethodGet, "/hello")
	d.Headers = []Field{NewField("X-Token", "secret")}

	h := newRecordingHandler()
	s.Require().NoError(s.rt.Dispatch(d, h))
	h.wait(s.T())

	s.True(h.connected)
	s.Equal(http.StatusOK, h.status)
	s.Contains(h.headers, "X-Echo: secret")
	s.Contains(h.headers, "Content-Type: text/plain")
	s.Equal("hello world", h.body.String())
	s.True(h.completed)
	s.NoError(h.err)
	// Chunks are bounded by the chunk size.
	s.GreaterOrEqual(h.chunks, 3)
}

func (s *RoundTripTestSuite) TestRequestBody() {
	d := s.descriptor(http.MethodPost, "/echo")
	d.Body = strings.NewReader("ping")
	d.ContentLength = 4

	h := newRecordingHandler()
	s.Require().NoError(s.rt.Dispatch(d, h))
	h.wait(s.T())

	s.Equal("ping", h.body.String())
}

func (s *RoundTripTestSuite) TestRedirectNotFollowed() {
	h := newRecordingHandler()
	s.Require().NoError(s.rt.Dispatch(s.descriptor(http.MethodGet, "/redirect"), h))
	h.wait(s.T())

	s.Equal(http.StatusFound, h.status)
	s.Contains(h.headers, "Location: /hello")
}

func (s *RoundTripTestSuite) TestBackPressure() {
	h := newRecordingHandler()
	h.pause = true

	s.Require().NoError(s.rt.Dispatch(s.descriptor(http.MethodGet, "/hello"), h))

	// Each chunk waits for resume.
	for {
		select {
		case <-h.done:
			s.Equal("hello world", h.body.String())
			return
		case resume := <-h.paused:
			resume()
		case <-time.After(5 * time.Second):
			s.FailNow("exchange did not finish")
		}
	}
}

func (s *RoundTripTestSuite) TestAbort() {
	h := newRecordingHandler()
	reason := errors.New("caller gave up")
	h.abortOnData = reason

	s.Require().NoError(s.rt.Dispatch(s.descriptor(http.MethodGet, "/stall"), h))
	h.wait(s.T())

	s.False(h.completed)
	s.ErrorIs(h.err, reason)
}

func (s *RoundTripTestSuite) TestConnectionError() {
	d := s.descriptor(http.MethodGet, "/hello")
	d.Origin = "http://127.0.0.1:1"

	h := newRecordingHandler()
	s.Require().NoError(s.rt.Dispatch(d, h))
	h.wait(s.T())

	s.True(h.connected)
	s.Error(h.err)
	s.False(h.completed)
}

func (s *RoundTripTestSuite) TestLimiter() {
	limited := NewRoundTrip(
		HTTPClient(s.server.Client()),
		slog.New(slog.DiscardHandler),
		clock.New(),
		RoundTripOptions{Limiter: rate.NewLimiter(rate.Every(time.Hour), 1)},
	)

	first := newRecordingHandler()
	s.Require().NoError(limited.Dispatch(s.descriptor(http.MethodGet, "/hello"), first))
	first.wait(s.T())
	s.NoError(first.err)

	// The second exchange waits for the limiter until the dispatcher is closed.
	second := newRecordingHandler()
	s.Require().NoError(limited.Dispatch(s.descriptor(http.MethodGet, "/hello"), second))
	s.NoError(limited.Close())
	second.wait(s.T())
	s.ErrorIs(second.err, ErrClosed)
}

func (s *RoundTripTestSuite) TestDispatchAfterClose() {
	s.Require().NoError(s.rt.Close())
	s.ErrorIs(s.rt.Dispatch(s.descriptor(http.MethodGet, "/hello"), newRecordingHandler()), ErrClosed)
}

type recordingHandler struct {
	mu        sync.Mutex
	connected bool
	status    int
	headers   []string
	body      strings.Builder
	chunks    int
	completed bool
	err       error

	abort       func(error)
	abortOnData error
	pause       bool
	resume      func()
	paused      chan func()
	done        chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		paused: make(chan func(), 1),
		done:   make(chan struct{}),
	}
}

func (h *recordingHandler) OnConnect(abort func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = true
	h.abort = abort
}

func (h *recordingHandler) OnHeaders(statusCode int, headers []Field, resume func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = statusCode
	for _, f := range headers {
		h.headers = append(h.headers, f.String())
	}
	h.resume = resume
	return true
}

func (h *recordingHandler) OnData(chunk []byte) bool {
	h.mu.Lock()
	h.body.Write(chunk)
	h.chunks++
	abort, reason := h.abort, h.abortOnData
	h.mu.Unlock()

	if reason != nil {
		abort(reason)
		return true
	}
	if h.pause {
		h.paused <- h.resume
		return false
	}
	return true
}

func (h *recordingHandler) OnComplete([]Field) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed = true
	close(h.done)
}

func (h *recordingHandler) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
	close(h.done)
}

func (h *recordingHandler) wait(t *testing.T) {
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("exchange did not finish")
	}
}

func TestDescriptorURL(t *testing.T) {
	d := Descriptor{Origin: "https://example.com", Path: "/a?b=c"}
	assert.Equal(t, "https://example.com/a?b=c", d.URL())
}

func TestDispatcherFunc(t *testing.T) {
	called := false
	var d Dispatcher = DispatcherFunc(func(Descriptor, Handler) error {
		called = true
		return context.Canceled
	})

	assert.ErrorIs(t, d.Dispatch(Descriptor{}, nil), context.Canceled)
	assert.True(t, called)
}

func TestToFields(t *testing.T) {
	h := http.Header{"B": {"2"}, "A": {"1", "3"}}
	var got []string
	for _, f := range toFields(h) {
		got = append(got, f.String())
	}
	assert.Equal(t, []string{"A: 1", "A: 3", "B: 2"}, got)
}
