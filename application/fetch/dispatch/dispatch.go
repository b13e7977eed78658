// Package dispatch defines the callback contract between the fetch layer and
// the dispatcher performing the actual exchange, and provides a dispatcher
// adapting round-trip style clients to it.
package dispatch

import (
	"io"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrClosed = errors.New("dispatcher is closed")

	// ErrAborted is given to the exchange when it is aborted without a reason.
	ErrAborted = errors.New("exchange aborted")
)

// Field is a raw header field.
type Field struct{ Name, Value []byte }

func NewField(name, value string) Field {
	return Field{Name: []byte(name), Value: []byte(value)}
}

func (f Field) String() string { return string(f.Name) + ": " + string(f.Value) }

// Descriptor describes a single exchange to dispatch.
type Descriptor struct {
	// Origin is the serialized origin, such as "https://example.com:8443".
	Origin string
	// Path is the path followed by the query, if any.
	Path    string
	Method  string
	Headers []Field

	// Body is nil when the request has no body.
	Body io.Reader
	// ContentLength is -1 when it is unknown.
	ContentLength int64
}

func (d Descriptor) URL() string { return strings.TrimSuffix(d.Origin, "/") + d.Path }

// Handler receives lifecycle events of an exchange.
//
// OnConnect precedes OnHeaders, which precedes every OnData.
// OnData may be invoked any number of times. Every other callback is invoked at most once,
// and OnComplete and OnError are mutually exclusive.
// Callbacks may be invoked from any goroutine, but never concurrently for one exchange.
type Handler interface {
	// OnConnect hands over abort, which cancels the exchange.
	OnConnect(abort func(reason error))
	// OnHeaders delivers the response head.
	// Returning false pauses the exchange until resume is called.
	OnHeaders(statusCode int, headers []Field, resume func()) bool
	// OnData delivers a chunk of the response body. chunk is only valid during the call.
	// Returning false pauses the exchange until resume is called.
	OnData(chunk []byte) bool
	OnComplete(trailers []Field)
	OnError(err error)
}

type Dispatcher interface {
	// Dispatch starts the exchange described by d and reports its progress to h.
	// A returned error means h is never invoked.
	Dispatch(d Descriptor, h Handler) error
}

// DispatcherFunc is an adapter to allow the use of ordinary functions as dispatchers.
type DispatcherFunc func(d Descriptor, h Handler) error

func (f DispatcherFunc) Dispatch(d Descriptor, h Handler) error { return f(d, h) }
