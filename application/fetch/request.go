package fetch

import (
	"context"
	"fetch-stack/application/fetch/body"
	"fetch-stack/application/fetch/dispatch"
	"fetch-stack/application/fetch/header"
	"fetch-stack/application/fetch/signal"
	"fetch-stack/application/util/rule"
	"net/url"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// Mode decides how a cross-origin request is treated.
// Reference: https://fetch.spec.whatwg.org/#concept-request-mode
type Mode uint8

const (
	// ModeUnset inherits the mode of the input request, or ModeCORS.
	ModeUnset Mode = iota
	ModeCORS
	ModeNoCORS
	ModeSameOrigin
)

func (m Mode) String() string {
	switch m {
	case ModeCORS:
		return "cors"
	case ModeNoCORS:
		return "no-cors"
	case ModeSameOrigin:
		return "same-origin"
	default:
		return "unset"
	}
}

// RequestInit holds optional fields of a request.
// Zero fields are inherited from the input request, if any.
type RequestInit struct {
	Method string
	// Headers replaces the headers of the input request when it is not nil.
	Headers []header.Field
	// Body is anything accepted by [body.Extract].
	Body   any
	Signal *signal.Signal
	Mode   Mode
}

// Request is a validated request ready to be fetched.
// Reference: https://fetch.spec.whatwg.org/#request-class
type Request struct {
	method  string
	url     *url.URL
	headers *header.List
	body    *body.Body
	signal  *signal.Signal
	mode    Mode
}

var (
	forbiddenMethods = []string{"CONNECT", "TRACE", "TRACK"}

	// Methods normalized to upper case. Others are kept as they are.
	normalizedMethods = []string{"DELETE", "GET", "HEAD", "OPTIONS", "POST", "PUT"}

	noCORSMethods = []string{"GET", "HEAD", "POST"}
)

// NewRequest creates a request from input, which is either a URL string, a [*url.URL] or a [*Request].
// A body taken over from an input request leaves the input request's body disturbed.
// Reference: https://fetch.spec.whatwg.org/#dom-request
func NewRequest(input any, init *RequestInit) (*Request, error) {
	return newRequest(input, init, nil)
}

func newRequest(input any, init *RequestInit, base *url.URL) (*Request, error) {
	if init == nil {
		init = &RequestInit{}
	}

	req := &Request{method: "GET", mode: ModeCORS}

	var (
		inputHeaders []header.Field
		inputBody    *body.Body
	)

	switch input := input.(type) {
	case string:
		u, err := parseURL(input, base)
		if err != nil {
			return nil, err
		}
		req.url = u
	case *url.URL:
		if input == nil {
			return nil, errors.Wrap(ErrType, "nil url")
		}
		u, err := parseURL(input.String(), base)
		if err != nil {
			return nil, err
		}
		req.url = u
	case *Request:
		if input == nil {
			return nil, errors.Wrap(ErrType, "nil request")
		}
		u := *input.url
		req.url = &u
		req.method = input.method
		req.signal = input.signal
		req.mode = input.mode
		inputHeaders = input.headers.Fields()
		inputBody = input.body
	default:
		return nil, errors.Wrapf(ErrType, "unsupported input %T", input)
	}

	if init.Mode != ModeUnset {
		req.mode = init.Mode
	}

	if init.Method != "" {
		method, err := normalizeMethod(init.Method)
		if err != nil {
			return nil, err
		}
		req.method = method
	}

	if init.Signal != nil {
		req.signal = init.Signal
	}

	guard := header.GuardRequest
	if req.mode == ModeNoCORS {
		if !slices.Contains(noCORSMethods, req.method) {
			return nil, errors.Wrapf(ErrType, "method %s is not allowed in no-cors mode", req.method)
		}
		guard = header.GuardRequestNoCORS
	}

	fields := inputHeaders
	if init.Headers != nil {
		fields = init.Headers
	}
	headers, err := header.New(guard, fields...)
	if err != nil {
		return nil, typeError(err)
	}
	req.headers = headers

	if (init.Body != nil || inputBody != nil) && (req.method == "GET" || req.method == "HEAD") {
		return nil, errors.Wrapf(ErrType, "request with %s method can't have a body", req.method)
	}

	switch {
	case init.Body != nil:
		b, contentType, err := body.Extract(init.Body)
		if err != nil {
			return nil, typeError(err)
		}
		req.body = b

		if contentType != "" && !headers.Has("Content-Type") {
			if err := headers.Append("Content-Type", contentType); err != nil {
				return nil, typeError(err)
			}
		}
	case inputBody != nil:
		b, err := inputBody.Transfer()
		if err != nil {
			return nil, typeError(err)
		}
		req.body = b
	}

	return req, nil
}

// Reference: https://fetch.spec.whatwg.org/#concept-method-normalize
func normalizeMethod(method string) (string, error) {
	if !rule.IsValidToken(method) {
		return "", errors.Wrapf(ErrType, "invalid method %q", method)
	}

	upper := strings.ToUpper(method)
	if slices.Contains(forbiddenMethods, upper) {
		return "", errors.Wrapf(ErrType, "forbidden method %q", method)
	}
	if slices.Contains(normalizedMethods, upper) {
		return upper, nil
	}
	return method, nil
}

func (r *Request) Method() string { return r.method }

func (r *Request) URL() string { return r.url.String() }

func (r *Request) Headers() *header.List { return r.headers }

func (r *Request) Mode() Mode { return r.mode }

// Signal returns the signal aborting fetches of the request. It may be nil.
func (r *Request) Signal() *signal.Signal { return r.signal }

// Body returns the body of the request. It is nil if there is no body.
func (r *Request) Body() *body.Body { return r.body }

func (r *Request) BodyUsed() bool { return r.body != nil && r.body.Disturbed() }

func (r *Request) Bytes(ctx context.Context) ([]byte, error) {
	if r.body == nil {
		return []byte{}, nil
	}
	return r.body.Bytes(ctx)
}

func (r *Request) Text(ctx context.Context) (string, error) {
	if r.body == nil {
		return "", nil
	}
	return r.body.Text(ctx)
}

func (r *Request) JSON(ctx context.Context, v any) error {
	if r.body == nil {
		return errors.Wrap(ErrType, "decoding empty body as json")
	}
	return r.body.JSON(ctx, v)
}

// Clone returns an independent copy of the request.
// Reference: https://fetch.spec.whatwg.org/#dom-request-clone
func (r *Request) Clone() (*Request, error) {
	if r.BodyUsed() {
		return nil, ErrBodyUsed
	}

	u := *r.url
	clone := &Request{
		method:  r.method,
		url:     &u,
		headers: r.headers.Clone(r.headers.Guard()),
		signal:  r.signal,
		mode:    r.mode,
	}

	if r.body != nil {
		first, second, err := r.body.Tee()
		if err != nil {
			return nil, err
		}
		r.body, clone.body = first, second
	}

	return clone, nil
}

// descriptor builds what the dispatcher needs to perform the request.
// The body becomes disturbed.
func (r *Request) descriptor(ctx context.Context) (dispatch.Descriptor, error) {
	d := dispatch.Descriptor{
		Origin:        serializeOrigin(r.url),
		Path:          r.url.RequestURI(),
		Method:        r.method,
		ContentLength: -1,
	}

	for name, value := range r.headers.All() {
		d.Headers = append(d.Headers, dispatch.NewField(name, value))
	}

	if r.body != nil {
		reader, err := r.body.Reader(ctx)
		if err != nil {
			return dispatch.Descriptor{}, err
		}
		d.Body = reader
		d.ContentLength = r.body.Length()
	}

	return d, nil
}
