package fetch

import (
	"context"
	"fetch-stack/application/fetch/body"
	"fetch-stack/application/fetch/header"
	"fetch-stack/application/fetch/status"
	"fetch-stack/application/util/rule"
	"net/url"

	"github.com/pkg/errors"
)

type ResponseInit struct {
	// Status defaults to 200 when zero.
	Status     uint
	StatusText string
	Headers    []header.Field
}

// Response is the caller's view of a response. Its headers are immutable.
// Reference: https://fetch.spec.whatwg.org/#response-class
type Response struct {
	m *responseModel
}

// NewResponse creates a response holding given body, which may be nil.
// See [body.Extract] for accepted body types.
// Reference: https://fetch.spec.whatwg.org/#dom-response
func NewResponse(bodyInit any, init *ResponseInit) (*Response, error) {
	if init == nil {
		init = &ResponseInit{}
	}

	code := init.Status
	if code == 0 {
		code = 200
	}
	if !status.InRange(code) {
		return nil, errors.Wrapf(ErrRange, "status %d", code)
	}

	if !rule.IsValidReasonPhrase(init.StatusText) {
		return nil, errors.Wrapf(ErrType, "invalid status text %q", init.StatusText)
	}

	headers, err := header.New(header.GuardResponse, init.Headers...)
	if err != nil {
		return nil, typeError(err)
	}

	m := &responseModel{
		typ:        TypeDefault,
		status:     code,
		statusText: init.StatusText,
		headers:    headers,
	}

	if bodyInit != nil {
		if status.IsNullBody(code) {
			return nil, errors.Wrapf(ErrType, "status %d can't have a body", code)
		}

		b, contentType, err := body.Extract(bodyInit)
		if err != nil {
			return nil, typeError(err)
		}
		m.body = b

		if contentType != "" && !headers.Has("Content-Type") {
			if err := headers.Append("Content-Type", contentType); err != nil {
				return nil, typeError(err)
			}
		}
	}

	headers.Seal()
	return &Response{m: m}, nil
}

// ErrorResponse returns a network error response.
// Reference: https://fetch.spec.whatwg.org/#dom-response-error
func ErrorResponse() *Response {
	return &Response{m: newErrorModel()}
}

// Redirect returns a response redirecting to rawURL with given redirect status.
// Reference: https://fetch.spec.whatwg.org/#dom-response-redirect
func Redirect(rawURL string, code uint) (*Response, error) {
	u, err := parseURL(rawURL, nil)
	if err != nil {
		return nil, err
	}

	if !status.IsRedirect(code) {
		return nil, errors.Wrapf(ErrRange, "status %d is not a redirect status", code)
	}

	headers, err := header.New(header.GuardImmutable, header.Field{Name: "Location", Value: serializeURL(u)})
	if err != nil {
		return nil, typeError(err)
	}

	return &Response{m: &responseModel{
		typ:     TypeDefault,
		status:  code,
		headers: headers,
	}}, nil
}

func (r *Response) Type() ResponseType { return r.m.typ }

func (r *Response) Status() uint { return r.m.status }

func (r *Response) StatusText() string { return r.m.statusText }

// OK reports whether the status is in the range 200 to 299.
func (r *Response) OK() bool { return status.IsOK(r.m.status) }

func (r *Response) Headers() *header.List { return r.m.headers }

// URL returns the final URL of the response, or an empty string if there is none.
func (r *Response) URL() string { return r.m.url() }

// URLList returns every URL the response was obtained through, in order.
func (r *Response) URLList() []string {
	list := make([]string, 0, len(r.m.urlList))
	for _, u := range r.m.urlList {
		list = append(list, serializeURL(u))
	}
	return list
}

func (r *Response) Redirected() bool { return len(r.m.urlList) > 1 }

// Body returns the body of the response. It is nil if there is no body.
func (r *Response) Body() *body.Body { return r.m.body }

func (r *Response) BodyUsed() bool { return r.m.body != nil && r.m.body.Disturbed() }

// Bytes reads the whole body. A response without body yields an empty result.
func (r *Response) Bytes(ctx context.Context) ([]byte, error) {
	if r.m.body == nil {
		return []byte{}, nil
	}
	return r.m.body.Bytes(ctx)
}

func (r *Response) Text(ctx context.Context) (string, error) {
	if r.m.body == nil {
		return "", nil
	}
	return r.m.body.Text(ctx)
}

func (r *Response) JSON(ctx context.Context, v any) error {
	if r.m.body == nil {
		return errors.Wrap(ErrType, "decoding empty body as json")
	}
	return r.m.body.JSON(ctx, v)
}

// Clone returns an independent copy of the response.
// The body is split so that both responses can be read separately.
// Reference: https://fetch.spec.whatwg.org/#dom-response-clone
func (r *Response) Clone() (*Response, error) {
	if r.BodyUsed() {
		return nil, ErrBodyUsed
	}

	clone := r.m.clone()

	if original := r.m.body; original != nil {
		first, second, err := original.Tee()
		if err != nil {
			return nil, err
		}
		r.m.body, clone.body = first, second

		// Filtered responses share the body with their internal model.
		if r.m.internal != nil && r.m.internal.body == original {
			r.m.internal.body, clone.internal.body = first, second
		}
	}

	return &Response{m: clone}, nil
}

// newNetworkResponse builds the response of an exchange from its received head.
func newNetworkResponse(code uint, statusText string, headers *header.List, b *body.Body, u *url.URL) *responseModel {
	headers.Seal()
	return &responseModel{
		typ:        TypeDefault,
		status:     code,
		statusText: statusText,
		headers:    headers,
		body:       b,
		urlList:    []*url.URL{u},
	}
}
