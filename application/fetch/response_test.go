package fetch

import (
	"context"
	"fetch-stack/application/fetch/header"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResponseStatus(t *testing.T) {
	testcases := []struct {
		desc   string
		status uint
		err    error
	}{
		{desc: "default", status: 0},
		{desc: "lower bound", status: 200},
		{desc: "upper bound", status: 599},
		{desc: "below range", status: 199, err: ErrRange},
		{desc: "above range", status: 600, err: ErrRange},
		{desc: "switching protocols", status: 101, err: ErrRange},
	}
	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			res, err := NewResponse(nil, &ResponseInit{Status: tc.status})
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			if tc.status == 0 {
				assert.Equal(t, uint(200), res.Status())
			} else {
				assert.Equal(t, tc.status, res.Status())
			}
		})
	}
}

func TestNewResponseValidation(t *testing.T) {
	testcases := []struct {
		desc string
		body any
		init ResponseInit
		err  error
	}{
		{desc: "status text", init: ResponseInit{StatusText: "All Good"}},
		{desc: "status text with line break", init: ResponseInit{StatusText: "bad\r\ntext"}, err: ErrType},
		{desc: "invalid header name", init: ResponseInit{Headers: []header.Field{{Name: "bad name", Value: "v"}}}, err: ErrType},
		{desc: "no content with body", body: "x", init: ResponseInit{Status: 204}, err: ErrType},
		{desc: "reset content with body", body: "x", init: ResponseInit{Status: 205}, err: ErrType},
		{desc: "not modified with body", body: "x", init: ResponseInit{Status: 304}, err: ErrType},
		{desc: "no content without body", init: ResponseInit{Status: 204}},
		{desc: "range checked before status text", init: ResponseInit{Status: 99, StatusText: "\n"}, err: ErrRange},
		{desc: "unsupported body", body: 3.14, err: ErrType},
	}
	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := NewResponse(tc.body, &tc.init)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewResponseHeaderSyntax(t *testing.T) {
	_, err := NewResponse(nil, &ResponseInit{Headers: []header.Field{{Name: "X", Value: "a\x00b"}}})
	assert.ErrorIs(t, err, ErrType)
	assert.ErrorIs(t, err, header.ErrSyntax)
}

func TestNewResponseBody(t *testing.T) {
	ctx := context.Background()

	res, err := NewResponse("hello", nil)
	require.NoError(t, err)

	contentType, ok := res.Headers().Get("Content-Type")
	assert.True(t, ok)
	assert.Equal(t, "text/plain;charset=UTF-8", contentType)
	assert.Equal(t, TypeDefault, res.Type())
	assert.Empty(t, res.URL())
	assert.Empty(t, res.URLList())
	assert.False(t, res.Redirected())

	assert.False(t, res.BodyUsed())
	text, err := res.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.True(t, res.BodyUsed())

	_, err = res.Text(ctx)
	assert.ErrorIs(t, err, ErrBodyUsed)
}

func TestNewResponseKeepsContentType(t *testing.T) {
	res, err := NewResponse("{}", &ResponseInit{
		Headers: []header.Field{{Name: "content-type", Value: "application/json"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"application/json"}, res.Headers().Values("Content-Type"))

	var v map[string]any
	require.NoError(t, res.JSON(context.Background(), &v))
	assert.Empty(t, v)
}

func TestResponseHeadersImmutable(t *testing.T) {
	res, err := NewResponse(nil, &ResponseInit{Headers: []header.Field{{Name: "X", Value: "1"}}})
	require.NoError(t, err)

	assert.ErrorIs(t, res.Headers().Append("Y", "2"), header.ErrReadOnly)
	assert.ErrorIs(t, res.Headers().Delete("X"), header.ErrReadOnly)
}

func TestResponseOK(t *testing.T) {
	testcases := []struct {
		status uint
		ok     bool
	}{
		{status: 200, ok: true},
		{status: 299, ok: true},
		{status: 300, ok: false},
		{status: 404, ok: false},
	}
	for _, tc := range testcases {
		res, err := NewResponse(nil, &ResponseInit{Status: tc.status})
		require.NoError(t, err)
		assert.Equal(t, tc.ok, res.OK(), "status %d", tc.status)
	}
}

func TestResponseWithoutBody(t *testing.T) {
	ctx := context.Background()

	res, err := NewResponse(nil, nil)
	require.NoError(t, err)

	assert.Nil(t, res.Body())
	assert.False(t, res.BodyUsed())

	text, err := res.Text(ctx)
	assert.NoError(t, err)
	assert.Empty(t, text)

	// Reading an absent body never disturbs anything.
	p, err := res.Bytes(ctx)
	assert.NoError(t, err)
	assert.Empty(t, p)

	var v any
	assert.ErrorIs(t, res.JSON(ctx, &v), ErrType)
}

func TestErrorResponse(t *testing.T) {
	res := ErrorResponse()

	assert.Equal(t, TypeError, res.Type())
	assert.Equal(t, uint(0), res.Status())
	assert.Empty(t, res.StatusText())
	assert.False(t, res.OK())
	assert.Nil(t, res.Body())
	assert.Equal(t, 0, res.Headers().Len())
	assert.Equal(t, header.GuardImmutable, res.Headers().Guard())
}

func TestRedirect(t *testing.T) {
	testcases := []struct {
		desc     string
		url      string
		status   uint
		location string
		err      error
	}{
		{desc: "found", url: "https://example.test/x", status: 302, location: "https://example.test/x"},
		{desc: "moved permanently", url: "http://example.test", status: 301, location: "http://example.test/"},
		{desc: "permanent redirect", url: "https://example.test/a?b=c", status: 308, location: "https://example.test/a?b=c"},
		{desc: "default port elided", url: "https://example.test:443/x", status: 303, location: "https://example.test/x"},
		{desc: "idna host", url: "https://bücher.example/x", status: 307, location: "https://xn--bcher-kva.example/x"},
		{desc: "upper case host", url: "https://EXAMPLE.test/x", status: 302, location: "https://example.test/x"},
		{desc: "not a redirect status", url: "https://example.test/x", status: 200, err: ErrRange},
		{desc: "not modified", url: "https://example.test/x", status: 304, err: ErrRange},
		{desc: "relative url", url: "/x", status: 302, err: ErrType},
		{desc: "unsupported scheme", url: "ftp://example.test/x", status: 302, err: ErrType},
		{desc: "malformed url", url: "https://exa mple.test/%zz", status: 302, err: ErrType},
	}
	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			res, err := Redirect(tc.url, tc.status)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tc.status, res.Status())
			assert.Nil(t, res.Body())

			location, ok := res.Headers().Get("Location")
			assert.True(t, ok)
			assert.Equal(t, tc.location, location)
			assert.Equal(t, 1, res.Headers().Len())
			assert.Equal(t, header.GuardImmutable, res.Headers().Guard())
		})
	}
}

func TestResponseClone(t *testing.T) {
	ctx := context.Background()

	res, err := NewResponse("shared", &ResponseInit{Status: 201, StatusText: "Created"})
	require.NoError(t, err)

	clone, err := res.Clone()
	require.NoError(t, err)

	assert.Equal(t, res.Status(), clone.Status())
	assert.Equal(t, res.StatusText(), clone.StatusText())
	assert.Equal(t, res.Headers().Fields(), clone.Headers().Fields())
	assert.NotSame(t, res.Headers(), clone.Headers())

	text, err := res.Text(ctx)
	require.NoError(t, err)
	cloneText, err := clone.Text(ctx)
	require.NoError(t, err)

	assert.Equal(t, "shared", text)
	assert.Equal(t, "shared", cloneText)

	_, err = res.Clone()
	assert.ErrorIs(t, err, ErrBodyUsed)
}

func TestResponseCloneWithoutBody(t *testing.T) {
	res, err := NewResponse(nil, &ResponseInit{Status: 204})
	require.NoError(t, err)

	clone, err := res.Clone()
	require.NoError(t, err)
	assert.Nil(t, clone.Body())
	assert.Equal(t, uint(204), clone.Status())
}

func TestResponseTypeString(t *testing.T) {
	assert.Equal(t, "basic", TypeBasic.String())
	assert.Equal(t, "opaqueredirect", TypeOpaqueRedirect.String())
	assert.Equal(t, "unknown", ResponseType(42).String())
}
