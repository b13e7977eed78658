package dispatch

import (
	"context"
	"maps"
	"net/http"
	"slices"

	"github.com/pkg/errors"
)

// HTTPClient returns a [RoundTripFunc] performing exchanges with c.
// Redirects are never followed. They are handed to the handler as they are.
// Nil c means [http.DefaultClient].
func HTTPClient(c *http.Client) RoundTripFunc {
	if c == nil {
		c = http.DefaultClient
	}

	client := *c
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return func(ctx context.Context, d Descriptor) (*Reply, error) {
		req, err := http.NewRequestWithContext(ctx, d.Method, d.URL(), d.Body)
		if err != nil {
			return nil, errors.Wrap(err, "building request")
		}
		if d.Body != nil && d.ContentLength > 0 {
			req.ContentLength = d.ContentLength
		}

		for _, f := range d.Headers {
			name, value := string(f.Name), string(f.Value)
			if http.CanonicalHeaderKey(name) == "Host" {
				req.Host = value
				continue
			}
			req.Header.Add(name, value)
		}

		res, err := client.Do(req)
		if err != nil {
			return nil, err
		}

		return &Reply{
			StatusCode: res.StatusCode,
			Headers:    toFields(res.Header),
			Body:       res.Body,
			Trailers:   func() []Field { return toFields(res.Trailer) },
		}, nil
	}
}

// toFields flattens h. Names are sorted since the order of h is lost.
func toFields(h http.Header) []Field {
	var fields []Field
	for _, name := range slices.Sorted(maps.Keys(h)) {
		for _, value := range h[name] {
			fields = append(fields, NewField(name, value))
		}
	}
	return fields
}
