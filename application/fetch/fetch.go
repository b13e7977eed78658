// Package fetch implements fetching resources over a callback based dispatcher.
//
// A fetch settles its [Pending] result exactly once: with a [Response] as soon as
// the response head arrives, or with an error. Errors happening after that are
// delivered through the response body instead.
//
// Reference: https://fetch.spec.whatwg.org/#fetch-method
package fetch

import (
	"context"
	"fetch-stack/application/fetch/dispatch"
	"log/slog"
	"net/url"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

type Options struct {
	// Origin is the origin fetches are made from, such as "https://example.com".
	// Responses from other origins are filtered. Empty means every response is same-origin.
	Origin string
	// BaseURL resolves relative URLs given to Fetch. Empty means only absolute URLs are accepted.
	BaseURL string
	// HighWaterMark is the number of buffered response body bytes pausing the exchange.
	// Zero means DefaultHighWaterMark and a negative value disables back-pressure.
	HighWaterMark int
}

const DefaultHighWaterMark = 64 * 1024

type Client struct {
	dispatcher dispatch.Dispatcher

	opts    Options
	origin  *url.URL
	baseURL *url.URL

	logger *slog.Logger
	clock  clock.Clock
}

func New(
	d dispatch.Dispatcher,
	logger *slog.Logger,
	clock clock.Clock,
	opts Options,
) (*Client, error) {
	switch {
	case opts.HighWaterMark == 0:
		opts.HighWaterMark = DefaultHighWaterMark
	case opts.HighWaterMark < 0:
		opts.HighWaterMark = 0
	}

	c := &Client{
		dispatcher: d,
		opts:       opts,
		logger:     logger,
		clock:      clock,
	}

	if opts.Origin != "" {
		origin, err := parseURL(opts.Origin, nil)
		if err != nil {
			return nil, errors.Wrap(err, "parsing origin")
		}
		c.origin = origin
	}

	if opts.BaseURL != "" {
		base, err := parseURL(opts.BaseURL, nil)
		if err != nil {
			return nil, errors.Wrap(err, "parsing base url")
		}
		c.baseURL = base
	}

	return c, nil
}

// Fetch starts fetching input, which is anything accepted by [NewRequest].
// Relative URLs are resolved against the base URL of the client.
// Cancelling ctx aborts the fetch, including a delivered response whose body is still streaming.
func (c *Client) Fetch(ctx context.Context, input any, init *RequestInit) *Pending {
	p := newPending()

	req, err := newRequest(input, init, c.baseURL)
	if err != nil {
		p.settle(nil, err)
		return p
	}

	c.newExchange(ctx, req, p).run()
	return p
}

// Do fetches input and waits for the result.
func (c *Client) Do(ctx context.Context, input any, init *RequestInit) (*Response, error) {
	p := c.Fetch(ctx, input, init)
	<-p.Done()
	return p.res, p.err
}

// classify decides the type of the response to req.
func (c *Client) classify(req *Request) ResponseType {
	switch {
	case c.origin == nil || sameOrigin(c.origin, req.url):
		return TypeBasic
	case req.mode == ModeNoCORS:
		return TypeOpaque
	default:
		return TypeCORS
	}
}
