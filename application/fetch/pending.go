package fetch

import (
	"context"
	"sync"
)

// Pending is the result of a fetch which settles exactly once.
type Pending struct {
	once sync.Once
	done chan struct{}

	res *Response
	err error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// settle settles p unless it has been settled already. It reports whether it did.
func (p *Pending) settle(res *Response, err error) (settled bool) {
	p.once.Do(func() {
		p.res, p.err = res, err
		close(p.done)
		settled = true
	})
	return settled
}

// Done returns a channel closed once p settles.
func (p *Pending) Done() <-chan struct{} { return p.done }

func (p *Pending) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait waits for p to settle and returns its result.
// Giving up on ctx doesn't abort the fetch.
func (p *Pending) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-p.done:
		return p.res, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
