package body

import (
	"context"
	"fetch-stack/lib/ds/queue"
	"io"
	"sync"
)

// tee pulls chunks from the parent on behalf of two branches.
// A chunk pulled by one branch is buffered for the other.
type tee struct {
	parent *Body
	sem    chan struct{} // held while pulling from the parent.

	mu       sync.Mutex
	branches [2]*teeBranch
	done     bool
}

func (t *tee) branch(idx int) *teeBranch {
	br := &teeBranch{
		t:         t,
		idx:       idx,
		pending:   queue.NewChunks(),
		cancelled: make(chan struct{}),
	}
	t.branches[idx] = br
	return br
}

type teeBranch struct {
	t   *tee
	idx int

	// Guarded by t.mu.
	pending   *queue.Chunks
	err       error
	cancelled chan struct{}
}

var _ source = (*teeBranch)(nil)

func (br *teeBranch) other() *teeBranch { return br.t.branches[1-br.idx] }

func (br *teeBranch) next(ctx context.Context) ([]byte, error) {
	if chunk, ok, err := br.buffered(); ok {
		return chunk, err
	}

	select {
	case br.t.sem <- struct{}{}:
	case <-br.cancelled:
		return nil, br.failure()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-br.t.sem }()

	// The other branch may have pulled while we were waiting.
	if chunk, ok, err := br.buffered(); ok {
		return chunk, err
	}

	chunk, err := br.t.parent.next(ctx)
	if err == io.EOF {
		br.t.mu.Lock()
		br.t.done = true
		br.t.mu.Unlock()
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}

	br.t.mu.Lock()
	if other := br.other(); other.err == nil {
		other.pending.Enqueue(chunk)
	}
	br.t.mu.Unlock()

	return chunk, nil
}

// buffered returns a chunk or a terminal error if one is available without pulling.
func (br *teeBranch) buffered() (chunk []byte, ok bool, err error) {
	br.t.mu.Lock()
	defer br.t.mu.Unlock()

	if br.err != nil {
		return nil, true, br.err
	}
	if c, qErr := br.pending.Dequeue(); qErr == nil {
		return c, true, nil
	}
	if br.t.done {
		return nil, true, io.EOF
	}
	return nil, false, nil
}

func (br *teeBranch) failure() error {
	br.t.mu.Lock()
	defer br.t.mu.Unlock()
	return br.err
}

// cancel cancels the branch. The parent is cancelled once both branches are.
func (br *teeBranch) cancel(reason error) {
	br.t.mu.Lock()
	if br.err != nil {
		br.t.mu.Unlock()
		return
	}
	br.err = reason
	br.pending.Clear()
	close(br.cancelled)
	both := br.other().err != nil
	br.t.mu.Unlock()

	if both {
		br.t.parent.Cancel(reason)
	}
}
