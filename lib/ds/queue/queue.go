package queue

import (
	"errors"
)

var ErrQueueEmpty = errors.New("queue is empty")

type Queue[T any] interface {
	Enqueue(v T)
	Dequeue() (T, error)
	Peek() (T, error)
	Len() uint
	Clear()
}

// HeadTail is a FIFO queue made of two slices, like the queue of waiting
// connections in net/http's transport.
// Elements are pushed to the tail and popped from the head.
// When the head runs out, the tail becomes the head and the old head
// is recycled as the next tail, so the backing arrays are reused.
type HeadTail[T any] struct {
	head    []T
	headPos int
	tail    []T
}

func NewHeadTail[T any](initialCap uint) *HeadTail[T] {
	return &HeadTail[T]{tail: make([]T, 0, initialCap)}
}

var _ Queue[int] = (*HeadTail[int])(nil)

func (q *HeadTail[T]) Enqueue(v T) {
	q.tail = append(q.tail, v)
}

func (q *HeadTail[T]) Dequeue() (T, error) {
	var zero T
	if !q.fill() {
		return zero, ErrQueueEmpty
	}

	v := q.head[q.headPos]
	q.head[q.headPos] = zero
	q.headPos++

	return v, nil
}

func (q *HeadTail[T]) Peek() (T, error) {
	if !q.fill() {
		var zero T
		return zero, ErrQueueEmpty
	}
	return q.head[q.headPos], nil
}

func (q *HeadTail[T]) Len() uint {
	return uint(len(q.head) - q.headPos + len(q.tail))
}

// Clear drops every element and releases the backing arrays.
func (q *HeadTail[T]) Clear() {
	q.head, q.headPos, q.tail = nil, 0, nil
}

// fill swaps head and tail when head is exhausted.
// It reports whether an element is available.
func (q *HeadTail[T]) fill() bool {
	if q.headPos < len(q.head) {
		return true
	}
	if len(q.tail) == 0 {
		return false
	}

	q.head, q.headPos, q.tail = q.tail, 0, q.head[:0]
	return true
}

// Chunks is a queue of byte chunks keeping track of their total size.
// Empty chunks are not queued.
type Chunks struct {
	q    HeadTail[[]byte]
	size int
}

func NewChunks() *Chunks {
	return &Chunks{}
}

var _ Queue[[]byte] = (*Chunks)(nil)

func (c *Chunks) Enqueue(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c.q.Enqueue(chunk)
	c.size += len(chunk)
}

func (c *Chunks) Dequeue() ([]byte, error) {
	chunk, err := c.q.Dequeue()
	if err != nil {
		return nil, err
	}
	c.size -= len(chunk)
	return chunk, nil
}

func (c *Chunks) Peek() ([]byte, error) { return c.q.Peek() }

func (c *Chunks) Len() uint { return c.q.Len() }

// Size returns the number of queued bytes.
func (c *Chunks) Size() int { return c.size }

func (c *Chunks) Clear() {
	c.q.Clear()
	c.size = 0
}
