// Package memq is the default, in-process Queue[T]: a bounded Go channel. It
// is used for every internal pipeline hop (ingress, splitter fan-out pipes,
// the cache queue, egress, log) so the core pipeline stays stateless
// and dependency-free, moving tiles and results through plain buffered
// channels rather than a broker.
package memq

import (
	"context"

	"tiledetect/pkg/queue"
)

// MemQueue is a bounded, channel-backed queue.Queue[T].
type MemQueue[T any] struct {
	ch chan queue.Message[T]
}

// New creates a MemQueue with the given capacity.
func New[T any](capacity int) *MemQueue[T] {
	return &MemQueue[T]{ch: make(chan queue.Message[T], capacity)}
}

func (q *MemQueue[T]) Put(ctx context.Context, msg queue.Message[T]) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemQueue[T]) Get(ctx context.Context) (queue.Message[T], error) {
	select {
	case msg, ok := <-q.ch:
		if !ok {
			return queue.Sentinel[T](), nil
		}
		return msg, nil
	case <-ctx.Done():
		return queue.Message[T]{}, ctx.Err()
	}
}

// Close closes the underlying channel. Further Gets drain any buffered messages
// and then return a synthetic sentinel; further Puts panic, as with any closed Go
// channel — callers must stop producing before calling Close.
func (q *MemQueue[T]) Close() error {
	close(q.ch)
	return nil
}
