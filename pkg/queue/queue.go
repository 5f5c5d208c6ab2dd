// Package queue defines the bounded-queue contract shared by every hop in the
// pipeline. Two implementations satisfy it: memq (in-process, channel-backed,
// the default) and redisq (Redis Streams, for the detector-adapter process
// boundary).
package queue

import "context"

// Message wraps a value with a sentinel flag, so shutdown-by-sentinel is a
// typed concern instead of a stringly-typed "done" command.
type Message[T any] struct {
	Sentinel bool
	Value    T
}

// Sentinel builds a sentinel message of type T.
func Sentinel[T any]() Message[T] {
	return Message[T]{Sentinel: true}
}

// Of wraps a data value.
func Of[T any](v T) Message[T] {
	return Message[T]{Value: v}
}

// Queue is a bounded, blocking FIFO. Put and Get may both block; callers must
// not busy-wait around them.
type Queue[T any] interface {
	Put(ctx context.Context, msg Message[T]) error
	Get(ctx context.Context) (Message[T], error)
	// Close releases resources held by the queue. It does not enqueue a sentinel;
	// callers push a Sentinel() message through Put when they want downstream
	// readers to observe end-of-stream.
	Close() error
}
