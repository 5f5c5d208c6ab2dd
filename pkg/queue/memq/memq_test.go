package memq

import (
	"context"
	"testing"
	"time"

	"tiledetect/pkg/queue"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := New[int](2)

	if err := q.Put(ctx, queue.Of(42)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	msg, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if msg.Sentinel || msg.Value != 42 {
		t.Fatalf("got %+v, want data message with value 42", msg)
	}
}

func TestPutBlocksWhenFull(t *testing.T) {
	ctx := context.Background()
	q := New[int](1)
	_ = q.Put(ctx, queue.Of(1))

	putCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := q.Put(putCtx, queue.Of(2)); err == nil {
		t.Fatalf("expected Put to block and time out on a full queue")
	}
}

func TestGetBlocksWhenEmpty(t *testing.T) {
	ctx := context.Background()
	q := New[int](1)

	getCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := q.Get(getCtx); err == nil {
		t.Fatalf("expected Get to block and time out on an empty queue")
	}
}

func TestCloseDrainsBufferedThenSyntheticSentinel(t *testing.T) {
	ctx := context.Background()
	q := New[int](2)
	_ = q.Put(ctx, queue.Of(1))
	_ = q.Close()

	msg, err := q.Get(ctx)
	if err != nil || msg.Sentinel || msg.Value != 1 {
		t.Fatalf("expected buffered value 1 before sentinel, got %+v err %v", msg, err)
	}

	sentinel, err := q.Get(ctx)
	if err != nil || !sentinel.Sentinel {
		t.Fatalf("expected synthetic sentinel after drain, got %+v err %v", sentinel, err)
	}
}
