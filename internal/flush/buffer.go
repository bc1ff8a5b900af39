// Package flush provides a type-keyed, in-memory write-behind queue with
// at-least-once flush semantics. Callers enqueue units of deferred work
// (pending inserts, pending deletions) from any goroutine; a periodic
// drain hands FIFO batches to idempotent handlers.
package flush

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Buffer holds one lazily-created FIFO queue per item type.
type Buffer struct {
	mu     sync.Mutex
	queues map[reflect.Type][]interface{}
}

func NewBuffer() *Buffer {
	return &Buffer{queues: make(map[reflect.Type][]interface{})}
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Enqueue appends item to the queue for T. Safe for concurrent use.
func Enqueue[T any](b *Buffer, item T) {
	k := typeKey[T]()
	b.mu.Lock()
	b.queues[k] = append(b.queues[k], item)
	b.mu.Unlock()
}

// PendingCount returns the number of queued items for T.
func PendingCount[T any](b *Buffer) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[typeKey[T]()])
}

// Flush drains the current queue for T into a snapshot batch and hands it
// to handler. Items enqueued while the handler runs land in a fresh queue
// and are not part of the in-flight batch.
//
// On handler failure the entire batch is re-enqueued ahead of anything
// queued meanwhile, preserving FIFO order, and the error is returned: a
// flush either fully succeeds or loses nothing. Retries may therefore
// re-apply items, so handlers must be idempotent.
func Flush[T any](ctx context.Context, b *Buffer, handler func(ctx context.Context, batch []T) error) error {
	k := typeKey[T]()

	b.mu.Lock()
	raw := b.queues[k]
	delete(b.queues, k)
	b.mu.Unlock()

	if len(raw) == 0 {
		return nil
	}

	batch := make([]T, len(raw))
	for i, item := range raw {
		batch[i] = item.(T)
	}

	if err := handler(ctx, batch); err != nil {
		b.mu.Lock()
		b.queues[k] = append(raw, b.queues[k]...)
		b.mu.Unlock()
		return fmt.Errorf("flush %s: %w", k, err)
	}
	return nil
}
