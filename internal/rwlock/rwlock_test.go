package rwlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRWLock_ConcurrentReaders(t *testing.T) {
	l := New(time.Second)
	ctx := context.Background()

	h1, err := l.AcquireRead(ctx)
	require.NoError(t, err)
	h2, err := l.AcquireRead(ctx)
	require.NoError(t, err)

	snap := l.Snapshot()
	assert.Equal(t, 2, snap.Readers)
	assert.False(t, snap.Writer)

	h1.Release()
	h2.Release()

	snap = l.Snapshot()
	assert.Equal(t, 0, snap.Readers)
}

func TestRWLock_WriterExcludesReaders(t *testing.T) {
	l := New(time.Second)
	ctx := context.Background()

	w, err := l.AcquireWrite(ctx)
	require.NoError(t, err)

	readCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.AcquireRead(readCtx)
	assert.ErrorIs(t, err, ErrTimeout)

	w.Release()

	h, err := l.AcquireRead(ctx)
	require.NoError(t, err)
	h.Release()
}

// TestRWLock_WriterPreference reproduces the ordering scenario: 3 readers
// hold the lock, a writer queues behind them, a 4th reader arrives after
// the writer is already queued. Releasing the 3 initial readers must admit
// the writer before the 4th reader, even though the 4th reader queued
// chronologically before the writer released.
func TestRWLock_WriterPreference(t *testing.T) {
	l := New(5 * time.Second)
	ctx := context.Background()

	var readers []*Handle
	for i := 0; i < 3; i++ {
		h, err := l.AcquireRead(ctx)
		require.NoError(t, err)
		readers = append(readers, h)
	}

	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	writerDone := make(chan struct{})
	go func() {
		h, err := l.AcquireWrite(ctx)
		require.NoError(t, err)
		record("writer-acquired")
		time.Sleep(20 * time.Millisecond)
		record("writer-released")
		h.Release()
		close(writerDone)
	}()

	// Give the writer goroutine a chance to queue before the 4th reader
	// arrives, as the scenario requires.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, l.Snapshot().PendingWrite)

	fourthReaderDone := make(chan struct{})
	go func() {
		h, err := l.AcquireRead(ctx)
		require.NoError(t, err)
		record("fourth-reader-acquired")
		h.Release()
		close(fourthReaderDone)
	}()

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, l.Snapshot().PendingReads)

	for _, h := range readers {
		h.Release()
	}

	<-writerDone
	<-fourthReaderDone

	require.Equal(t, []string{"writer-acquired", "writer-released", "fourth-reader-acquired"}, order)
}

func TestRWLock_TimeoutLeavesStateUnchanged(t *testing.T) {
	l := New(time.Second)
	ctx := context.Background()

	w, err := l.AcquireWrite(ctx)
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = l.AcquireWrite(shortCtx)
	assert.ErrorIs(t, err, ErrTimeout)

	snap := l.Snapshot()
	assert.True(t, snap.Writer)
	assert.Equal(t, 0, snap.PendingWrite)

	w.Release()
	snap = l.Snapshot()
	assert.False(t, snap.Writer)
}

func TestRWLock_ReleaseIsIdempotent(t *testing.T) {
	l := New(time.Second)
	ctx := context.Background()

	h, err := l.AcquireRead(ctx)
	require.NoError(t, err)

	h.Release()
	h.Release()

	assert.Equal(t, 0, l.Snapshot().Readers)
}

func TestRWLock_ForceReset(t *testing.T) {
	l := New(time.Second)
	ctx := context.Background()

	_, err := l.AcquireWrite(ctx)
	require.NoError(t, err)

	l.ForceReset()

	snap := l.Snapshot()
	assert.False(t, snap.Writer)
	assert.Equal(t, 0, snap.Readers)

	h, err := l.AcquireWrite(ctx)
	require.NoError(t, err)
	h.Release()
}
