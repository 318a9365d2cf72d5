package gateway

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// maxReaders bounds the number of readers holding the lock at once.
const maxReaders = 1 << 30

// rwLock is a reader/writer lock whose acquisition can be abandoned through a context.
// Readers take one unit of the semaphore, writers take all of it. Waiters are served
// in FIFO order, so a queued writer holds back readers that arrive after it.
type rwLock struct {
	sem *semaphore.Weighted
}

func newRWLock() *rwLock {
	return &rwLock{sem: semaphore.NewWeighted(maxReaders)}
}

func (l *rwLock) RLock(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

func (l *rwLock) RUnlock() {
	l.sem.Release(1)
}

func (l *rwLock) Lock(ctx context.Context) error {
	return l.sem.Acquire(ctx, maxReaders)
}

func (l *rwLock) Unlock() {
	l.sem.Release(maxReaders)
}
