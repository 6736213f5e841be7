package crypto

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Bounded caps how many hash/verify computations run at once so a burst of
// logins cannot starve the rest of the process of CPU. Calls wait for a slot
// under the caller's context; the computation itself is not interruptible.
type Bounded struct {
	h   *Hasher
	sem *semaphore.Weighted
}

// NewBounded wraps h. n <= 0 means GOMAXPROCS slots.
func NewBounded(h *Hasher, n int) *Bounded {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Bounded{h: h, sem: semaphore.NewWeighted(int64(n))}
}

// Hash runs Hasher.Hash once a slot is free.
func (b *Bounded) Hash(ctx context.Context, plaintext string) (HashedCredential, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return HashedCredential{}, err
	}
	defer b.sem.Release(1)
	return b.h.Hash(plaintext)
}

// Verify runs Hasher.Verify once a slot is free.
func (b *Bounded) Verify(ctx context.Context, plaintext string, stored HashedCredential) (bool, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer b.sem.Release(1)
	return b.h.Verify(plaintext, stored)
}
