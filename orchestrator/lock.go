package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// DefaultLockTimeout bounds how long a reconcile run waits for the plan lock.
// Generous on purpose: a competing run may legitimately be mid-pipeline.
const DefaultLockTimeout = 5 * time.Minute

// FlockPlanLock serializes reconciliation runs with a file lock, the local
// equivalent of a distributed state lock. Exactly one run may read desired
// and current state and commit a reconciliation decision at a time.
type FlockPlanLock struct {
	flk     *flock.Flock
	timeout time.Duration
	log     *slog.Logger
}

// NewFlockPlanLock creates a plan lock at path. A zero timeout uses
// DefaultLockTimeout.
func NewFlockPlanLock(path string, timeout time.Duration, log *slog.Logger) *FlockPlanLock {
	if timeout == 0 {
		timeout = DefaultLockTimeout
	}
	return &FlockPlanLock{flk: flock.New(path), timeout: timeout, log: log}
}

// Lock blocks until the lock is held, bounded by the configured timeout and
// the caller's context.
func (l *FlockPlanLock) Lock(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	locked, err := l.flk.TryLockContext(ctx, time.Second)
	if err != nil {
		return fmt.Errorf("failed to acquire plan lock %s: %w", l.flk.Path(), err)
	}
	if !locked {
		return fmt.Errorf("plan lock %s held by another run", l.flk.Path())
	}
	return nil
}

// Unlock releases a held lock.
func (l *FlockPlanLock) Unlock() error {
	return l.flk.Unlock()
}

// ForceRelease breaks the lock regardless of holder. Operators use this only
// after confirming no other reconciliation is active.
func (l *FlockPlanLock) ForceRelease() error {
	_ = l.flk.Unlock()
	if err := os.Remove(l.flk.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to force-release plan lock: %w", err)
	}
	l.log.Warn("Plan lock force-released", slog.String("path", l.flk.Path()))
	return nil
}
