package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/medeval/internal/domain"
)

const (
	leaseRetryMin = 20 * time.Millisecond
	leaseRetryMax = 250 * time.Millisecond
)

// withSessionLock runs fn while holding the session's lease. Leases live in
// the shared store, so they serialize writers across process instances.
func (s *Service) withSessionLock(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	token := uuid.New().String()
	deadline := time.Now().Add(s.config.SessionLockWait)
	wait := leaseRetryMin

	for {
		ok, err := s.store.AcquireSessionLease(ctx, sessionID, token, time.Now(), s.config.LeaseTTL())
		if err != nil {
			if ctx.Err() != nil {
				return leaseAbandoned(sessionID, ctx.Err())
			}
			return domain.Persistence(err, "failed to acquire session lease")
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return domain.Conflict("session %s is busy, try again later", sessionID)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return leaseAbandoned(sessionID, ctx.Err())
		case <-timer.C:
		}
		if wait *= 2; wait > leaseRetryMax {
			wait = leaseRetryMax
		}
	}

	defer func() {
		// Release even when the request context is already done.
		if err := s.store.ReleaseSessionLease(context.WithoutCancel(ctx), sessionID, token); err != nil {
			s.logger.Warn("failed to release session lease", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()
	return fn(ctx)
}

func leaseAbandoned(sessionID string, err error) error {
	return &domain.Error{
		Kind:    domain.KindConflict,
		Message: fmt.Sprintf("gave up waiting for session %s", sessionID),
		Err:     err,
	}
}
