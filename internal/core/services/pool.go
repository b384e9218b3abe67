package services

import (
	"context"
	"time"

	"dental-inference-service/internal/core/domain"
)

// Pool bounds concurrent heavy work (inference runs, blocking remote waits)
// so the process keeps answering health and status requests while the
// accelerator is busy.
type Pool struct {
	slots        chan struct{}
	queueTimeout time.Duration
}

func NewPool(maxConcurrent int, queueTimeout time.Duration) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Pool{
		slots:        make(chan struct{}, maxConcurrent),
		queueTimeout: queueTimeout,
	}
}

// Acquire waits for a slot until the queue timeout or ctx expires. The
// returned release function must be called exactly once.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	waitCtx := ctx
	if p.queueTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.queueTimeout)
		defer cancel()
	}

	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }, nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.ErrQueueFull
	}
}

// InUse reports how many slots are currently held.
func (p *Pool) InUse() int {
	return len(p.slots)
}
