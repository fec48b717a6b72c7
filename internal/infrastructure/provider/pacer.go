package provider

import (
	"context"
	"time"
)

// Pacer enforces a fixed wait before each remote call.
type Pacer struct {
	Delay time.Duration
}

// Wait blocks for Delay or until ctx is done.
func (p Pacer) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
