package persistence

import (
	"context"

	"wa-sync-service/internal/observability"
)

// UnitOfWork is one database round-trip executed under the gateway's cap.
type UnitOfWork func(ctx context.Context) error

// Gateway is a bounded-concurrency gate in front of the database pool. At
// most limit units run at once; excess submissions queue FIFO on the
// semaphore channel. Failures inside a unit are returned to the caller, never
// retried here.
type Gateway struct {
	slots chan struct{}
}

// NewGateway creates a gateway allowing limit concurrent units.
func NewGateway(limit int) *Gateway {
	if limit < 1 {
		limit = 1
	}
	return &Gateway{slots: make(chan struct{}, limit)}
}

// Do runs the unit once a capacity slot frees up. Waiting is cancelable via
// ctx; a unit already running is awaited to completion or failure.
func (g *Gateway) Do(ctx context.Context, unit UnitOfWork) error {
	observability.GatewayQueuedInc()
	select {
	case g.slots <- struct{}{}:
		observability.GatewayQueuedDec()
	case <-ctx.Done():
		observability.GatewayQueuedDec()
		return ctx.Err()
	}

	observability.GatewayInFlightInc()
	defer func() {
		observability.GatewayInFlightDec()
		<-g.slots
	}()
	return unit(ctx)
}

// InFlight reports how many units currently hold a slot.
func (g *Gateway) InFlight() int {
	return len(g.slots)
}

// Cap reports the configured concurrency limit.
func (g *Gateway) Cap() int {
	return cap(g.slots)
}
