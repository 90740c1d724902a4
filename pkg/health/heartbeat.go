// Package health implements the TTL heartbeat (spec §4.3): registers the
// local member's service with a 15s TTL and refreshes it every 10s for the
// lifetime of the process. Grounded on the teacher's lease-refresh pattern
// in pkg/etcd/etcd.go and on the §9 design note "Heartbeat shutdown", which
// this implementation addresses directly with a cancellable context instead
// of the teacher's unstoppable loop.
package health

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lurenjiayibingding/Swift/pkg/kv"
)

const (
	registrationTTL = 15 * time.Second
	heartbeatPeriod = 10 * time.Second
	retryDelay      = time.Second
)

// Heartbeat owns the background PassTTL loop for one local member.
type Heartbeat struct {
	registry kv.Registry
	id       string
	address  string

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Heartbeat for id/address against the given registry.
func New(registry kv.Registry, id, address string) *Heartbeat {
	return &Heartbeat{registry: registry, id: id, address: address}
}

// Init registers the local service with TTL 15s and launches the background
// PassTTL loop. Stop cancels that loop.
func (h *Heartbeat) Init(ctx context.Context) error {
	if err := h.registry.RegisterService(ctx, h.id, h.address, int(registrationTTL.Seconds())); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})

	go h.run(loopCtx)

	return nil
}

func (h *Heartbeat) run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.registry.PassTTL(ctx, h.id); err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{"component": "health", "member_id": h.id}).Warn("PassTTL failed, retrying")
				select {
				case <-ctx.Done():
					return
				case <-time.After(retryDelay):
				}
				if err := h.registry.PassTTL(ctx, h.id); err != nil {
					logrus.WithError(err).WithFields(logrus.Fields{"component": "health", "member_id": h.id}).Warn("PassTTL retry failed")
				}
			}
		}
	}
}

// Stop cancels the background loop and waits for it to exit.
func (h *Heartbeat) Stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
}
