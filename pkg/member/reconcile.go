package member

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lurenjiayibingding/Swift/pkg/events"
	"github.com/lurenjiayibingding/Swift/pkg/model"
	"github.com/lurenjiayibingding/Swift/pkg/schedule"
)

const (
	monitorInitialDelay = 3 * time.Second
	monitorPeriod       = 5 * time.Second
)

// StartMonitor begins periodic reconciliation: an immediate first fire, then
// every 5s, with a 3s initial delay on the timer variant used when the
// caller wants the very first tick deferred (spec §4.2).
func (r *Registry) StartMonitor(ctx context.Context, runner *schedule.Runner) {
	r.runner = runner
	// Fire once immediately, matching "initial fire immediate" in spec §4.2;
	// the scheduled timer below then takes over with its own initial delay
	// for the *next* fire.
	r.Reconcile(ctx)
	r.entryID = runner.Add("member-monitor", monitorInitialDelay, monitorPeriod, func() {
		r.Reconcile(ctx)
	})
}

// StopMonitor disposes the monitor timer. An in-flight reconcile still runs
// to completion (spec §5).
func (r *Registry) StopMonitor() {
	if r.runner != nil {
		r.runner.Remove(r.entryID)
	}
}

// Reconcile runs one pass of the algorithm in spec §4.2. A boolean
// re-entrancy guard (not the shared refreshLock — see spec §5) suppresses a
// concurrent tick while one is already running.
func (r *Registry) Reconcile(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&r.refreshing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&r.refreshing, 0)

	lf := logrus.Fields{"cluster": r.cluster, "component": "member"}

	list, modifyIndex, err := r.readList(ctx)
	if err != nil {
		logrus.WithError(err).WithFields(lf).Warn("read members")
		return
	}

	now := time.Now()
	dirty := false
	var pruned []model.Member

	for i := range list.Members {
		m := &list.Members[i]
		healthy, err := r.store.CheckHealth(ctx, m.ID)
		if err != nil {
			logrus.WithError(err).WithFields(lf).WithField("member_id", m.ID).Warn("health probe failed")
			continue
		}

		if healthy {
			if m.Status != model.StatusOnline {
				dirty = true
			}
			m.Status = model.StatusOnline
			m.OfflineTime = nil
			continue
		}

		if m.Status != model.StatusOffline {
			dirty = true
		}
		m.Status = model.StatusOffline
		if m.OfflineTime == nil {
			t := now
			m.OfflineTime = &t
			dirty = true
		} else if now.Sub(*m.OfflineTime) > OfflinePruneAfter {
			pruned = append(pruned, *m)
			dirty = true
		}
	}

	if len(pruned) > 0 {
		list.Members = removeMembers(list.Members, pruned)
	}

	if dirty {
		data, err := model.Marshal(list)
		if err != nil {
			logrus.WithError(err).WithFields(lf).Error("marshal members")
			return
		}
		ok, err := r.store.CAS(ctx, membersKey(r.cluster), data, modifyIndex)
		if err != nil {
			logrus.WithError(err).WithFields(lf).Warn("cas members")
			return
		}
		if !ok {
			// Another writer raced us; the next tick will see the updated
			// value (spec §4.2 step 3).
			time.Sleep(casRetryDelay)
			return
		}
	}

	r.applySnapshot(list.Members)
}

func removeMembers(members []model.Member, remove []model.Member) []model.Member {
	drop := make(map[string]bool, len(remove))
	for _, m := range remove {
		drop[m.ID] = true
	}
	out := make([]model.Member, 0, len(members))
	for _, m := range members {
		if !drop[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

// applySnapshot diffs the freshly reconciled list against the previous
// in-memory view by id, firing MemberJoin/MemberRemove, then refreshes the
// derived current/manager/workers fields (spec §4.2 steps 4-6).
func (r *Registry) applySnapshot(latest []model.Member) {
	r.mu.Lock()
	previous := r.members
	r.mu.Unlock()

	previousByID := make(map[string]model.Member, len(previous))
	for _, m := range previous {
		previousByID[m.ID] = m
	}
	latestByID := make(map[string]bool, len(latest))
	for _, m := range latest {
		latestByID[m.ID] = true
	}

	var joined []model.Member
	for _, m := range latest {
		if _, ok := previousByID[m.ID]; !ok {
			joined = append(joined, m)
		}
	}
	var removed []model.Member
	for _, m := range previous {
		if !latestByID[m.ID] {
			removed = append(removed, m)
		}
	}

	var current *model.Member
	var manager *model.Member
	var workers []model.Member
	for i := range latest {
		m := latest[i]
		if m.ID == r.localID {
			c := m
			current = &c
		}
		if m.Role == model.RoleManager && manager == nil {
			mgr := m
			manager = &mgr
		}
		if m.Role == model.RoleWorker {
			workers = append(workers, m)
		}
	}

	r.mu.Lock()
	r.members = latest
	r.current = current
	r.manager = manager
	r.workers = workers
	r.mu.Unlock()

	// Join events precede remove events within one reconcile pass (spec §5).
	for _, m := range joined {
		r.bus.Publish(events.MemberJoin, m)
	}
	for _, m := range removed {
		r.bus.Publish(events.MemberRemove, m)
	}
}
