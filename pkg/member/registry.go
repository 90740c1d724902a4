// Package member implements the Member registry (spec §4.2): it owns the
// Members list stored at Swift/<cluster>/Members, enforces Manager
// uniqueness at registration, prunes long-offline members, and reconciles
// in-memory state against the KV value on a timer.
//
// Grounded on the teacher's CAS-retry idiom in pkg/cluster/storage.go (read,
// mutate, CAS, retry-from-the-top on conflict) and its cluster membership
// bookkeeping in pkg/etcd/etcd.go.
package member

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/lurenjiayibingding/Swift/pkg/events"
	"github.com/lurenjiayibingding/Swift/pkg/kv"
	"github.com/lurenjiayibingding/Swift/pkg/model"
	"github.com/lurenjiayibingding/Swift/pkg/schedule"
	"github.com/lurenjiayibingding/Swift/pkg/swifterrors"
)

const (
	// OfflinePruneAfter is how long a member may remain offline before the
	// next reconcile removes it (spec §3 invariant).
	OfflinePruneAfter = 3 * time.Hour

	casRetryDelay      = time.Second
	registerRetryCount = 3
	registerRetryDelay = 2 * time.Second
)

func membersKey(cluster string) string {
	return "Swift/" + cluster + "/Members"
}

// Registry owns the in-memory Members view for one cluster and keeps it in
// sync with KV.
type Registry struct {
	cluster string
	localID string
	store   kv.Store
	bus     *events.Bus

	// refreshing is the non-blocking re-entrancy guard described in spec
	// §4.2 step-6 / §5: a health probe reconcile can take seconds and must
	// never serialize against the faster config/record timers, so it uses
	// its own flag instead of the shared refreshLock.
	refreshing int32

	mu      sync.RWMutex
	members []model.Member

	current *model.Member
	manager *model.Member
	workers []model.Member

	runner  *schedule.Runner
	entryID cron.EntryID
}

// New constructs a Registry for the given cluster and local member id.
func New(cluster, localID string, store kv.Store, bus *events.Bus) *Registry {
	return &Registry{cluster: cluster, localID: localID, store: store, bus: bus}
}

// Register ensures this process appears in the Members list with status
// online, enforcing Manager uniqueness (spec §4.2 "Registration algorithm").
func (r *Registry) Register(ctx context.Context, role model.Role) (model.Member, error) {
	var lastErr error
	for attempt := 0; attempt < registerRetryCount; attempt++ {
		member, err := r.registerOnce(ctx, role)
		if err == nil {
			return member, nil
		}
		if swifterrors.Is(err, swifterrors.ManagerTaken) {
			return model.Member{}, err
		}
		lastErr = err
		logrus.WithError(err).WithFields(logrus.Fields{"cluster": r.cluster, "component": "member", "member_id": r.localID}).
			Warnf("register attempt %d/%d failed", attempt+1, registerRetryCount)
		time.Sleep(registerRetryDelay)
	}
	return model.Member{}, swifterrors.Wrap(swifterrors.KVUnavailable, lastErr)
}

func (r *Registry) registerOnce(ctx context.Context, role model.Role) (model.Member, error) {
	for {
		list, modifyIndex, err := r.readList(ctx)
		if err != nil {
			return model.Member{}, err
		}

		if role == model.RoleManager {
			for _, m := range list.Members {
				if m.Role == model.RoleManager && m.IsOnline() && m.ID != r.localID {
					return model.Member{}, swifterrors.ErrManagerTaken
				}
			}
		}

		now := time.Now()
		found := false
		var result model.Member
		for i := range list.Members {
			if list.Members[i].ID == r.localID {
				list.Members[i].Role = role
				list.Members[i].Status = model.StatusOnline
				list.Members[i].OnlineTime = now
				list.Members[i].OfflineTime = nil
				result = list.Members[i]
				found = true
				break
			}
		}
		if !found {
			result = model.Member{
				ID:                r.localID,
				Role:              role,
				Status:            model.StatusOnline,
				FirstRegisterTime: now,
				OnlineTime:        now,
			}
			list.Members = append(list.Members, result)
		}

		data, err := model.Marshal(list)
		if err != nil {
			return model.Member{}, errors.WithMessage(err, "marshal members")
		}

		ok, err := r.store.CAS(ctx, membersKey(r.cluster), data, modifyIndex)
		if err != nil {
			return model.Member{}, swifterrors.Wrap(swifterrors.KVUnavailable, err)
		}
		if !ok {
			time.Sleep(casRetryDelay)
			continue
		}
		return result, nil
	}
}

// readList fetches the Members value, creating it empty if absent.
func (r *Registry) readList(ctx context.Context) (model.MembersList, int64, error) {
	key := membersKey(r.cluster)
	entry, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return model.MembersList{}, 0, swifterrors.Wrap(swifterrors.KVUnavailable, err)
	}
	if !ok {
		if err := r.store.Create(ctx, key); err != nil {
			return model.MembersList{}, 0, swifterrors.Wrap(swifterrors.KVUnavailable, err)
		}
		entry, ok, err = r.store.Get(ctx, key)
		if err != nil || !ok {
			return model.MembersList{}, 0, swifterrors.Wrap(swifterrors.KVUnavailable, err)
		}
	}
	if len(entry.Value) == 0 {
		return model.MembersList{}, entry.ModifyIndex, nil
	}
	var list model.MembersList
	if err := model.Unmarshal(entry.Value, &list); err != nil {
		return model.MembersList{}, entry.ModifyIndex, swifterrors.Wrap(swifterrors.MalformedKVValue, err)
	}
	return list, entry.ModifyIndex, nil
}

// Snapshot returns the in-memory view updated by the reconciler.
func (r *Registry) Snapshot() []model.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Member, len(r.members))
	copy(out, r.members)
	return out
}

// Current returns the local member's entry, if known.
func (r *Registry) Current() (model.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return model.Member{}, false
	}
	return *r.current, true
}

// Manager returns the first member with Role=Manager, if any. Its Status is
// not checked, so the returned member may be offline.
func (r *Registry) Manager() (model.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.manager == nil {
		return model.Member{}, false
	}
	return *r.manager, true
}

// Workers returns every member with Role=Worker.
func (r *Registry) Workers() []model.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Member, len(r.workers))
	copy(out, r.workers)
	return out
}
