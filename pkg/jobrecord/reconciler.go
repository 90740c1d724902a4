// Package jobrecord implements the JobRecord reconciler (spec §4.6): it uses
// each config's LastRecordID to fetch and diff job records in memory,
// emitting join/update/remove events. It never replaces a record object in
// place of update, so subscribers and the task-plan extractor can retain
// references across reconcile ticks.
package jobrecord

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lurenjiayibingding/Swift/pkg/events"
	"github.com/lurenjiayibingding/Swift/pkg/kv"
	"github.com/lurenjiayibingding/Swift/pkg/kvkeys"
	"github.com/lurenjiayibingding/Swift/pkg/model"
	"github.com/lurenjiayibingding/Swift/pkg/schedule"
	"github.com/lurenjiayibingding/Swift/pkg/swifterrors"
)

const (
	initialDelay = 30 * time.Second
	period       = 10 * time.Second
)

// ConfigProvider supplies the current set of JobConfigs to reconcile
// records against. Both jobconfig.ManagerReconciler and
// jobconfig.WorkerReconciler satisfy it.
type ConfigProvider interface {
	Snapshot() []model.JobConfig
}

// Reconciler implements spec §4.6.
type Reconciler struct {
	cluster string
	store   kv.KV
	bus     *events.Bus
	lock    *sync.Mutex
	configs ConfigProvider

	mu      sync.RWMutex
	records map[string]*model.JobRecord // keyed by JobConfig.Name
}

// New constructs the JobRecord reconciler. lock is the shared refreshLock
// (spec §5).
func New(cluster string, store kv.KV, bus *events.Bus, lock *sync.Mutex, configs ConfigProvider) *Reconciler {
	return &Reconciler{cluster: cluster, store: store, bus: bus, lock: lock, configs: configs, records: map[string]*model.JobRecord{}}
}

// StartTimer schedules Reconcile at 30s/10s (spec §4.6).
func (r *Reconciler) StartTimer(ctx context.Context, runner *schedule.Runner) {
	runner.Add("jobrecord", initialDelay, period, func() {
		r.Reconcile(ctx)
	})
}

// Reconcile implements spec §4.6.
func (r *Reconciler) Reconcile(ctx context.Context) {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, cfg := range r.configs.Snapshot() {
		r.reconcileOne(ctx, cfg)
	}
}

func (r *Reconciler) reconcileOne(ctx context.Context, cfg model.JobConfig) {
	lf := logrus.Fields{"cluster": r.cluster, "component": "jobrecord"}

	r.mu.Lock()
	existing, hasExisting := r.records[cfg.Name]
	r.mu.Unlock()

	// Evict a record that no longer matches lastRecordId — this is how the
	// record that just completed ages out once the Manager rolls
	// LastRecordID forward (spec §4.6 bullet 1).
	if hasExisting && existing.ID != cfg.LastRecordID {
		r.mu.Lock()
		delete(r.records, cfg.Name)
		r.mu.Unlock()
		r.bus.Publish(events.JobRecordRemove, *existing)
		hasExisting = false
	}

	if cfg.LastRecordID == "" {
		return
	}

	key := kvkeys.JobRecord(r.cluster, cfg.Name, cfg.LastRecordID)
	entryVal, ok, err := r.store.Get(ctx, key)
	if err != nil {
		logrus.WithError(err).WithFields(lf).Warnf("get %s", key)
		return
	}
	if !ok {
		if hasExisting && existing.ID == cfg.LastRecordID {
			r.mu.Lock()
			delete(r.records, cfg.Name)
			r.mu.Unlock()
			r.bus.Publish(events.JobRecordRemove, *existing)
		}
		return
	}

	var record model.JobRecord
	if err := model.Unmarshal(entryVal.Value, &record); err != nil {
		logrus.WithError(swifterrors.Wrap(swifterrors.MalformedKVValue, err)).WithFields(lf).Warnf("decode %s", key)
		return
	}
	record.JobName = cfg.Name
	record.ModifyIndex = entryVal.ModifyIndex

	if !hasExisting {
		r.mu.Lock()
		r.records[cfg.Name] = &record
		r.mu.Unlock()
		r.bus.Publish(events.JobRecordJoin, record)
		return
	}

	if existing.ModifyIndex != record.ModifyIndex {
		*existing = record
	}
}

// Snapshot returns every active record, one per config.
func (r *Reconciler) Snapshot() []model.JobRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.JobRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}

// Get returns the live *model.JobRecord for jobName, if any.
func (r *Reconciler) Get(jobName string) (*model.JobRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[jobName]
	return rec, ok
}
