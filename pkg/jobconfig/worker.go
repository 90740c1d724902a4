package jobconfig

import (
	"context"
	"strings"
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

const configKeySuffix = "/Config"

// WorkerReconciler implements spec §4.5: it mirrors configs published to KV
// by the Manager into memory.
type WorkerReconciler struct {
	cluster string
	store   kv.KV
	bus     *events.Bus

	mu      sync.RWMutex
	configs map[string]*model.JobConfig
}

// NewWorkerReconciler constructs the Worker-side reconciler.
func NewWorkerReconciler(cluster string, store kv.KV, bus *events.Bus) *WorkerReconciler {
	return &WorkerReconciler{cluster: cluster, store: store, bus: bus, configs: map[string]*model.JobConfig{}}
}

// StartTimer schedules Reconcile at 5s/30s (spec §4.5).
func (w *WorkerReconciler) StartTimer(ctx context.Context, runner *schedule.Runner) {
	runner.Add("jobconfig-worker", managerInitialDelay, managerPeriod, func() {
		w.Reconcile(ctx)
	})
}

// Reconcile implements spec §4.5.
func (w *WorkerReconciler) Reconcile(ctx context.Context) {
	lf := logrus.Fields{"cluster": w.cluster, "component": "jobconfig-worker"}

	keys, err := w.store.Keys(ctx, kvkeys.JobsPrefix(w.cluster))
	if err != nil {
		logrus.WithError(err).WithFields(lf).Warn("list keys")
		return
	}

	seen := make(map[string]bool)
	for _, key := range keys {
		if !strings.HasSuffix(key, configKeySuffix) {
			continue
		}
		name := jobNameFromConfigKey(key)
		if name == "" {
			continue
		}
		seen[name] = true

		entryVal, ok, err := w.store.Get(ctx, key)
		if err != nil {
			logrus.WithError(err).WithFields(lf).Warnf("get %s", key)
			continue
		}
		if !ok {
			continue
		}

		var cfg model.JobConfig
		if err := model.Unmarshal(entryVal.Value, &cfg); err != nil {
			logrus.WithError(swifterrors.Wrap(swifterrors.MalformedKVValue, err)).WithFields(lf).Warnf("decode %s", key)
			continue
		}
		cfg.Name = name
		cfg.ModifyIndex = entryVal.ModifyIndex

		w.mu.Lock()
		existing, ok := w.configs[name]
		if !ok {
			w.configs[name] = &cfg
			w.mu.Unlock()
			w.bus.Publish(events.JobConfigJoin, cfg)
			continue
		}
		if existing.ModifyIndex != cfg.ModifyIndex {
			*existing = cfg
		}
		w.mu.Unlock()
	}

	w.mu.Lock()
	var removed []model.JobConfig
	for name, cfg := range w.configs {
		if !seen[name] {
			removed = append(removed, *cfg)
			delete(w.configs, name)
		}
	}
	w.mu.Unlock()

	for _, cfg := range removed {
		w.bus.Publish(events.JobConfigRemove, cfg)
	}
}

// Snapshot returns the in-memory config list.
func (w *WorkerReconciler) Snapshot() []model.JobConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]model.JobConfig, 0, len(w.configs))
	for _, cfg := range w.configs {
		out = append(out, *cfg)
	}
	return out
}

func jobNameFromConfigKey(key string) string {
	// Swift/<cluster>/Jobs/<name>/Config
	trimmed := strings.TrimSuffix(key, configKeySuffix)
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return ""
	}
	return trimmed[idx+1:]
}
