package jobconfig

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
)

const (
	managerInitialDelay = 5 * time.Second
	managerPeriod       = 30 * time.Second
)

type entry struct {
	config      *model.JobConfig
	diskVersion int64
}

// ManagerReconciler implements spec §4.4: it scans job packages on disk and
// publishes their configs to KV.
type ManagerReconciler struct {
	cluster string
	jobsDir string
	store   kv.KV
	bus     *events.Bus
	lock    *sync.Mutex

	mu      sync.RWMutex
	configs map[string]*entry
}

// NewManagerReconciler constructs the Manager-side reconciler. lock is the
// shared refreshLock (spec §5) also held by the record/task-plan/time-plan
// reconcilers, so config mutation and job creation never interleave.
func NewManagerReconciler(cluster, jobsDir string, store kv.KV, bus *events.Bus, lock *sync.Mutex) *ManagerReconciler {
	return &ManagerReconciler{
		cluster: cluster,
		jobsDir: jobsDir,
		store:   store,
		bus:     bus,
		lock:    lock,
		configs: map[string]*entry{},
	}
}

// StartTimer schedules Reconcile at 5s/30s (spec §4.4).
func (m *ManagerReconciler) StartTimer(ctx context.Context, runner *schedule.Runner) {
	runner.Add("jobconfig-manager", managerInitialDelay, managerPeriod, func() {
		m.Reconcile(ctx)
	})
}

// Reconcile implements spec §4.4 steps 1-3.
func (m *ManagerReconciler) Reconcile(ctx context.Context) {
	m.lock.Lock()
	defer m.lock.Unlock()

	lf := logrus.Fields{"cluster": m.cluster, "component": "jobconfig-manager"}

	pkgNames, err := discoverPackages(m.jobsDir)
	if err != nil {
		logrus.WithError(err).WithFields(lf).Warn("discover packages")
		return
	}

	seen := make(map[string]bool, len(pkgNames))
	for _, name := range pkgNames {
		cfg, diskVersion, err := loadConfig(m.jobsDir, name)
		if err != nil {
			logrus.WithError(err).WithFields(lf).Warnf("load config for %s", name)
			continue
		}
		seen[cfg.Name] = true

		m.mu.RLock()
		existing, ok := m.configs[cfg.Name]
		m.mu.RUnlock()

		switch {
		case !ok:
			m.publish(ctx, cfg, diskVersion)
		case existing.diskVersion != diskVersion:
			m.mu.Lock()
			// In-place update, not replacement: callers that retain a
			// pointer to the previous *model.JobConfig must see the change
			// (spec §4.6's "do not replace the object" applies here too).
			modifyIndex := existing.config.ModifyIndex
			*existing.config = *cfg
			existing.config.ModifyIndex = modifyIndex
			existing.diskVersion = diskVersion
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	var removedNames []string
	for name := range m.configs {
		if !seen[name] {
			removedNames = append(removedNames, name)
		}
	}
	for _, name := range removedNames {
		removed := m.configs[name].config
		delete(m.configs, name)
		if _, err := m.store.DeleteTree(ctx, kvkeys.JobPrefix(m.cluster, name)); err != nil {
			logrus.WithError(err).WithFields(lf).Warnf("delete tree for %s", name)
		}
		m.bus.Publish(events.JobConfigRemove, *removed)
	}
	m.mu.Unlock()
}

// publish writes a newly discovered config to KV and adds it to memory on
// success (spec §4.4 step 3, "New configs").
func (m *ManagerReconciler) publish(ctx context.Context, cfg *model.JobConfig, diskVersion int64) {
	lf := logrus.Fields{"cluster": m.cluster, "component": "jobconfig-manager"}

	key := kvkeys.JobConfig(m.cluster, cfg.Name)
	if err := m.store.Create(ctx, key); err != nil {
		logrus.WithError(err).WithFields(lf).Warnf("create key for %s", cfg.Name)
		return
	}
	entryVal, ok, err := m.store.Get(ctx, key)
	if err != nil {
		logrus.WithError(err).WithFields(lf).Warnf("get config for %s after create", cfg.Name)
		return
	}
	if !ok {
		logrus.WithFields(lf).Warnf("config for %s vanished right after create", cfg.Name)
		return
	}

	data, err := model.Marshal(cfg)
	if err != nil {
		logrus.WithError(err).WithFields(lf).Errorf("marshal config for %s", cfg.Name)
		return
	}

	ok, err = m.store.CAS(ctx, key, data, entryVal.ModifyIndex)
	if err != nil {
		logrus.WithError(err).WithFields(lf).Warnf("cas config for %s", cfg.Name)
		return
	}
	if !ok {
		// Lost the race with another writer publishing the same config;
		// the next tick re-reads and reconciles in place.
		return
	}

	m.mu.Lock()
	m.configs[cfg.Name] = &entry{config: cfg, diskVersion: diskVersion}
	m.mu.Unlock()

	m.bus.Publish(events.JobConfigJoin, *cfg)
}

// Snapshot returns the in-memory config list.
func (m *ManagerReconciler) Snapshot() []model.JobConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.JobConfig, 0, len(m.configs))
	for _, e := range m.configs {
		out = append(out, *e.config)
	}
	return out
}

// Get returns the live *model.JobConfig for name, if known, so collaborators
// such as the time-plan scheduler can mutate it in place and have the
// change observed by everyone holding the same pointer.
func (m *ManagerReconciler) Get(name string) (*model.JobConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.configs[name]
	if !ok {
		return nil, false
	}
	return e.config, true
}

// JobsDir exposes the on-disk Jobs directory so the time-plan scheduler can
// rewrite job.json after advancing LastRecordID (spec §4.8 step 2).
func (m *ManagerReconciler) JobsDir() string { return m.jobsDir }

// WriteDiskConfig persists cfg back to its on-disk job.json.
func (m *ManagerReconciler) WriteDiskConfig(cfg *model.JobConfig) error {
	return writeConfig(m.jobsDir, cfg)
}
