// Package scheduler implements the time-plan scheduler (spec §4.8), run by
// the Manager only: it matches each JobConfig's RunTimePlan against the
// current wall clock and creates a new JobRecord when a slot is due.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lurenjiayibingding/Swift/pkg/events"
	"github.com/lurenjiayibingding/Swift/pkg/kv"
	"github.com/lurenjiayibingding/Swift/pkg/kvkeys"
	"github.com/lurenjiayibingding/Swift/pkg/model"
	"github.com/lurenjiayibingding/Swift/pkg/schedule"
)

const (
	initialDelay = 10 * time.Second
	period       = 15 * time.Second
	minuteLayout = "2006-01-02T15:04"
	clockLayout  = "15:04"

	casRetries   = 3
	casRetryWait = 500 * time.Millisecond
)

// ConfigStore is the subset of jobconfig.ManagerReconciler the scheduler
// needs: the live config list plus disk persistence for the advanced
// LastRecordID (spec §4.8 step 2).
type ConfigStore interface {
	Snapshot() []model.JobConfig
	Get(name string) (*model.JobConfig, bool)
	WriteDiskConfig(cfg *model.JobConfig) error
}

// RecordLookup is the subset of jobrecord.Reconciler the scheduler needs to
// decide whether a config's previous record has finished.
type RecordLookup interface {
	Get(jobName string) (*model.JobRecord, bool)
}

// Scheduler implements spec §4.8.
type Scheduler struct {
	cluster string
	store   kv.KV
	bus     *events.Bus
	lock    *sync.Mutex
	configs ConfigStore
	records RecordLookup

	mu     sync.Mutex
	fired  map[string]string // jobName -> minute last fired, dedups within a minute (spec §9 Open Question #3)
	newID  func() string
	nowFn  func() time.Time
}

// New constructs the time-plan scheduler. lock is the shared refreshLock
// (spec §5).
func New(cluster string, store kv.KV, bus *events.Bus, lock *sync.Mutex, configs ConfigStore, records RecordLookup) *Scheduler {
	return &Scheduler{
		cluster: cluster,
		store:   store,
		bus:     bus,
		lock:    lock,
		configs: configs,
		records: records,
		fired:   map[string]string{},
		newID:   func() string { return uuid.NewString() },
		nowFn:   time.Now,
	}
}

// StartTimer schedules Reconcile at 10s/15s (spec §4.8), sub-minute so every
// RunTimePlan slot is observed at least once within its minute.
func (s *Scheduler) StartTimer(ctx context.Context, runner *schedule.Runner) {
	runner.Add("scheduler", initialDelay, period, func() {
		s.Reconcile(ctx)
	})
}

// Reconcile implements spec §4.8.
func (s *Scheduler) Reconcile(ctx context.Context) {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.nowFn()
	minuteKey := now.Format(minuteLayout)
	clock := now.Format(clockLayout)

	for _, cfg := range s.configs.Snapshot() {
		if !matchesPlan(cfg.RunTimePlan, clock) {
			continue
		}

		s.mu.Lock()
		already := s.fired[cfg.Name] == minuteKey
		s.mu.Unlock()
		if already {
			continue
		}

		if !s.eligible(cfg) {
			continue
		}

		if s.createRecord(ctx, cfg.Name, now) {
			s.mu.Lock()
			s.fired[cfg.Name] = minuteKey
			s.mu.Unlock()
		}
	}
}

func matchesPlan(plan []string, clock string) bool {
	for _, slot := range plan {
		if slot == clock {
			return true
		}
	}
	return false
}

// eligible reports whether cfg is allowed to start a new record: either it
// has never run, or its previous record has reached TaskMerged (spec §4.8
// step 1, "skip if the previous record isn't done").
func (s *Scheduler) eligible(cfg model.JobConfig) bool {
	if cfg.LastRecordID == "" {
		return true
	}
	rec, ok := s.records.Get(cfg.Name)
	if !ok {
		// No in-memory record yet for a non-empty lastRecordId; let the
		// JobRecord reconciler catch up before scheduling again.
		return false
	}
	return rec.IsTerminal()
}

// createRecord writes a new Pending JobRecord to KV and advances the
// config's LastRecordID/LastRecordStartTime, retrying the config CAS against
// a fresh read the way member.Registry retries its registration CAS.
func (s *Scheduler) createRecord(ctx context.Context, jobName string, now time.Time) bool {
	lf := logrus.Fields{"cluster": s.cluster, "component": "scheduler"}

	recordID := s.newID()
	record := model.JobRecord{ID: recordID, JobName: jobName, Status: model.StatusPending}

	data, err := model.Marshal(&record)
	if err != nil {
		logrus.WithError(err).WithFields(lf).Errorf("marshal record for %s", jobName)
		return false
	}

	recordKey := kvkeys.JobRecord(s.cluster, jobName, recordID)
	if err := s.store.Create(ctx, recordKey); err != nil {
		logrus.WithError(err).WithFields(lf).Warnf("create record key for %s", jobName)
		return false
	}
	entryVal, ok, err := s.store.Get(ctx, recordKey)
	if err != nil {
		logrus.WithError(err).WithFields(lf).Warnf("get record key for %s after create", jobName)
		return false
	}
	if !ok {
		logrus.WithFields(lf).Warnf("record key for %s vanished right after create", jobName)
		return false
	}
	ok, err = s.store.CAS(ctx, recordKey, data, entryVal.ModifyIndex)
	if err != nil {
		logrus.WithError(err).WithFields(lf).Warnf("cas record for %s", jobName)
		return false
	}
	if !ok {
		logrus.WithFields(lf).Warnf("lost race creating record for %s", jobName)
		return false
	}

	startTime := now.Format(time.RFC3339)
	if !s.advanceConfig(ctx, jobName, recordID, startTime) {
		return false
	}

	s.bus.Publish(events.JobRecordJoin, record)
	return true
}

// advanceConfig updates the published config's lastRecordId/lastRecordStartTime
// in KV, the in-memory pointer, and the on-disk job.json.
func (s *Scheduler) advanceConfig(ctx context.Context, jobName, recordID, startTime string) bool {
	lf := logrus.Fields{"cluster": s.cluster, "component": "scheduler"}
	key := kvkeys.JobConfig(s.cluster, jobName)

	for attempt := 0; attempt < casRetries; attempt++ {
		entryVal, ok, err := s.store.Get(ctx, key)
		if err != nil {
			logrus.WithError(err).WithFields(lf).Warnf("get config for %s", jobName)
			return false
		}
		if !ok {
			logrus.WithFields(lf).Warnf("config for %s vanished before advance", jobName)
			return false
		}

		var cfg model.JobConfig
		if err := model.Unmarshal(entryVal.Value, &cfg); err != nil {
			logrus.WithError(err).WithFields(lf).Warnf("decode config for %s", jobName)
			return false
		}
		cfg.Name = jobName
		cfg.LastRecordID = recordID
		cfg.LastRecordStartTime = startTime

		data, err := model.Marshal(&cfg)
		if err != nil {
			logrus.WithError(err).WithFields(lf).Errorf("marshal config for %s", jobName)
			return false
		}

		casOK, err := s.store.CAS(ctx, key, data, entryVal.ModifyIndex)
		if err != nil {
			logrus.WithError(err).WithFields(lf).Warnf("cas config for %s", jobName)
			return false
		}
		if !casOK {
			time.Sleep(casRetryWait)
			continue
		}

		if live, ok := s.configs.Get(jobName); ok {
			live.LastRecordID = recordID
			live.LastRecordStartTime = startTime
			if err := s.configs.WriteDiskConfig(live); err != nil {
				logrus.WithError(err).WithFields(lf).Warnf("write disk config for %s", jobName)
			}
		}
		return true
	}

	logrus.WithFields(lf).Warnf("exhausted CAS retries advancing config for %s", jobName)
	return false
}
