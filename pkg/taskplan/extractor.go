// Package taskplan implements the TaskPlan extractor (spec §4.7): it walks
// every active JobRecord's TaskPlan and maintains the flat set of currently
// active tasks, firing join/remove events as records are created, replanned,
// or retired.
package taskplan

import (
	"context"
	"sync"
	"time"

	"github.com/lurenjiayibingding/Swift/pkg/events"
	"github.com/lurenjiayibingding/Swift/pkg/model"
	"github.com/lurenjiayibingding/Swift/pkg/schedule"
)

const (
	initialDelay = 30 * time.Second
	period       = 5 * time.Second
)

// RecordProvider supplies the current set of active JobRecords. Satisfied by
// jobrecord.Reconciler.
type RecordProvider interface {
	Snapshot() []model.JobRecord
}

// Extractor implements spec §4.7.
type Extractor struct {
	lock    *sync.Mutex
	records RecordProvider
	bus     *events.Bus

	mu    sync.RWMutex
	tasks map[string]model.ActiveTask // keyed by ActiveTask.Key()
}

// New constructs the task-plan extractor. lock is the shared refreshLock
// (spec §5), the same mutex held by the config/record/time-plan reconcilers.
func New(lock *sync.Mutex, records RecordProvider, bus *events.Bus) *Extractor {
	return &Extractor{lock: lock, records: records, bus: bus, tasks: map[string]model.ActiveTask{}}
}

// StartTimer schedules Reconcile at 30s/5s (spec §4.7).
func (e *Extractor) StartTimer(ctx context.Context, runner *schedule.Runner) {
	runner.Add("taskplan", initialDelay, period, func() {
		e.Reconcile(ctx)
	})
}

// Reconcile implements spec §4.7: a record whose status is Pending or
// PlanMaking has no usable task plan yet and is skipped entirely; every
// other active record's TaskPlan entries become the current task set.
func (e *Extractor) Reconcile(ctx context.Context) {
	e.lock.Lock()
	defer e.lock.Unlock()

	current := map[string]model.ActiveTask{}
	for _, record := range e.records.Snapshot() {
		if !record.PlanReady() {
			continue
		}
		for memberID, tasks := range record.TaskPlan {
			for _, task := range tasks {
				at := model.ActiveTask{
					JobRecordID:      record.ID,
					TaskID:           task.ID,
					AssignedMemberID: memberID,
				}
				current[at.Key()] = at
			}
		}
	}

	e.mu.Lock()
	var joined, removed []model.ActiveTask
	for key, at := range current {
		if _, ok := e.tasks[key]; !ok {
			joined = append(joined, at)
		}
	}
	for key, at := range e.tasks {
		if _, ok := current[key]; !ok {
			removed = append(removed, at)
		}
	}
	e.tasks = current
	e.mu.Unlock()

	for _, at := range joined {
		e.bus.Publish(events.TaskJoin, at)
	}
	for _, at := range removed {
		e.bus.Publish(events.TaskRemove, at)
	}
}

// Snapshot returns every currently active task.
func (e *Extractor) Snapshot() []model.ActiveTask {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.ActiveTask, 0, len(e.tasks))
	for _, at := range e.tasks {
		out = append(out, at)
	}
	return out
}
