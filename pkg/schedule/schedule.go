// Package schedule runs every periodic reconciler in this core on a single
// shared *cron.Cron, the way the teacher schedules periodic etcd-state
// reconciliation in pkg/etcd/snapshot.go (e.cron = cron.New(); e.cron.AddJob(...);
// e.cron.Start()). Each component's "first fire at X, then every Y" timer
// (spec §4) becomes a cron.Schedule computed once from X and Y, rather than
// a one-off time.Ticker per component.
package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Periodic returns a cron.Schedule that fires once after initialDelay has
// elapsed since now, and then every period thereafter.
func Periodic(initialDelay, period time.Duration) cron.Schedule {
	return &periodicSchedule{initialDelay: initialDelay, period: period}
}

type periodicSchedule struct {
	initialDelay time.Duration
	period       time.Duration
	armed        bool
	start        time.Time
}

// Next implements cron.Schedule. cron.Cron calls Next(now) once up front to
// arm the first fire, then again after each fire with the previous fire time.
func (p *periodicSchedule) Next(t time.Time) time.Time {
	if !p.armed {
		p.armed = true
		p.start = t
		return t.Add(p.initialDelay)
	}
	return t.Add(p.period)
}

// Runner owns the shared cron.Cron for one Cluster. Components register
// their reconcile tick as a job; Stop disposes every registered timer but
// lets an in-flight callback run to completion (spec §5).
type Runner struct {
	cron *cron.Cron
}

// NewRunner constructs a Runner whose jobs log panics instead of crashing
// the process, matching spec §7's "all reconciler callbacks catch
// otherwise-unhandled errors ... and return so the timer survives".
func NewRunner() *Runner {
	logger := cron.VerbosePrintfLogger(logrus.StandardLogger())
	c := cron.New(cron.WithChain(cron.Recover(logger)))
	return &Runner{cron: c}
}

// Add schedules fn to run on the given schedule and returns an id that
// Remove can later use to dispose just this one timer. name labels the
// timer at the call site only; the Runner does not record or log it.
func (r *Runner) Add(name string, initialDelay, period time.Duration, fn func()) cron.EntryID {
	return r.cron.Schedule(Periodic(initialDelay, period), jobFunc(fn))
}

// Remove disposes a single timer added with Add. An in-flight callback
// still runs to completion (spec §5).
func (r *Runner) Remove(id cron.EntryID) { r.cron.Remove(id) }

// Start begins firing scheduled jobs.
func (r *Runner) Start() { r.cron.Start() }

// Stop disposes every timer; already-running callbacks finish naturally.
func (r *Runner) Stop() { r.cron.Stop() }

type jobFunc func()

func (f jobFunc) Run() { f() }
