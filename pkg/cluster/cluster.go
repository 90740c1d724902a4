// Package cluster wires every reconciler into one running process: a single
// KV-backed Cluster, role-dependent (Manager publishes configs and schedules
// records; Worker only mirrors them), sharing one event bus and one cron
// runner. Grounded on the teacher's pkg/cluster.Cluster, which plays the same
// "owns storage, starts the control loops, exposes a read view" role for a
// k3s node.
package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lurenjiayibingding/Swift/pkg/events"
	"github.com/lurenjiayibingding/Swift/pkg/health"
	"github.com/lurenjiayibingding/Swift/pkg/jobconfig"
	"github.com/lurenjiayibingding/Swift/pkg/jobrecord"
	"github.com/lurenjiayibingding/Swift/pkg/kv"
	"github.com/lurenjiayibingding/Swift/pkg/member"
	"github.com/lurenjiayibingding/Swift/pkg/model"
	"github.com/lurenjiayibingding/Swift/pkg/netutil"
	"github.com/lurenjiayibingding/Swift/pkg/schedule"
	"github.com/lurenjiayibingding/Swift/pkg/scheduler"
	"github.com/lurenjiayibingding/Swift/pkg/swifterrors"
	"github.com/lurenjiayibingding/Swift/pkg/taskplan"
)

// Config holds everything needed to stand up a Cluster.
type Config struct {
	// Name identifies the cluster namespace in KV (spec §6: "Swift/<cluster>/...").
	Name string
	// Role is the role this process requests at registration. If Role is
	// Manager and another member is already the online Manager, Run falls
	// back to Worker (see DESIGN.md "Manager fallback").
	Role model.Role
	// JobsDir is where the Manager looks for job packages (spec §4.4). Unused
	// by Workers.
	JobsDir string
	// Store is the KV backend (etcd-backed in production, memkv in tests).
	Store kv.Store
	// Address is advertised alongside the local member id in the service
	// registry (spec §4.3); defaults to the selected local id if empty.
	Address string
}

// Cluster is one running participant in the coordination system.
type Cluster struct {
	name    string
	store   kv.Store
	bus     *events.Bus
	runner  *schedule.Runner
	members *member.Registry
	heart   *health.Heartbeat

	refreshLock sync.Mutex

	role          model.Role
	managerCfgs   *jobconfig.ManagerReconciler
	workerCfgs    *jobconfig.WorkerReconciler
	records       *jobrecord.Reconciler
	tasks         *taskplan.Extractor
	timePlan      *scheduler.Scheduler

	cancel context.CancelFunc
}

// New constructs a Cluster without starting it. The local member id is
// selected from the host's network interfaces (spec §6).
func New(cfg Config) (*Cluster, error) {
	localID, err := netutil.LocalID()
	if err != nil {
		return nil, swifterrors.Wrap(swifterrors.KVUnavailable, err)
	}
	address := cfg.Address
	if address == "" {
		address = localID
	}

	bus := events.New()
	runner := schedule.NewRunner()
	registry := member.New(cfg.Name, localID, cfg.Store, bus)
	heartbeat := health.New(cfg.Store, localID, address)

	c := &Cluster{
		name:    cfg.Name,
		store:   cfg.Store,
		bus:     bus,
		runner:  runner,
		members: registry,
		heart:   heartbeat,
		role:    cfg.Role,
	}

	if cfg.Role == model.RoleManager {
		c.managerCfgs = jobconfig.NewManagerReconciler(cfg.Name, cfg.JobsDir, cfg.Store, bus, &c.refreshLock)
		c.records = jobrecord.New(cfg.Name, cfg.Store, bus, &c.refreshLock, c.managerCfgs)
		c.tasks = taskplan.New(&c.refreshLock, c.records, bus)
		c.timePlan = scheduler.New(cfg.Name, cfg.Store, bus, &c.refreshLock, c.managerCfgs, c.records)
	} else {
		c.workerCfgs = jobconfig.NewWorkerReconciler(cfg.Name, cfg.Store, bus)
		c.records = jobrecord.New(cfg.Name, cfg.Store, bus, &c.refreshLock, c.workerCfgs)
		c.tasks = taskplan.New(&c.refreshLock, c.records, bus)
	}

	return c, nil
}

// Run registers the local member, starts every reconciler's timer, and
// blocks until ctx is cancelled. If registration as Manager loses to another
// online Manager, Run retries registration as Worker instead (see
// DESIGN.md "Manager fallback").
func (c *Cluster) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	role := c.role
	if _, err := c.members.Register(runCtx, role); err != nil {
		if swifterrors.Is(err, swifterrors.ManagerTaken) && role == model.RoleManager {
			logrus.WithFields(logrus.Fields{"cluster": c.name, "component": "cluster"}).Warn("manager already taken, falling back to worker role")
			role = model.RoleWorker
			c.demoteToWorker()
			if _, err := c.members.Register(runCtx, role); err != nil {
				return err
			}
		} else {
			return err
		}
	}

	if err := c.heart.Init(runCtx); err != nil {
		return err
	}

	c.members.StartMonitor(runCtx, c.runner)

	if role == model.RoleManager && c.managerCfgs != nil {
		c.managerCfgs.StartTimer(runCtx, c.runner)
		c.timePlan.StartTimer(runCtx, c.runner)
		if err := c.managerCfgs.WatchDisk(runCtx); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"cluster": c.name, "component": "cluster"}).Warn("disk watch unavailable, relying on the poll timer")
		}
	} else if c.workerCfgs != nil {
		c.workerCfgs.StartTimer(runCtx, c.runner)
	}
	c.records.StartTimer(runCtx, c.runner)
	c.tasks.StartTimer(runCtx, c.runner)

	c.runner.Start()
	<-runCtx.Done()
	return nil
}

// demoteToWorker rewires the Manager-only reconcilers to their Worker
// counterparts when registration as Manager is refused.
func (c *Cluster) demoteToWorker() {
	c.role = model.RoleWorker
	c.managerCfgs = nil
	c.timePlan = nil
	c.workerCfgs = jobconfig.NewWorkerReconciler(c.name, c.store, c.bus)
	c.records = jobrecord.New(c.name, c.store, c.bus, &c.refreshLock, c.workerCfgs)
	c.tasks = taskplan.New(&c.refreshLock, c.records, c.bus)
}

// Stop disposes every reconciler's timer and the heartbeat loop, and
// cancels Run's context.
func (c *Cluster) Stop() {
	c.members.StopMonitor()
	c.runner.Stop()
	c.heart.Stop()
	if c.cancel != nil {
		c.cancel()
	}
}

// Subscribe registers a handler for one of the event bus's topics (spec §4.9).
func (c *Cluster) Subscribe(topic events.Topic, handler events.Handler) events.SubscriptionID {
	return c.bus.Subscribe(topic, handler)
}

// Status is the read-only view surface exposed to callers that don't need to
// reach into individual reconcilers (e.g. an out-of-scope HTTP layer).
type Status struct {
	Role    model.Role
	Current model.Member
	Manager model.Member
	Members []model.Member
	Configs []model.JobConfig
	Records []model.JobRecord
	Tasks   []model.ActiveTask
}

// Snapshot returns a consistent-enough point-in-time view across every
// reconciler for display or diagnostics.
func (c *Cluster) Snapshot() Status {
	current, _ := c.members.Current()
	manager, _ := c.members.Manager()

	var configs []model.JobConfig
	if c.managerCfgs != nil {
		configs = c.managerCfgs.Snapshot()
	} else if c.workerCfgs != nil {
		configs = c.workerCfgs.Snapshot()
	}

	return Status{
		Role:    c.role,
		Current: current,
		Manager: manager,
		Members: c.members.Snapshot(),
		Configs: configs,
		Records: c.records.Snapshot(),
		Tasks:   c.tasks.Snapshot(),
	}
}

// WaitForManager blocks until a member with the Manager role is visible or
// ctx is done, polling the registry at a fixed interval. That member's
// online status is not checked. Useful for Worker startup paths
// that should not begin scheduling work against an as-yet-unelected Manager.
func WaitForManager(ctx context.Context, c *Cluster, pollEvery time.Duration) (model.Member, error) {
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		if m, ok := c.members.Manager(); ok {
			return m, nil
		}
		select {
		case <-ctx.Done():
			return model.Member{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
