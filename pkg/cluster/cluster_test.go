package cluster

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lurenjiayibingding/Swift/pkg/kv/memkv"
	"github.com/lurenjiayibingding/Swift/pkg/model"
	"github.com/lurenjiayibingding/Swift/pkg/netutil"
)

func withFixedAddr(t *testing.T, ip string) {
	t.Helper()
	prev := netutil.LocalAddrs
	_, ipnet, err := net.ParseCIDR(ip + "/24")
	require.NoError(t, err)
	ipnet.IP = net.ParseIP(ip)
	netutil.LocalAddrs = func() ([]net.Addr, error) { return []net.Addr{ipnet}, nil }
	t.Cleanup(func() { netutil.LocalAddrs = prev })
}

func TestNewSelectsLocalIDAndRole(t *testing.T) {
	withFixedAddr(t, "10.1.1.1")
	jobsDir := t.TempDir()

	c, err := New(Config{Name: "c1", Role: model.RoleManager, JobsDir: jobsDir, Store: memkv.New()})
	require.NoError(t, err)
	assert.Equal(t, model.RoleManager, c.role)
	assert.NotNil(t, c.managerCfgs)
	assert.NotNil(t, c.timePlan)
	assert.Nil(t, c.workerCfgs)
}

func TestNewWorkerHasNoManagerReconcilers(t *testing.T) {
	withFixedAddr(t, "10.1.1.2")

	c, err := New(Config{Name: "c1", Role: model.RoleWorker, Store: memkv.New()})
	require.NoError(t, err)
	assert.Nil(t, c.managerCfgs)
	assert.Nil(t, c.timePlan)
	assert.NotNil(t, c.workerCfgs)
}

func TestRunFallsBackToWorkerWhenManagerTaken(t *testing.T) {
	store := memkv.New()

	withFixedAddr(t, "10.1.1.1")
	first, err := New(Config{Name: "c1", Role: model.RoleManager, JobsDir: t.TempDir(), Store: store})
	require.NoError(t, err)
	ctx1, cancel1 := context.WithCancel(context.Background())
	go func() { _ = first.Run(ctx1) }()
	t.Cleanup(func() { cancel1(); first.Stop() })

	// give the first goroutine time to register and become the online manager.
	assert.Eventually(t, func() bool {
		_, ok := first.members.Manager()
		return ok
	}, time.Second, 5*time.Millisecond)

	withFixedAddr(t, "10.1.1.2")
	second, err := New(Config{Name: "c1", Role: model.RoleManager, Store: store})
	require.NoError(t, err)
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer func() { cancel2(); second.Stop() }()

	go func() { _ = second.Run(ctx2) }()

	assert.Eventually(t, func() bool {
		return second.role == model.RoleWorker
	}, time.Second, 5*time.Millisecond)
}

func TestSnapshotReflectsManagerConfigs(t *testing.T) {
	withFixedAddr(t, "10.1.1.1")
	jobsDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(jobsDir, "nightly", "config"), 0o700))
	require.NoError(t, os.WriteFile(
		filepath.Join(jobsDir, "nightly", "config", "job.json"),
		[]byte(`{"name":"nightly","runTimePlan":["01:00"]}`),
		0o600,
	))

	store := memkv.New()
	c, err := New(Config{Name: "c1", Role: model.RoleManager, JobsDir: jobsDir, Store: store})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); c.Stop() }()
	go func() { _ = c.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, ok := c.members.Current()
		return ok
	}, time.Second, 5*time.Millisecond)

	// Force one reconcile pass directly rather than waiting out the
	// Manager reconciler's real 5s/30s timer.
	c.managerCfgs.Reconcile(ctx)

	assert.Len(t, c.Snapshot().Configs, 1)
}
