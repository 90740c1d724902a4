package jobconfig

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lurenjiayibingding/Swift/pkg/events"
	"github.com/lurenjiayibingding/Swift/pkg/kv/memkv"
)

func TestWatchDiskTriggersReconcileOnNewPackage(t *testing.T) {
	jobsDir := t.TempDir()

	store := memkv.New()
	bus := events.New()
	var lock sync.Mutex
	m := NewManagerReconciler("c1", jobsDir, store, bus, &lock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.WatchDisk(ctx))

	writeJobDir(t, jobsDir, "nightly", `{"name":"nightly","runTimePlan":["01:00"]}`)

	assert.Eventually(t, func() bool {
		_, ok := m.Get("nightly")
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}
