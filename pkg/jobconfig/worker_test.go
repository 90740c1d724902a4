package jobconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lurenjiayibingding/Swift/pkg/events"
	"github.com/lurenjiayibingding/Swift/pkg/kv/memkv"
	"github.com/lurenjiayibingding/Swift/pkg/kvkeys"
	"github.com/lurenjiayibingding/Swift/pkg/model"
)

func publishConfig(t *testing.T, store *memkv.Store, cluster string, cfg model.JobConfig) {
	t.Helper()
	key := kvkeys.JobConfig(cluster, cfg.Name)
	require.NoError(t, store.Create(context.Background(), key))
	entry, _, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	data, err := model.Marshal(&cfg)
	require.NoError(t, err)
	ok, err := store.CAS(context.Background(), key, data, entry.ModifyIndex)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWorkerReconcileMirrorsPublishedConfig(t *testing.T) {
	store := memkv.New()
	publishConfig(t, store, "c1", model.JobConfig{Name: "nightly", RunTimePlan: []string{"01:00"}})

	bus := events.New()
	var joined []model.JobConfig
	bus.Subscribe(events.JobConfigJoin, func(p interface{}) { joined = append(joined, p.(model.JobConfig)) })

	w := NewWorkerReconciler("c1", store, bus)
	w.Reconcile(context.Background())

	require.Len(t, joined, 1)
	assert.Equal(t, "nightly", joined[0].Name)
	assert.Len(t, w.Snapshot(), 1)
}

func TestWorkerReconcileUpdatesInPlaceOnModifyIndexChange(t *testing.T) {
	store := memkv.New()
	publishConfig(t, store, "c1", model.JobConfig{Name: "nightly", RunTimePlan: []string{"01:00"}})

	bus := events.New()
	w := NewWorkerReconciler("c1", store, bus)
	w.Reconcile(context.Background())

	key := kvkeys.JobConfig("c1", "nightly")
	entry, _, _ := store.Get(context.Background(), key)
	updated := model.JobConfig{Name: "nightly", RunTimePlan: []string{"01:00", "13:00"}}
	data, _ := model.Marshal(&updated)
	ok, err := store.CAS(context.Background(), key, data, entry.ModifyIndex)
	require.NoError(t, err)
	require.True(t, ok)

	w.Reconcile(context.Background())

	snap := w.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, []string{"01:00", "13:00"}, snap[0].RunTimePlan)
}

func TestWorkerReconcileFiresRemoveWhenConfigDeleted(t *testing.T) {
	store := memkv.New()
	publishConfig(t, store, "c1", model.JobConfig{Name: "nightly", RunTimePlan: []string{"01:00"}})

	bus := events.New()
	var removed []model.JobConfig
	bus.Subscribe(events.JobConfigRemove, func(p interface{}) { removed = append(removed, p.(model.JobConfig)) })

	w := NewWorkerReconciler("c1", store, bus)
	w.Reconcile(context.Background())

	_, err := store.DeleteTree(context.Background(), kvkeys.JobPrefix("c1", "nightly"))
	require.NoError(t, err)
	w.Reconcile(context.Background())

	require.Len(t, removed, 1)
	assert.Len(t, w.Snapshot(), 0)
}

func TestJobNameFromConfigKey(t *testing.T) {
	assert.Equal(t, "nightly", jobNameFromConfigKey("Swift/c1/Jobs/nightly/Config"))
	assert.Equal(t, "", jobNameFromConfigKey("not-a-config-key"))
}
