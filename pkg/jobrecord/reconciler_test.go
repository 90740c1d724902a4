package jobrecord

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lurenjiayibingding/Swift/pkg/events"
	"github.com/lurenjiayibingding/Swift/pkg/kv/memkv"
	"github.com/lurenjiayibingding/Swift/pkg/kvkeys"
	"github.com/lurenjiayibingding/Swift/pkg/model"
)

type fakeConfigs struct {
	configs []model.JobConfig
}

func (f *fakeConfigs) Snapshot() []model.JobConfig { return f.configs }

func putRecord(t *testing.T, store *memkv.Store, cluster, jobName string, record model.JobRecord) {
	t.Helper()
	key := kvkeys.JobRecord(cluster, jobName, record.ID)
	require.NoError(t, store.Create(context.Background(), key))
	entry, _, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	data, err := model.Marshal(&record)
	require.NoError(t, err)
	ok, err := store.CAS(context.Background(), key, data, entry.ModifyIndex)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReconcileSkipsConfigWithNoLastRecord(t *testing.T) {
	store := memkv.New()
	bus := events.New()
	cfgs := &fakeConfigs{configs: []model.JobConfig{{Name: "nightly"}}}
	var lock sync.Mutex

	r := New("c1", store, bus, &lock, cfgs)
	r.Reconcile(context.Background())

	assert.Empty(t, r.Snapshot())
}

func TestReconcileJoinsNewRecord(t *testing.T) {
	store := memkv.New()
	putRecord(t, store, "c1", "nightly", model.JobRecord{ID: "r1", Status: model.StatusPending})

	bus := events.New()
	var joined []model.JobRecord
	bus.Subscribe(events.JobRecordJoin, func(p interface{}) { joined = append(joined, p.(model.JobRecord)) })

	cfgs := &fakeConfigs{configs: []model.JobConfig{{Name: "nightly", LastRecordID: "r1"}}}
	var lock sync.Mutex
	r := New("c1", store, bus, &lock, cfgs)
	r.Reconcile(context.Background())

	require.Len(t, joined, 1)
	assert.Equal(t, "r1", joined[0].ID)
}

func TestReconcileUpdatesInPlaceOnModifyIndexChange(t *testing.T) {
	store := memkv.New()
	putRecord(t, store, "c1", "nightly", model.JobRecord{ID: "r1", Status: model.StatusPending})

	bus := events.New()
	cfgs := &fakeConfigs{configs: []model.JobConfig{{Name: "nightly", LastRecordID: "r1"}}}
	var lock sync.Mutex
	r := New("c1", store, bus, &lock, cfgs)
	r.Reconcile(context.Background())

	held, ok := r.Get("nightly")
	require.True(t, ok)

	key := kvkeys.JobRecord("c1", "nightly", "r1")
	entry, _, _ := store.Get(context.Background(), key)
	updated := model.JobRecord{ID: "r1", Status: model.StatusTaskMerged}
	data, _ := model.Marshal(&updated)
	ok2, err := store.CAS(context.Background(), key, data, entry.ModifyIndex)
	require.NoError(t, err)
	require.True(t, ok2)

	r.Reconcile(context.Background())
	assert.Equal(t, model.StatusTaskMerged, held.Status)
}

func TestReconcileEvictsRecordWhenLastRecordIDChanges(t *testing.T) {
	store := memkv.New()
	putRecord(t, store, "c1", "nightly", model.JobRecord{ID: "r1", Status: model.StatusTaskMerged})
	putRecord(t, store, "c1", "nightly", model.JobRecord{ID: "r2", Status: model.StatusPending})

	bus := events.New()
	var removed []model.JobRecord
	bus.Subscribe(events.JobRecordRemove, func(p interface{}) { removed = append(removed, p.(model.JobRecord)) })

	cfgs := &fakeConfigs{configs: []model.JobConfig{{Name: "nightly", LastRecordID: "r1"}}}
	var lock sync.Mutex
	r := New("c1", store, bus, &lock, cfgs)
	r.Reconcile(context.Background())

	cfgs.configs[0].LastRecordID = "r2"
	r.Reconcile(context.Background())

	require.Len(t, removed, 1)
	assert.Equal(t, "r1", removed[0].ID)
	rec, ok := r.Get("nightly")
	require.True(t, ok)
	assert.Equal(t, "r2", rec.ID)
}

func TestReconcileRemovesRecordWhenKeyAbsent(t *testing.T) {
	store := memkv.New()
	putRecord(t, store, "c1", "nightly", model.JobRecord{ID: "r1", Status: model.StatusPending})

	bus := events.New()
	var removed []model.JobRecord
	bus.Subscribe(events.JobRecordRemove, func(p interface{}) { removed = append(removed, p.(model.JobRecord)) })

	cfgs := &fakeConfigs{configs: []model.JobConfig{{Name: "nightly", LastRecordID: "r1"}}}
	var lock sync.Mutex
	r := New("c1", store, bus, &lock, cfgs)
	r.Reconcile(context.Background())

	_, err := store.DeleteTree(context.Background(), kvkeys.JobRecordsPrefix("c1", "nightly"))
	require.NoError(t, err)
	r.Reconcile(context.Background())

	require.Len(t, removed, 1)
	_, ok := r.Get("nightly")
	assert.False(t, ok)
}
