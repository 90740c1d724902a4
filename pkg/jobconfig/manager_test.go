package jobconfig

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lurenjiayibingding/Swift/pkg/events"
	"github.com/lurenjiayibingding/Swift/pkg/kv/memkv"
	"github.com/lurenjiayibingding/Swift/pkg/model"
)

func writeJobDir(t *testing.T, jobsDir, name, jobJSON string) {
	t.Helper()
	dir := filepath.Join(jobsDir, name, "config")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job.json"), []byte(jobJSON), 0o600))
}

func writeJobZip(t *testing.T, jobsDir, name, jobJSON string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(jobsDir, 0o700))
	f, err := os.Create(filepath.Join(jobsDir, name+".zip"))
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	entry, err := w.Create("job.json")
	require.NoError(t, err)
	_, err = entry.Write([]byte(jobJSON))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestManagerReconcilePublishesNewConfig(t *testing.T) {
	jobsDir := t.TempDir()
	writeJobDir(t, jobsDir, "nightly", `{"name":"nightly","runTimePlan":["01:00"]}`)

	store := memkv.New()
	bus := events.New()
	var joined []model.JobConfig
	bus.Subscribe(events.JobConfigJoin, func(p interface{}) { joined = append(joined, p.(model.JobConfig)) })

	var lock sync.Mutex
	m := NewManagerReconciler("c1", jobsDir, store, bus, &lock)
	m.Reconcile(context.Background())

	require.Len(t, joined, 1)
	assert.Equal(t, "nightly", joined[0].Name)

	cfg, ok := m.Get("nightly")
	require.True(t, ok)
	assert.Equal(t, []string{"01:00"}, cfg.RunTimePlan)
}

func TestManagerReconcileExtractsZipPackage(t *testing.T) {
	jobsDir := t.TempDir()
	writeJobZip(t, jobsDir, "weekly", `{"name":"weekly","runTimePlan":["05:00"]}`)

	store := memkv.New()
	bus := events.New()
	var lock sync.Mutex
	m := NewManagerReconciler("c1", jobsDir, store, bus, &lock)
	m.Reconcile(context.Background())

	cfg, ok := m.Get("weekly")
	require.True(t, ok)
	assert.Equal(t, []string{"05:00"}, cfg.RunTimePlan)
}

func TestManagerReconcileUpdatesInPlaceOnDiskChange(t *testing.T) {
	jobsDir := t.TempDir()
	writeJobDir(t, jobsDir, "nightly", `{"name":"nightly","runTimePlan":["01:00"]}`)

	store := memkv.New()
	bus := events.New()
	var lock sync.Mutex
	m := NewManagerReconciler("c1", jobsDir, store, bus, &lock)
	m.Reconcile(context.Background())

	held, ok := m.Get("nightly")
	require.True(t, ok)

	writeJobDir(t, jobsDir, "nightly", `{"name":"nightly","runTimePlan":["01:00","13:00"]}`)
	m.Reconcile(context.Background())

	// The object retrieved before the second reconcile must observe the
	// change in place, not require a fresh Get.
	assert.Equal(t, []string{"01:00", "13:00"}, held.RunTimePlan)
}

func TestManagerReconcileRemovesDeletedPackage(t *testing.T) {
	jobsDir := t.TempDir()
	writeJobDir(t, jobsDir, "nightly", `{"name":"nightly","runTimePlan":["01:00"]}`)

	store := memkv.New()
	bus := events.New()
	var removed []model.JobConfig
	bus.Subscribe(events.JobConfigRemove, func(p interface{}) { removed = append(removed, p.(model.JobConfig)) })

	var lock sync.Mutex
	m := NewManagerReconciler("c1", jobsDir, store, bus, &lock)
	m.Reconcile(context.Background())

	require.NoError(t, os.RemoveAll(filepath.Join(jobsDir, "nightly")))
	m.Reconcile(context.Background())

	require.Len(t, removed, 1)
	_, ok := m.Get("nightly")
	assert.False(t, ok)
}
