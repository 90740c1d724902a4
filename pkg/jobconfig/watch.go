package jobconfig

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// WatchDisk supplements the Manager's 30s poll with an fsnotify watch on
// jobsDir: any create/write/remove under it triggers an immediate Reconcile
// instead of waiting for the next tick, so newly dropped job packages start
// publishing within milliseconds rather than up to 30s later.
func (m *ManagerReconciler) WatchDisk(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.jobsDir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					m.Reconcile(ctx)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.WithError(err).WithFields(logrus.Fields{"cluster": m.cluster, "component": "jobconfig-manager"}).Warn("disk watch error")
			}
		}
	}()

	return nil
}
