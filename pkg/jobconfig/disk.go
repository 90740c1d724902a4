// Package jobconfig implements both JobConfig reconciler variants from spec
// §4.4/§4.5: the Manager discovers job packages on disk and publishes their
// configs to KV; the Worker mirrors published configs into memory.
package jobconfig

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/lurenjiayibingding/Swift/pkg/model"
	"github.com/lurenjiayibingding/Swift/pkg/swifterrors"
)

const configFileName = "job.json"

// discoverPackages extracts job.json from every Jobs/*.zip that does not
// already have a config/ directory, and returns the name of every package
// subdirectory now present under jobsDir. Grounded on the teacher's
// pkg/cluster/util.go unzip/extract (zip-slip guard included).
func discoverPackages(jobsDir string) ([]string, error) {
	entries, err := os.ReadDir(jobsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WithMessage(err, "read jobs dir")
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		pkgName := strings.TrimSuffix(e.Name(), ".zip")
		configDir := filepath.Join(jobsDir, pkgName, "config")
		if _, err := os.Stat(configDir); err == nil {
			continue
		}

		if err := extractConfig(filepath.Join(jobsDir, e.Name()), configDir); err != nil {
			return nil, swifterrors.Wrap(swifterrors.JobPackageConfigExtract, err)
		}
	}

	entries, err = os.ReadDir(jobsDir)
	if err != nil {
		return nil, errors.WithMessage(err, "read jobs dir")
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// extractConfig pulls job.json out of the zip archive at src into
// destDir/job.json, failing if the archive has no job.json at its root.
// Once the archive opens, destDir is created before anything else, so a
// package that then fails is skipped by discoverPackages on later cycles.
func extractConfig(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return errors.WithMessagef(err, "open %s", src)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return errors.WithMessage(err, "mkdir config dir")
	}

	var jobJSON *zip.File
	for _, f := range r.File {
		if f.Name == configFileName {
			jobJSON = f
			break
		}
	}
	if jobJSON == nil {
		return errors.Errorf("%s has no %s at its root", src, configFileName)
	}

	destPath := filepath.Join(destDir, configFileName)
	if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return fmt.Errorf("illegal file path: %s", destPath)
	}

	rc, err := jobJSON.Open()
	if err != nil {
		return errors.WithMessage(err, "open job.json in archive")
	}
	defer rc.Close()

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.WithMessage(err, "create job.json")
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return errors.WithMessage(err, "extract job.json")
	}
	return nil
}

// loadConfig reads config/job.json for package pkgName under jobsDir.
func loadConfig(jobsDir, pkgName string) (*model.JobConfig, int64, error) {
	path := filepath.Join(jobsDir, pkgName, "config", configFileName)
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, errors.WithMessagef(err, "stat %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, errors.WithMessagef(err, "read %s", path)
	}

	var cfg model.JobConfig
	if err := model.Unmarshal(data, &cfg); err != nil {
		return nil, 0, swifterrors.Wrap(swifterrors.MalformedKVValue, err)
	}
	if cfg.Name == "" {
		cfg.Name = pkgName
	}
	// The disk file has no CAS token of its own; we use its modtime as a
	// change marker for the "disk modifyIndex differs" comparison in spec
	// §4.4 step 3, distinct from the KV ModifyIndex used once published.
	return &cfg, info.ModTime().UnixNano(), nil
}

// writeConfig overwrites the on-disk job.json for a config, used by the
// time-plan scheduler after advancing lastRecordId (spec §4.8 step 2).
func writeConfig(jobsDir string, cfg *model.JobConfig) error {
	data, err := model.Marshal(cfg)
	if err != nil {
		return errors.WithMessage(err, "marshal job config")
	}
	path := filepath.Join(jobsDir, cfg.Name, "config", configFileName)
	return os.WriteFile(path, data, 0o600)
}
