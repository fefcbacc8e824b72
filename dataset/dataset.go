// Package dataset owns the ephemeral ZFS dataset created for one build run:
// creation, population from the input archive, snapshotting, serialization of
// the snapshot stream, and destruction. Exactly one dataset exists per run
// and it never outlives the process on a handled failure path.
package dataset

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lximage/lximage/config"
	"github.com/lximage/lximage/internal/errors"
	"github.com/lximage/lximage/internal/types"
	"github.com/lximage/lximage/runner"
)

// SnapshotName is the snapshot taken of the fully-populated dataset before it
// is serialized.
const SnapshotName = "final"

// Dataset represents the transient storage unit for one build run.
type Dataset struct {
	// Name is the full dataset name, <pool>/<identity>.
	Name string
	// Mountpoint is where the dataset's filesystem is mounted.
	Mountpoint string
	// Root is the extracted root-filesystem directory inside the dataset.
	Root string
}

// Snapshot returns the dataset@snapshot form used by zfs snapshot and send.
func (d *Dataset) Snapshot() string {
	return d.Name + "@" + SnapshotName
}

// Manager drives the zfs and gtar tools through the runner port.
type Manager struct {
	pool      string
	mountRoot string
	zfs       string
	tar       string
	run       runner.Runner
	log       *logrus.Entry
}

// NewManager returns a Manager operating on the configured pool.
func NewManager(cfg *config.Config, run runner.Runner) *Manager {
	return &Manager{
		pool:      cfg.Pool,
		mountRoot: cfg.MountRoot,
		zfs:       cfg.Tools.ZFS,
		tar:       cfg.Tools.Tar,
		run:       run,
		log:       logrus.WithField("component", "dataset"),
	}
}

// Create allocates the build's dataset named after the identity, restricts
// the mountpoint to the owner, and prepares the root-filesystem and core-dump
// directories. A name collision is a fatal caller error: the identity
// includes the build date, so an existing dataset means a build of this image
// already ran today.
func (m *Manager) Create(identity types.BuildIdentity) (*Dataset, error) {
	ds := &Dataset{
		Name:       m.pool + "/" + identity.String(),
		Mountpoint: filepath.Join(m.mountRoot, m.pool, identity.String()),
	}
	ds.Root = filepath.Join(ds.Mountpoint, "root")

	m.log.WithField("dataset", ds.Name).Info("creating dataset")

	result, err := m.run.Run(&runner.Command{
		Path: m.zfs,
		Args: []string{"create", ds.Name},
	})
	if err != nil {
		return nil, errors.Wrap(errors.CategoryDataset, err, "failed to create dataset %s", ds.Name)
	}
	if !result.Ok() {
		return nil, errors.New(errors.CategoryDataset, "failed to create dataset %s: %s", ds.Name, strings.TrimSpace(result.Stderr))
	}

	if err := os.Chmod(ds.Mountpoint, 0700); err != nil {
		return nil, errors.Wrap(errors.CategoryDataset, err, "failed to set mode on %s", ds.Mountpoint)
	}

	for _, dir := range []string{ds.Root, filepath.Join(ds.Mountpoint, "cores")} {
		if err := os.Mkdir(dir, 0755); err != nil {
			return nil, errors.Wrap(errors.CategoryDataset, err, "failed to create %s", dir)
		}
		if err := os.Chmod(dir, 0755); err != nil {
			return nil, errors.Wrap(errors.CategoryDataset, err, "failed to set mode on %s", dir)
		}
	}

	return ds, nil
}

// Extract streams the archive into the dataset's root-filesystem directory,
// stripping the outermost two path components so a ./rootfs/... layout
// collapses to the filesystem root. On failure the dataset is destroyed
// before returning, so a failed extraction never leaks a partially-populated
// dataset.
func (m *Manager) Extract(ds *Dataset, archivePath string, class types.Classification) error {
	m.log.WithFields(logrus.Fields{
		"dataset": ds.Name,
		"archive": archivePath,
		"format":  class,
	}).Info("extracting archive")

	args := []string{"-x"}
	if flag := class.TarFlag(); flag != "" {
		args = append(args, flag)
	}
	args = append(args, "-f", archivePath, "-C", ds.Root, "--strip-components=2")

	result, err := m.run.Run(&runner.Command{Path: m.tar, Args: args})
	if err == nil && !result.Ok() {
		err = errors.New(errors.CategoryExtraction, "gtar exited %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	if err != nil {
		m.log.WithField("dataset", ds.Name).Warn("extraction failed, destroying dataset")
		if destroyErr := m.Destroy(ds); destroyErr != nil {
			m.log.WithError(destroyErr).Error("cleanup after failed extraction also failed")
		}
		return errors.Wrap(errors.CategoryExtraction, err, "failed to extract %s", archivePath)
	}

	return nil
}

// CreateSnapshot takes the immutable point-in-time snapshot that Send
// serializes.
func (m *Manager) CreateSnapshot(ds *Dataset) error {
	m.log.WithField("snapshot", ds.Snapshot()).Info("creating snapshot")

	result, err := m.run.Run(&runner.Command{
		Path: m.zfs,
		Args: []string{"snapshot", ds.Snapshot()},
	})
	if err != nil {
		return errors.Wrap(errors.CategoryDataset, err, "failed to snapshot %s", ds.Name)
	}
	if !result.Ok() {
		return errors.New(errors.CategoryDataset, "failed to snapshot %s: %s", ds.Name, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// Send writes the snapshot's stream representation to w.
func (m *Manager) Send(ds *Dataset, w io.Writer) error {
	m.log.WithField("snapshot", ds.Snapshot()).Info("sending snapshot stream")

	result, err := m.run.Run(&runner.Command{
		Path:   m.zfs,
		Args:   []string{"send", ds.Snapshot()},
		Stdout: w,
	})
	if err != nil {
		return errors.Wrap(errors.CategoryDataset, err, "failed to send %s", ds.Snapshot())
	}
	if !result.Ok() {
		return errors.New(errors.CategoryDataset, "failed to send %s: %s", ds.Snapshot(), strings.TrimSpace(result.Stderr))
	}
	return nil
}

// Destroy removes the dataset and any snapshots. It is idempotent: destroying
// a dataset that is already gone is not an error, which lets the pipeline's
// cleanup guard run behind stages that destroy the dataset themselves.
func (m *Manager) Destroy(ds *Dataset) error {
	m.log.WithField("dataset", ds.Name).Info("destroying dataset")

	result, err := m.run.Run(&runner.Command{
		Path: m.zfs,
		Args: []string{"destroy", "-r", ds.Name},
	})
	if err != nil {
		return errors.Wrap(errors.CategoryDataset, err, "failed to destroy %s", ds.Name)
	}
	if !result.Ok() {
		if strings.Contains(result.Stderr, "does not exist") {
			return nil
		}
		return errors.New(errors.CategoryDataset, "failed to destroy %s: %s", ds.Name, strings.TrimSpace(result.Stderr))
	}
	return nil
}
