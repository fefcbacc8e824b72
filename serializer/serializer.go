// Package serializer turns the populated dataset into the compressed
// filesystem stream artifact. The snapshot stream is compressed in-process at
// maximum effort and written under a temporary name, so an interrupted build
// never leaves a half-complete file under the final artifact name.
package serializer

import (
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/lximage/lximage/dataset"
	"github.com/lximage/lximage/internal/errors"
	"github.com/lximage/lximage/internal/types"
)

// Serializer snapshots a dataset and streams it through gzip into the output
// directory.
type Serializer struct {
	datasets  *dataset.Manager
	outputDir string
	log       *logrus.Entry
}

// New returns a Serializer writing artifacts to outputDir.
func New(datasets *dataset.Manager, outputDir string) *Serializer {
	return &Serializer{
		datasets:  datasets,
		outputDir: outputDir,
		log:       logrus.WithField("component", "serializer"),
	}
}

// Serialize snapshots the dataset, streams the snapshot through gzip at best
// compression into <identity>.zfs.gz, and destroys the dataset. The dataset's
// only reason to exist past the stream is gone, so destruction happens here
// on the success path; failure paths leave destruction to the caller.
func (s *Serializer) Serialize(ds *dataset.Dataset, identity types.BuildIdentity) (string, error) {
	if err := s.datasets.CreateSnapshot(ds); err != nil {
		return "", err
	}

	finalPath := filepath.Join(s.outputDir, identity.StreamFile())
	partialPath := finalPath + ".partial"

	s.log.WithFields(logrus.Fields{
		"snapshot": ds.Snapshot(),
		"artifact": finalPath,
	}).Info("serializing dataset")

	if err := s.writeStream(ds, partialPath); err != nil {
		os.Remove(partialPath)
		return "", err
	}

	if err := os.Rename(partialPath, finalPath); err != nil {
		os.Remove(partialPath)
		return "", errors.Wrap(errors.CategoryDataset, err, "failed to finalize %s", finalPath)
	}

	if err := s.datasets.Destroy(ds); err != nil {
		return "", err
	}

	return finalPath, nil
}

func (s *Serializer) writeStream(ds *dataset.Dataset, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.CategoryDataset, err, "failed to create %s", path)
	}
	defer f.Close()

	gz, err := gzip.NewWriterLevel(f, gzip.BestCompression)
	if err != nil {
		return errors.Wrap(errors.CategoryDataset, err, "failed to initialize compressor")
	}

	if err := s.datasets.Send(ds, gz); err != nil {
		gz.Close()
		return err
	}

	if err := gz.Close(); err != nil {
		return errors.Wrap(errors.CategoryDataset, err, "failed to flush compressed stream to %s", path)
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(errors.CategoryDataset, err, "failed to sync %s", path)
	}
	return nil
}
