// Package inspector validates the input archive and classifies its
// compression format from the file's content signature, never its extension.
// Classification selects the decompression flag the extractor runs with.
package inspector

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/lximage/lximage/internal/errors"
	"github.com/lximage/lximage/internal/types"
)

// Magic numbers for the supported archive formats. Plain tar has no leading
// signature; the ustar magic sits at offset 257 of the first header block.
var (
	magicGzip     = []byte{0x1f, 0x8b}
	magicBzip2    = []byte{0x42, 0x5a, 0x68} // "BZh"
	magicCompress = []byte{0x1f, 0x9d}
	magicUstar    = []byte("ustar")
)

const ustarMagicOffset = 257

// Inspect validates the archive path and returns its classification. The
// preconditions are checked in a fixed order, each with its own failure:
// absolute path, existence, regular file, readability. Inspect runs before
// any dataset or external tool is touched.
func Inspect(path string) (types.Classification, error) {
	if err := validate(path); err != nil {
		return "", err
	}
	return classify(path)
}

func validate(path string) error {
	if !filepath.IsAbs(path) {
		return errors.New(errors.CategoryArchivePrecondition, "archive path must be absolute: %s", path)
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return errors.New(errors.CategoryArchivePrecondition, "archive does not exist: %s", path)
	}
	if err != nil {
		return errors.Wrap(errors.CategoryArchivePrecondition, err, "cannot stat archive %s", path)
	}
	if !info.Mode().IsRegular() {
		return errors.New(errors.CategoryArchivePrecondition, "archive is not a regular file: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.CategoryArchivePrecondition, err, "archive is not readable: %s", path)
	}
	f.Close()

	return nil
}

func classify(path string) (types.Classification, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(errors.CategoryArchivePrecondition, err, "archive is not readable: %s", path)
	}
	defer f.Close()

	// One tar header block covers every signature we look for.
	header := make([]byte, 512)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", errors.Wrap(errors.CategoryArchivePrecondition, err, "failed to read archive %s", path)
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, magicGzip):
		return types.ClassificationGzip, nil
	case bytes.HasPrefix(header, magicBzip2):
		return types.ClassificationBzip2, nil
	case bytes.HasPrefix(header, magicCompress):
		return types.ClassificationCompress, nil
	case len(header) >= ustarMagicOffset+len(magicUstar) &&
		bytes.Equal(header[ustarMagicOffset:ustarMagicOffset+len(magicUstar)], magicUstar):
		return types.ClassificationTar, nil
	}

	return "", errors.New(errors.CategoryUnsupportedArchive, "unsupported archive format: %s", path)
}
