package types

import (
	"fmt"
	"time"

	"github.com/lximage/lximage/internal/errors"
)

// DefaultHomepage is the documentation URL recorded in the manifest when the
// operator does not supply one.
const DefaultHomepage = "https://docs.joyent.com/images/container-native-linux"

// ImageOS is the operating-system tag recorded in every generated manifest.
// LX-brand images always contain a Linux userland.
const ImageOS = "linux"

// Classification identifies the compression format of the input archive,
// derived from its content signature rather than its filename.
type Classification string

const (
	ClassificationGzip     Classification = "gzip"
	ClassificationBzip2    Classification = "bzip2"
	ClassificationCompress Classification = "compress"
	ClassificationTar      Classification = "tar"
)

// TarFlag returns the gtar decompression flag for the classification. Plain
// tar archives need no flag.
func (c Classification) TarFlag() string {
	switch c {
	case ClassificationGzip:
		return "-z"
	case ClassificationBzip2:
		return "-j"
	case ClassificationCompress:
		return "-Z"
	default:
		return ""
	}
}

// BuildRequest is the immutable input gathered by the CLI front end. It is
// validated once before the pipeline starts and never re-validated downstream.
type BuildRequest struct {
	ArchivePath   string `json:"archive_path"`
	KernelVersion string `json:"kernel_version"`
	MinPlatform   string `json:"min_platform"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Homepage      string `json:"homepage,omitempty"`
}

// Validate checks that every required field is present. The archive path
// itself is validated separately by the inspector.
func (r *BuildRequest) Validate() error {
	required := []struct {
		value string
		flag  string
	}{
		{r.ArchivePath, "archive"},
		{r.KernelVersion, "kernel"},
		{r.MinPlatform, "min-platform"},
		{r.Name, "name"},
		{r.Description, "description"},
	}

	for _, field := range required {
		if field.value == "" {
			return errors.New(errors.CategoryInvalidInput, "missing required argument: --%s", field.flag)
		}
	}
	return nil
}

// BuildIdentity is the composite key naming all artifacts of one build run:
// the image name joined with the build date. It is computed once at the start
// of the pipeline and stays stable for the whole run.
type BuildIdentity struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

// NewBuildIdentity derives the identity for a build starting at now.
func NewBuildIdentity(name string, now time.Time) BuildIdentity {
	return BuildIdentity{
		Name: name,
		Date: now.Format("20060102"),
	}
}

// String returns the <name>-<date> form used to name the ephemeral dataset
// and both output artifacts.
func (id BuildIdentity) String() string {
	return fmt.Sprintf("%s-%s", id.Name, id.Date)
}

// StreamFile returns the filename of the compressed filesystem stream.
func (id BuildIdentity) StreamFile() string {
	return id.String() + ".zfs.gz"
}

// ManifestFile returns the filename of the image manifest.
func (id BuildIdentity) ManifestFile() string {
	return id.String() + ".json"
}

// BuildResult reports the outcome of one pipeline run.
type BuildResult struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	ImagePath    string `json:"image_path,omitempty"`
	ManifestPath string `json:"manifest_path,omitempty"`
	Duration     string `json:"duration"`
}
