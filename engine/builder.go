// Package engine sequences the image-build pipeline: dataset creation,
// archive extraction, layout adaptation, serialization, and manifest
// emission. The pipeline is strictly sequential with no retries; any stage
// failure is fatal, and a scoped cleanup guard ensures the ephemeral dataset
// never survives a failed run.
package engine

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lximage/lximage/config"
	"github.com/lximage/lximage/dataset"
	"github.com/lximage/lximage/inspector"
	"github.com/lximage/lximage/internal/types"
	"github.com/lximage/lximage/layout"
	"github.com/lximage/lximage/manifest"
	"github.com/lximage/lximage/runner"
	"github.com/lximage/lximage/serializer"
)

// State names a position in the pipeline's linear state machine. Transitions
// only move forward; any failure lands in StateFailed.
type State string

const (
	StateStart            State = "start"
	StateDatasetCreated   State = "dataset_created"
	StateExtracted        State = "extracted"
	StateLayoutAdapted    State = "layout_adapted"
	StateSerialized       State = "serialized"
	StateDatasetDestroyed State = "dataset_destroyed"
	StateManifestEmitted  State = "manifest_emitted"
	StateReported         State = "reported"
	StateFailed           State = "failed"
)

// Builder owns one build run end to end.
type Builder struct {
	config     *config.Config
	datasets   *dataset.Manager
	layout     *layout.Adapter
	serializer *serializer.Serializer
	manifests  *manifest.Emitter

	// now is the single clock read for the whole run; the build identity is
	// derived from it once and reused everywhere.
	now func() time.Time

	state State
	log   *logrus.Entry
}

// NewBuilder wires a Builder against the real host tools.
func NewBuilder(cfg *config.Config) (*Builder, error) {
	return newBuilder(cfg, runner.ExecRunner{})
}

func newBuilder(cfg *config.Config, run runner.Runner) (*Builder, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, err
	}

	datasets := dataset.NewManager(cfg, run)
	return &Builder{
		config:     cfg,
		datasets:   datasets,
		layout:     layout.NewAdapter(cfg, run),
		serializer: serializer.New(datasets, cfg.OutputDir),
		manifests:  manifest.NewEmitter(manifest.NewToolGenerator(cfg, run)),
		now:        time.Now,
		state:      StateStart,
		log:        logrus.WithField("component", "engine"),
	}, nil
}

// State returns the pipeline's current state.
func (b *Builder) State() State {
	return b.state
}

func (b *Builder) transition(next State) {
	b.log.WithFields(logrus.Fields{"from": b.state, "to": next}).Debug("pipeline transition")
	b.state = next
}

// Build runs the pipeline for one request and reports the produced artifact
// paths. The request must already be validated; Build does not re-check it.
//
// Archive classification runs before the dataset is created, so an
// unsupported archive never allocates storage. From dataset creation until
// the serialize stage hands the dataset's contents off to the artifact, a
// cleanup guard destroys the dataset on any exit path; the guard is disarmed
// only once serialization has destroyed the dataset itself.
func (b *Builder) Build(req *types.BuildRequest) (*types.BuildResult, error) {
	start := b.now()
	result := &types.BuildResult{}

	fail := func(err error) (*types.BuildResult, error) {
		b.transition(StateFailed)
		result.Success = false
		result.Error = err.Error()
		result.Duration = b.now().Sub(start).String()
		return result, err
	}

	identity := types.NewBuildIdentity(req.Name, start)
	homepage := req.Homepage
	if homepage == "" {
		homepage = b.config.Homepage
	}

	b.log.WithFields(logrus.Fields{
		"identity": identity.String(),
		"archive":  req.ArchivePath,
	}).Info("starting image build")

	class, err := inspector.Inspect(req.ArchivePath)
	if err != nil {
		return fail(err)
	}

	ds, err := b.datasets.Create(identity)
	if err != nil {
		return fail(err)
	}
	b.transition(StateDatasetCreated)

	// Guard: the dataset must not outlive a failed run. Destroy is
	// idempotent, so running behind Extract's own failure cleanup or the
	// serializer's success-path destroy is harmless.
	disarmed := false
	defer func() {
		if !disarmed {
			if err := b.datasets.Destroy(ds); err != nil {
				b.log.WithError(err).Error("failed to destroy dataset during cleanup")
			}
		}
	}()

	if err := b.datasets.Extract(ds, req.ArchivePath, class); err != nil {
		return fail(err)
	}
	b.transition(StateExtracted)

	if err := b.layout.Apply(ds); err != nil {
		return fail(err)
	}
	b.transition(StateLayoutAdapted)

	imagePath, err := b.serializer.Serialize(ds, identity)
	if err != nil {
		return fail(err)
	}
	b.transition(StateSerialized)
	b.transition(StateDatasetDestroyed)
	disarmed = true

	manifestPath := filepath.Join(b.config.OutputDir, identity.ManifestFile())
	params := &manifest.Params{
		File:        identity.StreamFile(),
		Kernel:      req.KernelVersion,
		MinPlatform: req.MinPlatform,
		Name:        req.Name,
		OS:          types.ImageOS,
		Version:     identity.Date,
		Description: req.Description,
		Homepage:    homepage,
	}
	if err := b.manifests.Emit(params, manifestPath); err != nil {
		return fail(err)
	}
	b.transition(StateManifestEmitted)

	result.Success = true
	result.ImagePath = imagePath
	result.ManifestPath = manifestPath
	result.Duration = b.now().Sub(start).String()
	b.transition(StateReported)

	b.log.WithFields(logrus.Fields{
		"image":    imagePath,
		"manifest": manifestPath,
	}).Info("image build complete")

	return result, nil
}
