// Package manifest produces the image's metadata document by invoking the
// external manifest tool and capturing its output. The document is only
// written to its final name after the tool succeeded and the output parsed as
// a manifest, so a failed generation never leaves a partial artifact behind.
package manifest

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lximage/lximage/config"
	"github.com/lximage/lximage/internal/errors"
	"github.com/lximage/lximage/runner"
)

// Params carries the build parameters handed to the manifest tool.
type Params struct {
	File        string // Filename of the compressed stream artifact.
	Kernel      string // Guest kernel version.
	MinPlatform string // Minimum platform the image requires.
	Name        string // Image name.
	OS          string // Operating-system tag, always "linux" for LX images.
	Version     string // Image version, the build date.
	Description string
	Homepage    string
}

// Document is the subset of the generated manifest the emitter verifies.
type Document struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	OS          string `json:"os"`
	Description string `json:"description"`
	Homepage    string `json:"homepage"`
}

// Generator produces a manifest document for the given parameters. The real
// implementation shells out to the platform's manifest tool; tests supply a
// fake.
type Generator interface {
	Generate(p *Params) ([]byte, error)
}

// ToolGenerator invokes the external manifest tool and captures its standard
// output.
type ToolGenerator struct {
	path string
	run  runner.Runner
}

// NewToolGenerator returns a Generator backed by the configured tool.
func NewToolGenerator(cfg *config.Config, run runner.Runner) *ToolGenerator {
	return &ToolGenerator{path: cfg.Tools.Manifest, run: run}
}

// Generate implements Generator
func (g *ToolGenerator) Generate(p *Params) ([]byte, error) {
	var stdout strings.Builder

	result, err := g.run.Run(&runner.Command{
		Path: g.path,
		Args: []string{
			"-f", p.File,
			"-k", p.Kernel,
			"-m", p.MinPlatform,
			"-n", p.Name,
			"-o", p.OS,
			"-v", p.Version,
			"-d", p.Description,
			"-h", p.Homepage,
		},
		Stdout: &stdout,
	})
	if err != nil {
		return nil, errors.Wrap(errors.CategoryManifest, err, "failed to run manifest tool")
	}
	if !result.Ok() {
		return nil, errors.New(errors.CategoryManifest, "manifest tool exited %d: %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	return []byte(stdout.String()), nil
}

// Emitter captures a generated manifest and writes it to the artifact path.
type Emitter struct {
	gen Generator
	log *logrus.Entry
}

// NewEmitter returns an Emitter using the given generator.
func NewEmitter(gen Generator) *Emitter {
	return &Emitter{
		gen: gen,
		log: logrus.WithField("component", "manifest"),
	}
}

// Emit generates the manifest and writes it atomically to path. The output
// must be a JSON document whose name matches the requested image name;
// anything else fails without creating the artifact.
func (e *Emitter) Emit(p *Params, path string) error {
	e.log.WithFields(logrus.Fields{
		"name":     p.Name,
		"version":  p.Version,
		"artifact": path,
	}).Info("generating manifest")

	data, err := e.gen.Generate(p)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return errors.New(errors.CategoryManifest, "manifest tool produced no output")
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(errors.CategoryManifest, err, "manifest tool produced invalid JSON")
	}
	if doc.Name != p.Name {
		return errors.New(errors.CategoryManifest, "manifest name %q does not match image name %q", doc.Name, p.Name)
	}

	partial := path + ".partial"
	if err := os.WriteFile(partial, data, 0644); err != nil {
		return errors.Wrap(errors.CategoryManifest, err, "failed to write %s", partial)
	}
	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return errors.Wrap(errors.CategoryManifest, err, "failed to finalize %s", path)
	}
	return nil
}
