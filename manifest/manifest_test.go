package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lximage/lximage/config"
	"github.com/lximage/lximage/internal/errors"
	"github.com/lximage/lximage/runner"
)

func testParams() *Params {
	return &Params{
		File:        "lx-test-20150316.zfs.gz",
		Kernel:      "3.13.0",
		MinPlatform: "20150316T201553Z",
		Name:        "lx-test",
		OS:          "linux",
		Version:     "20150316",
		Description: "Test Image",
		Homepage:    "https://docs.joyent.com/images/container-native-linux",
	}
}

// fakeGenerator returns a canned document or error.
type fakeGenerator struct {
	output []byte
	err    error
}

func (g *fakeGenerator) Generate(p *Params) ([]byte, error) {
	return g.output, g.err
}

func validDocument(p *Params) []byte {
	doc := Document{
		Name:        p.Name,
		Version:     p.Version,
		OS:          p.OS,
		Description: p.Description,
		Homepage:    p.Homepage,
	}
	data, _ := json.Marshal(doc)
	return data
}

func TestToolGeneratorArguments(t *testing.T) {
	var captured []string

	run := runner.Func(func(cmd *runner.Command) (*runner.Result, error) {
		captured = append([]string{cmd.Path}, cmd.Args...)
		fmt.Fprint(cmd.Stdout, `{"name":"lx-test"}`)
		return &runner.Result{ExitCode: 0}, nil
	})

	gen := NewToolGenerator(config.Default(), run)
	data, err := gen.Generate(testParams())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if string(data) != `{"name":"lx-test"}` {
		t.Errorf("output = %q", data)
	}

	argPairs := map[string]string{}
	for i := 1; i+1 < len(captured); i += 2 {
		argPairs[captured[i]] = captured[i+1]
	}
	want := map[string]string{
		"-f": "lx-test-20150316.zfs.gz",
		"-k": "3.13.0",
		"-m": "20150316T201553Z",
		"-n": "lx-test",
		"-o": "linux",
		"-v": "20150316",
		"-d": "Test Image",
		"-h": "https://docs.joyent.com/images/container-native-linux",
	}
	for flag, value := range want {
		if argPairs[flag] != value {
			t.Errorf("arg %s = %q, want %q", flag, argPairs[flag], value)
		}
	}
}

func TestToolGeneratorNonZeroExit(t *testing.T) {
	run := runner.Func(func(cmd *runner.Command) (*runner.Result, error) {
		return &runner.Result{ExitCode: 1, Stderr: "usage: imgmanifest ..."}, nil
	})

	gen := NewToolGenerator(config.Default(), run)
	_, err := gen.Generate(testParams())
	if err == nil {
		t.Fatal("Generate() = nil, want failure")
	}
	if !errors.Is(err, errors.CategoryManifest) {
		t.Errorf("category = %v, want %v", errors.CategoryOf(err), errors.CategoryManifest)
	}
}

func TestEmit(t *testing.T) {
	p := testParams()
	emitter := NewEmitter(&fakeGenerator{output: validDocument(p)})

	path := filepath.Join(t.TempDir(), "lx-test-20150316.json")
	if err := emitter.Emit(p, path); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("artifact is not valid JSON: %v", err)
	}
	if doc.Name != "lx-test" {
		t.Errorf("manifest name = %q, want lx-test", doc.Name)
	}
	if doc.Version != "20150316" {
		t.Errorf("manifest version = %q, want 20150316", doc.Version)
	}

	if _, err := os.Stat(path + ".partial"); !os.IsNotExist(err) {
		t.Error("partial manifest left behind")
	}
}

func TestEmitFailuresLeaveNoArtifact(t *testing.T) {
	p := testParams()

	tests := []struct {
		name string
		gen  Generator
	}{
		{
			name: "generator error",
			gen:  &fakeGenerator{err: errors.New(errors.CategoryManifest, "tool exploded")},
		},
		{
			name: "empty output",
			gen:  &fakeGenerator{output: []byte("  \n")},
		},
		{
			name: "invalid json",
			gen:  &fakeGenerator{output: []byte("not json at all")},
		},
		{
			name: "name mismatch",
			gen:  &fakeGenerator{output: []byte(`{"name":"something-else"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "lx-test-20150316.json")

			err := NewEmitter(tt.gen).Emit(p, path)
			if err == nil {
				t.Fatal("Emit() = nil, want failure")
			}
			if !errors.Is(err, errors.CategoryManifest) {
				t.Errorf("category = %v, want %v", errors.CategoryOf(err), errors.CategoryManifest)
			}

			entries, readErr := os.ReadDir(dir)
			if readErr != nil {
				t.Fatal(readErr)
			}
			for _, entry := range entries {
				t.Errorf("unexpected file after failed emit: %s", entry.Name())
			}
		})
	}
}

func TestEmitDefaultHomepagePassedThrough(t *testing.T) {
	p := testParams()
	p.Homepage = "https://docs.joyent.com/images/container-native-linux"

	var got *Params
	gen := &capturingGenerator{output: validDocument(p), captured: &got}

	path := filepath.Join(t.TempDir(), "lx-test-20150316.json")
	if err := NewEmitter(gen).Emit(p, path); err != nil {
		t.Fatal(err)
	}
	if got.Homepage != p.Homepage {
		t.Errorf("homepage = %q, want %q", got.Homepage, p.Homepage)
	}
}

type capturingGenerator struct {
	output   []byte
	captured **Params
}

func (g *capturingGenerator) Generate(p *Params) ([]byte, error) {
	*g.captured = p
	return g.output, nil
}

func TestDocumentFieldCoverage(t *testing.T) {
	data := []byte(`{"name":"lx-test","version":"20150316","os":"linux","description":"Test Image","homepage":"https://example.com/docs"}`)

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.OS != "linux" || doc.Description != "Test Image" || !strings.HasPrefix(doc.Homepage, "https://") {
		t.Errorf("decoded document = %+v", doc)
	}
}
