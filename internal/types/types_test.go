package types

import (
	"testing"
	"time"

	"github.com/lximage/lximage/internal/errors"
)

func TestClassificationTarFlag(t *testing.T) {
	tests := []struct {
		class Classification
		want  string
	}{
		{ClassificationGzip, "-z"},
		{ClassificationBzip2, "-j"},
		{ClassificationCompress, "-Z"},
		{ClassificationTar, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := tt.class.TarFlag(); got != tt.want {
				t.Errorf("TarFlag() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildRequestValidate(t *testing.T) {
	valid := BuildRequest{
		ArchivePath:   "/var/tmp/rootfs.tar.gz",
		KernelVersion: "3.13.0",
		MinPlatform:   "20150316T201553Z",
		Name:          "lx-test",
		Description:   "Test Image",
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	tests := []struct {
		name   string
		mutate func(*BuildRequest)
	}{
		{"missing archive", func(r *BuildRequest) { r.ArchivePath = "" }},
		{"missing kernel", func(r *BuildRequest) { r.KernelVersion = "" }},
		{"missing min-platform", func(r *BuildRequest) { r.MinPlatform = "" }},
		{"missing name", func(r *BuildRequest) { r.Name = "" }},
		{"missing description", func(r *BuildRequest) { r.Description = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			err := req.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, errors.CategoryInvalidInput) {
				t.Errorf("category = %v, want %v", errors.CategoryOf(err), errors.CategoryInvalidInput)
			}
		})
	}

	t.Run("homepage is optional", func(t *testing.T) {
		req := valid
		req.Homepage = ""
		if err := req.Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})
}

func TestBuildIdentity(t *testing.T) {
	now := time.Date(2015, 3, 16, 20, 15, 53, 0, time.UTC)
	id := NewBuildIdentity("lx-test", now)

	if got := id.String(); got != "lx-test-20150316" {
		t.Errorf("String() = %q, want %q", got, "lx-test-20150316")
	}
	if got := id.StreamFile(); got != "lx-test-20150316.zfs.gz" {
		t.Errorf("StreamFile() = %q, want %q", got, "lx-test-20150316.zfs.gz")
	}
	if got := id.ManifestFile(); got != "lx-test-20150316.json" {
		t.Errorf("ManifestFile() = %q, want %q", got, "lx-test-20150316.json")
	}
}
