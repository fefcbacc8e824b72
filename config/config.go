// Package config loads the optional builder configuration file. The file
// carries host-specific settings: the parent dataset new builds are created
// under, where that pool's datasets are mounted, the paths of the external
// tools, and the fallback documentation URL.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/lximage/lximage/internal/types"
)

// Tools holds the paths of the external tools the pipeline invokes.
type Tools struct {
	ZFS      string `yaml:"zfs"`
	Tar      string `yaml:"tar"`
	CRLE     string `yaml:"crle"`
	Manifest string `yaml:"manifest"`
}

// Config is the builder configuration. Zero values are replaced with defaults
// by Load and Default.
type Config struct {
	// Pool is the parent dataset ephemeral build datasets are created under.
	Pool string `yaml:"pool"`
	// MountRoot is the filesystem location where the pool's datasets are
	// mounted. Datasets under pool "zones" with mount root "/" appear at
	// /zones/<name>.
	MountRoot string `yaml:"mount_root"`
	// OutputDir is where both artifacts are written. Defaults to the current
	// working directory.
	OutputDir string `yaml:"output_dir"`
	// Homepage is the fallback documentation URL for generated manifests.
	Homepage string `yaml:"homepage"`
	Tools    Tools  `yaml:"tools"`
}

// Default returns the builder configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Pool:      "zones",
		MountRoot: "/",
		OutputDir: ".",
		Homepage:  types.DefaultHomepage,
		Tools: Tools{
			ZFS:      "/usr/sbin/zfs",
			Tar:      "/usr/bin/gtar",
			CRLE:     "/usr/bin/crle",
			Manifest: "/usr/bin/imgmanifest",
		},
	}
}

// Load reads a yaml configuration file and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %v", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Pool == "" {
		c.Pool = defaults.Pool
	}
	if c.MountRoot == "" {
		c.MountRoot = defaults.MountRoot
	}
	if c.OutputDir == "" {
		c.OutputDir = defaults.OutputDir
	}
	if c.Homepage == "" {
		c.Homepage = defaults.Homepage
	}
	if c.Tools.ZFS == "" {
		c.Tools.ZFS = defaults.Tools.ZFS
	}
	if c.Tools.Tar == "" {
		c.Tools.Tar = defaults.Tools.Tar
	}
	if c.Tools.CRLE == "" {
		c.Tools.CRLE = defaults.Tools.CRLE
	}
	if c.Tools.Manifest == "" {
		c.Tools.Manifest = defaults.Tools.Manifest
	}
}
