// Package layout mutates a freshly-extracted root filesystem so it is
// runnable under the LX compatibility layer, which mounts the host's native
// toolset at /native inside the zone. The steps are order-sensitive: the
// native subtree must exist before the linker configs that point into it are
// generated, and the fstab is written last.
package layout

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lximage/lximage/config"
	"github.com/lximage/lximage/dataset"
	"github.com/lximage/lximage/internal/errors"
	"github.com/lximage/lximage/runner"
)

// Directories created under the extracted root. The native tmp directory is
// world-writable with the sticky bit, matching /tmp semantics.
var nativeDirs = []struct {
	path string
	mode os.FileMode
}{
	{"native/dev", 0755},
	{"native/etc/default", 0755},
	{"native/etc/svc/volatile", 0755},
	{"native/lib", 0755},
	{"native/proc", 0755},
	{"native/tmp", os.ModeSticky | 0777},
	{"native/usr", 0755},
	{"native/var", 0755},
	{"var/ld", 0755},
	{"var/ld/64", 0755},
	{"etc", 0755},
}

// fstab is the fixed two-line mount table every LX image carries: the root
// dataset plus a Linux procfs.
const fstab = "none\t\t/\t\t\tzfs\tdefaults\t1 1\nproc\t\t/proc\t\t\tproc\tdefaults\t0 0\n"

// Linker search paths for the native libraries, including the secure
// subdirectories for trusted libraries.
const (
	libPath32    = "/native/lib:/native/usr/lib"
	securePath32 = "/native/lib/secure:/native/usr/lib/secure"
	libPath64    = "/native/lib/64:/native/usr/lib/64"
	securePath64 = "/native/lib/secure/64:/native/usr/lib/secure/64"
)

// Adapter applies the LX layout to an extracted root filesystem.
type Adapter struct {
	crle string
	run  runner.Runner
	log  *logrus.Entry
}

// NewAdapter returns an Adapter that generates linker configuration with the
// configured crle tool.
func NewAdapter(cfg *config.Config, run runner.Runner) *Adapter {
	return &Adapter{
		crle: cfg.Tools.CRLE,
		run:  run,
		log:  logrus.WithField("component", "layout"),
	}
}

// Apply runs all layout steps against the dataset's root filesystem.
func (a *Adapter) Apply(ds *dataset.Dataset) error {
	if err := a.createDirs(ds.Root); err != nil {
		return err
	}
	if err := a.linkerConfig(ds.Root, false); err != nil {
		return err
	}
	if err := a.linkerConfig(ds.Root, true); err != nil {
		return err
	}
	return a.writeFstab(ds.Root)
}

func (a *Adapter) createDirs(root string) error {
	a.log.WithField("root", root).Info("creating native subtree")

	for _, dir := range nativeDirs {
		path := filepath.Join(root, dir.path)
		if err := os.MkdirAll(path, 0755); err != nil {
			return errors.Wrap(errors.CategoryDataset, err, "failed to create %s", path)
		}
		if err := os.Chmod(path, dir.mode); err != nil {
			return errors.Wrap(errors.CategoryDataset, err, "failed to set mode on %s", path)
		}
	}
	return nil
}

// linkerConfig generates one dynamic-linker configuration file with crle,
// pointing the loader search path at the native library directories. The
// 64-bit config lives under var/ld/64 and carries the -64 flag.
func (a *Adapter) linkerConfig(root string, is64 bool) error {
	output := filepath.Join(root, "var", "ld", "ld.config")
	libs, secure := libPath32, securePath32
	args := []string{}

	if is64 {
		output = filepath.Join(root, "var", "ld", "64", "ld.config")
		libs, secure = libPath64, securePath64
		args = append(args, "-64")
	}
	args = append(args, "-c", output, "-l", libs, "-s", secure)

	a.log.WithFields(logrus.Fields{
		"output": output,
		"64bit":  is64,
	}).Info("generating linker configuration")

	result, err := a.run.Run(&runner.Command{Path: a.crle, Args: args})
	if err != nil {
		return errors.Wrap(errors.CategoryLinkerConfig, err, "failed to generate %s", output)
	}
	if !result.Ok() {
		return errors.New(errors.CategoryLinkerConfig, "crle exited %d generating %s: %s",
			result.ExitCode, output, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// writeFstab overwrites the image's mount table. Overwrite, not append: a
// rebuilt image must not accumulate entries from whatever the archive shipped.
func (a *Adapter) writeFstab(root string) error {
	path := filepath.Join(root, "etc", "fstab")
	a.log.WithField("path", path).Info("writing mount table")

	if err := os.WriteFile(path, []byte(fstab), 0644); err != nil {
		return errors.Wrap(errors.CategoryDataset, err, "failed to write %s", path)
	}
	return nil
}
