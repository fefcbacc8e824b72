package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lximage/lximage/config"
	"github.com/lximage/lximage/engine"
	"github.com/lximage/lximage/internal/types"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lximage",
		Short: "Build LX-brand OS images from root-filesystem archives",
		Long: `lximage builds a distributable LX-brand image from a root-filesystem
archive. It extracts the archive into an ephemeral ZFS dataset, adapts the
tree for the LX compatibility layer, and produces two artifacts: a compressed
filesystem stream (<name>-<date>.zfs.gz) and an image manifest
(<name>-<date>.json).`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newBuildCommand())

	return cmd
}

func newBuildCommand() *cobra.Command {
	var (
		archive     string
		kernel      string
		minPlatform string
		name        string
		description string
		homepage    string
		configPath  string
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an image from a root-filesystem archive",
		Long: `Build an LX-brand image. The archive must be an absolute path to a
gzip, bzip2, compress, or plain tar archive containing the root filesystem
under two leading path components (e.g. ./rootfs/...). Both artifacts are
written to the output directory (the current directory by default).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(debug)

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			request := &types.BuildRequest{
				ArchivePath:   archive,
				KernelVersion: kernel,
				MinPlatform:   minPlatform,
				Name:          name,
				Description:   description,
				Homepage:      homepage,
			}
			if err := request.Validate(); err != nil {
				return err
			}

			builder, err := engine.NewBuilder(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize builder: %v", err)
			}

			result, err := builder.Build(request)
			if err != nil {
				return err
			}

			fmt.Printf("Image build completed successfully!\n")
			fmt.Printf("Image: %s\n", result.ImagePath)
			fmt.Printf("Manifest: %s\n", result.ManifestPath)
			fmt.Printf("Duration: %s\n", result.Duration)

			return nil
		},
	}

	cmd.Flags().StringVarP(&archive, "archive", "a", "", "Absolute path to the root-filesystem archive")
	cmd.Flags().StringVarP(&kernel, "kernel", "k", "", "Kernel version the image reports (e.g. 3.13.0)")
	cmd.Flags().StringVarP(&minPlatform, "min-platform", "m", "", "Minimum platform version the image requires")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Image name")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Image description")
	cmd.Flags().StringVarP(&homepage, "homepage", "u", "", "Documentation URL (default: "+types.DefaultHomepage+")")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the builder configuration file")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func configureLogging(debug bool) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	switch {
	case debug:
		logrus.SetLevel(logrus.DebugLevel)
	case os.Getenv("LOG_LEVEL") != "":
		if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
			logrus.SetLevel(level)
		}
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
