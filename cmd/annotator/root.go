package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	annotator "github.com/Willayat060/data-annotating-tool"
	"github.com/Willayat060/data-annotating-tool/internal/config"
	"github.com/Willayat060/data-annotating-tool/internal/logging"
)

// app carries the state shared by all subcommands.
type app struct {
	cfgFile string

	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
}

// flagKeys maps config keys to the flags that override them. Flags missing
// from a subcommand are ignored.
var flagKeys = map[string]string{
	"dataset.label_dir":  "labels",
	"dataset.descriptor": "descriptor",
	"log.level":          "log-level",
	"assist.backend":     "backend",
	"assist.url":         "url",
	"assist.model":       "model",
	"render.format":      "format",
}

// rootCommand creates and returns the root command
func rootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "annotator",
		Short:         "Review and correct bounding-box labels",
		Long:          "Review, correct and extend the bounding-box labels of an object detection dataset.",
		Version:       annotator.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./annotator.yaml, then ~/.config/annotator/annotator.yaml)")
	pf.String("labels", "", "directory searched first for label files; new label files are written there")
	pf.String("descriptor", "", "class descriptor file name or path")
	pf.String("log-level", "", "log level: trace, debug, info, warn, error")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// init writes the config file and must not depend on reading one
		if cmd.Name() == "init" {
			return nil
		}
		return a.loadConfig(cmd, cmd.Name() == "review")
	}

	rootCmd.AddCommand(
		reviewCommand(a),
		checkCommand(a),
		legendCommand(a),
		renderCommand(a),
		suggestCommand(a),
		initCommand(a),
	)
	return rootCmd
}

// loadConfig reads the configuration with flag overrides and sets up the
// logger. The review TUI owns the terminal, so it always logs to a file.
func (a *app) loadConfig(cmd *cobra.Command, toFile bool) error {
	a.v = config.NewViper(a.cfgFile)
	for key, name := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := a.v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("error binding flag %s: %w", name, err)
			}
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := logging.ParseLevel(cfg.Log.Level)
	logFile := cfg.Log.File
	if logFile == "" && toFile {
		logFile = filepath.Join(os.TempDir(), "annotator.log")
	}
	if logFile == "" {
		a.logger = logging.New(cmd.ErrOrStderr(), level, cfg.Log.Format)
		return nil
	}

	logger, closer, err := logging.NewFile(logFile, level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.logger, a.closer = logger, closer
	return nil
}

// open loads the dataset at args[0], or at dataset.root without arguments.
func (a *app) open(args []string) (*annotator.Workspace, error) {
	if len(args) > 0 {
		a.cfg.Dataset.Root = args[0]
	}
	return annotator.OpenWithLogger(a.cfg, a.logger)
}

func (a *app) close() {
	if a.closer != nil {
		a.closer.Close()
		a.closer = nil
	}
}
