package main

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	annotator "github.com/Willayat060/data-annotating-tool"
	"github.com/Willayat060/data-annotating-tool/internal/config"
	"github.com/Willayat060/data-annotating-tool/internal/utils"
	"github.com/Willayat060/data-annotating-tool/pkg/session"
)

// checkCommand loads the dataset and reports every problem found on the way.
func checkCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check [root]",
		Short: "Validate label files",
		Long:  "Load every image and label file and report malformed lines and unreadable images. Exits non-zero when anything was found.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.open(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			report, _ := ws.Report()

			failed := make([]string, 0, len(report.Failed))
			for p := range report.Failed {
				failed = append(failed, p)
			}
			slices.Sort(failed)
			for _, p := range failed {
				fmt.Fprintf(out, "FAIL %s: %v\n", p, report.Failed[p])
			}

			skipped := 0
			for _, p := range ws.Store().Paths() {
				lines := report.Skipped[p]
				if len(lines) == 0 {
					continue
				}
				e, _ := ws.Store().Entry(p)
				for _, l := range lines {
					fmt.Fprintf(out, "SKIP %s:%d: %s: %q\n", e.LabelPath, l.Line, l.Reason, l.Text)
				}
				skipped += len(lines)
			}
			if report.Pixel > 0 {
				fmt.Fprintf(out, "note: %d lines were in pixel coordinates and will be normalized on save\n", report.Pixel)
			}

			fmt.Fprintln(out, report.Summary())
			if len(failed) > 0 || skipped > 0 {
				return fmt.Errorf("check failed: %d images unreadable, %d lines malformed", len(failed), skipped)
			}
			return nil
		},
	}
}

// legendCommand prints the per-class box counts of every image.
func legendCommand(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "legend [root]",
		Short: "Print per-image class counts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.open(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			root := ws.Config().Dataset.Root
			for _, p := range ws.Store().Paths() {
				entries := session.Legend(ws.Store().Boxes(p), ws.Classes())
				if len(entries) == 0 && !all {
					continue
				}
				fmt.Fprintf(out, "%s: %s\n", relPath(root, p), formatLegend(entries))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include images without boxes")
	return cmd
}

func formatLegend(entries []session.LegendEntry) string {
	if len(entries) == 0 {
		return "no boxes"
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("[%d] %s x%d", e.ClassID, e.Name, e.Count)
	}
	return strings.Join(parts, ", ")
}

func relPath(root, p string) string {
	if rel, err := filepath.Rel(root, p); err == nil {
		return rel
	}
	return p
}

// renderCommand frames one box the way review does and writes the view.
func renderCommand(a *app) *cobra.Command {
	var box int
	var out string
	cmd := &cobra.Command{
		Use:   "render [root]",
		Short: "Render the auto-framed view of a box to an image file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.open(args)
			if err != nil {
				return err
			}
			fc := ws.Flashcard()
			if err := fc.JumpToBox(box); err != nil {
				return err
			}
			if out == "" {
				out = utils.GenerateOutputFilename(fc.Image(), ".", "", fmt.Sprintf("_box%d", box), ws.Config().Render.Format)
			}
			if err := ws.Snapshot(fc, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", fc.Status(), out)
			return nil
		},
	}
	cmd.Flags().IntVar(&box, "box", 1, "1-based box number in review order")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <image>_box<N>.<format> in the working directory)")
	cmd.Flags().String("format", "", "output format: png, jpg, webp")
	return cmd
}

// suggestCommand proposes a box for every image without labels.
func suggestCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest [root]",
		Short: "Propose boxes for unlabelled images",
		Long:  "Ask the configured assist backend for the main subject of every image without boxes and save it as a class 0 box.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.open(args)
			if err != nil {
				return err
			}
			p, err := ws.Proposer()
			if err != nil {
				return err
			}
			report, err := ws.Suggest(cmd.Context(), ws.Flashcard(), p)

			out := cmd.OutOrStdout()
			root := ws.Config().Dataset.Root
			for _, path := range report.NoSubject {
				fmt.Fprintf(out, "none %s\n", relPath(root, path))
			}
			for path, ferr := range report.Failed {
				fmt.Fprintf(out, "FAIL %s: %v\n", relPath(root, path), ferr)
			}
			fmt.Fprintf(out, "%d of %d unlabelled images got a box (backend %s)\n",
				report.Added, report.Candidates, ws.Config().Assist.Backend)
			return err
		},
	}
	cmd.Flags().String("backend", "", "assist backend: saliency, ollama, llamacpp")
	cmd.Flags().String("url", "", "model server URL")
	cmd.Flags().String("model", "", "model name")
	return cmd
}

// initCommand writes a configuration file with default values.
func initCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init [file]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.GetConfigPath()
			if len(args) > 0 {
				path = args[0]
			}
			if err := annotator.WriteDefaultConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}
