package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <folder-path>",
	Short: "Enroll every photo in a folder",
	Long: `Enrolls each image in the folder under its file name without extension,
so alice.jpg becomes the reference photo for "alice".

Files that fail (no face, unsupported format) are listed at the end and do
not stop the import.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().Bool("dry-run", false, "List the names that would be enrolled without enrolling")
}

func runImport(cmd *cobra.Command, args []string) error {
	dryRun := mustGetBool(cmd, "dry-run")
	out := cmd.OutOrStdout()

	files, err := importFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(out, "No images found")
		return nil
	}
	if dryRun {
		for _, f := range files {
			fmt.Fprintf(out, "%s\t%s\n", stem(f), f)
		}
		return nil
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var failures []string
	for _, f := range files {
		img, err := os.ReadFile(f)
		if err == nil {
			err = a.Service.RegisterFace(cmd.Context(), stem(f), img)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(f), err))
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Fprintln(cmd.ErrOrStderr())

	fmt.Fprintf(out, "Enrolled %d of %d photos\n", len(files)-len(failures), len(files))
	for _, f := range failures {
		fmt.Fprintf(out, "  skipped %s\n", f)
	}
	return nil
}

// importFiles lists the image files directly inside dir in name order.
func importFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
