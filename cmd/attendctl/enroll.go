package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name> <image>",
	Short: "Enroll a reference photo for a person",
	Long: `Stores the image as the gallery reference for name, replacing any earlier
photo of that person. The image must show at least one face.`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	name, path := args[0], args[1]
	img, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Service.RegisterFace(cmd.Context(), name, img); err != nil {
		return fmt.Errorf("failed to enroll %s: %w", name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile created for %s!\n", name)
	return nil
}
