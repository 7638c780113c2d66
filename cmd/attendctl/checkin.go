package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var checkinCmd = &cobra.Command{
	Use:   "checkin <image>",
	Short: "Take attendance from a captured image",
	Long: `Identifies every face in the image against the gallery and marks the
recognised people present for today. A person is recorded at most once per day.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckin,
}

func init() {
	rootCmd.AddCommand(checkinCmd)
}

func runCheckin(cmd *cobra.Command, args []string) error {
	img, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.Service.TakeAttendance(cmd.Context(), img)
	if err != nil {
		return fmt.Errorf("failed to take attendance: %w", err)
	}
	for _, r := range results {
		fmt.Fprintln(cmd.OutOrStdout(), r.Message)
	}
	return nil
}
