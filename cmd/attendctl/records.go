package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"faceattend/internal/attendance"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Print the attendance ledger",
	Args:  cobra.NoArgs,
	RunE:  runRecords,
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.Flags().Bool("csv", false, "Write the ledger as CSV")
	recordsCmd.Flags().String("date", "", "Only show records for this date (YYYY-MM-DD)")
}

func runRecords(cmd *cobra.Command, args []string) error {
	asCSV := mustGetBool(cmd, "csv")
	date := mustGetString(cmd, "date")
	out := cmd.OutOrStdout()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if asCSV && date == "" {
		return a.Service.Export(cmd.Context(), out)
	}

	recs, err := a.Service.Records(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	if date != "" {
		filtered := recs[:0]
		for _, r := range recs {
			if r.Date == date {
				filtered = append(filtered, r)
			}
		}
		recs = filtered
	}

	if asCSV {
		data, err := attendance.EncodeCSV(recs)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDATE\tTIME")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Date, r.Time)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d record(s)\n", len(recs))
	return nil
}
