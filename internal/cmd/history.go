package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// HistoryCmd shows past flash attempts
type HistoryCmd struct {
	Limit int `help:"Maximum number of records to show" default:"20"`
}

// Run executes the history command
func (h *HistoryCmd) Run(cli *CLI) error {
	if cli.Container.History == nil {
		fmt.Println("Flash history is unavailable.")
		return nil
	}

	records, err := cli.Container.History.List(context.Background(), h.Limit)
	if err != nil {
		return fmt.Errorf("failed to list flash history: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No flash attempts recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tCONFIG\tENV\tTARGET\tSTATUS\tMESSAGE")
	for _, record := range records {
		target := record.TargetPort
		if target == "" {
			target = record.TargetDeviceID
		}
		if target == "" {
			target = "auto"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			record.CreatedAt.Local().Format(time.DateTime),
			record.BuildConfig,
			record.EnvName,
			target,
			record.Status,
			record.Message,
		)
	}
	return w.Flush()
}
