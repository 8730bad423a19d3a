package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/talentsync/internal/adapters/export"
	"github.com/okian/talentsync/internal/domain/types"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var xlsxPath string
	cmd := &cobra.Command{
		Use:         "sync",
		Short:       "Run one reconciliation on the server",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().Sync(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			summary := resp.Summary()
			if xlsxPath != "" {
				if err := writeXLSX(xlsxPath, summary); err != nil {
					return err
				}
			}
			if ctx.flags.json {
				return writeJSON(cmd, resp)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderSummary(summary, shouldColorize(cmd.OutOrStdout())))
			return nil
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write the run report to this .xlsx file")
	return cmd
}

func writeXLSX(path string, summary types.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.WriteSummaryXLSX(f, summary); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func renderSummary(summary types.Summary, colorize bool) string {
	out := fmt.Sprintf("Processed %d submission(s) at %s\n", summary.Processed, summary.Timestamp.Local().Format(time.RFC3339))
	if len(summary.Results) == 0 {
		return out + "Nothing pending\n"
	}

	rows := make([][]string, 0, len(summary.Results))
	for _, r := range summary.Results {
		rows = append(rows, []string{r.SubmissionID, r.Email, statusLabel(r.Status, colorize), r.TalentApplicationID, r.Error})
	}
	out += renderTable(
		[]string{"Submission", "Email", "Status", "Talent Application", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)

	counts := summary.Counts()
	countRows := make([][]string, 0, len(types.AllStatuses))
	for _, st := range types.AllStatuses {
		countRows = append(countRows, []string{statusLabel(st, colorize), strconv.Itoa(counts[st])})
	}
	out += renderTable([]string{"Status", "Count"}, countRows, []columnAlignment{alignLeft, alignRight})
	return out
}
