package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:         "list",
		Short:       "List talent applications from the server",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := ctx.client().ListApplications(cmd.Context(), limit, offset)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			if ctx.flags.json {
				return writeJSON(cmd, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Directory is empty")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, app := range items {
				age := ""
				if app.Age != nil {
					age = strconv.Itoa(*app.Age)
				}
				rows = append(rows, []string{app.ID, app.Email, app.FullName, age, app.Country, string(app.Status)})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Email", "Name", "Age", "Country", "Status"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}
