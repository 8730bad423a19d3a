package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/okian/talentsync/internal/adapters/repository"
	"github.com/okian/talentsync/internal/loadgen"
)

func newLoadTestCommand(ctx *commandContext) *cobra.Command {
	var cfg loadgen.Config
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Seed submissions, sync twice through the server and verify",
		Long: `loadtest writes synthetic submissions straight into the configured
store, triggers two sync runs over HTTP and checks that every unique email
ended up in the directory exactly once. The server must share the store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.BaseURL = ctx.baseURL()
			cfg.Token = ctx.token()
			return ctx.withStore(cmd, func(store repository.Store) error {
				client := loadgen.NewClient(cfg.BaseURL, cfg.Token, cfg.Timeout)
				stats, rep, runErr := loadgen.Run(cmd.Context(), cfg, store, client)
				if ctx.flags.json {
					if err := writeJSON(cmd, map[string]any{"stats": stats, "report": rep}); err != nil {
						return err
					}
					return runErr
				}
				rows := [][]string{
					{"generated", strconv.Itoa(stats.Generated)},
					{"inserted", strconv.Itoa(stats.Inserted)},
					{"unique emails", strconv.Itoa(stats.UniqueKeys)},
					{"synced", strconv.Itoa(stats.Synced)},
					{"already existed", strconv.Itoa(stats.Existing)},
					{"errors", strconv.Itoa(stats.Errors)},
					{"duration", stats.Duration.String()},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintln(cmd.OutOrStdout(), rep.String())
				return runErr
			})
		},
	}
	cmd.Flags().IntVarP(&cfg.Submissions, "count", "n", loadgen.DefaultSubmissions, "Number of submissions")
	cmd.Flags().Float64Var(&cfg.DupRatio, "dup-ratio", loadgen.DefaultDupRatio, "Share of submissions reusing an earlier email")
	cmd.Flags().IntVar(&cfg.Workers, "workers", loadgen.DefaultWorkers, "Concurrent inserters")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", loadgen.DefaultTimeout, "HTTP request timeout")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 0, "Generator seed (default: clock)")
	return cmd
}
