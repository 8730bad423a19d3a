package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/talentsync/internal/adapters/repository"
	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/internal/loadgen"
)

// errVerifyFailed makes verify exit non-zero without repeating the report.
var errVerifyFailed = errors.New("verification failed")

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store repository.Store) error {
				if err := store.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
				return nil
			})
		},
	}
}

func newSeedCommand(ctx *commandContext) *cobra.Command {
	var (
		count    int
		dupRatio float64
		seed     int64
		workers  int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert synthetic pending submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			subs := loadgen.Generate(count, dupRatio, seed)
			return ctx.withStore(cmd, func(store repository.Store) error {
				inserted, failed, err := loadgen.Seed(cmd.Context(), store, subs, workers)
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd, map[string]any{
						"inserted":      inserted,
						"failed":        failed,
						"unique_emails": loadgen.UniqueEmails(subs),
						"seed":          seed,
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d submission(s), %d failed, %d unique email(s), seed %d\n",
					inserted, failed, loadgen.UniqueEmails(subs), seed)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", loadgen.DefaultSubmissions, "Number of submissions")
	cmd.Flags().Float64Var(&dupRatio, "dup-ratio", loadgen.DefaultDupRatio, "Share of submissions reusing an earlier email")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Generator seed (default: clock)")
	cmd.Flags().IntVar(&workers, "workers", loadgen.DefaultWorkers, "Concurrent inserters")
	return cmd
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check for pending submissions and duplicate directory emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store repository.Store) error {
				rep, err := loadgen.Verify(cmd.Context(), store, nil)
				if err != nil {
					return err
				}
				if ctx.flags.json {
					if err := writeJSON(cmd, rep); err != nil {
						return err
					}
				} else {
					rows := [][]string{
						{"pending submissions", strconv.Itoa(rep.Pending)},
						{"duplicate emails", strconv.Itoa(len(rep.DuplicateEmails))},
					}
					fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Check", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
					for email, n := range rep.DuplicateEmails {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s appears %d times\n", email, n)
					}
				}
				if !rep.OK() {
					return errVerifyFailed
				}
				return nil
			})
		},
	}
}

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the newest sync audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store repository.Store) error {
				entries, err := store.ListSyncAudit(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No audit entries")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						e.TalentSyncDate.Local().Format(time.DateTime),
						e.Email,
						e.SubmissionID,
						e.TalentApplicationID,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Synced", "Email", "Submission", "Talent Application"},
					rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Entries to show")
	return cmd
}

func newGrantCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user-id> <role>",
		Short: "Assign a staff role (admin, editor, viewer) to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := authz.Role(strings.ToLower(strings.TrimSpace(args[1])))
			switch role {
			case authz.RoleAdmin, authz.RoleEditor, authz.RoleViewer:
			default:
				return fmt.Errorf("unknown role %q", args[1])
			}
			return ctx.withStore(cmd, func(store repository.Store) error {
				if err := store.GrantRole(cmd.Context(), args[0], role); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Granted %s to %s\n", role, args[0])
				return nil
			})
		},
	}
}
