package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"signal_report_backend/app"
	"signal_report_backend/models"
	"signal_report_backend/services/dispatch"
	"signal_report_backend/services/settings"
)

func channelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List and switch notification channels",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show every channel and whether it is enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				rows, err := a.Settings.GetAll(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "CHANNEL\tENABLED\tUPDATED BY\tLAST UPDATED")
				for _, row := range rows {
					by := "-"
					if row.UpdatedBy != nil {
						by = *row.UpdatedBy
					}
					fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", row.NotifierName, row.IsEnabled, by, row.LastUpdated.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}

	var updatedBy string
	set := &cobra.Command{
		Use:   "set NAME true|false",
		Short: "Enable or disable a channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid enabled value %q: %w", args[1], err)
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				ok, err := a.Settings.Update(cmd.Context(), args[0], enabled, updatedBy)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: %s", settings.ErrUnknownChannel, args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s enabled=%t\n", args[0], enabled)
				return nil
			})
		},
	}
	set.Flags().StringVar(&updatedBy, "by", "reportctl", "operator recorded as the author of the change")

	cmd.AddCommand(list, set)
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect reports without sending them",
	}

	var date string
	preview := &cobra.Command{
		Use:   "preview daily|weekly",
		Short: "Print the message a job would send",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseRangeKind(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				var ref *time.Time
				if date != "" {
					d, err := time.ParseInLocation(models.DateLayout, date, a.Engine.Location())
					if err != nil {
						return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
					}
					ref = &d
				}
				_, message, err := a.Coordinator.Preview(cmd.Context(), kind, ref)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), message)
				return nil
			})
		},
	}
	preview.Flags().StringVar(&date, "date", "", "reference date (YYYY-MM-DD), defaults to today")

	cmd.AddCommand(preview)
	return cmd
}

func dispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch JOB_ID",
		Short: "Run a report job now and print the channel outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				ctx, collector := dispatch.WithOutcomeCollector(cmd.Context())
				runErr := a.Scheduler.TriggerNow(ctx, args[0])
				if outcomes := collector.Outcomes(); len(outcomes) > 0 {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if err := enc.Encode(outcomes); err != nil {
						return err
					}
				}
				return runErr
			})
		},
	}
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect scheduled jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show every job with its next fire time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tRANGE\tCRON\tTIMEZONE\tNEXT FIRE")
				for _, job := range a.Scheduler.Jobs() {
					next := "-"
					if job.NextFireAt != nil {
						next = job.NextFireAt.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", job.ID, job.Range, job.Cron, job.Timezone, next)
				}
				return w.Flush()
			})
		},
	})
	return cmd
}
