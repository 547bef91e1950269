package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/cvdesk/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Browse the audit log",
}

func newAuditQuery(a *app, opts ...audit.Option) *audit.Query {
	opts = append([]audit.Option{audit.WithLogger(a.logger), audit.WithPageSize(a.cfg.Audit.PerPage)}, opts...)
	return audit.New(a.api, a, opts...)
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries, newest first",
	Long: `List audit log entries, newest first.

Examples:
  cvdesk audit list --user alice
  cvdesk audit list --action delete --days 7
  cvdesk audit list --from 2024-06-01 --to 2024-06-30 --page 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		action, _ := cmd.Flags().GetString("action")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		days, _ := cmd.Flags().GetInt("days")
		page, _ := cmd.Flags().GetInt("page")
		perPage, _ := cmd.Flags().GetInt("per-page")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var opts []audit.Option
		if perPage > 0 {
			opts = append(opts, audit.WithPageSize(perPage))
		}
		q := newAuditQuery(a, opts...)
		if err := q.SetFilter(audit.Filter{User: user, Action: action, DateFrom: from, DateTo: to}); err != nil {
			return errorf("invalid filter", err)
		}
		if days > 0 {
			if err := q.SetLastDays(days); err != nil {
				return errorf("invalid filter", err)
			}
		}
		if err := q.ApplyFilters(cmd.Context()); err != nil {
			return errorf("audit logs failed", err)
		}
		if page > 1 {
			moved, err := q.GoTo(cmd.Context(), page)
			if err != nil {
				return errorf("audit logs failed", err)
			}
			if !moved {
				printWarning("Page %d is out of range; showing page 1", page)
			}
		}

		snap := q.Snapshot()
		w := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"logs":        snap.Entries,
				"page":        snap.Pagination.Page,
				"per_page":    snap.Pagination.PerPage,
				"total":       snap.Pagination.Total,
				"total_pages": snap.Pagination.TotalPages,
			})
		}
		if len(snap.Entries) == 0 {
			fmt.Fprintln(w, "No audit log entries.")
			return nil
		}
		tw := newTable(w)
		fmt.Fprintln(tw, "ID\tTIME\tUSER\tACTION\tCV\tIP")
		for _, e := range snap.Entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				orDash(e.ID), e.Timestamp, orDash(e.User), orDash(e.Action), orDash(e.CVID), orDash(e.IPAddress))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w, pageFooter(snap.Pagination))
		return nil
	},
}

var auditShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one audit log entry with its details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := newAuditQuery(a).Detail(cmd.Context(), args[0])
		if err != nil {
			return errorf("audit log lookup failed", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"audit_log": d.Entry,
			"metadata":  d.Metadata,
		})
	},
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show total entries, entries today and distinct users",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		stats := newAuditQuery(a).ComputeQuickStats(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), stats.Summary())
		for _, m := range []struct {
			name string
			audit.Metric
		}{{"total", stats.Total}, {"today", stats.Today}, {"users", stats.Users}} {
			if m.Err != nil {
				printWarning("%s unavailable: %s", m.name, errMessage(m.Err))
			}
		}
		return nil
	},
}

var auditOptionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List the users and actions present in the audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		opts, err := newAuditQuery(a).FilterOptions(cmd.Context())
		if err != nil {
			return errorf("filter options failed", err)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Users:"), orDash(strings.Join(opts.Users, ", ")))
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Actions:"), orDash(strings.Join(opts.Actions, ", ")))
		return nil
	},
}

var auditRangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Show the span of the audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := newAuditQuery(a).DateRange(cmd.Context())
		if err != nil {
			return errorf("date range failed", err)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Earliest:"), orDash(r.EarliestLog))
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Latest:"), orDash(r.LatestLog))
		fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Total:"), r.TotalLogs)
		return nil
	},
}

func init() {
	auditListCmd.Flags().String("user", "", "only entries by this user")
	auditListCmd.Flags().String("action", "", "only entries with this action")
	auditListCmd.Flags().String("from", "", "earliest date (YYYY-MM-DD)")
	auditListCmd.Flags().String("to", "", "latest date (YYYY-MM-DD)")
	auditListCmd.Flags().Int("days", 0, "only the last N days (overrides --from/--to)")
	auditListCmd.Flags().Int("page", 1, "page to show")
	auditListCmd.Flags().Int("per-page", 0, "entries per page (default from config)")
	auditListCmd.Flags().Bool("json", false, "print JSON")

	auditCmd.AddCommand(auditListCmd, auditShowCmd, auditStatsCmd, auditOptionsCmd, auditRangeCmd)
}
