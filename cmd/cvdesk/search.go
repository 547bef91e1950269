package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/cvdesk/internal/cvapi"
	"github.com/kalambet/cvdesk/internal/search"
)

func printResults(w io.Writer, snap search.Snapshot, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"results":     snap.Results,
			"page":        snap.Pagination.Page,
			"per_page":    snap.Pagination.PerPage,
			"total":       snap.Pagination.Total,
			"total_pages": snap.Pagination.TotalPages,
		})
	}

	if len(snap.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tFILE\tUPLOADED")
	for _, r := range snap.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, orDash(truncate(r.Name, 30)), orDash(r.Email), orDash(truncate(r.Filename, 30)), orDash(r.UploadDate))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w, pageFooter(snap.Pagination))
	return nil
}

var searchCmd = &cobra.Command{
	Use:   "search [terms...]",
	Short: "Search CVs",
	Long: `Search CVs by terms matched against name, email, skills and text.
Terms are joined with commas; --logic decides whether all or any must match.

Examples:
  cvdesk search golang kubernetes
  cvdesk search java --logic or --preset last_30_days
  cvdesk search --from 2024-01-01 --to 2024-03-31 --sort-by name --sort-order asc`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logic, _ := cmd.Flags().GetString("logic")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		preset, _ := cmd.Flags().GetString("preset")
		sortBy, _ := cmd.Flags().GetString("sort-by")
		sortOrder, _ := cmd.Flags().GetString("sort-order")
		page, _ := cmd.Flags().GetInt("page")
		perPage, _ := cmd.Flags().GetInt("per-page")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if perPage == 0 {
			perPage = a.cfg.Search.PerPage
		}
		ctl := search.NewController(a.api, search.NewModel(perPage), search.WithLogger(a.logger))
		err = ctl.Update(func(m *search.Model) error {
			terms := make([]string, 0, len(args))
			for _, t := range args {
				terms = append(terms, strings.Split(t, ",")...)
			}
			m.SetQuery(strings.Join(terms, ","))
			if err := m.SetLogic(cvapi.Logic(logic)); err != nil {
				return err
			}
			if preset != "" {
				if err := m.ApplyDatePreset(search.Preset(preset), time.Now()); err != nil {
					return err
				}
			} else if err := m.SetDateRange(from, to); err != nil {
				return err
			}
			return m.SetSort(cvapi.SortField(sortBy), cvapi.SortOrder(sortOrder))
		})
		if err != nil {
			return errorf("invalid search", err)
		}

		if err := ctl.Run(cmd.Context()); err != nil {
			return errorf("search failed", err)
		}
		if page > 1 {
			moved, err := ctl.GoTo(cmd.Context(), page)
			if err != nil {
				return errorf("search failed", err)
			}
			if !moved {
				printWarning("Page %d is out of range; showing page 1", page)
			}
		}

		snap := ctl.Snapshot()
		a.recordSearch(snap.Params, snap.Pagination.Total)
		return printResults(cmd.OutOrStdout(), snap, asJSON)
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently uploaded CVs",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		page, _ := cmd.Flags().GetInt("page")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctl := search.NewController(a.api, search.NewModel(a.cfg.Search.PerPage), search.WithLogger(a.logger))
		if err := ctl.Recent(cmd.Context(), days); err != nil {
			return errorf("recent uploads failed", err)
		}
		if page > 1 {
			if _, err := ctl.GoTo(cmd.Context(), page); err != nil {
				return errorf("recent uploads failed", err)
			}
		}
		return printResults(cmd.OutOrStdout(), ctl.Snapshot(), asJSON)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show searches run from this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.store.RecentSearches(limit)
		if err != nil {
			return fmt.Errorf("reading search history: %w", err)
		}
		w := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(w, "No searches yet.")
			return nil
		}

		tw := newTable(w)
		fmt.Fprintln(tw, "WHEN\tQUERY\tLOGIC\tDATES\tRESULTS")
		for _, e := range entries {
			dates := "-"
			if e.DateFrom != "" || e.DateTo != "" {
				dates = orDash(e.DateFrom) + ".." + orDash(e.DateTo)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
				e.CreatedAt.Local().Format(time.DateTime), orDash(truncate(e.Query, 40)), orDash(e.Logic), dates, e.Total)
		}
		return tw.Flush()
	},
}

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "List the server's search indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		idx, err := a.api.Indexes(cmd.Context())
		if err != nil {
			return errorf("listing indexes failed", err)
		}
		w := cmd.OutOrStdout()
		if len(idx) == 0 {
			fmt.Fprintln(w, "No indexes.")
			return nil
		}
		names := make([]string, 0, len(idx))
		for name := range idx {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(w, "%s (%d)\n", colorize(colorBold, name), len(idx[name]))
			for _, term := range idx[name] {
				fmt.Fprintf(w, "  %s\n", term)
			}
		}
		return nil
	},
}

func init() {
	def := cvapi.DefaultSearchParameters()
	searchCmd.Flags().String("logic", string(def.Logic), "combine terms with and/or")
	searchCmd.Flags().String("from", "", "earliest upload date (YYYY-MM-DD)")
	searchCmd.Flags().String("to", "", "latest upload date (YYYY-MM-DD)")
	searchCmd.Flags().String("preset", "", "date preset: today, yesterday, last_7_days, last_30_days, last_3_months, last_6_months, last_year")
	searchCmd.Flags().String("sort-by", string(def.SortBy), "upload_date, name or filename")
	searchCmd.Flags().String("sort-order", string(def.SortOrder), "asc or desc")
	searchCmd.Flags().Int("page", 1, "page to show")
	searchCmd.Flags().Int("per-page", 0, "results per page (default from config)")
	searchCmd.Flags().Bool("json", false, "print JSON")

	recentCmd.Flags().Int("days", 7, "number of days to look back")
	recentCmd.Flags().Int("page", 1, "page to show")
	recentCmd.Flags().Bool("json", false, "print JSON")

	historyCmd.Flags().Int("limit", 20, "maximum number of searches to list")
}
