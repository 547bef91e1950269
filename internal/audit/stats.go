package audit

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kalambet/cvdesk/internal/cvapi"
)

// Metric is one quick statistic. Err is set when it could not be fetched.
type Metric struct {
	Value int
	Err   error
}

// QuickStats summarises the audit log. Each metric fails independently.
type QuickStats struct {
	Date  string // the day counted as "today"
	Total Metric
	Today Metric
	Users Metric
}

// ComputeQuickStats fetches the total log count, today's count and the
// number of distinct users concurrently. Only the totals of the two count
// queries are used, so they ask for a single row.
func (q *Query) ComputeQuickStats(ctx context.Context) QuickStats {
	today := q.now().Format(cvapi.DateLayout)
	stats := QuickStats{Date: today}

	var g errgroup.Group
	g.Go(func() error {
		page, err := q.api.AuditLogs(ctx, cvapi.AuditLogQuery{Page: 1, PerPage: 1})
		stats.Total = Metric{Value: page.Total, Err: err}
		return nil
	})
	g.Go(func() error {
		page, err := q.api.AuditLogs(ctx, cvapi.AuditLogQuery{Page: 1, PerPage: 1, StartDate: today, EndDate: today})
		stats.Today = Metric{Value: page.Total, Err: err}
		return nil
	})
	g.Go(func() error {
		opts, err := q.api.FilterOptions(ctx)
		stats.Users = Metric{Value: len(opts.Users), Err: err}
		return nil
	})
	g.Wait()

	for name, m := range map[string]Metric{"total": stats.Total, "today": stats.Today, "users": stats.Users} {
		if m.Err != nil {
			q.logger.Warn("quick stat failed", "metric", name, "error", m.Err)
		}
	}
	return stats
}

// Summary renders the stats as one status line, e.g.
// "1,234 total logs • 5 today • 3 users".
func (s QuickStats) Summary() string {
	p := message.NewPrinter(language.English)
	parts := []string{
		s.Total.format(p, "%d total logs", "total unavailable"),
		s.Today.format(p, "%d today", "today unavailable"),
		s.Users.format(p, "%d users", "users unavailable"),
	}
	return strings.Join(parts, " • ")
}

func (m Metric) format(p *message.Printer, ok, failed string) string {
	if m.Err != nil {
		return failed
	}
	return p.Sprintf(ok, m.Value)
}
