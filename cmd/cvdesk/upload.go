package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/cvdesk/internal/audit"
	"github.com/kalambet/cvdesk/internal/cvapi"
	"github.com/kalambet/cvdesk/internal/storage"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload CV files (PDF or DOCX)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := make([]cvapi.UploadFile, 0, len(args))
		for _, path := range args {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("cannot read %s: %w", path, err)
			}
			files = append(files, cvapi.UploadFileFromPath(path))
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		printStep("Uploading %d file(s)...", len(files))
		out, err := a.api.UploadFiles(cmd.Context(), files, a.Token())
		if err != nil {
			return errorf("upload failed", err)
		}
		if out.Failure != nil {
			for _, m := range out.Messages {
				printError("%s", m)
			}
			return fmt.Errorf("upload failed: %d of %d file(s) not uploaded", out.ErrorCount, out.TotalFiles)
		}

		for i, m := range out.Messages {
			if i == 0 {
				printSuccess("%s", m)
				continue
			}
			printWarning("%s", m)
		}
		if out.BatchID != "" {
			if err := a.store.TrackBatch(out.BatchID, out.TotalFiles); err != nil {
				a.logger.Warn("tracking batch failed", "batch", out.BatchID, "error", err)
			}
			printStep("Batch %s; check progress with: cvdesk batch %s", out.BatchID, out.BatchID)
		}
		return nil
	},
}

// batchResult is the outcome of polling one batch.
type batchResult struct {
	id     string
	status cvapi.BatchStatus
	err    error
}

// pollBatches fetches every batch status concurrently. Completed batches
// are marked in the store. Per-batch failures are reported in the results.
func pollBatches(ctx context.Context, a *app, ids []string) []batchResult {
	q := audit.New(a.api, a, audit.WithLogger(a.logger))
	results := make([]batchResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		g.Go(func() error {
			st, err := q.PollBatchStatus(gctx, id)
			results[i] = batchResult{id: id, status: st, err: err}
			if err == nil && st.Completed() {
				if err := a.store.CompleteBatch(id, st.SuccessCount, st.ErrorCount); err != nil && !errors.Is(err, storage.ErrNotFound) {
					a.logger.Warn("recording batch completion failed", "batch", id, "error", err)
				}
			}
			return nil
		})
	}
	g.Wait()
	return results
}

func printBatches(w io.Writer, results []batchResult) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "BATCH\tSTATUS\tFILES\tOK\tERRORS\tSKIPPED")
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\n", r.id, "error: "+errMessage(r.err))
			continue
		}
		st := r.status
		status := orDash(st.Status)
		if st.Completed() {
			status = "completed " + st.CompletedAt
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", r.id, status, st.TotalFiles, st.SuccessCount, st.ErrorCount, st.SkippedCount)
	}
	return tw.Flush()
}

var batchCmd = &cobra.Command{
	Use:   "batch [batch-id]...",
	Short: "Check upload batch progress",
	Long: `Check upload batch progress. Without arguments every batch uploaded
from this machine that has not completed yet is checked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ids := args
		if len(ids) == 0 {
			pending, err := a.store.PendingBatches()
			if err != nil {
				return fmt.Errorf("listing pending batches: %w", err)
			}
			for _, b := range pending {
				ids = append(ids, b.ID)
			}
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pending batches.")
			return nil
		}

		results := pollBatches(cmd.Context(), a, ids)
		if err := printBatches(cmd.OutOrStdout(), results); err != nil {
			return err
		}
		failed := 0
		for _, r := range results {
			if r.err != nil {
				failed++
			}
		}
		if failed == len(results) {
			return errorf("batch status failed", results[0].err)
		}
		return nil
	},
}
