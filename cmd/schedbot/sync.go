package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"schedbot/internal/app"
	"schedbot/internal/config"
	"schedbot/internal/schedule"
)

func newSyncCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle",
		Long: "Fetches the sheet, reconciles it with the database and sends the resulting messages.\n" +
			"With --dry-run nothing is written or sent; the messages are printed instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dryRun {
				return runSyncPreview(cmd.Context(), cmd.OutOrStdout())
			}
			return runSync(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the messages without saving or sending")
	return cmd
}

func runSync(ctx context.Context, w io.Writer) error {
	return withCore(true, func(_ *config.Config, core *app.Core) error {
		rep, err := core.Syncer.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "cycle %s: %d entries, mode %s, %d sent, %d failed\n",
			rep.ID, rep.Entries, rep.Reconcile.Mode, rep.Delivery.Sent, rep.Delivery.Failed)
		return nil
	})
}

func runSyncPreview(ctx context.Context, w io.Writer) error {
	return withCore(false, func(_ *config.Config, core *app.Core) error {
		res, err := core.Entries(ctx)
		if err != nil {
			return err
		}
		for _, s := range res.Skipped {
			fmt.Fprintf(os.Stderr, "skipped %s\n", s.Error())
		}
		batch, rep, err := core.Reconciler.Preview(ctx, res.Entries)
		if err != nil {
			return err
		}
		printBatch(w, batch, rep)
		return nil
	})
}

func printBatch(w io.Writer, batch *schedule.Batch, rep schedule.Report) {
	fmt.Fprintf(w, "mode %s: %d entries, people +%d, events +%d ~%d, %d messages\n",
		rep.Mode, rep.Entries, rep.PeopleCreated, rep.EventsCreated, rep.EventsUpdated, batch.Len())
	for _, addr := range batch.Addresses() {
		ns := batch.For(addr)
		fmt.Fprintf(w, "\n@%s (%d)\n", ns[0].Handle, addr)
		for _, line := range batch.Lines(addr) {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}
