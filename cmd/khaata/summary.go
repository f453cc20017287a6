package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/adg-dev/khaata/internal/cli"
	"github.com/adg-dev/khaata/internal/provider/dominos"
	"github.com/adg-dev/khaata/internal/provider/swiggy"
	"github.com/adg-dev/khaata/internal/provider/zomato"
	"github.com/adg-dev/khaata/internal/storage"
	"github.com/spf13/cobra"
)

const reportDateLayout = "Jan 2, 2006"

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Report what each platform has cost you",
		Long: `Summary reads the local ledger and reports, per platform, the order
count, total spend, first and last order dates, and spend over the
trailing 30 and 365 days. Pass --from/--to for an arbitrary window.`,
		RunE: runSummary,
	}

	cmd.Flags().String("db", "", "ledger database path")
	cmd.Flags().String("from", "", "window start (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "window end (YYYY-MM-DD)")
	return cmd
}

func runSummary(cmd *cobra.Command, _ []string) error {
	from, to, err := parseWindow(cmd)
	if err != nil {
		return err
	}

	path, err := dbPath(cmd)
	if err != nil {
		return err
	}
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	now := time.Now()

	for _, name := range []string{dominos.Name, swiggy.Name, zomato.Name} {
		hasData, err := store.HasData(ctx, name)
		if err != nil {
			return err
		}
		if !hasData {
			fmt.Println(cli.RenderBox(name, "No orders ingested yet."))
			continue
		}

		summary, err := store.Summary(ctx, name)
		if err != nil {
			return err
		}
		cost30, err := store.CostSince(ctx, name, now.AddDate(0, 0, -30))
		if err != nil {
			return err
		}
		cost365, err := store.CostSince(ctx, name, now.AddDate(-1, 0, 0))
		if err != nil {
			return err
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Orders:        %d\n", summary.Orders)
		fmt.Fprintf(&b, "Total spend:   ₹%.2f\n", summary.Total)
		fmt.Fprintf(&b, "First order:   %s\n", summary.First.Format(reportDateLayout))
		fmt.Fprintf(&b, "Last order:    %s\n", summary.Last.Format(reportDateLayout))
		fmt.Fprintf(&b, "Last 30 days:  ₹%.2f\n", cost30)
		fmt.Fprintf(&b, "Last year:     ₹%.2f", cost365)

		if !from.IsZero() {
			window, err := store.CostBetween(ctx, name, from, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(&b, "\n%s to %s: ₹%.2f",
				from.Format(reportDateLayout), to.Format(reportDateLayout), window)
		}

		fmt.Println(cli.RenderBox(name, b.String()))
	}
	return nil
}

// parseWindow validates the optional --from/--to pair. A missing --to means
// "up to now"; --to without --from is an error.
func parseWindow(cmd *cobra.Command) (from, to time.Time, err error) {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")

	if fromStr == "" {
		if toStr != "" {
			return from, to, fmt.Errorf("--to requires --from")
		}
		return from, to, nil
	}

	from, err = time.Parse("2006-01-02", fromStr)
	if err != nil {
		return from, to, fmt.Errorf("invalid --from date %q: %w", fromStr, err)
	}

	to = time.Now()
	if toStr != "" {
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			return from, to, fmt.Errorf("invalid --to date %q: %w", toStr, err)
		}
		// Make the window inclusive of the end date.
		to = to.AddDate(0, 0, 1)
	}
	return from, to, nil
}
