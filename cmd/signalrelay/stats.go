package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"signalrelay/internal/config"
	"signalrelay/internal/store"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	var (
		days  int
		daily bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show relay counters per category and outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefaults(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.Store.Enabled {
				return fmt.Errorf("stats store is disabled (store.enabled=false)")
			}
			if _, err := os.Stat(cfg.Store.DBPath); err != nil {
				return fmt.Errorf("no stats yet at %s", cfg.Store.DBPath)
			}

			st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if daily {
				rows, err := st.Daily(ctx, days)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "DAY\tCATEGORY\tOUTCOME\tCOUNT")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.Day, r.Category, r.Outcome, r.Count)
				}
				return nil
			}

			since := time.Now().AddDate(0, 0, -(days - 1))
			rows, err := st.Totals(ctx, since)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "Last %d day(s)\n", days)
			fmt.Fprintln(tw, "CATEGORY\tOUTCOME\tCOUNT\tLAST")
			for _, r := range rows {
				last := "-"
				if !r.LastAt.IsZero() {
					last = r.LastAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Category, r.Outcome, r.Count, last)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days to include")
	cmd.Flags().BoolVar(&daily, "daily", false, "break counters down per day")
	return cmd
}
