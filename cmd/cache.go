package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/wine-resolver/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the query cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired query cache entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteExpiredQueries(ctx, time.Now())
		if err != nil {
			return eris.Wrap(err, "cache prune")
		}
		fmt.Fprintf(os.Stdout, "Deleted %d expired entries.\n", n)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show query cache entries per provider",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.QueryCacheStats(ctx, time.Now())
		if err != nil {
			return eris.Wrap(err, "cache stats")
		}
		if len(stats) == 0 {
			fmt.Fprintln(os.Stderr, "Query cache is empty.")
			return nil
		}
		formatCacheStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}

// formatCacheStats writes a per-provider table to w.
func formatCacheStats(out io.Writer, stats []store.CacheStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tENTRIES\tLIVE\tEXPIRED")
	_, _ = fmt.Fprintln(w, "--------\t-------\t----\t-------")

	var total, expired int
	for _, s := range stats {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", s.Provider, s.Entries, s.Entries-s.Expired, s.Expired)
		total += s.Entries
		expired += s.Expired
	}
	_, _ = fmt.Fprintf(w, "total\t%d\t%d\t%d\n", total, total-expired, expired)
	_ = w.Flush()
}
