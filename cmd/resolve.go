package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/wine-resolver/internal/csvio"
	"github.com/sells-group/wine-resolver/internal/model"
	"github.com/sells-group/wine-resolver/internal/override"
	"github.com/sells-group/wine-resolver/internal/resolver"
)

var (
	resolveInput       string
	resolveOverrides   string
	resolveMaxAPICalls int
	resolveLimit       int
	resolveConcurrency int
	resolveAll         bool
	resolveNoAutoApply bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve unmatched wine names against the catalog",
	Long:  "Reads the unresolved names CSV and the override table, resolves new names through the provider fallback chain, then writes the override table, review queue, unmatched list and suggestions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyResolveFlags(cmd)

		env, err := initResolver(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rows, err := readInput(cfg.Files.Input, cfg.Resolver.InputColumn)
		if err != nil {
			return err
		}
		table, err := override.Load(cfg.Files.Overrides)
		if err != nil {
			return eris.Wrap(err, "load overrides")
		}

		res, runErr := env.Engine.Run(ctx, rows, table)
		if runErr == nil || len(res.Outcomes) > 0 {
			if err := writeOutputs(res); err != nil {
				return err
			}
		}
		hits, misses := env.Cache.Stats()
		zap.L().Debug("query cache lookups", zap.Int64("hits", hits), zap.Int64("misses", misses))
		if open := env.Gateway.Breakers().Open(); len(open) > 0 {
			zap.L().Warn("providers left with open breakers", zap.Strings("providers", open))
		}

		formatSummary(os.Stdout, res.Summary)
		if runErr != nil {
			return eris.Wrap(runErr, "resolve")
		}
		return nil
	},
}

func init() {
	f := resolveCmd.Flags()
	f.StringVar(&resolveInput, "input", "", "unresolved names CSV (overrides files.input)")
	f.StringVar(&resolveOverrides, "overrides", "", "override table CSV (overrides files.overrides)")
	f.IntVar(&resolveMaxAPICalls, "max-api-calls", -1, "provider call cap for this run (<0 unlimited, 0 cache only)")
	f.IntVar(&resolveLimit, "limit", 0, "max names to resolve after filtering (0 means all)")
	f.IntVar(&resolveConcurrency, "concurrency", 1, "names resolved in parallel")
	f.BoolVar(&resolveAll, "all", false, "revisit names resolved by earlier runs")
	f.BoolVar(&resolveNoAutoApply, "no-auto-apply", false, "write auto-apply matches to the suggestions file only")
	rootCmd.AddCommand(resolveCmd)
}

// applyResolveFlags copies explicitly set flags over the loaded config.
func applyResolveFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("input") {
		cfg.Files.Input = resolveInput
	}
	if f.Changed("overrides") {
		cfg.Files.Overrides = resolveOverrides
	}
	if f.Changed("max-api-calls") {
		cfg.Resolver.MaxAPICalls = resolveMaxAPICalls
	}
	if f.Changed("limit") {
		cfg.Resolver.Limit = resolveLimit
	}
	if f.Changed("concurrency") {
		cfg.Resolver.Concurrency = resolveConcurrency
	}
	if resolveAll {
		cfg.Resolver.DeltaOnly = false
	}
	if resolveNoAutoApply {
		cfg.Resolver.AutoApply = false
	}
}

// readInput loads the unresolved names, accepting a custom name column.
func readInput(path, column string) ([]model.InputRow, error) {
	opts := csvio.ReadOptions{}
	if column != "" && column != "raw_name" {
		opts.Rename = map[string]string{column: "raw_name"}
	}
	rows, err := csvio.ReadFile[model.InputRow](path, opts)
	if err != nil {
		return nil, eris.Wrap(err, "read input")
	}
	return rows, nil
}

// writeOutputs writes the review queue, unmatched list and suggestions.
// The override table is saved by the engine.
func writeOutputs(res *resolver.Result) error {
	if res == nil {
		return nil
	}
	if err := csvio.WriteFile(cfg.Files.Review, res.Review); err != nil {
		return eris.Wrap(err, "write review queue")
	}
	if err := csvio.WriteFile(cfg.Files.Unmatched, res.Unmatched); err != nil {
		return eris.Wrap(err, "write unmatched list")
	}
	if cfg.Files.Suggestions != "" {
		if err := csvio.WriteFile(cfg.Files.Suggestions, res.Suggestions); err != nil {
			return eris.Wrap(err, "write suggestions")
		}
	}
	zap.L().Info("reports written",
		zap.String("review", cfg.Files.Review),
		zap.String("unmatched", cfg.Files.Unmatched),
		zap.String("suggestions", cfg.Files.Suggestions),
	)
	return nil
}

// formatSummary writes the run summary to w.
func formatSummary(out io.Writer, s resolver.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", truncateID(s.RunID))
	_, _ = fmt.Fprintf(w, "Input names:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Auto-applied:\t%d\n", s.AutoApplied)
	if s.Suggested > 0 {
		_, _ = fmt.Fprintf(w, "Suggested:\t%d\n", s.Suggested)
	}
	_, _ = fmt.Fprintf(w, "Review:\t%d\n", s.Review)
	_, _ = fmt.Fprintf(w, "Unmatched:\t%d\n", s.Unmatched)
	_, _ = fmt.Fprintf(w, "Overridden:\t%d\n", s.Overridden)
	_, _ = fmt.Fprintf(w, "Skipped (delta):\t%d\n", s.SkippedByDelta)
	_, _ = fmt.Fprintf(w, "Conflicts:\t%d\n", s.Conflicts)
	if s.Incomplete > 0 {
		_, _ = fmt.Fprintf(w, "Incomplete:\t%d\n", s.Incomplete)
	}
	if s.Unstarted > 0 {
		_, _ = fmt.Fprintf(w, "Not started:\t%d\n", s.Unstarted)
	}
	_, _ = fmt.Fprintf(w, "Cache hits:\t%d\n", s.CacheHits)
	_, _ = fmt.Fprintf(w, "API calls:\t%d\n", s.TotalCalls)

	names := make([]string, 0, len(s.Calls))
	for name := range s.Calls {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", name, s.Calls[name])
	}
	if s.BudgetExhausted {
		_, _ = fmt.Fprintln(w, "Budget:\texhausted")
	}
	if s.Canceled {
		_, _ = fmt.Fprintln(w, "Status:\tcanceled")
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
