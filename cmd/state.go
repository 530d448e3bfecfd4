package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/wine-resolver/internal/model"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the delta-only run state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the last run and processed name counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		state, err := st.LoadRunState(ctx)
		if err != nil {
			return eris.Wrap(err, "state show")
		}
		formatRunState(os.Stdout, state)
		return nil
	},
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget processed names so the next run revisits everything",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ResetRunState(ctx)
		if err != nil {
			return eris.Wrap(err, "state reset")
		}
		fmt.Fprintf(os.Stdout, "Cleared %d processed names.\n", n)
		return nil
	},
}

func init() {
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
	rootCmd.AddCommand(stateCmd)
}

// formatRunState writes run state totals to w.
func formatRunState(out io.Writer, s *model.RunState) {
	var overridden int
	for _, e := range s.Processed {
		if e.HadOverride {
			overridden++
		}
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if s.LastRunAt != nil {
		_, _ = fmt.Fprintf(w, "Last run:\t%s (%s)\n", truncateID(s.LastRunID), s.LastRunAt.Format("2006-01-02 15:04"))
	} else {
		_, _ = fmt.Fprintln(w, "Last run:\tnever")
	}
	_, _ = fmt.Fprintf(w, "Processed names:\t%d\n", len(s.Processed))
	_, _ = fmt.Fprintf(w, "  With override:\t%d\n", overridden)
	_, _ = fmt.Fprintf(w, "  Resolved:\t%d\n", len(s.Processed)-overridden)
	_ = w.Flush()
}
