package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/wine-resolver/internal/model"
	"github.com/sells-group/wine-resolver/internal/parse"
	"github.com/sells-group/wine-resolver/internal/query"
)

var parseCmd = &cobra.Command{
	Use:   "parse <raw-name>...",
	Short: "Show the descriptor and queries for raw names",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := initParser(cfg)
		if err != nil {
			return err
		}
		return writeParsed(os.Stdout, p, cfg.Providers.SearchBaseURL, args)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

type parsedName struct {
	Descriptor model.Descriptor `json:"descriptor"`
	Queries    []string         `json:"queries"`
	SearchURL  string           `json:"search_url,omitempty"`
}

// writeParsed prints one JSON document per raw name.
func writeParsed(out io.Writer, p *parse.Parser, searchBase string, names []string) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	for _, name := range names {
		d := p.Parse(name)
		if err := enc.Encode(parsedName{
			Descriptor: d,
			Queries:    query.Generate(d),
			SearchURL:  query.SearchURL(searchBase, d),
		}); err != nil {
			return eris.Wrap(err, "encode descriptor")
		}
	}
	return nil
}
