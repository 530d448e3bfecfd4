package parse

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/wine-resolver/internal/model"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// ColorRule maps keyword phrases to a color.
type ColorRule struct {
	Color    string   `yaml:"color"`
	Priority int      `yaml:"priority"`
	Keywords []string `yaml:"keywords"`
}

// Lexicon holds the tunable word lists the parser relies on.
type Lexicon struct {
	MinYear       int               `yaml:"min_year"`
	Colors        []ColorRule       `yaml:"colors"`
	ColorSegments map[string]string `yaml:"color_segments"`
	Packaging     []string          `yaml:"packaging"`
	Particles     []string          `yaml:"particles"`
	Producers     []string          `yaml:"producers"`
}

// DefaultLexicon returns the built-in lexicon.
func DefaultLexicon() *Lexicon {
	lex, err := decodeLexicon(defaultLexiconYAML)
	if err != nil {
		panic(eris.Wrap(err, "parse: embedded lexicon"))
	}
	return lex
}

// LoadLexicon reads a lexicon file. Sections missing from the file fall back
// to the built-in lexicon; an empty path returns the built-in lexicon.
func LoadLexicon(path string) (*Lexicon, error) {
	def := DefaultLexicon()
	if path == "" {
		return def, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "parse: read lexicon %s", path)
	}
	lex, err := decodeLexicon(data)
	if err != nil {
		return nil, eris.Wrapf(err, "parse: lexicon %s", path)
	}

	if lex.MinYear == 0 {
		lex.MinYear = def.MinYear
	}
	if len(lex.Colors) == 0 {
		lex.Colors = def.Colors
	}
	if len(lex.ColorSegments) == 0 {
		lex.ColorSegments = def.ColorSegments
	}
	if len(lex.Packaging) == 0 {
		lex.Packaging = def.Packaging
	}
	if len(lex.Particles) == 0 {
		lex.Particles = def.Particles
	}
	if len(lex.Producers) == 0 {
		lex.Producers = def.Producers
	}
	return lex, nil
}

func decodeLexicon(data []byte) (*Lexicon, error) {
	var wrapper struct {
		Lexicon Lexicon `yaml:"lexicon"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "parse lexicon")
	}
	lex := &wrapper.Lexicon
	for _, rule := range lex.Colors {
		if !model.ParseColor(rule.Color).Known() {
			return nil, eris.Errorf("unknown color %q in lexicon", rule.Color)
		}
	}
	for seg, c := range lex.ColorSegments {
		if !model.ParseColor(c).Known() {
			return nil, eris.Errorf("unknown color %q for segment %q", c, seg)
		}
	}
	return lex, nil
}
