package parse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/sells-group/wine-resolver/internal/model"
)

var (
	segmentSepRe = regexp.MustCompile(`\s+[-–—|]\s+`)
	packagingRe  = regexp.MustCompile(`(?i)\b(?:case|pack|box|set)\s+of\s+\d+\b|\b\d+\s*-?\s*(?:pack|pk)\b|\(\s*\d+\s*\)|\b\d+\s*x\s*\d+(?:[.,]\d+)?\s*(?:ml|cl|l)\b`)
	numberRe     = regexp.MustCompile(`^\d+(?:[.,]\d+)?$`)
)

var volumeUnits = map[string]bool{
	"ml": true, "cl": true, "l": true, "ltr": true, "litre": true, "liter": true, "oz": true,
}

type colorKeyword struct {
	words    []string
	color    model.Color
	priority int
}

// Parser extracts year, producer, label and color from raw product names.
// A Parser is safe for concurrent use.
type Parser struct {
	minYear   int
	maxYear   int
	keywords  []colorKeyword
	segments  map[string]model.Color
	packaging map[string]bool
	particles map[string]bool
	producers [][]string
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxYear sets the latest vintage accepted. Defaults to next year.
func WithMaxYear(y int) Option {
	return func(p *Parser) { p.maxYear = y }
}

// New builds a Parser from lex. A nil lexicon uses DefaultLexicon.
func New(lex *Lexicon, opts ...Option) *Parser {
	if lex == nil {
		lex = DefaultLexicon()
	}
	p := &Parser{
		minYear:   lex.MinYear,
		maxYear:   time.Now().Year() + 1,
		segments:  make(map[string]model.Color, len(lex.ColorSegments)),
		packaging: make(map[string]bool, len(lex.Packaging)),
		particles: make(map[string]bool, len(lex.Particles)),
	}
	if p.minYear == 0 {
		p.minYear = 1900
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, rule := range lex.Colors {
		c := model.ParseColor(rule.Color)
		for _, kw := range rule.Keywords {
			words := strings.Fields(NormalizeKey(kw))
			if len(words) == 0 {
				continue
			}
			p.keywords = append(p.keywords, colorKeyword{words: words, color: c, priority: rule.Priority})
		}
	}
	sort.SliceStable(p.keywords, func(i, j int) bool {
		if p.keywords[i].priority != p.keywords[j].priority {
			return p.keywords[i].priority > p.keywords[j].priority
		}
		return len(p.keywords[i].words) > len(p.keywords[j].words)
	})

	for seg, c := range lex.ColorSegments {
		p.segments[NormalizeKey(seg)] = model.ParseColor(c)
	}
	for _, w := range lex.Packaging {
		p.packaging[NormalizeKey(w)] = true
	}
	for _, w := range lex.Particles {
		p.particles[strings.ToLower(w)] = true
	}
	for _, name := range lex.Producers {
		if words := strings.Fields(NormalizeKey(name)); len(words) > 0 {
			p.producers = append(p.producers, words)
		}
	}
	sort.SliceStable(p.producers, func(i, j int) bool {
		return len(p.producers[i]) > len(p.producers[j])
	})
	return p
}

// Parse never fails: anything it cannot place stays in the label. RawName
// is kept exactly as given.
func (p *Parser) Parse(raw string) model.Descriptor {
	d := model.Descriptor{RawName: raw, Color: model.ColorUnknown}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return d
	}

	text := packagingRe.ReplaceAllString(trimmed, " ")
	var parts [][]string
	for _, seg := range segmentSepRe.Split(text, -1) {
		toks := p.cleanTokens(strings.Fields(seg), &d)
		if len(toks) == 0 {
			continue
		}
		if len(parts) > 0 {
			if c, ok := p.segments[NormalizeKey(strings.Join(toks, " "))]; ok {
				if !d.Color.Known() {
					d.Color = c
				}
				continue
			}
		}
		parts = append(parts, toks)
	}

	// known is set when a lexicon producer spans the whole first segment.
	known := false
	switch {
	case len(parts) == 0:
	case len(parts) == 1:
		if producer, rest, ok := p.splitProducer(parts[0]); ok {
			d.Producer = join(producer)
			d.Label = join(rest)
			known = len(rest) == 0
		} else {
			d.Label = join(parts[0])
		}
	default:
		var label []string
		if producer, rest, ok := p.splitProducer(parts[0]); ok {
			d.Producer = join(producer)
			label = append(label, rest...)
			known = len(rest) == 0
		} else {
			d.Producer = join(parts[0])
		}
		for _, part := range parts[1:] {
			label = append(label, part...)
		}
		d.Label = join(label)
	}

	// A lone name is only trusted as a producer when the lexicon knows it,
	// and then it doubles as the label.
	if d.Label == "" && d.Producer != "" {
		if known {
			d.Label = d.Producer
		} else {
			d.Label, d.Producer = d.Producer, ""
		}
	}

	if !d.Color.Known() {
		d.Color = p.inferColor(NormalizeKey(d.Producer + " " + d.Label))
	}
	return d
}

// cleanTokens drops vintage, non-vintage markers, volumes and packaging
// words. The first in-range year found is recorded on d.
func (p *Parser) cleanTokens(toks []string, d *model.Descriptor) []string {
	out := make([]string, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		core := strings.Trim(toks[i], "()[],;:.")
		lower := strings.ToLower(core)

		if NormalizeKey(core) == "" {
			continue
		}
		if y, ok := p.vintage(core); ok {
			if d.Year == 0 {
				d.Year = y
				continue
			}
		}
		if lower == "nv" || lower == "n.v" {
			continue
		}
		if volumeRe.MatchString(lower) {
			continue
		}
		if numberRe.MatchString(core) && i+1 < len(toks) {
			next := strings.ToLower(strings.Trim(toks[i+1], "()[],;:."))
			if volumeUnits[next] {
				i++
				continue
			}
		}
		if p.packaging[NormalizeKey(core)] {
			continue
		}
		out = append(out, toks[i])
	}
	return out
}

func (p *Parser) vintage(core string) (int, bool) {
	if len(core) != 4 || !isDigits(core) {
		return 0, false
	}
	y, err := strconv.Atoi(core)
	if err != nil || y < p.minYear || y > p.maxYear {
		return 0, false
	}
	return y, true
}

// splitProducer finds where the producer ends within one segment: after a
// known producer prefix, or before the first varietal/style keyword when
// everything ahead of it reads like a proper name.
func (p *Parser) splitProducer(toks []string) (producer, rest []string, ok bool) {
	words, owner := wordsOf(toks)
	if len(words) == 0 {
		return nil, toks, false
	}

	for _, prod := range p.producers {
		if len(prod) > len(words) || !hasPrefix(words, prod) {
			continue
		}
		last := owner[len(prod)-1]
		if len(prod) < len(words) && owner[len(prod)] == last {
			continue
		}
		return toks[:last+1], toks[last+1:], true
	}

	for w := 1; w < len(words); w++ {
		if owner[w] == owner[w-1] || !p.keywordAt(words, w) {
			continue
		}
		k := owner[w]
		if !p.properName(toks[:k]) {
			return nil, toks, false
		}
		return toks[:k], toks[k:], true
	}
	return nil, toks, false
}

func (p *Parser) keywordAt(words []string, w int) bool {
	for _, kw := range p.keywords {
		if hasPrefix(words[w:], kw.words) {
			return true
		}
	}
	return false
}

func (p *Parser) properName(toks []string) bool {
	if len(toks) == 0 {
		return false
	}
	for i, tok := range toks {
		r := firstLetter(tok)
		if r == 0 {
			continue
		}
		if unicode.IsUpper(r) {
			continue
		}
		if i > 0 && p.particles[strings.ToLower(tok)] {
			continue
		}
		return false
	}
	return true
}

func (p *Parser) inferColor(normalized string) model.Color {
	words := strings.Fields(normalized)
	for _, kw := range p.keywords {
		for w := range words {
			if hasPrefix(words[w:], kw.words) {
				return kw.color
			}
		}
	}
	return model.ColorUnknown
}

// wordsOf normalizes each token and flattens the result, remembering which
// token every word came from.
func wordsOf(toks []string) (words []string, owner []int) {
	for i, tok := range toks {
		for _, w := range strings.Fields(NormalizeKey(tok)) {
			words = append(words, w)
			owner = append(owner, i)
		}
	}
	return words, owner
}

func hasPrefix(words, prefix []string) bool {
	if len(prefix) > len(words) {
		return false
	}
	for i := range prefix {
		if words[i] != prefix[i] {
			return false
		}
	}
	return true
}

func firstLetter(s string) rune {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return r
		}
	}
	return 0
}

func join(toks []string) string {
	return strings.TrimSpace(strings.Join(toks, " "))
}
