// Package resolver is the top-level resolution run: it filters descriptors
// against the override table and the previous run state, resolves the rest
// through the fallback orchestrator and scorer, routes each decision, and
// commits overrides and run state at the end.
package resolver

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/wine-resolver/internal/cache"
	"github.com/sells-group/wine-resolver/internal/fallback"
	"github.com/sells-group/wine-resolver/internal/model"
	"github.com/sells-group/wine-resolver/internal/override"
	"github.com/sells-group/wine-resolver/internal/parse"
	"github.com/sells-group/wine-resolver/internal/query"
	"github.com/sells-group/wine-resolver/internal/report"
	"github.com/sells-group/wine-resolver/internal/store"
)

// Fatal persistence errors. Run returns them wrapped, together with the
// partial Result.
var (
	ErrCachePersist    = cache.ErrPersist
	ErrStatePersist    = eris.New("resolver: state persist failed")
	ErrOverridePersist = eris.New("resolver: override persist failed")
)

// Searcher gathers candidates for one descriptor.
type Searcher interface {
	Resolve(ctx context.Context, s *fallback.Session, d model.Descriptor) (fallback.Outcome, error)
}

// Matcher scores candidates and classifies the best one.
type Matcher interface {
	Score(d model.Descriptor, cands []model.Candidate) model.MatchDecision
}

// StateStore loads and commits run state.
type StateStore interface {
	LoadRunState(ctx context.Context) (*model.RunState, error)
	CommitRunState(ctx context.Context, run store.RunRecord, entries []model.ProcessedEntry) error
}

// Options configure an Engine.
type Options struct {
	// MaxAPICalls caps provider calls per run. Negative is unlimited, zero
	// serves from the cache only.
	MaxAPICalls int
	// DeltaOnly skips names a previous run already resolved.
	DeltaOnly bool
	// AutoApply writes auto_apply decisions into the override table. When
	// false they only appear in Result.Suggestions.
	AutoApply bool
	// Concurrency is the number of descriptors resolved at once.
	Concurrency int
	// Limit caps the descriptors resolved after filtering. Zero means all.
	Limit int
	// OverridesPath is where a changed override table is saved. Empty keeps
	// the table in memory.
	OverridesPath string
	// SearchBase is the catalog search page used for review links.
	SearchBase string
}

// Engine runs resolution over a batch of input rows.
type Engine struct {
	parser *parse.Parser
	search Searcher
	match  Matcher
	state  StateStore
	opts   Options
	now    func() time.Time
}

// New creates an Engine.
func New(p *parse.Parser, search Searcher, match Matcher, state StateStore, opts Options) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Engine{
		parser: p,
		search: search,
		match:  match,
		state:  state,
		opts:   opts,
		now:    time.Now,
	}
}

// WithNow sets a fixed time for testing.
func (e *Engine) WithNow(t time.Time) *Engine {
	e.now = func() time.Time { return t }
	return e
}

// Run resolves rows against table. Provider failures only degrade the
// affected descriptor. A non-nil error is a persistence failure; the Result
// still holds every routed output.
func (e *Engine) Run(ctx context.Context, rows []model.InputRow, table *override.Table) (*Result, error) {
	runID := uuid.NewString()
	log := zap.L().With(zap.String("run_id", runID))
	res := newResult(runID)

	state, err := e.state.LoadRunState(ctx)
	if err != nil {
		return res, eris.Wrap(ErrStatePersist, "load run state: "+err.Error())
	}

	startedAt := e.now().UTC()
	var (
		work      []model.Descriptor
		processed []model.ProcessedEntry
	)
	for _, row := range dedupe(rows) {
		name := strings.TrimSpace(row.RawName)
		res.Summary.Total++

		if table.Has(name) {
			res.Overridden = append(res.Overridden, name)
			processed = append(processed, model.ProcessedEntry{
				RawName: name, HadOverride: true, RunID: runID, ProcessedAt: startedAt,
			})
			continue
		}
		if e.opts.DeltaOnly && state.Seen(name, false) {
			res.Skipped = append(res.Skipped, name)
			continue
		}

		d := e.parser.Parse(row.RawName)
		d.Price = strings.TrimSpace(row.Price)
		d.Quantity = strings.TrimSpace(row.Quantity)
		work = append(work, d)
	}
	res.Summary.Overridden = len(res.Overridden)
	res.Summary.SkippedByDelta = len(res.Skipped)
	if e.opts.Limit > 0 && len(work) > e.opts.Limit {
		work = work[:e.opts.Limit]
	}

	log.Info("resolver: starting run",
		zap.Int("input", res.Summary.Total),
		zap.Int("overridden", res.Summary.Overridden),
		zap.Int("skipped_by_delta", res.Summary.SkippedByDelta),
		zap.Int("to_resolve", len(work)),
		zap.Int("max_api_calls", e.opts.MaxAPICalls),
		zap.Int("concurrency", e.opts.Concurrency),
	)

	session := fallback.NewSession(e.opts.MaxAPICalls)
	outcomes, fatal := e.resolveAll(ctx, session, work)

	for _, o := range outcomes {
		if o == nil {
			res.Summary.Unstarted++
			continue
		}
		e.route(log, res, table, o)
		if o.Complete {
			processed = append(processed, model.ProcessedEntry{
				RawName: strings.TrimSpace(o.Descriptor.RawName), RunID: runID, ProcessedAt: e.now().UTC(),
			})
		}
	}

	res.Summary.Calls = session.Calls()
	res.Summary.Failures = session.Failures()
	res.Summary.TotalCalls = session.TotalCalls()
	res.Summary.CacheHits = session.CacheHits()
	res.Summary.Canceled = ctx.Err() != nil

	if fatal != nil {
		log.Error("resolver: run aborted, nothing committed", zap.Error(fatal))
		return res, fatal
	}

	if err := e.persist(context.WithoutCancel(ctx), res, table, processed); err != nil {
		log.Error("resolver: persist failed", zap.Error(err))
		return res, err
	}

	log.Info("resolver: run complete",
		zap.Int("auto_applied", res.Summary.AutoApplied),
		zap.Int("suggested", res.Summary.Suggested),
		zap.Int("review", res.Summary.Review),
		zap.Int("unmatched", res.Summary.Unmatched),
		zap.Int("overridden", res.Summary.Overridden),
		zap.Int("skipped_by_delta", res.Summary.SkippedByDelta),
		zap.Int("conflicts", res.Summary.Conflicts),
		zap.Int("incomplete", res.Summary.Incomplete),
		zap.Int("cache_hits", res.Summary.CacheHits),
		zap.Int("api_calls", res.Summary.TotalCalls),
		zap.Bool("budget_exhausted", res.Summary.BudgetExhausted),
	)
	return res, nil
}

// resolveAll resolves work with bounded concurrency. Slots for descriptors
// that never started stay nil. The error is the first cache persistence
// failure, which also stops new work.
func (e *Engine) resolveAll(ctx context.Context, s *fallback.Session, work []model.Descriptor) ([]*Outcome, error) {
	outcomes := make([]*Outcome, len(work))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for i, d := range work {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			o, err := e.resolveOne(gctx, s, d)
			if err != nil {
				return eris.Wrapf(err, "resolver: resolve %q", d.RawName)
			}
			outcomes[i] = &o
			return nil
		})
	}
	return outcomes, g.Wait()
}

func (e *Engine) resolveOne(ctx context.Context, s *fallback.Session, d model.Descriptor) (Outcome, error) {
	o := Outcome{
		Descriptor: d,
		Queries:    query.Generate(d),
		SearchURL:  query.SearchURL(e.opts.SearchBase, d),
	}

	found, err := e.search.Resolve(ctx, s, d)
	if err != nil {
		return o, err
	}
	o.Candidates = found.Candidates
	o.Notes = found.Notes
	o.Calls = found.Calls
	o.CacheHits = found.CacheHits
	o.Complete = found.Complete
	o.BudgetExhausted = found.BudgetExhausted
	o.Decision = e.match.Score(d, found.Candidates)
	return o, nil
}

// route sends one decided outcome to the override table, the review queue
// or the unmatched list.
func (e *Engine) route(log *zap.Logger, res *Result, table *override.Table, o *Outcome) {
	entry := o.entry()
	fields := []zap.Field{
		zap.String("raw_name", o.Descriptor.RawName),
		zap.String("decision", string(o.Decision.Decision)),
		zap.Float64("confidence", o.Decision.Confidence),
	}
	if o.Decision.Best != nil {
		fields = append(fields, zap.String("provider", o.Decision.Best.Provider))
	}
	log.Info("resolver: decided", fields...)

	if !o.Complete {
		res.Summary.Incomplete++
	}
	if o.BudgetExhausted {
		res.Summary.BudgetExhausted = true
	}

	switch o.Decision.Decision {
	case model.DecisionAutoApply:
		rec, ok := report.Suggestion(entry)
		if !ok {
			break
		}
		if !e.opts.AutoApply {
			res.Suggestions = append(res.Suggestions, rec)
			res.Summary.Suggested++
			break
		}
		applied, err := table.Apply(rec)
		if err != nil || !applied {
			o.Conflict = true
			note := "override exists for " + rec.MatchName
			if err != nil {
				note = err.Error()
			}
			res.Conflicts = append(res.Conflicts, note)
			res.Summary.Conflicts++
			log.Warn("resolver: override conflict, keeping existing row",
				zap.String("raw_name", rec.MatchName),
				zap.Error(err),
			)
			break
		}
		res.Applied = append(res.Applied, rec)
		res.Suggestions = append(res.Suggestions, rec)
		res.Summary.AutoApplied++
	case model.DecisionReview:
		res.Review = append(res.Review, report.Review(entry))
		res.Summary.Review++
	default:
		res.Unmatched = append(res.Unmatched, report.Unmatched(entry))
		res.Summary.Unmatched++
	}
	res.Outcomes = append(res.Outcomes, *o)
}

// persist saves the override table, then commits run state. State is not
// committed when the overrides could not be written.
func (e *Engine) persist(ctx context.Context, res *Result, table *override.Table, processed []model.ProcessedEntry) error {
	if table.Dirty() && e.opts.OverridesPath != "" {
		if err := table.Save(e.opts.OverridesPath); err != nil {
			return eris.Wrap(ErrOverridePersist, err.Error())
		}
	}

	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return eris.Wrap(ErrStatePersist, "encode summary: "+err.Error())
	}
	run := store.RunRecord{
		ID:          res.RunID,
		CommittedAt: e.now().UTC(),
		Processed:   len(processed),
		Summary:     summary,
	}
	if err := e.state.CommitRunState(ctx, run, processed); err != nil {
		return eris.Wrap(ErrStatePersist, err.Error())
	}
	res.Summary.Committed = len(processed)
	return nil
}

// dedupe drops blank names and keeps the first row for each raw name.
func dedupe(rows []model.InputRow) []model.InputRow {
	out := make([]model.InputRow, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		name := strings.TrimSpace(r.RawName)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, r)
	}
	return out
}
