package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wine-resolver/internal/cache"
	"github.com/sells-group/wine-resolver/internal/config"
	"github.com/sells-group/wine-resolver/internal/fallback"
	"github.com/sells-group/wine-resolver/internal/parse"
	"github.com/sells-group/wine-resolver/internal/provider"
	"github.com/sells-group/wine-resolver/internal/resilience"
	"github.com/sells-group/wine-resolver/internal/resolver"
	"github.com/sells-group/wine-resolver/internal/scorer"
	"github.com/sells-group/wine-resolver/internal/store"
	"github.com/sells-group/wine-resolver/pkg/brave"
	"github.com/sells-group/wine-resolver/pkg/google"
	"github.com/sells-group/wine-resolver/pkg/serper"
)

// resolverEnv holds the store, gateway and engine used by the resolve
// command.
type resolverEnv struct {
	Store   store.Store
	Gateway *provider.Gateway
	Cache   *cache.QueryCache
	Engine  *resolver.Engine
}

// Close releases resources held by the environment.
func (re *resolverEnv) Close() {
	if re.Store != nil {
		_ = re.Store.Close()
	}
}

// initResolver validates config, opens the store and builds the engine.
// Callers should defer env.Close().
func initResolver(ctx context.Context) (*resolverEnv, error) {
	if err := cfg.Validate("resolve"); err != nil {
		return nil, err
	}

	parser, err := initParser(cfg)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	gw, registry := initGateway(cfg)
	if avail := registry.Available(cfg.Providers.Order); len(avail) == 0 {
		zap.L().Warn("no provider credentials configured, serving from cache only")
	} else {
		zap.L().Info("providers enabled", zap.Strings("providers", avail))
	}

	qc := cache.New(st, cache.WithScopes(cacheScopes(cfg)))
	orch := fallback.New(qc, gw, fallback.Options{
		ProviderOrder:      cfg.Providers.Order,
		StopOnFirstSuccess: cfg.Resolver.StopOnFirstSuccess,
		CacheTTL:           cfg.Cache.TTL(),
	})

	engine := resolver.New(parser, orch, scorer.New(cfg.Scoring, cfg.Providers.Order), st, resolver.Options{
		MaxAPICalls:   cfg.Resolver.MaxAPICalls,
		DeltaOnly:     cfg.Resolver.DeltaOnly,
		AutoApply:     cfg.Resolver.AutoApply,
		Concurrency:   cfg.Resolver.Concurrency,
		Limit:         cfg.Resolver.Limit,
		OverridesPath: cfg.Files.Overrides,
		SearchBase:    cfg.Providers.SearchBaseURL,
	})

	return &resolverEnv{Store: st, Gateway: gw, Cache: qc, Engine: engine}, nil
}

// cacheScopes keys cached results by the settings that shape them.
func cacheScopes(c *config.Config) map[string]string {
	p := c.Providers
	scope := func(pc config.ProviderConfig) string {
		return cache.Scope(pc.MaxResults, p.Site.Domain, p.Site.PathMarker)
	}
	return map[string]string{
		provider.NameSerper:    scope(p.Serper),
		provider.NameGoogleCSE: scope(p.GoogleCSE.ProviderConfig),
		provider.NameBrave:     scope(p.Brave),
	}
}

func initParser(c *config.Config) (*parse.Parser, error) {
	lex := parse.DefaultLexicon()
	if c.Resolver.LexiconPath != "" {
		var err error
		lex, err = parse.LoadLexicon(c.Resolver.LexiconPath)
		if err != nil {
			return nil, eris.Wrap(err, "load lexicon")
		}
	}
	return parse.New(lex), nil
}

// initGateway registers every provider adapter and wraps them with the
// configured timeout, retry policy, breakers and rate limits. Adapters
// without credentials are registered but report unavailable.
func initGateway(c *config.Config) (*provider.Gateway, *provider.Registry) {
	p := c.Providers
	site := provider.SiteFilter{Domain: p.Site.Domain, PathMarker: p.Site.PathMarker}
	settings := func(pc config.ProviderConfig) provider.Settings {
		return provider.Settings{Key: pc.Key, MaxResults: pc.MaxResults, Site: site}
	}

	var serperOpts []serper.Option
	if p.Serper.BaseURL != "" {
		serperOpts = append(serperOpts, serper.WithBaseURL(p.Serper.BaseURL))
	}
	var googleOpts []google.Option
	if p.GoogleCSE.BaseURL != "" {
		googleOpts = append(googleOpts, google.WithBaseURL(p.GoogleCSE.BaseURL))
	}
	var braveOpts []brave.Option
	if p.Brave.BaseURL != "" {
		braveOpts = append(braveOpts, brave.WithBaseURL(p.Brave.BaseURL))
	}

	registry := provider.NewRegistry()
	registry.Register(provider.NewSerper(settings(p.Serper), nil, serperOpts...))
	registry.Register(provider.NewGoogleCSE(settings(p.GoogleCSE.ProviderConfig), p.GoogleCSE.CX, nil, googleOpts...))
	registry.Register(provider.NewBrave(settings(p.Brave), nil, braveOpts...))

	r := c.Resilience
	policy := resilience.DefaultPolicy()
	policy.Attempts = r.RetryAttempts
	if r.RetryBaseMS > 0 {
		policy.BaseDelay = time.Duration(r.RetryBaseMS) * time.Millisecond
	}
	if r.RetryMaxMS > 0 {
		policy.MaxDelay = time.Duration(r.RetryMaxMS) * time.Millisecond
	}

	breakers := resilience.NewBreakers(resilience.BreakerConfig{
		Threshold: r.BreakerThreshold,
		Cooldown:  time.Duration(r.BreakerCooldownSecs) * time.Second,
		Counts:    provider.BreakerCounts,
		OnStateChange: func(name string, from, to resilience.State) {
			zap.L().Warn("provider breaker state change",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	opts := []provider.GatewayOption{
		provider.WithRetryPolicy(policy),
		provider.WithBreakers(breakers),
		provider.WithRateLimit(provider.NameSerper, p.Serper.RatePerSec, p.Serper.Burst),
		provider.WithRateLimit(provider.NameGoogleCSE, p.GoogleCSE.RatePerSec, p.GoogleCSE.Burst),
		provider.WithRateLimit(provider.NameBrave, p.Brave.RatePerSec, p.Brave.Burst),
	}
	if r.CallTimeoutSecs > 0 {
		opts = append(opts, provider.WithCallTimeout(time.Duration(r.CallTimeoutSecs)*time.Second))
	}
	return provider.NewGateway(registry, opts...), registry
}
