package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

var knownProviders = map[string]bool{"serper": true, "google_cse": true, "brave": true}

// Validate checks the settings a command mode needs. Modes: "resolve" and
// "store" (cache and state maintenance).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "resolve":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateResolve()...)
	case "store":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	return errs
}

func (c *Config) validateResolve() []string {
	var errs []string

	if c.Files.Input == "" {
		errs = append(errs, "files.input is required")
	}
	if c.Files.Overrides == "" {
		errs = append(errs, "files.overrides is required")
	}
	if len(c.Providers.Order) == 0 {
		errs = append(errs, "providers.order must name at least one provider")
	}
	for _, name := range c.Providers.Order {
		if !knownProviders[name] {
			errs = append(errs, fmt.Sprintf("providers.order: unknown provider %q", name))
		}
	}
	if c.Resolver.Concurrency < 1 || c.Resolver.Concurrency > 32 {
		errs = append(errs, "resolver.concurrency must be between 1 and 32")
	}
	if c.Resolver.Limit < 0 {
		errs = append(errs, "resolver.limit must be >= 0")
	}

	s := c.Scoring
	if s.AutoApply < 0 || s.AutoApply > 1 {
		errs = append(errs, "scoring.auto_apply_threshold must be between 0 and 1")
	}
	if s.Review < 0 || s.Review > 1 {
		errs = append(errs, "scoring.review_threshold must be between 0 and 1")
	}
	if s.Review > s.AutoApply {
		errs = append(errs, "scoring.review_threshold must not exceed auto_apply_threshold")
	}
	if s.NearExact < 0 || s.NearExact > 1 {
		errs = append(errs, "scoring.near_exact must be between 0 and 1")
	}
	if s.MinMargin < 0 {
		errs = append(errs, "scoring.min_margin must be >= 0")
	}
	if s.Weights.Token < 0 || s.Weights.Sequence < 0 || s.Weights.Set < 0 {
		errs = append(errs, "scoring.weights values must be >= 0")
	}
	return errs
}
