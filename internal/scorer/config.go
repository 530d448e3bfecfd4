package scorer

// Weights are the composite similarity weights. They are normalized by
// their sum, so only ratios matter.
type Weights struct {
	Token    float64 `mapstructure:"token" yaml:"token"`
	Sequence float64 `mapstructure:"sequence" yaml:"sequence"`
	Set      float64 `mapstructure:"set" yaml:"set"`
}

// Adjustments are additive bonuses and penalties applied after the
// weighted composite.
type Adjustments struct {
	ProducerMissing  float64 `mapstructure:"producer_missing" yaml:"producer_missing"`
	ProducerPerToken float64 `mapstructure:"producer_per_token" yaml:"producer_per_token"`
	ProducerMax      float64 `mapstructure:"producer_max" yaml:"producer_max"`
	YearMatch        float64 `mapstructure:"year_match" yaml:"year_match"`
	YearMismatch     float64 `mapstructure:"year_mismatch" yaml:"year_mismatch"`
	// YearTolerance is the vintage distance that is not penalized.
	YearTolerance int     `mapstructure:"year_tolerance" yaml:"year_tolerance"`
	Color         float64 `mapstructure:"color" yaml:"color"`
}

// Config controls scoring and classification.
type Config struct {
	Weights     Weights     `mapstructure:"weights" yaml:"weights"`
	Adjustments Adjustments `mapstructure:"adjustments" yaml:"adjustments"`
	// AutoApply is the minimum confidence for auto_apply.
	AutoApply float64 `mapstructure:"auto_apply_threshold" yaml:"auto_apply_threshold"`
	// Review is the minimum confidence for review.
	Review float64 `mapstructure:"review_threshold" yaml:"review_threshold"`
	// NearExact is the share of producer+label tokens a candidate must
	// contain for auto_apply.
	NearExact float64 `mapstructure:"near_exact" yaml:"near_exact"`
	// MinMargin demotes auto_apply to review when the runner-up is closer
	// than this. Zero disables the check.
	MinMargin float64 `mapstructure:"min_margin" yaml:"min_margin"`
}

// DefaultConfig returns the stock weights and thresholds.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{Token: 0.45, Sequence: 0.20, Set: 0.35},
		Adjustments: Adjustments{
			ProducerMissing:  0.25,
			ProducerPerToken: 0.03,
			ProducerMax:      0.08,
			YearMatch:        0.10,
			YearMismatch:     0.10,
			YearTolerance:    1,
			Color:            0.03,
		},
		AutoApply: 0.82,
		Review:    0.70,
		NearExact: 0.85,
	}
}
