package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
)

// ErrInvalidCalibration is returned when a calibration file parses but holds
// values outside their allowed range.
var ErrInvalidCalibration = errors.New("invalid calibration")

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"` // Config version, reported as algorithm_version
	Weights Weights `json:"weights"` // Partial overrides of DefaultWeights
}

// DefaultVersion is reported when no calibration file is loaded.
const DefaultVersion = "default"

// LoadCalibration loads weights from a JSON calibration file.
// If the file doesn't exist or can't be read, returns default weights with an error.
// Partial configurations are merged with defaults for graceful degradation.
//
// Returns the loaded weights, the calibration version and any error encountered.
// On error, returns default weights to ensure graceful degradation.
func LoadCalibration(filePath string) (*Weights, string, error) {
	if filePath == "" {
		return DefaultWeights(), DefaultVersion, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), DefaultVersion, fmt.Errorf("failed to read calibration file: %w", err)
	}

	return ParseCalibration(data)
}

// ParseCalibration decodes calibration JSON and merges it over the defaults.
// On error, returns default weights.
func ParseCalibration(data []byte) (*Weights, string, error) {
	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration, using defaults", "error", err)
		return DefaultWeights(), DefaultVersion, fmt.Errorf("failed to parse calibration: %w", err)
	}

	defaults := DefaultWeights()
	merged, overrides := mergeWeights(defaults, &config.Weights)
	if err := merged.Validate(); err != nil {
		slog.Warn("calibration out of range, using defaults", "error", err)
		return DefaultWeights(), DefaultVersion, err
	}

	version := config.Version
	if version == "" {
		version = DefaultVersion
	}
	logCalibrationOverrides(version, overrides)
	return merged, version, nil
}

// MergeCalibration merges override weights with base weights.
// Only non-zero values from the override are applied.
// This allows partial overrides in the calibration file.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	merged, _ := mergeWeights(base, override)
	return merged
}

func mergeWeights(base *Weights, override *Weights) (*Weights, []string) {
	// Guard against nil base to avoid panics; fall back to defaults.
	if base == nil {
		base = DefaultWeights()
	}
	result := base.Clone()
	if override == nil {
		return result, nil
	}

	m := &merger{}
	o := override

	m.float("trending.views", &result.Trending.Views, o.Trending.Views)
	m.float("trending.engagement", &result.Trending.Engagement, o.Trending.Engagement)
	m.float("trending.velocity", &result.Trending.Velocity, o.Trending.Velocity)
	m.float("trending.recency", &result.Trending.Recency, o.Trending.Recency)
	m.float("trending.personalization", &result.Trending.Personalization, o.Trending.Personalization)
	m.float("trending.engagement_mix.likes", &result.Trending.EngagementMix.Likes, o.Trending.EngagementMix.Likes)
	m.float("trending.engagement_mix.comments", &result.Trending.EngagementMix.Comments, o.Trending.EngagementMix.Comments)
	m.float("trending.engagement_mix.shares", &result.Trending.EngagementMix.Shares, o.Trending.EngagementMix.Shares)
	m.float("trending.engagement_mix.saves", &result.Trending.EngagementMix.Saves, o.Trending.EngagementMix.Saves)
	m.float("trending.trending_boost", &result.Trending.TrendingBoost, o.Trending.TrendingBoost)
	m.float("trending.verified_boost", &result.Trending.VerifiedBoost, o.Trending.VerifiedBoost)

	m.float("search.title", &result.Search.Title, o.Search.Title)
	m.float("search.content", &result.Search.Content, o.Search.Content)
	m.float("search.tags", &result.Search.Tags, o.Search.Tags)
	m.float("search.popularity", &result.Search.Popularity, o.Search.Popularity)
	m.float("search.recency", &result.Search.Recency, o.Search.Recency)
	m.float("search.personalization", &result.Search.Personalization, o.Search.Personalization)
	m.float("search.exact_match_boost", &result.Search.ExactMatchBoost, o.Search.ExactMatchBoost)
	m.float("search.phrase_match_boost", &result.Search.PhraseMatchBoost, o.Search.PhraseMatchBoost)
	m.float("search.popularity_boost", &result.Search.PopularityBoost, o.Search.PopularityBoost)

	m.float("spam.keywords", &result.Spam.Keywords, o.Spam.Keywords)
	m.float("spam.links", &result.Spam.Links, o.Spam.Links)
	m.float("spam.caps", &result.Spam.Caps, o.Spam.Caps)
	m.float("spam.punctuation", &result.Spam.Punctuation, o.Spam.Punctuation)
	m.float("spam.behavior", &result.Spam.Behavior, o.Spam.Behavior)
	m.float("spam.similarity", &result.Spam.Similarity, o.Spam.Similarity)

	m.float("quality.keywords", &result.Quality.Keywords, o.Quality.Keywords)
	m.float("quality.readability", &result.Quality.Readability, o.Quality.Readability)
	m.float("quality.length", &result.Quality.Length, o.Quality.Length)
	m.float("quality.structure", &result.Quality.Structure, o.Quality.Structure)
	m.float("quality.engagement", &result.Quality.Engagement, o.Quality.Engagement)
	m.float("quality.reputation", &result.Quality.Reputation, o.Quality.Reputation)

	m.float("signals.recency.hourly", &result.Signals.Recency.Hourly, o.Signals.Recency.Hourly)
	m.float("signals.recency.daily", &result.Signals.Recency.Daily, o.Signals.Recency.Daily)
	m.float("signals.recency.weekly", &result.Signals.Recency.Weekly, o.Signals.Recency.Weekly)
	m.float("signals.velocity_sensitivity", &result.Signals.VelocitySensitivity, o.Signals.VelocitySensitivity)
	m.float("signals.scales.views", &result.Signals.Scales.Views, o.Signals.Scales.Views)
	m.float("signals.scales.likes", &result.Signals.Scales.Likes, o.Signals.Scales.Likes)
	m.float("signals.scales.comments", &result.Signals.Scales.Comments, o.Signals.Scales.Comments)
	m.float("signals.scales.shares", &result.Signals.Scales.Shares, o.Signals.Scales.Shares)
	m.float("signals.scales.saves", &result.Signals.Scales.Saves, o.Signals.Scales.Saves)

	tt, ot := &result.Thresholds.Trending, &o.Thresholds.Trending
	m.float("thresholds.trending.min_score", &tt.MinScore, ot.MinScore)
	m.float("thresholds.trending.rising_velocity", &tt.RisingVelocity, ot.RisingVelocity)
	m.float("thresholds.trending.viral_engagement_rate", &tt.ViralEngagementRate, ot.ViralEngagementRate)
	m.int("thresholds.trending.viral_min_views", &tt.ViralMinViews, ot.ViralMinViews)
	m.int("thresholds.trending.viral_min_shares", &tt.ViralMinShares, ot.ViralMinShares)
	m.float("thresholds.trending.direction_up", &tt.DirectionUp, ot.DirectionUp)
	m.float("thresholds.trending.direction_down", &tt.DirectionDown, ot.DirectionDown)
	windows := make([]string, 0, len(ot.MinViews))
	for w := range ot.MinViews {
		windows = append(windows, w)
	}
	sort.Strings(windows)
	if len(windows) > 0 && tt.MinViews == nil {
		tt.MinViews = make(map[string]int64, len(windows))
	}
	for _, w := range windows {
		v := tt.MinViews[w]
		m.int("thresholds.trending.min_views."+w, &v, ot.MinViews[w])
		tt.MinViews[w] = v
	}

	m.float("thresholds.search.min_score", &result.Thresholds.Search.MinScore, o.Thresholds.Search.MinScore)

	st, so := &result.Thresholds.Spam, &o.Thresholds.Spam
	m.float("thresholds.spam.reject", &st.Reject, so.Reject)
	m.float("thresholds.spam.review", &st.Review, so.Review)
	m.float("thresholds.spam.toxicity", &st.Toxicity, so.Toxicity)
	m.float("thresholds.spam.low_quality", &st.LowQuality, so.LowQuality)
	m.float("thresholds.spam.ai_generated", &st.AIGenerated, so.AIGenerated)
	m.float("thresholds.spam.quarantine_reputation", &st.QuarantineReputation, so.QuarantineReputation)
	m.float("thresholds.spam.strict_delta", &st.StrictDelta, so.StrictDelta)

	m.float("blend.heuristic_ratio", &result.Blend.HeuristicRatio, o.Blend.HeuristicRatio)

	return result, m.overrides
}

// merger applies non-zero overrides and records what changed.
type merger struct {
	overrides []string
}

func (m *merger) float(name string, dst *float64, override float64) {
	if override == 0 || override == *dst {
		return
	}
	m.overrides = append(m.overrides, fmt.Sprintf("%s: %.2f -> %.2f", name, *dst, override))
	*dst = override
}

func (m *merger) int(name string, dst *int64, override int64) {
	if override == 0 || override == *dst {
		return
	}
	m.overrides = append(m.overrides, fmt.Sprintf("%s: %d -> %d", name, *dst, override))
	*dst = override
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(version string, overrides []string) {
	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"version", version,
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)", "version", version)
	}
}

// Validate checks that every weight is non-negative, every boost is at least
// 1, decay bases lie in (0,1) and thresholds lie in [0,1].
func (w *Weights) Validate() error {
	var errs []error
	nonNegative := func(name string, v float64) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be >= 0, got %v", ErrInvalidCalibration, name, v))
		}
	}
	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%w: %s must be in [0,1], got %v", ErrInvalidCalibration, name, v))
		}
	}
	boost := func(name string, v float64) {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%w: %s must be >= 1, got %v", ErrInvalidCalibration, name, v))
		}
	}
	decay := func(name string, v float64) {
		if v <= 0 || v >= 1 {
			errs = append(errs, fmt.Errorf("%w: %s must be in (0,1), got %v", ErrInvalidCalibration, name, v))
		}
	}
	positive := func(name string, v float64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be > 0, got %v", ErrInvalidCalibration, name, v))
		}
	}

	t := w.Trending
	for name, v := range map[string]float64{
		"trending.views": t.Views, "trending.engagement": t.Engagement, "trending.velocity": t.Velocity,
		"trending.recency": t.Recency, "trending.personalization": t.Personalization,
		"search.title": w.Search.Title, "search.content": w.Search.Content, "search.tags": w.Search.Tags,
		"search.popularity": w.Search.Popularity, "search.recency": w.Search.Recency,
		"search.personalization": w.Search.Personalization,
		"spam.keywords": w.Spam.Keywords, "spam.links": w.Spam.Links, "spam.caps": w.Spam.Caps,
		"spam.punctuation": w.Spam.Punctuation, "spam.behavior": w.Spam.Behavior, "spam.similarity": w.Spam.Similarity,
		"quality.keywords": w.Quality.Keywords, "quality.readability": w.Quality.Readability,
		"quality.length": w.Quality.Length, "quality.structure": w.Quality.Structure,
		"quality.engagement": w.Quality.Engagement, "quality.reputation": w.Quality.Reputation,
	} {
		nonNegative(name, v)
	}
	boost("trending.trending_boost", t.TrendingBoost)
	boost("trending.verified_boost", t.VerifiedBoost)
	boost("search.exact_match_boost", w.Search.ExactMatchBoost)
	boost("search.phrase_match_boost", w.Search.PhraseMatchBoost)
	boost("search.popularity_boost", w.Search.PopularityBoost)

	decay("signals.recency.hourly", w.Signals.Recency.Hourly)
	decay("signals.recency.daily", w.Signals.Recency.Daily)
	decay("signals.recency.weekly", w.Signals.Recency.Weekly)
	positive("signals.velocity_sensitivity", w.Signals.VelocitySensitivity)
	positive("signals.scales.views", w.Signals.Scales.Views)
	positive("signals.scales.likes", w.Signals.Scales.Likes)
	positive("signals.scales.comments", w.Signals.Scales.Comments)
	positive("signals.scales.shares", w.Signals.Scales.Shares)
	positive("signals.scales.saves", w.Signals.Scales.Saves)

	tt := w.Thresholds.Trending
	unit("thresholds.trending.min_score", tt.MinScore)
	unit("thresholds.trending.rising_velocity", tt.RisingVelocity)
	unit("thresholds.trending.viral_engagement_rate", tt.ViralEngagementRate)
	unit("thresholds.trending.direction_up", tt.DirectionUp)
	unit("thresholds.trending.direction_down", tt.DirectionDown)
	if tt.DirectionDown > tt.DirectionUp {
		errs = append(errs, fmt.Errorf("%w: direction_down must not exceed direction_up", ErrInvalidCalibration))
	}
	unit("thresholds.search.min_score", w.Thresholds.Search.MinScore)

	st := w.Thresholds.Spam
	unit("thresholds.spam.reject", st.Reject)
	unit("thresholds.spam.review", st.Review)
	unit("thresholds.spam.toxicity", st.Toxicity)
	unit("thresholds.spam.low_quality", st.LowQuality)
	unit("thresholds.spam.ai_generated", st.AIGenerated)
	unit("thresholds.spam.quarantine_reputation", st.QuarantineReputation)
	unit("thresholds.spam.strict_delta", st.StrictDelta)
	if st.Review > st.Reject {
		errs = append(errs, fmt.Errorf("%w: spam review threshold must not exceed reject", ErrInvalidCalibration))
	}

	unit("blend.heuristic_ratio", w.Blend.HeuristicRatio)

	return errors.Join(errs...)
}
