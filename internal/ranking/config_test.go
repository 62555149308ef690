package ranking

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// TestDefaultWeights verifies the default weight configuration.
func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights()

	if w.Trending.Views != 0.2 || w.Trending.Engagement != 0.3 || w.Trending.Velocity != 0.25 ||
		w.Trending.Recency != 0.2 || w.Trending.Personalization != 0.05 {
		t.Errorf("unexpected trending weights: %+v", w.Trending)
	}
	if w.Search.Title != 0.35 || w.Search.ExactMatchBoost != 1.5 || w.Search.PhraseMatchBoost != 1.2 {
		t.Errorf("unexpected search weights: %+v", w.Search)
	}
	if w.Thresholds.Trending.MinViews[WindowDaily] != 10 {
		t.Errorf("expected daily min views 10, got %d", w.Thresholds.Trending.MinViews[WindowDaily])
	}
	if w.Blend.HeuristicRatio != 0.7 {
		t.Errorf("expected heuristic ratio 0.7, got %f", w.Blend.HeuristicRatio)
	}
	if err := w.Validate(); err != nil {
		t.Errorf("default weights should validate, got %v", err)
	}
}

// TestLoadCalibration_DefaultFile tests loading the shipped calibration file.
func TestLoadCalibration_DefaultFile(t *testing.T) {
	configPath := filepath.Join("..", "..", "configs", "ranking.calibration.json")
	if _, err := os.Stat(configPath); err != nil {
		t.Skipf("calibration file not present: %v", err)
	}

	weights, version, err := LoadCalibration(configPath)
	if err != nil {
		t.Fatalf("expected no error loading default calibration file, got: %v", err)
	}
	if version != "default" {
		t.Errorf("expected version default, got %q", version)
	}
	if !reflect.DeepEqual(weights, DefaultWeights()) {
		t.Errorf("shipped calibration drifted from defaults:\nloaded: %+v\ndefaults: %+v", weights, DefaultWeights())
	}
}

// TestLoadCalibration_EmptyPath tests loading with empty file path.
func TestLoadCalibration_EmptyPath(t *testing.T) {
	weights, version, err := LoadCalibration("")
	if err != nil {
		t.Errorf("expected no error with empty path, got: %v", err)
	}
	if version != DefaultVersion {
		t.Errorf("expected default version, got %q", version)
	}
	if !reflect.DeepEqual(weights, DefaultWeights()) {
		t.Error("should return defaults when path is empty")
	}
}

// TestLoadCalibration_NonExistentFile tests loading a non-existent file.
func TestLoadCalibration_NonExistentFile(t *testing.T) {
	weights, _, err := LoadCalibration("/nonexistent/path/to/file.json")
	if err == nil {
		t.Error("expected error when file doesn't exist")
	}
	if !reflect.DeepEqual(weights, DefaultWeights()) {
		t.Error("should return defaults when file doesn't exist")
	}
}

// TestLoadCalibration_CustomWeights tests loading partial overrides.
func TestLoadCalibration_CustomWeights(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "custom.json")

	custom := CalibrationConfig{
		Version: "v2",
		Weights: Weights{
			Trending: TrendingWeights{Velocity: 0.4},
			Thresholds: Thresholds{
				Trending: TrendingThresholds{MinViews: map[string]int64{WindowDaily: 25}},
				Spam:     SpamThresholds{Reject: 0.8},
			},
		},
	}
	data, err := json.MarshalIndent(custom, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal config: %v", err)
	}
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	weights, version, err := LoadCalibration(tmpFile)
	if err != nil {
		t.Fatalf("expected no error loading custom file, got: %v", err)
	}
	if version != "v2" {
		t.Errorf("expected version v2, got %q", version)
	}
	if weights.Trending.Velocity != 0.4 {
		t.Errorf("expected trending velocity 0.4, got %f", weights.Trending.Velocity)
	}
	if weights.Trending.Views != 0.2 {
		t.Errorf("expected trending views to keep default 0.2, got %f", weights.Trending.Views)
	}
	if weights.Thresholds.Trending.MinViews[WindowDaily] != 25 {
		t.Errorf("expected daily min views 25, got %d", weights.Thresholds.Trending.MinViews[WindowDaily])
	}
	if weights.Thresholds.Trending.MinViews[WindowWeekly] != 50 {
		t.Errorf("expected weekly min views to keep default 50, got %d", weights.Thresholds.Trending.MinViews[WindowWeekly])
	}
	if weights.Thresholds.Spam.Reject != 0.8 {
		t.Errorf("expected spam reject 0.8, got %f", weights.Thresholds.Spam.Reject)
	}
}

// TestLoadCalibration_InvalidJSON tests loading invalid JSON.
func TestLoadCalibration_InvalidJSON(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "invalid.json")
	if err := os.WriteFile(tmpFile, []byte("{invalid json}"), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	weights, _, err := LoadCalibration(tmpFile)
	if err == nil {
		t.Error("expected error when JSON is invalid")
	}
	if !reflect.DeepEqual(weights, DefaultWeights()) {
		t.Error("should return defaults when JSON is invalid")
	}
}

func TestParseCalibration_OutOfRange(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"negative weight", `{"weights":{"search":{"title":-0.5}}}`},
		{"boost below one", `{"weights":{"search":{"exact_match_boost":0.5}}}`},
		{"decay base at one", `{"weights":{"signals":{"recency":{"hourly":1}}}}`},
		{"threshold above one", `{"weights":{"thresholds":{"spam":{"reject":1.5}}}}`},
		{"review above reject", `{"weights":{"thresholds":{"spam":{"review":0.9}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weights, version, err := ParseCalibration([]byte(tt.json))
			if !errors.Is(err, ErrInvalidCalibration) {
				t.Fatalf("expected ErrInvalidCalibration, got %v", err)
			}
			if version != DefaultVersion || !reflect.DeepEqual(weights, DefaultWeights()) {
				t.Error("should fall back to defaults on invalid calibration")
			}
		})
	}
}

// TestMergeCalibration tests merging override weights with a base.
func TestMergeCalibration(t *testing.T) {
	t.Run("nil base falls back to defaults", func(t *testing.T) {
		if got := MergeCalibration(nil, nil); !reflect.DeepEqual(got, DefaultWeights()) {
			t.Error("expected defaults")
		}
	})

	t.Run("nil override copies base", func(t *testing.T) {
		base := DefaultWeights()
		got := MergeCalibration(base, nil)
		got.Thresholds.Trending.MinViews[WindowDaily] = 999
		if base.Thresholds.Trending.MinViews[WindowDaily] != 10 {
			t.Error("merge result shares the min views map with base")
		}
	})

	t.Run("zero fields keep base", func(t *testing.T) {
		got := MergeCalibration(DefaultWeights(), &Weights{Search: SearchWeights{Title: 0.5}})
		if got.Search.Title != 0.5 {
			t.Errorf("expected title 0.5, got %f", got.Search.Title)
		}
		if got.Search.Content != 0.25 {
			t.Errorf("expected content 0.25, got %f", got.Search.Content)
		}
	})

	t.Run("overrides are reported", func(t *testing.T) {
		_, overrides := mergeWeights(DefaultWeights(), &Weights{
			Spam:  SpamWeights{Links: 0.3},
			Blend: BlendConfig{HeuristicRatio: 0.7}, // same as default, not an override
		})
		if len(overrides) != 1 || overrides[0] != "spam.links: 0.20 -> 0.30" {
			t.Errorf("unexpected overrides: %v", overrides)
		}
	})
}
