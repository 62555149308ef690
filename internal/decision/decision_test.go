package decision

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/ranking"
)

func defaultTrending() *TrendingPolicy {
	return NewTrendingPolicy(ranking.DefaultWeights().Thresholds.Trending)
}

func defaultSpam() *SpamPolicy {
	return NewSpamPolicy(ranking.DefaultWeights().Thresholds.Spam)
}

func ptr(f float64) *float64 { return &f }

func TestTrendingPolicy_Window(t *testing.T) {
	p := defaultTrending()
	tests := []struct {
		name     string
		duration time.Duration
		minViews int64
	}{
		{"realtime", time.Hour, 5},
		{"daily", 24 * time.Hour, 10},
		{"weekly", 7 * 24 * time.Hour, 50},
		{"monthly", 30 * 24 * time.Hour, 100},
	}
	for _, tt := range tests {
		w, err := p.Window(tt.name)
		if err != nil {
			t.Fatalf("Window(%q) error = %v", tt.name, err)
		}
		if w.Duration != tt.duration || w.MinViews != tt.minViews {
			t.Errorf("Window(%q) = %+v", tt.name, w)
		}
	}

	if _, err := p.Window("yearly"); !errors.Is(err, ErrUnknownWindow) {
		t.Errorf("Window(yearly) error = %v, want ErrUnknownWindow", err)
	}
}

func TestTrendingPolicy_Classification(t *testing.T) {
	p := defaultTrending()
	daily, _ := p.Window("daily")

	if !p.Qualifies(0.1, 10, daily) {
		t.Error("score and views at the thresholds should qualify")
	}
	if p.Qualifies(0.09, 1000, daily) || p.Qualifies(0.9, 9, daily) {
		t.Error("below either threshold should not qualify")
	}

	if !p.IsRising(0.5, 2*time.Hour, 10, daily) {
		t.Error("fast item inside window should be rising")
	}
	if p.IsRising(0.5, 25*time.Hour, 10, daily) {
		t.Error("item older than the window is not rising")
	}
	if p.IsRising(0.49, time.Hour, 10, daily) {
		t.Error("slow item is not rising")
	}

	if !p.IsViral(0.1, 1000, 50) {
		t.Error("thresholds met should be viral")
	}
	if p.IsViral(0.1, 1000, 49) || p.IsViral(0.09, 5000, 500) || p.IsViral(0.5, 999, 500) {
		t.Error("any threshold missed should not be viral")
	}

	for velocity, want := range map[float64]Direction{
		1: DirectionUp, 0.6: DirectionUp, 0.59: DirectionStable,
		0.21: DirectionStable, 0.2: DirectionDown, 0: DirectionDown,
	} {
		if got := p.Direction(velocity); got != want {
			t.Errorf("Direction(%v) = %s, want %s", velocity, got, want)
		}
	}
}

func TestParseSort(t *testing.T) {
	for in, want := range map[string]SortBy{"": SortRelevance, "relevance": SortRelevance, "date": SortDate, "popularity": SortPopularity} {
		got, err := ParseSort(in)
		if err != nil || got != want {
			t.Errorf("ParseSort(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseSort("random"); !errors.Is(err, ErrUnknownSort) {
		t.Errorf("ParseSort(random) error = %v", err)
	}
}

func scoredIDs(results []Scored) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Item.ID
	}
	return ids
}

func TestSearch_FilterAndSort(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	results := []Scored{
		{Item: &content.Item{ID: "c", CreatedAt: now.Add(-3 * time.Hour), ViewCount: 10}, Score: 0.5},
		{Item: &content.Item{ID: "a", CreatedAt: now.Add(-1 * time.Hour), ViewCount: 10, LikeCount: 3}, Score: 0.5},
		{Item: &content.Item{ID: "low", CreatedAt: now, ViewCount: 1000}, Score: 0.05},
		{Item: &content.Item{ID: "b", CreatedAt: now.Add(-2 * time.Hour), ViewCount: 500}, Score: 0.9},
	}

	kept := FilterByFloor(results, 0.1)
	if got := scoredIDs(kept); !reflect.DeepEqual(got, []string{"c", "a", "b"}) {
		t.Fatalf("FilterByFloor() = %v", got)
	}

	tests := []struct {
		by   SortBy
		want []string
	}{
		{SortRelevance, []string{"b", "a", "c"}},
		{SortDate, []string{"a", "b", "c"}},
		{SortPopularity, []string{"b", "a", "c"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.by), func(t *testing.T) {
			cp := append([]Scored(nil), kept...)
			Sort(cp, tt.by)
			if got := scoredIDs(cp); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Sort(%s) = %v, want %v", tt.by, got, tt.want)
			}
		})
	}
}

func TestSpamPolicy_Decide(t *testing.T) {
	p := defaultSpam()
	tests := []struct {
		name       string
		in         SpamInput
		strict     bool
		wantAction Action
		wantRules  []string
		wantSpam   bool
		wantLowQ   bool
		wantReview bool
		wantLabels []string
	}{
		{
			name:       "clean content",
			in:         SpamInput{Spam: 0.05, Quality: 0.8, Reputation: 0.5},
			wantAction: ActionApprove,
		},
		{
			name:       "obvious spam",
			in:         SpamInput{Spam: 0.76, Quality: 0.2, Reputation: 0.5},
			wantAction: ActionReject,
			wantRules:  []string{RuleSpam, RuleLowQuality},
			wantSpam:   true,
			wantLowQ:   true,
			wantLabels: []string{LabelSpam},
		},
		{
			name:       "toxicity wins over everything",
			in:         SpamInput{Spam: 0.9, Quality: 0.1, Toxicity: 0.8, Reputation: 0.1, HasProfile: true},
			wantAction: ActionReject,
			wantRules:  []string{RuleToxicity, RuleRepeatSpam, RuleSpam, RuleLowQuality},
			wantSpam:   true,
			wantLowQ:   true,
			wantLabels: []string{LabelHidden},
		},
		{
			name:       "repeat offender quarantined",
			in:         SpamInput{Spam: 0.45, Quality: 0.6, Reputation: 0.1, HasProfile: true},
			wantAction: ActionQuarantine,
			wantRules:  []string{RuleRepeatSpam, RuleModerate},
			wantSpam:   true,
			wantReview: true,
			wantLabels: []string{LabelHidden, LabelSpam},
		},
		{
			name:       "low reputation without spam approved",
			in:         SpamInput{Spam: 0.1, Quality: 0.6, Reputation: 0.1, HasProfile: true},
			wantAction: ActionApprove,
		},
		{
			name:       "low quality goes to review",
			in:         SpamInput{Spam: 0.1, Quality: 0.2, Reputation: 0.5},
			wantAction: ActionReview,
			wantRules:  []string{RuleLowQuality},
			wantLowQ:   true,
			wantReview: true,
			wantLabels: []string{LabelFlagged},
		},
		{
			name:       "moderate spam",
			in:         SpamInput{Spam: 0.5, Quality: 0.6, Reputation: 0.5},
			wantAction: ActionReview,
			wantRules:  []string{RuleModerate},
			wantReview: true,
			wantLabels: []string{LabelFlagged},
		},
		{
			name:       "AI generated",
			in:         SpamInput{Spam: 0.1, Quality: 0.6, AIGenerated: ptr(0.85), Reputation: 0.5},
			wantAction: ActionReview,
			wantRules:  []string{RuleAIGenerated},
			wantReview: true,
			wantLabels: []string{LabelFlagged},
		},
		{
			name:       "strict mode lowers the reject threshold",
			in:         SpamInput{Spam: 0.65, Quality: 0.6, Reputation: 0.5},
			strict:     true,
			wantAction: ActionReject,
			wantRules:  []string{RuleSpam},
			wantSpam:   true,
			wantLabels: []string{LabelSpam},
		},
		{
			name:       "same input without strict mode is review",
			in:         SpamInput{Spam: 0.65, Quality: 0.6, Reputation: 0.5},
			wantAction: ActionReview,
			wantRules:  []string{RuleModerate},
			wantReview: true,
			wantLabels: []string{LabelFlagged},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Decide(tt.in, tt.strict)
			if d.Action != tt.wantAction {
				t.Errorf("Action = %s, want %s", d.Action, tt.wantAction)
			}
			var rules []string
			for _, r := range d.Reasons {
				rules = append(rules, r.Rule)
				if r.Message == "" {
					t.Errorf("rule %s has no message", r.Rule)
				}
			}
			if !reflect.DeepEqual(rules, tt.wantRules) {
				t.Errorf("rules = %v, want %v", rules, tt.wantRules)
			}
			if d.IsSpam != tt.wantSpam || d.IsLowQuality != tt.wantLowQ || d.ShouldReview != tt.wantReview {
				t.Errorf("flags spam=%v lowq=%v review=%v", d.IsSpam, d.IsLowQuality, d.ShouldReview)
			}
			if !reflect.DeepEqual(d.Labels, tt.wantLabels) {
				t.Errorf("Labels = %v, want %v", d.Labels, tt.wantLabels)
			}
			if err := ValidateLabels(d.Labels); err != nil {
				t.Errorf("ValidateLabels() error = %v", err)
			}
		})
	}
}

func TestSpamPolicy_StrongerSignalNeverWeakensDecision(t *testing.T) {
	p := defaultSpam()
	severity := map[Action]int{ActionApprove: 0, ActionReview: 1, ActionReject: 2, ActionQuarantine: 2}
	rapid.Check(t, func(t *rapid.T) {
		in := SpamInput{
			Spam:     rapid.Float64Range(0, 1).Draw(t, "spam"),
			Quality:  rapid.Float64Range(0, 1).Draw(t, "quality"),
			Toxicity: rapid.Float64Range(0, 1).Draw(t, "toxicity"),
		}
		base := p.Decide(in, false)
		worse := in
		worse.Toxicity = 1
		if got := p.Decide(worse, false); got.Action != ActionReject {
			t.Fatalf("max toxicity gave %s", got.Action)
		}
		if strict := p.Decide(in, true); severity[strict.Action] < severity[base.Action] {
			t.Fatalf("strict mode weakened %s to %s", base.Action, strict.Action)
		}
		if base.IsSpam && base.Action == ActionApprove {
			t.Fatalf("spam approved: %+v", base)
		}
	})
}

func TestConservative(t *testing.T) {
	d := Conservative("scoring failed")
	if d.Action != ActionReview || !d.ShouldReview || d.IsSpam {
		t.Errorf("Conservative() = %+v", d)
	}
}

func TestValidateLabels(t *testing.T) {
	if err := ValidateLabels([]string{"spam", "hidden"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateLabels([]string{"nsfw"}); !errors.Is(err, ErrInvalidLabel) {
		t.Errorf("error = %v, want ErrInvalidLabel", err)
	}
}
