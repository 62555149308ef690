package decision

import (
	"fmt"

	"github.com/onnwee/contentrank/internal/ranking"
)

// Action is the moderation outcome of a spam check.
type Action string

// Moderation actions.
const (
	ActionApprove    Action = "approve"
	ActionReview     Action = "review"
	ActionReject     Action = "reject"
	ActionQuarantine Action = "quarantine"
)

// Rule codes, one per decision rule.
const (
	RuleToxicity    = "toxicity"
	RuleRepeatSpam  = "repeat_offender"
	RuleSpam        = "spam"
	RuleLowQuality  = "low_quality"
	RuleModerate    = "moderate_spam"
	RuleAIGenerated = "ai_generated"
)

// Reason explains one triggered rule.
type Reason struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// SpamInput is what the spam decision looks at.
type SpamInput struct {
	Spam        float64
	Quality     float64
	Toxicity    float64
	AIGenerated *float64 // nil when not evaluated
	Reputation  float64
	HasProfile  bool
}

// SpamDecision is the outcome of the spam rules.
type SpamDecision struct {
	Action       Action
	Reasons      []Reason
	IsSpam       bool
	IsLowQuality bool
	ShouldReview bool
	Labels       []string
}

// Conservative is the decision used when a check could not be evaluated.
func Conservative(message string) SpamDecision {
	return SpamDecision{
		Action:       ActionReview,
		Reasons:      []Reason{{Rule: "unavailable", Message: message}},
		ShouldReview: true,
		Labels:       []string{LabelFlagged},
	}
}

// SpamPolicy applies the spam thresholds.
type SpamPolicy struct {
	th ranking.SpamThresholds
}

// NewSpamPolicy creates a policy with the given thresholds.
func NewSpamPolicy(th ranking.SpamThresholds) *SpamPolicy {
	return &SpamPolicy{th: th}
}

// effective returns the thresholds for one evaluation. Strict mode moves
// every threshold by StrictDelta toward flagging more content.
func (p *SpamPolicy) effective(strict bool) ranking.SpamThresholds {
	th := p.th
	if !strict {
		return th
	}
	d := th.StrictDelta
	th.Reject -= d
	th.Review -= d
	th.Toxicity -= d
	th.AIGenerated -= d
	th.LowQuality += d
	th.QuarantineReputation += d
	return th
}

// Decide evaluates the rules in precedence order. The first triggered rule
// sets the action and later rules never override it; every triggered rule
// contributes one reason, in the same order.
func (p *SpamPolicy) Decide(in SpamInput, strict bool) SpamDecision {
	th := p.effective(strict)

	type rule struct {
		code    string
		action  Action
		hit     bool
		message string
	}
	aiHit := in.AIGenerated != nil && *in.AIGenerated >= th.AIGenerated
	rules := []rule{
		{RuleToxicity, ActionReject, in.Toxicity >= th.Toxicity,
			fmt.Sprintf("toxic language detected (toxicity %.2f)", in.Toxicity)},
		{RuleRepeatSpam, ActionQuarantine, in.HasProfile && in.Reputation <= th.QuarantineReputation && in.Spam >= th.Review,
			fmt.Sprintf("low-reputation account posting spam-like content (reputation %.2f, spam %.2f)", in.Reputation, in.Spam)},
		{RuleSpam, ActionReject, in.Spam >= th.Reject,
			fmt.Sprintf("spam score %.2f exceeds %.2f", in.Spam, th.Reject)},
		{RuleLowQuality, ActionReview, in.Quality < th.LowQuality,
			fmt.Sprintf("quality score %.2f is below %.2f", in.Quality, th.LowQuality)},
		{RuleModerate, ActionReview, in.Spam >= th.Review && in.Spam < th.Reject,
			fmt.Sprintf("moderate spam signals (spam %.2f)", in.Spam)},
		{RuleAIGenerated, ActionReview, aiHit,
			"content is likely AI-generated"},
	}

	d := SpamDecision{Action: ActionApprove}
	for _, r := range rules {
		if !r.hit {
			continue
		}
		if d.Action == ActionApprove {
			d.Action = r.action
		}
		d.Reasons = append(d.Reasons, Reason{Rule: r.code, Message: r.message})
	}

	d.IsSpam = in.Spam >= th.Reject || d.Action == ActionQuarantine
	d.IsLowQuality = in.Quality < th.LowQuality
	d.ShouldReview = d.Action == ActionReview || d.Action == ActionQuarantine
	d.Labels = LabelsFor(d.Action, d.Reasons)
	return d
}
