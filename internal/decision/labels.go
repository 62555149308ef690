package decision

import (
	"errors"
	"slices"
)

// Moderation labels attached to evaluated content. Stores exclude content
// labeled hidden or spam from listings and search.
const (
	// LabelHidden removes content from every public listing.
	LabelHidden = "hidden"

	// LabelFlagged marks content waiting for a human reviewer.
	LabelFlagged = "flagged"

	// LabelSpam marks content identified as spam.
	LabelSpam = "spam"
)

// AllowedLabels is the exhaustive list of moderation labels.
var AllowedLabels = []string{LabelHidden, LabelFlagged, LabelSpam}

// ErrInvalidLabel is returned for a label outside AllowedLabels.
var ErrInvalidLabel = errors.New("invalid moderation label")

// ValidateLabels checks that every label is allowed.
func ValidateLabels(labels []string) error {
	for _, label := range labels {
		if !slices.Contains(AllowedLabels, label) {
			return ErrInvalidLabel
		}
	}
	return nil
}

// LabelsFor derives moderation labels from a decision:
//   - approve: none
//   - review: flagged
//   - reject: spam, or hidden when rejected for toxicity
//   - quarantine: hidden and spam
func LabelsFor(action Action, reasons []Reason) []string {
	switch action {
	case ActionReview:
		return []string{LabelFlagged}
	case ActionQuarantine:
		return []string{LabelHidden, LabelSpam}
	case ActionReject:
		if len(reasons) > 0 && reasons[0].Rule == RuleToxicity {
			return []string{LabelHidden}
		}
		return []string{LabelSpam}
	default:
		return nil
	}
}
