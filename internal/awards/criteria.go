package awards

import (
	"fmt"

	"github.com/awebisam/chemezy/internal/storage"
)

// Criteria kinds understood by the engine. Templates with any other kind
// are quarantined: they stay listed but can never be satisfied.
const (
	KindDiscoveryCount     = "discovery_count"
	KindUniqueEffects      = "unique_effects"
	KindDebugSubmissions   = "debug_submissions"
	KindCorrectionAccuracy = "correction_accuracy"
	KindConsecutiveDays    = "consecutive_days"
	KindReactionComplexity = "reaction_complexity"
)

// criterion is a decoded criteria specification. measure returns the
// user's current value for the metric the criterion tracks.
type criterion interface {
	measure(stats *storage.UserStats, evt *Event) float64
}

type discoveryCount struct{}

func (discoveryCount) measure(stats *storage.UserStats, _ *Event) float64 {
	return float64(stats.Discoveries)
}

type uniqueEffects struct{}

func (uniqueEffects) measure(stats *storage.UserStats, _ *Event) float64 {
	return float64(stats.UniqueEffects)
}

type debugSubmissions struct{}

func (debugSubmissions) measure(stats *storage.UserStats, _ *Event) float64 {
	return float64(stats.Contributions)
}

// correctionAccuracy measures the accepted percentage of a user's
// contributions. Below minSubmissions the metric reads zero so small
// samples cannot satisfy accuracy awards.
type correctionAccuracy struct {
	minSubmissions int
}

func (c correctionAccuracy) measure(stats *storage.UserStats, _ *Event) float64 {
	if stats.Contributions < c.minSubmissions || stats.Contributions == 0 {
		return 0
	}
	return float64(stats.AcceptedContributions) / float64(stats.Contributions) * 100
}

type consecutiveDays struct{}

func (consecutiveDays) measure(stats *storage.UserStats, _ *Event) float64 {
	return float64(stats.ConsecutiveDays)
}

// reactionComplexity is event-scoped: it reads the complexity of the
// reaction that triggered the evaluation, not an accumulated statistic.
type reactionComplexity struct{}

func (reactionComplexity) measure(_ *storage.UserStats, evt *Event) float64 {
	if evt == nil {
		return 0
	}
	return evt.Complexity
}

// quarantined is the decoded form of an unknown or malformed criteria
// kind. It measures negative so no threshold can ever be met.
type quarantined struct{}

func (quarantined) measure(_ *storage.UserStats, _ *Event) float64 {
	return -1
}

// decodeCriteria maps a stored spec onto its typed variant. The error is
// reported once per template by the engine; the returned criterion is
// always usable (unknown kinds decode to quarantined).
func decodeCriteria(spec storage.CriteriaSpec) (criterion, error) {
	switch spec.Kind {
	case KindDiscoveryCount:
		return discoveryCount{}, nil
	case KindUniqueEffects:
		return uniqueEffects{}, nil
	case KindDebugSubmissions:
		return debugSubmissions{}, nil
	case KindCorrectionAccuracy:
		if spec.MinSubmissions < 0 {
			return quarantined{}, fmt.Errorf("correction_accuracy: negative min_submissions %d", spec.MinSubmissions)
		}
		return correctionAccuracy{minSubmissions: spec.MinSubmissions}, nil
	case KindConsecutiveDays:
		return consecutiveDays{}, nil
	case KindReactionComplexity:
		return reactionComplexity{}, nil
	default:
		return quarantined{}, fmt.Errorf("unknown criteria kind %q", spec.Kind)
	}
}

// highestTier returns the 1-based index of the highest ascending tier
// whose threshold the current value meets, or 0 when none is met.
func highestTier(tiers []storage.TierSpec, current float64) int {
	tier := 0
	for i, t := range tiers {
		if current >= t.Threshold {
			tier = i + 1
		}
	}
	return tier
}

// nextThreshold returns the threshold of the lowest unmet tier, or
// (0, false) when every tier is already met.
func nextThreshold(tiers []storage.TierSpec, current float64) (float64, bool) {
	for _, t := range tiers {
		if current < t.Threshold {
			return t.Threshold, true
		}
	}
	return 0, false
}
