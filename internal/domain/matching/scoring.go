package matching

import (
	"fmt"
	"math"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORING PHILOSOPHY
//
// The scorer is a pure function over two candidate snapshots. Hard
// exclusions (stated composition preferences that the other party cannot
// satisfy) are evaluated before any weighting and force the score to 0.
// Every factor produces an integer sub-score in [0, 100]; the final score
// is the weight table applied to the sub-scores, rounded to the nearest
// integer. Weights are validated to sum to 1.0 at startup, so the total
// can never leave [0, 100].
// ══════════════════════════════════════════════════════════════════════════════

// AlgorithmVersion identifies a fixed factor-weight table. Historical
// groups stay interpretable after weights change because each persisted
// group carries the version that produced it.
const AlgorithmVersion = "v2.1"

// Factor names the compatibility factors. The set is fixed per
// AlgorithmVersion.
type Factor string

const (
	FactorSpecialty         Factor = "specialty_affinity"
	FactorLocation          Factor = "location_proximity"
	FactorAge               Factor = "age_affinity"
	FactorInterests         Factor = "interest_overlap"
	FactorCareerStage       Factor = "career_stage_affinity"
	FactorActivityLevel     Factor = "activity_level_affinity"
	FactorSocialEnergy      Factor = "social_energy_affinity"
	FactorConversationStyle Factor = "conversation_style_affinity"
	FactorLifeStage         Factor = "life_stage_affinity"
	FactorAvailability      Factor = "availability_overlap"
)

// AllFactors lists every factor of the current algorithm version in a
// stable order.
func AllFactors() []Factor {
	return []Factor{
		FactorSpecialty,
		FactorLocation,
		FactorAge,
		FactorInterests,
		FactorCareerStage,
		FactorActivityLevel,
		FactorSocialEnergy,
		FactorConversationStyle,
		FactorLifeStage,
		FactorAvailability,
	}
}

// FactorWeights maps factor name to its weight. Weights must sum to 1.0.
type FactorWeights map[Factor]float64

// DefaultFactorWeights returns the weight table of the current algorithm
// version.
func DefaultFactorWeights() FactorWeights {
	return FactorWeights{
		FactorSpecialty:         0.20,
		FactorLocation:          0.15,
		FactorAge:               0.10,
		FactorInterests:         0.20,
		FactorCareerStage:       0.10,
		FactorActivityLevel:     0.05,
		FactorSocialEnergy:      0.05,
		FactorConversationStyle: 0.05,
		FactorLifeStage:         0.05,
		FactorAvailability:      0.05,
	}
}

// weightSumTolerance absorbs float representation noise when validating
// that weights sum to 1.0.
const weightSumTolerance = 1e-9

// Validate checks that every known factor has a weight, no unknown factor
// is present, and the weights sum to 1.0.
func (w FactorWeights) Validate() error {
	if len(w) != len(AllFactors()) {
		return fmt.Errorf("%w: expected %d factor weights, got %d",
			ErrInvalidConfiguration, len(AllFactors()), len(w))
	}

	sum := 0.0
	for _, f := range AllFactors() {
		weight, ok := w[f]
		if !ok {
			return fmt.Errorf("%w: missing weight for factor %q", ErrInvalidConfiguration, f)
		}
		if weight < 0 {
			return fmt.Errorf("%w: negative weight for factor %q", ErrInvalidConfiguration, f)
		}
		sum += weight
	}

	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("%w: factor weights sum to %v, want 1.0", ErrInvalidConfiguration, sum)
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORE AND BREAKDOWN
// ══════════════════════════════════════════════════════════════════════════════

// Score represents a compatibility score (0-100).
type Score int

// IsValid checks that the score is in range.
func (s Score) IsValid() bool {
	return s >= 0 && s <= 100
}

// FactorScore is one entry of the named factor breakdown.
type FactorScore struct {
	// Factor - factor name.
	Factor Factor

	// Weight - weight of the factor in the weighted sum.
	Weight float64

	// Score - sub-score for this factor (0-100).
	Score int
}

// CompatibilityEdge is the scored unordered pair {A, B}. Ephemeral:
// recomputed every run, never persisted standalone.
type CompatibilityEdge struct {
	// A, B - the pair, normalized so that A < B by ID.
	A CandidateID
	B CandidateID

	// Score - overall weighted score (0-100). 0 means the pair is
	// ineligible for grouping.
	Score Score

	// Excluded - true when a hard exclusion forced the score to 0.
	Excluded bool

	// Breakdown - per-factor sub-scores. Empty for excluded pairs.
	Breakdown []FactorScore
}

// Pair returns the normalized pair key of the edge.
func (e CompatibilityEdge) Pair() PairKey {
	return NewPairKey(e.A, e.B)
}

// TopFactors returns the n factors contributing most to the score.
func (e CompatibilityEdge) TopFactors(n int) []FactorScore {
	if len(e.Breakdown) == 0 {
		return nil
	}

	sorted := make([]FactorScore, len(e.Breakdown))
	copy(sorted, e.Breakdown)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight*float64(sorted[i].Score) > sorted[j].Weight*float64(sorted[j].Score)
	})

	if n >= len(sorted) {
		return sorted
	}
	return sorted[:n]
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORER
// ══════════════════════════════════════════════════════════════════════════════

// Scorer computes compatibility edges. It holds only the weight table;
// scoring itself has no side effects and no run-global state.
type Scorer struct {
	weights FactorWeights
}

// NewScorer creates a scorer with a validated weight table.
func NewScorer(weights FactorWeights) (*Scorer, error) {
	if weights == nil {
		weights = DefaultFactorWeights()
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights}, nil
}

// Weights returns a copy of the scorer's weight table.
func (s *Scorer) Weights() FactorWeights {
	out := make(FactorWeights, len(s.weights))
	for f, w := range s.weights {
		out[f] = w
	}
	return out
}

// Score computes the compatibility edge for a pair of candidates.
// Symmetric by construction: the pair is normalized by ID before any
// factor is evaluated, so Score(a, b) and Score(b, a) produce identical
// edges.
func (s *Scorer) Score(a, b Candidate) CompatibilityEdge {
	// Normalize argument order so the implementation cannot accidentally
	// special-case it.
	if b.ID < a.ID {
		a, b = b, a
	}

	edge := CompatibilityEdge{A: a.ID, B: b.ID}

	if hardExcluded(a, b) {
		edge.Excluded = true
		return edge
	}

	breakdown := make([]FactorScore, 0, len(AllFactors()))
	weighted := 0.0
	for _, f := range AllFactors() {
		sub := factorScore(f, a, b)
		w := s.weights[f]
		breakdown = append(breakdown, FactorScore{Factor: f, Weight: w, Score: sub})
		weighted += w * float64(sub)
	}

	edge.Score = Score(int(math.Round(weighted)))
	edge.Breakdown = breakdown
	return edge
}

// hardExcluded evaluates the stated composition preferences of both
// sides. Any unsatisfied hard preference forces the pair out.
func hardExcluded(a, b Candidate) bool {
	if a.GenderPreference == GenderPrefSameOnly && b.Gender != a.Gender {
		return true
	}
	if b.GenderPreference == GenderPrefSameOnly && a.Gender != b.Gender {
		return true
	}

	sameSpecialty := a.Specialty == b.Specialty
	if a.SpecialtyPreference == SpecialtyPrefSameOnly && !sameSpecialty {
		return true
	}
	if b.SpecialtyPreference == SpecialtyPrefSameOnly && !sameSpecialty {
		return true
	}
	if a.SpecialtyPreference == SpecialtyPrefDifferentOnly && sameSpecialty {
		return true
	}
	if b.SpecialtyPreference == SpecialtyPrefDifferentOnly && sameSpecialty {
		return true
	}

	return false
}

// factorScore computes the integer sub-score (0-100) for one factor.
func factorScore(f Factor, a, b Candidate) int {
	switch f {
	case FactorSpecialty:
		return specialtyScore(a, b)
	case FactorLocation:
		return locationScore(a, b)
	case FactorAge:
		return ageScore(a, b)
	case FactorInterests:
		return interestScore(a, b)
	case FactorCareerStage:
		return ordinalAffinity(a.CareerStage.Ordinal(), b.CareerStage.Ordinal(), 4)
	case FactorActivityLevel:
		return ordinalAffinity(a.ActivityLevel.Ordinal(), b.ActivityLevel.Ordinal(), 2)
	case FactorSocialEnergy:
		return ordinalAffinity(a.SocialEnergy.Ordinal(), b.SocialEnergy.Ordinal(), 2)
	case FactorConversationStyle:
		return conversationScore(a, b)
	case FactorLifeStage:
		return lifeStageScore(a, b)
	case FactorAvailability:
		return availabilityScore(a, b)
	default:
		return 0
	}
}

func specialtyScore(a, b Candidate) int {
	if a.Specialty == "" || b.Specialty == "" {
		return 50
	}
	if a.Specialty == b.Specialty {
		return 100
	}
	// Different specialties still have networking value.
	return 40
}

func locationScore(a, b Candidate) int {
	if a.City == "" || b.City == "" {
		return 30
	}
	if a.City == b.City {
		return 100
	}
	return 20
}

// ageScore decays linearly: same age 100, each year of difference costs
// 5 points, floored at 0.
func ageScore(a, b Candidate) int {
	if a.Age == 0 || b.Age == 0 {
		return 50
	}
	diff := a.Age - b.Age
	if diff < 0 {
		diff = -diff
	}
	score := 100 - diff*5
	if score < 0 {
		return 0
	}
	return score
}

// interestScore rewards shared tags: 25 points each, capped at 100.
// No declared interests on either side scores a neutral 40.
func interestScore(a, b Candidate) int {
	if len(a.Interests) == 0 && len(b.Interests) == 0 {
		return 40
	}
	common := len(a.CommonInterests(b))
	score := common * 25
	if score > 100 {
		return 100
	}
	return score
}

// ordinalAffinity maps the distance between two ordinal values onto
// [0, 100]: distance 0 scores 100, the maximum distance scores 0.
func ordinalAffinity(x, y, maxDistance int) int {
	if x < 0 || y < 0 {
		return 50
	}
	diff := x - y
	if diff < 0 {
		diff = -diff
	}
	if diff >= maxDistance {
		return 0
	}
	return 100 - (diff*100)/maxDistance
}

func conversationScore(a, b Candidate) int {
	if a.ConversationStyle == "" || b.ConversationStyle == "" {
		return 50
	}
	if a.ConversationStyle == b.ConversationStyle {
		return 100
	}
	// "mix of both" pairs tolerably with either pure style.
	if a.ConversationStyle == ConversationBalance || b.ConversationStyle == ConversationBalance {
		return 70
	}
	return 30
}

func lifeStageScore(a, b Candidate) int {
	if a.LifeStage == "" || b.LifeStage == "" {
		return 50
	}
	if a.LifeStage == b.LifeStage {
		return 100
	}
	return 40
}

// availabilityScore rewards overlapping availability days, 20 points per
// shared day capped at 100. Nobody declaring availability is neutral.
func availabilityScore(a, b Candidate) int {
	if len(a.AvailabilityDays) == 0 || len(b.AvailabilityDays) == 0 {
		return 50
	}
	overlap := a.AvailabilityOverlap(b)
	score := overlap * 20
	if score > 100 {
		return 100
	}
	return score
}

// ══════════════════════════════════════════════════════════════════════════════
// PAIRWISE MATRIX
// ══════════════════════════════════════════════════════════════════════════════

// ScoreAll computes the edge for every unordered pair of the pool.
// Only pairs with a non-zero score are materialized; excluded and
// zero-score pairs never become edges, so formation cannot use them.
func (s *Scorer) ScoreAll(pool []Candidate) []CompatibilityEdge {
	edges := make([]CompatibilityEdge, 0, len(pool)*(len(pool)-1)/2)
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			edge := s.Score(pool[i], pool[j])
			if edge.Score > 0 {
				edges = append(edges, edge)
			}
		}
	}
	return edges
}
