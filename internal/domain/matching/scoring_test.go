package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCandidate returns a fully specified candidate; overrides are applied
// by the callers.
func testCandidate(id string) Candidate {
	return Candidate{
		ID:                  CandidateID(id),
		DisplayName:         "Dr. " + id,
		Specialty:           "cardiology",
		City:                "new_york",
		Age:                 34,
		Gender:              GenderFemale,
		CareerStage:         CareerStageAttending,
		ActivityLevel:       ActivityModerate,
		SocialEnergy:        SocialEnergyAmbivert,
		ConversationStyle:   ConversationBalance,
		LifeStage:           LifeStagePartnered,
		Interests:           []string{"hiking", "jazz", "cooking", "chess"},
		AvailabilityDays:    []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		GenderPreference:    GenderPrefNone,
		SpecialtyPreference: SpecialtyPrefNone,
		VerifiedAt:          time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	}
}

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	scorer, err := NewScorer(DefaultFactorWeights())
	require.NoError(t, err)
	return scorer
}

func TestFactorWeights_Validate(t *testing.T) {
	t.Run("default weights are valid", func(t *testing.T) {
		assert.NoError(t, DefaultFactorWeights().Validate())
	})

	t.Run("weights must sum to one", func(t *testing.T) {
		weights := DefaultFactorWeights()
		weights[FactorSpecialty] = 0.5
		err := weights.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("missing factor rejected", func(t *testing.T) {
		weights := DefaultFactorWeights()
		delete(weights, FactorAge)
		assert.ErrorIs(t, weights.Validate(), ErrInvalidConfiguration)
	})

	t.Run("negative weight rejected", func(t *testing.T) {
		weights := DefaultFactorWeights()
		weights[FactorAge] = -0.1
		weights[FactorInterests] = 0.4
		assert.ErrorIs(t, weights.Validate(), ErrInvalidConfiguration)
	})
}

func TestScorer_Symmetry(t *testing.T) {
	scorer := newTestScorer(t)

	a := testCandidate("a")
	b := testCandidate("b")
	b.Specialty = "pediatrics"
	b.City = "los_angeles"
	b.Age = 41
	b.Interests = []string{"hiking", "surfing"}

	ab := scorer.Score(a, b)
	ba := scorer.Score(b, a)

	assert.Equal(t, ab.Score, ba.Score)
	assert.Equal(t, ab.A, ba.A)
	assert.Equal(t, ab.B, ba.B)
	assert.Equal(t, ab.Breakdown, ba.Breakdown)
}

func TestScorer_Range(t *testing.T) {
	scorer := newTestScorer(t)

	pairs := []struct {
		name string
		a, b Candidate
	}{
		{"identical", testCandidate("a"), testCandidate("b")},
		{"nothing in common", testCandidate("a"), func() Candidate {
			c := testCandidate("b")
			c.Specialty = "dermatology"
			c.City = "chicago"
			c.Age = 70
			c.CareerStage = CareerStageStudent
			c.ActivityLevel = ActivityHigh
			c.SocialEnergy = SocialEnergyExtrovert
			c.ConversationStyle = ConversationDeep
			c.LifeStage = LifeStageSingle
			c.Interests = []string{"golf"}
			c.AvailabilityDays = []time.Weekday{time.Sunday}
			return c
		}()},
		{"empty profiles", Candidate{ID: "a", GenderPreference: GenderPrefNone, SpecialtyPreference: SpecialtyPrefNone},
			Candidate{ID: "b", GenderPreference: GenderPrefNone, SpecialtyPreference: SpecialtyPrefNone}},
	}

	for _, tc := range pairs {
		t.Run(tc.name, func(t *testing.T) {
			edge := scorer.Score(tc.a, tc.b)
			assert.True(t, edge.Score.IsValid(), "score %d out of range", edge.Score)
			for _, fs := range edge.Breakdown {
				assert.GreaterOrEqual(t, fs.Score, 0)
				assert.LessOrEqual(t, fs.Score, 100)
			}
		})
	}
}

func TestScorer_IdenticalProfilesScoreFull(t *testing.T) {
	scorer := newTestScorer(t)

	edge := scorer.Score(testCandidate("a"), testCandidate("b"))
	assert.Equal(t, Score(100), edge.Score)
	assert.False(t, edge.Excluded)
	assert.Len(t, edge.Breakdown, len(AllFactors()))
}

func TestScorer_HardExclusions(t *testing.T) {
	scorer := newTestScorer(t)

	t.Run("same gender only unsatisfied", func(t *testing.T) {
		a := testCandidate("a")
		a.Gender = GenderFemale
		a.GenderPreference = GenderPrefSameOnly
		b := testCandidate("b")
		b.Gender = GenderMale

		edge := scorer.Score(a, b)
		assert.Equal(t, Score(0), edge.Score)
		assert.True(t, edge.Excluded)
		assert.Empty(t, edge.Breakdown)
	})

	t.Run("same gender only satisfied", func(t *testing.T) {
		a := testCandidate("a")
		a.GenderPreference = GenderPrefSameOnly
		b := testCandidate("b")

		edge := scorer.Score(a, b)
		assert.False(t, edge.Excluded)
		assert.Greater(t, int(edge.Score), 0)
	})

	t.Run("preference applies from either side", func(t *testing.T) {
		a := testCandidate("a")
		a.Gender = GenderMale
		b := testCandidate("b")
		b.Gender = GenderFemale
		b.GenderPreference = GenderPrefSameOnly

		assert.True(t, scorer.Score(a, b).Excluded)
	})

	t.Run("same specialty only unsatisfied", func(t *testing.T) {
		a := testCandidate("a")
		a.SpecialtyPreference = SpecialtyPrefSameOnly
		b := testCandidate("b")
		b.Specialty = "neurology"

		edge := scorer.Score(a, b)
		assert.Equal(t, Score(0), edge.Score)
		assert.True(t, edge.Excluded)
	})

	t.Run("different specialties only unsatisfied", func(t *testing.T) {
		a := testCandidate("a")
		a.SpecialtyPreference = SpecialtyPrefDifferentOnly
		b := testCandidate("b") // same specialty as a

		edge := scorer.Score(a, b)
		assert.Equal(t, Score(0), edge.Score)
		assert.True(t, edge.Excluded)
	})
}

func TestScorer_ScoreAllSkipsExcludedPairs(t *testing.T) {
	scorer := newTestScorer(t)

	a := testCandidate("a")
	b := testCandidate("b")
	c := testCandidate("c")
	c.Gender = GenderMale
	c.GenderPreference = GenderPrefSameOnly // excluded against a and b

	edges := scorer.ScoreAll([]Candidate{a, b, c})

	require.Len(t, edges, 1)
	assert.Equal(t, CandidateID("a"), edges[0].A)
	assert.Equal(t, CandidateID("b"), edges[0].B)
}

func TestCompatibilityEdge_TopFactors(t *testing.T) {
	scorer := newTestScorer(t)

	edge := scorer.Score(testCandidate("a"), testCandidate("b"))
	top := edge.TopFactors(3)
	require.Len(t, top, 3)

	// All sub-scores are 100 here, so ordering follows weight.
	assert.GreaterOrEqual(t, top[0].Weight, top[1].Weight)
	assert.GreaterOrEqual(t, top[1].Weight, top[2].Weight)
}

func TestNewScorer_RejectsInvalidWeights(t *testing.T) {
	weights := DefaultFactorWeights()
	weights[FactorLocation] = 0.9

	_, err := NewScorer(weights)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
