package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() FormationParams {
	return FormationParams{
		MinGroupSize:    2,
		MaxGroupSize:    4,
		TargetGroupSize: 3,
		MinEdgeScore:    40,
		CooldownWeeks:   8,
		TargetWeek:      WeekID("2026-W35"),
	}
}

func newTestEngine(t *testing.T, params FormationParams) *Engine {
	t.Helper()
	engine, err := NewEngine(params)
	require.NoError(t, err)
	return engine
}

func edge(a, b string, score int) CompatibilityEdge {
	key := NewPairKey(CandidateID(a), CandidateID(b))
	return CompatibilityEdge{A: key.Lo, B: key.Hi, Score: Score(score)}
}

func poolOf(ids ...string) []Candidate {
	pool := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		pool = append(pool, Candidate{ID: CandidateID(id)})
	}
	return pool
}

func TestFormationParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*FormationParams)
		ok     bool
	}{
		{"valid", func(p *FormationParams) {}, true},
		{"min below two", func(p *FormationParams) { p.MinGroupSize = 1 }, false},
		{"min above max", func(p *FormationParams) { p.MinGroupSize = 5 }, false},
		{"target below min", func(p *FormationParams) { p.TargetGroupSize = 1 }, false},
		{"target above max", func(p *FormationParams) { p.TargetGroupSize = 9 }, false},
		{"negative cooldown", func(p *FormationParams) { p.CooldownWeeks = -1 }, false},
		{"threshold out of range", func(p *FormationParams) { p.MinEdgeScore = 101 }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := testParams()
			tc.mutate(&params)
			err := params.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
			}
		})
	}
}

func TestEngine_FormsGroupsFromBestEdges(t *testing.T) {
	engine := newTestEngine(t, testParams())

	pool := poolOf("a", "b", "c", "d", "e", "f")
	edges := []CompatibilityEdge{
		edge("a", "b", 95),
		edge("a", "c", 80),
		edge("b", "c", 85),
		edge("d", "e", 90),
		edge("d", "f", 70),
		edge("e", "f", 75),
	}

	result := engine.Form(pool, edges, EmptyExclusionSet())

	require.Len(t, result.Groups, 2)
	assert.Equal(t, []CandidateID{"a", "b", "c"}, result.Groups[0].Members)
	assert.Equal(t, []CandidateID{"d", "e", "f"}, result.Groups[1].Members)
	assert.Empty(t, result.Unplaced)

	// Average of pairwise scores, rounded.
	assert.Equal(t, Score(87), result.Groups[0].AverageScore) // (95+80+85)/3 = 86.67
	assert.Equal(t, Score(78), result.Groups[1].AverageScore) // (90+70+75)/3 = 78.33
	assert.Equal(t, AlgorithmVersion, result.Groups[0].AlgorithmVersion)
}

func TestEngine_Disjointness(t *testing.T) {
	engine := newTestEngine(t, testParams())

	pool := poolOf("a", "b", "c", "d", "e")
	edges := []CompatibilityEdge{
		edge("a", "b", 90),
		edge("b", "c", 89),
		edge("c", "d", 88),
		edge("d", "e", 87),
		edge("a", "c", 60),
		edge("b", "d", 55),
	}

	result := engine.Form(pool, edges, EmptyExclusionSet())

	seen := make(map[CandidateID]int)
	for _, g := range result.Groups {
		assert.GreaterOrEqual(t, g.Size(), engine.params.MinGroupSize)
		assert.LessOrEqual(t, g.Size(), engine.params.MaxGroupSize)
		for _, m := range g.Members {
			seen[m]++
		}
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "candidate %s placed in %d groups", id, count)
	}
	for _, id := range result.Unplaced {
		assert.Zero(t, seen[id], "unplaced candidate %s also appears in a group", id)
	}
}

func TestEngine_HonorsHistoryExclusion(t *testing.T) {
	engine := newTestEngine(t, testParams())

	pool := poolOf("a", "b", "c", "d")
	edges := []CompatibilityEdge{
		edge("a", "b", 99), // best pair, but recently grouped
		edge("a", "c", 70),
		edge("b", "d", 65),
		edge("c", "d", 50),
		edge("a", "d", 45),
		edge("b", "c", 48),
	}

	history := NewExclusionSet([]HistoryEntry{{
		Pair: NewPairKey("a", "b"),
		Week: WeekID("2026-W33"), // 2 weeks before target, inside 8-week window
	}})

	result := engine.Form(pool, edges, history)

	for _, g := range result.Groups {
		assert.False(t, g.Contains("a") && g.Contains("b"),
			"recently grouped pair {a,b} must not be grouped again")
	}
}

// Pair grouped at week 1 with an 8-week cooldown: week 9 is the last
// excluded week, so formation must still keep them apart there.
func TestEngine_ExclusionHoldsThroughFinalCooldownWeek(t *testing.T) {
	params := testParams()
	params.TargetGroupSize = 2
	params.TargetWeek = WeekID("2026-W09")
	engine := newTestEngine(t, params)

	pool := poolOf("a", "b", "c", "d")
	edges := []CompatibilityEdge{
		edge("a", "b", 99), // best pair, cooldown boundary week
		edge("a", "c", 70),
		edge("b", "d", 65),
		edge("c", "d", 50),
	}

	history := NewExclusionSet([]HistoryEntry{{
		Pair: NewPairKey("a", "b"),
		Week: WeekID("2026-W01"), // exactly cooldownWeeks before target
	}})

	result := engine.Form(pool, edges, history)

	require.NotEmpty(t, result.Groups)
	for _, g := range result.Groups {
		assert.False(t, g.Contains("a") && g.Contains("b"),
			"pair {a,b} regrouped in the final cooldown week")
	}
}

func TestEngine_ExpiredHistoryDoesNotExclude(t *testing.T) {
	params := testParams()
	params.TargetGroupSize = 2
	engine := newTestEngine(t, params)

	pool := poolOf("a", "b")
	edges := []CompatibilityEdge{edge("a", "b", 99)}

	history := NewExclusionSet([]HistoryEntry{{
		Pair: NewPairKey("a", "b"),
		Week: WeekID("2026-W20"), // 15 weeks before target, outside window
	}})

	result := engine.Form(pool, edges, history)

	require.Len(t, result.Groups, 1)
	assert.Equal(t, []CandidateID{"a", "b"}, result.Groups[0].Members)
}

func TestEngine_Determinism(t *testing.T) {
	engine := newTestEngine(t, testParams())

	pool := poolOf("a", "b", "c", "d", "e", "f", "g", "h")
	edges := []CompatibilityEdge{
		edge("a", "b", 80), edge("c", "d", 80), edge("e", "f", 80), // tied seeds
		edge("a", "c", 80), edge("b", "d", 80),
		edge("e", "g", 60), edge("f", "g", 60),
		edge("g", "h", 55), edge("a", "h", 42),
	}

	first := engine.Form(pool, edges, EmptyExclusionSet())
	second := engine.Form(pool, edges, EmptyExclusionSet())

	require.Equal(t, first, second)
}

func TestEngine_TieBreaksByCandidateID(t *testing.T) {
	params := testParams()
	params.TargetGroupSize = 2
	engine := newTestEngine(t, params)

	pool := poolOf("a", "b", "c", "d")
	edges := []CompatibilityEdge{
		edge("c", "d", 77),
		edge("a", "b", 77), // same score: {a,b} seeds first by ID order
	}

	result := engine.Form(pool, edges, EmptyExclusionSet())

	require.Len(t, result.Groups, 2)
	assert.Equal(t, []CandidateID{"a", "b"}, result.Groups[0].Members)
	assert.Equal(t, []CandidateID{"c", "d"}, result.Groups[1].Members)
}

func TestEngine_DissolvesGroupsBelowMinSize(t *testing.T) {
	params := testParams()
	params.MinGroupSize = 3
	params.TargetGroupSize = 3
	engine := newTestEngine(t, params)

	// Only one edge: {a,b} can never grow to 3.
	pool := poolOf("a", "b", "c")
	edges := []CompatibilityEdge{edge("a", "b", 90)}

	result := engine.Form(pool, edges, EmptyExclusionSet())

	assert.Empty(t, result.Groups)
	assert.ElementsMatch(t, []CandidateID{"a", "b", "c"}, result.Unplaced)
}

func TestEngine_SecondPassLowersThreshold(t *testing.T) {
	params := testParams()
	params.TargetGroupSize = 2
	params.MinEdgeScore = 80
	engine := newTestEngine(t, params)

	pool := poolOf("a", "b", "c", "d")
	edges := []CompatibilityEdge{
		edge("a", "b", 85), // passes first pass
		edge("c", "d", 30), // below first-pass threshold, grouped on second
	}

	result := engine.Form(pool, edges, EmptyExclusionSet())

	require.Len(t, result.Groups, 2)
	assert.Equal(t, []CandidateID{"a", "b"}, result.Groups[0].Members)
	assert.Equal(t, []CandidateID{"c", "d"}, result.Groups[1].Members)
	assert.Empty(t, result.Unplaced)
}

func TestEngine_UnplacedAfterTwoPassesIsNotAnError(t *testing.T) {
	params := testParams()
	params.TargetGroupSize = 2
	engine := newTestEngine(t, params)

	pool := poolOf("a", "b", "c")
	edges := []CompatibilityEdge{edge("a", "b", 90)} // c has no edges at all

	result := engine.Form(pool, edges, EmptyExclusionSet())

	require.Len(t, result.Groups, 1)
	assert.Equal(t, []CandidateID{"c"}, result.Unplaced)
}

// Scenario from the product requirements: two compatible cardiologists
// group together while a hard gender exclusion leaves the remaining pair
// unplaced.
func TestEngine_GenderExclusionScenario(t *testing.T) {
	scorer := newTestScorer(t)

	a := testCandidate("a") // cardiology, new_york, no preference
	b := testCandidate("b") // cardiology, new_york, no preference
	c := testCandidate("c")
	c.Specialty = "pediatrics"
	c.City = "los_angeles"
	c.Gender = GenderFemale
	c.GenderPreference = GenderPrefSameOnly
	d := testCandidate("d")
	d.Specialty = "pediatrics"
	d.City = "los_angeles"
	d.Gender = GenderMale

	pool := []Candidate{a, b, c, d}
	edges := scorer.ScoreAll(pool)

	params := testParams()
	params.TargetGroupSize = 2
	engine := newTestEngine(t, params)

	result := engine.Form(pool, edges, EmptyExclusionSet())

	require.Len(t, result.Groups, 1)
	assert.Equal(t, []CandidateID{"a", "b"}, result.Groups[0].Members)
	assert.ElementsMatch(t, []CandidateID{"c", "d"}, result.Unplaced)
}

func TestEntriesForGroup(t *testing.T) {
	group := Group{
		ID:      "g1",
		BatchID: "batch1",
		Members: []CandidateID{"a", "b", "c"},
	}

	entries := EntriesForGroup(group, WeekID("2026-W35"), time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC))

	require.Len(t, entries, 3)
	pairs := make([]PairKey, 0, 3)
	for _, e := range entries {
		pairs = append(pairs, e.Pair)
		assert.Equal(t, "batch1", e.BatchID)
		assert.Equal(t, "g1", e.GroupID)
		assert.Equal(t, WeekID("2026-W35"), e.Week)
	}
	assert.ElementsMatch(t, []PairKey{
		NewPairKey("a", "b"),
		NewPairKey("a", "c"),
		NewPairKey("b", "c"),
	}, pairs)
}
