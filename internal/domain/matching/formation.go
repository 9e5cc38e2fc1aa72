package matching

import (
	"fmt"
	"math"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP FORMATION ENGINE
//
// Greedy constrained clustering over the pairwise edge set:
//
//  1. Pairs inside the history cooldown window are removed from the edge
//     set before anything else - a recently grouped pair can never seed
//     or join a group, however well it scores.
//  2. Remaining edges are sorted by score descending with a stable
//     secondary key (lesser ID, then greater ID) so identical inputs
//     always produce identical partitions.
//  3. The sorted list is walked once. The best edge whose endpoints are
//     both unplaced seeds a new group.
//  4. An open group grows by repeatedly admitting the unplaced candidate
//     with the highest average score against all current members; growth
//     requires an eligible edge to every member.
//  5. A group finalizes at target size, or when growth stalls at or above
//     the minimum size. Stalled groups below the minimum dissolve and
//     their members return to the pool.
//  6. Dissolved and never-seeded candidates get a second pass with the
//     acceptance threshold lowered to 1. Two passes maximum; whoever is
//     left is reported unplaced, which is not an error.
//
// Complexity: O(E log E) for the sort plus O(V*k) greedy growth per pass.
// ══════════════════════════════════════════════════════════════════════════════

// Group is the output unit of formation: 2-N members, the mean of their
// pairwise scores, and the algorithm version that produced them.
// ID and BatchID are assigned by the orchestrator before persistence.
type Group struct {
	// ID - unique group identifier (UUID), set by the orchestrator.
	ID string

	// BatchID - originating batch run, set by the orchestrator.
	BatchID string

	// Members - candidate IDs in formation order (seed pair first).
	Members []CandidateID

	// AverageScore - arithmetic mean of all pairwise edge scores within
	// the group, rounded to the nearest integer.
	AverageScore Score

	// AlgorithmVersion - scorer version that produced the group.
	AlgorithmVersion string
}

// Contains checks group membership.
func (g Group) Contains(id CandidateID) bool {
	for _, m := range g.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Size returns the member count.
func (g Group) Size() int {
	return len(g.Members)
}

// FormationParams bounds and tunes one formation run.
type FormationParams struct {
	// MinGroupSize - smallest group that may finalize (>= 2).
	MinGroupSize int

	// MaxGroupSize - hard upper bound on group size.
	MaxGroupSize int

	// TargetGroupSize - size growth aims for.
	TargetGroupSize int

	// MinEdgeScore - first-pass acceptance threshold: a pair must score
	// at least this to seed a group, and a joiner's average against the
	// group must reach it. The second pass lowers this to 1.
	MinEdgeScore Score

	// CooldownWeeks - history exclusion window.
	CooldownWeeks int

	// TargetWeek - the week being formed, used for cooldown arithmetic.
	TargetWeek WeekID
}

// Validate checks the parameter invariants. Violations are fatal
// configuration errors, never allowed to reach a running state.
func (p FormationParams) Validate() error {
	if p.MinGroupSize < 2 {
		return fmt.Errorf("%w: minGroupSize must be >= 2, got %d", ErrInvalidConfiguration, p.MinGroupSize)
	}
	if p.MinGroupSize > p.MaxGroupSize {
		return fmt.Errorf("%w: minGroupSize %d > maxGroupSize %d",
			ErrInvalidConfiguration, p.MinGroupSize, p.MaxGroupSize)
	}
	if p.TargetGroupSize < p.MinGroupSize || p.TargetGroupSize > p.MaxGroupSize {
		return fmt.Errorf("%w: targetGroupSize %d outside [%d, %d]",
			ErrInvalidConfiguration, p.TargetGroupSize, p.MinGroupSize, p.MaxGroupSize)
	}
	if p.MinEdgeScore < 0 || p.MinEdgeScore > 100 {
		return fmt.Errorf("%w: minEdgeScore %d outside [0, 100]", ErrInvalidConfiguration, p.MinEdgeScore)
	}
	if p.CooldownWeeks < 0 {
		return fmt.Errorf("%w: cooldownWeeks cannot be negative", ErrInvalidConfiguration)
	}
	return nil
}

// FormationResult is the outcome of one formation run.
type FormationResult struct {
	// Groups - disjoint finalized groups, in formation order.
	Groups []Group

	// Unplaced - candidates left over after both passes, in pool order.
	Unplaced []CandidateID
}

// Engine runs group formation.
type Engine struct {
	params FormationParams
}

// NewEngine creates a formation engine with validated parameters.
func NewEngine(params FormationParams) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{params: params}, nil
}

// Form partitions the pool into disjoint groups. Deterministic: identical
// pool, edges, and history snapshots yield identical results.
func (e *Engine) Form(pool []Candidate, edges []CompatibilityEdge, history *ExclusionSet) FormationResult {
	if history == nil {
		history = EmptyExclusionSet()
	}

	// Stage 1: drop cooldown pairs and zero scores from the edge set.
	eligible := make(map[PairKey]Score, len(edges))
	filtered := make([]CompatibilityEdge, 0, len(edges))
	for _, edge := range edges {
		if edge.Score <= 0 {
			continue
		}
		if history.WasRecentlyGrouped(edge.A, edge.B, e.params.TargetWeek, e.params.CooldownWeeks) {
			continue
		}
		eligible[edge.Pair()] = edge.Score
		filtered = append(filtered, edge)
	}

	// Stage 2: deterministic order.
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		if filtered[i].A != filtered[j].A {
			return filtered[i].A < filtered[j].A
		}
		return filtered[i].B < filtered[j].B
	})

	placed := make(map[CandidateID]bool, len(pool))
	var groups []Group

	// Two passes maximum: the second lowers the acceptance threshold to 1
	// for candidates dissolved or never seeded in the first.
	thresholds := []Score{e.params.MinEdgeScore, 1}
	if thresholds[0] <= 1 {
		thresholds = thresholds[:1]
	}
	for _, threshold := range thresholds {
		groups = append(groups, e.formPass(filtered, eligible, placed, threshold)...)
		if allPlaced(pool, placed) {
			break
		}
	}

	unplaced := make([]CandidateID, 0)
	for _, c := range pool {
		if !placed[c.ID] {
			unplaced = append(unplaced, c.ID)
		}
	}

	return FormationResult{Groups: groups, Unplaced: unplaced}
}

// formPass walks the sorted edge list once, seeding and growing groups.
func (e *Engine) formPass(
	sorted []CompatibilityEdge,
	eligible map[PairKey]Score,
	placed map[CandidateID]bool,
	threshold Score,
) []Group {
	var groups []Group

	for _, edge := range sorted {
		if edge.Score < threshold {
			break // sorted descending; nothing below can seed
		}
		if placed[edge.A] || placed[edge.B] {
			continue
		}

		members := e.grow([]CandidateID{edge.A, edge.B}, eligible, placed, threshold)

		if len(members) < e.params.MinGroupSize {
			continue // dissolved: members were never marked placed
		}

		for _, m := range members {
			placed[m] = true
		}
		groups = append(groups, Group{
			Members:          members,
			AverageScore:     groupAverage(members, eligible),
			AlgorithmVersion: AlgorithmVersion,
		})
	}

	return groups
}

// grow extends a seeded group to the target size by repeatedly admitting
// the unplaced candidate with the best average score against all current
// members. Ties break on candidate ID ascending.
func (e *Engine) grow(
	members []CandidateID,
	eligible map[PairKey]Score,
	placed map[CandidateID]bool,
	threshold Score,
) []CandidateID {
	inGroup := make(map[CandidateID]bool, e.params.TargetGroupSize)
	for _, m := range members {
		inGroup[m] = true
	}

	for len(members) < e.params.TargetGroupSize {
		var (
			best      CandidateID
			bestTotal = -1
		)

		// Candidates adjacent to the group are discovered through the
		// edge set; anyone lacking an eligible edge to every member is
		// skipped. Map iteration order does not matter because selection
		// compares (total score, candidate ID).
		seen := make(map[CandidateID]bool)
		for pair := range eligible {
			if inGroup[pair.Lo] == inGroup[pair.Hi] {
				continue // need exactly one endpoint inside the group
			}
			id := pair.Lo
			if inGroup[pair.Lo] {
				id = pair.Hi
			}
			if placed[id] || seen[id] {
				continue
			}
			seen[id] = true

			total, ok := totalAgainst(id, members, eligible)
			if !ok {
				continue
			}
			if total > bestTotal || (total == bestTotal && (best == "" || id < best)) {
				best = id
				bestTotal = total
			}
		}

		if best == "" {
			break // growth stalled
		}

		avg := Score(int(math.Round(float64(bestTotal) / float64(len(members)))))
		if avg < threshold || avg <= 0 {
			break
		}

		members = append(members, best)
		inGroup[best] = true
	}

	return members
}

// totalAgainst sums the candidate's edge scores against every member.
// Returns false when any member lacks an eligible edge to the candidate.
func totalAgainst(id CandidateID, members []CandidateID, eligible map[PairKey]Score) (int, bool) {
	total := 0
	for _, m := range members {
		score, ok := eligible[NewPairKey(id, m)]
		if !ok || score <= 0 {
			return 0, false
		}
		total += int(score)
	}
	return total, true
}

// groupAverage computes the mean of all pairwise scores in the group,
// rounded to the nearest integer.
func groupAverage(members []CandidateID, eligible map[PairKey]Score) Score {
	total, pairs := 0, 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			total += int(eligible[NewPairKey(members[i], members[j])])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return Score(int(math.Round(float64(total) / float64(pairs))))
}

func allPlaced(pool []Candidate, placed map[CandidateID]bool) bool {
	for _, c := range pool {
		if !placed[c.ID] {
			return false
		}
	}
	return true
}
