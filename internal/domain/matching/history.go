package matching

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH HISTORY
// Append-only record of which members have already been grouped together.
// Formation consults it as a read-side exclusion set: a pair grouped
// within the cooldown window may never be grouped again, regardless of
// how well they score.
// ══════════════════════════════════════════════════════════════════════════════

// PairKey is the canonical key of an unordered candidate pair.
type PairKey struct {
	// Lo, Hi - the pair ordered so that Lo < Hi.
	Lo CandidateID
	Hi CandidateID
}

// NewPairKey builds the canonical key for two candidate IDs.
func NewPairKey(a, b CandidateID) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// Contains checks whether the pair involves the given candidate.
func (k PairKey) Contains(id CandidateID) bool {
	return k.Lo == id || k.Hi == id
}

// HistoryEntry records that a pair was grouped together in a batch run.
type HistoryEntry struct {
	// Pair - the canonical pair key.
	Pair PairKey

	// BatchID - the run that grouped them.
	BatchID string

	// GroupID - the group they shared.
	GroupID string

	// Week - ISO week identifier of the run.
	Week WeekID

	// GroupedAt - when the group was persisted.
	GroupedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// EXCLUSION SET
// ══════════════════════════════════════════════════════════════════════════════

// ExclusionSet is the in-memory view of recent history used by one
// formation run. Entries outside the cooldown window are not loaded into
// the set; retention of older rows is a persistence concern.
type ExclusionSet struct {
	pairs map[PairKey]WeekID
}

// NewExclusionSet builds an exclusion set from history entries.
// When the same pair appears more than once, the most recent week wins.
func NewExclusionSet(entries []HistoryEntry) *ExclusionSet {
	set := &ExclusionSet{pairs: make(map[PairKey]WeekID, len(entries))}
	for _, e := range entries {
		if existing, ok := set.pairs[e.Pair]; !ok || e.Week > existing {
			set.pairs[e.Pair] = e.Week
		}
	}
	return set
}

// EmptyExclusionSet returns a set that excludes nothing.
func EmptyExclusionSet() *ExclusionSet {
	return &ExclusionSet{pairs: make(map[PairKey]WeekID)}
}

// WasRecentlyGrouped checks whether the pair was grouped within the
// cooldown window ending at targetWeek. The window is inclusive on both
// ends: a pair grouped in week W stays excluded through week
// W+cooldownWeeks and becomes regroupable in week W+cooldownWeeks+1.
func (s *ExclusionSet) WasRecentlyGrouped(a, b CandidateID, targetWeek WeekID, cooldownWeeks int) bool {
	week, ok := s.pairs[NewPairKey(a, b)]
	if !ok {
		return false
	}
	if cooldownWeeks <= 0 {
		return false
	}
	elapsed, err := WeeksBetween(week, targetWeek)
	if err != nil {
		// Malformed stored week: err on the side of exclusion.
		return true
	}
	return elapsed >= 0 && elapsed <= cooldownWeeks
}

// Size returns the number of excluded pairs.
func (s *ExclusionSet) Size() int {
	return len(s.pairs)
}

// EntriesForGroup expands a finalized group into the history entries to
// append: one entry per unordered member pair.
func EntriesForGroup(g Group, week WeekID, groupedAt time.Time) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(g.Members)*(len(g.Members)-1)/2)
	for i := 0; i < len(g.Members); i++ {
		for j := i + 1; j < len(g.Members); j++ {
			entries = append(entries, HistoryEntry{
				Pair:      NewPairKey(g.Members[i], g.Members[j]),
				BatchID:   g.BatchID,
				GroupID:   g.ID,
				Week:      week,
				GroupedAt: groupedAt,
			})
		}
	}
	return entries
}
