// Package matching implements the weekly matching engine domain:
// eligible-candidate snapshots, the pairwise compatibility scorer, the
// group formation engine, match history exclusion, and the batch run
// state machine.
package matching

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// IDENTIFIERS
// ══════════════════════════════════════════════════════════════════════════════

// CandidateID identifies a member of the candidate pool.
type CandidateID string

// IsValid checks that the ID is non-empty.
func (id CandidateID) IsValid() bool {
	return id != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// CLOSED ENUMERATIONS
// Profile attributes arrive as free-form strings from the profile store;
// they are normalized into these closed sets before any scoring happens so
// that hard-exclusion rules stay statically checkable.
// ══════════════════════════════════════════════════════════════════════════════

// Gender is the candidate's stated gender.
type Gender string

const (
	GenderFemale      Gender = "female"
	GenderMale        Gender = "male"
	GenderNonBinary   Gender = "non_binary"
	GenderUndisclosed Gender = "undisclosed"
)

// IsValid checks the gender value.
func (g Gender) IsValid() bool {
	switch g {
	case GenderFemale, GenderMale, GenderNonBinary, GenderUndisclosed:
		return true
	default:
		return false
	}
}

// GenderPreference is a candidate's stated group-composition preference
// regarding gender.
type GenderPreference string

const (
	// GenderPrefNone - no preference, any composition acceptable.
	GenderPrefNone GenderPreference = "no_preference"

	// GenderPrefSameOnly - only wants to be grouped with the same gender.
	// This is a hard exclusion: an unsatisfied pair scores 0.
	GenderPrefSameOnly GenderPreference = "same_gender_only"
)

// IsValid checks the preference value.
func (p GenderPreference) IsValid() bool {
	return p == GenderPrefNone || p == GenderPrefSameOnly
}

// SpecialtyPreference is a candidate's stated group-composition preference
// regarding medical specialty.
type SpecialtyPreference string

const (
	// SpecialtyPrefNone - no preference.
	SpecialtyPrefNone SpecialtyPreference = "no_preference"

	// SpecialtyPrefSameOnly - only wants peers from the same specialty.
	// Hard exclusion when unsatisfied.
	SpecialtyPrefSameOnly SpecialtyPreference = "same_specialty_only"

	// SpecialtyPrefDifferentOnly - only wants peers from other specialties.
	// Hard exclusion when unsatisfied.
	SpecialtyPrefDifferentOnly SpecialtyPreference = "different_specialties_only"
)

// IsValid checks the preference value.
func (p SpecialtyPreference) IsValid() bool {
	switch p {
	case SpecialtyPrefNone, SpecialtyPrefSameOnly, SpecialtyPrefDifferentOnly:
		return true
	default:
		return false
	}
}

// CareerStage is the candidate's career stage.
type CareerStage string

const (
	CareerStageStudent   CareerStage = "student"
	CareerStageResident  CareerStage = "resident"
	CareerStageFellow    CareerStage = "fellow"
	CareerStageAttending CareerStage = "attending"
	CareerStageRetired   CareerStage = "retired"
)

// IsValid checks the career stage value.
func (c CareerStage) IsValid() bool {
	switch c {
	case CareerStageStudent, CareerStageResident, CareerStageFellow,
		CareerStageAttending, CareerStageRetired:
		return true
	default:
		return false
	}
}

// Ordinal returns the stage position for distance-based scoring.
func (c CareerStage) Ordinal() int {
	switch c {
	case CareerStageStudent:
		return 0
	case CareerStageResident:
		return 1
	case CareerStageFellow:
		return 2
	case CareerStageAttending:
		return 3
	case CareerStageRetired:
		return 4
	default:
		return -1
	}
}

// ActivityLevel is how active the candidate is in the community.
type ActivityLevel string

const (
	ActivityLow      ActivityLevel = "low"
	ActivityModerate ActivityLevel = "moderate"
	ActivityHigh     ActivityLevel = "high"
)

// IsValid checks the activity level value.
func (a ActivityLevel) IsValid() bool {
	return a == ActivityLow || a == ActivityModerate || a == ActivityHigh
}

// Ordinal returns the level position for distance-based scoring.
func (a ActivityLevel) Ordinal() int {
	switch a {
	case ActivityLow:
		return 0
	case ActivityModerate:
		return 1
	case ActivityHigh:
		return 2
	default:
		return -1
	}
}

// SocialEnergy is the candidate's self-reported social-energy level.
type SocialEnergy string

const (
	SocialEnergyIntrovert SocialEnergy = "introvert"
	SocialEnergyAmbivert  SocialEnergy = "ambivert"
	SocialEnergyExtrovert SocialEnergy = "extrovert"
)

// IsValid checks the social energy value.
func (s SocialEnergy) IsValid() bool {
	return s == SocialEnergyIntrovert || s == SocialEnergyAmbivert || s == SocialEnergyExtrovert
}

// Ordinal returns the position for distance-based scoring.
func (s SocialEnergy) Ordinal() int {
	switch s {
	case SocialEnergyIntrovert:
		return 0
	case SocialEnergyAmbivert:
		return 1
	case SocialEnergyExtrovert:
		return 2
	default:
		return -1
	}
}

// ConversationStyle is the candidate's preferred conversation style.
type ConversationStyle string

const (
	ConversationDeep    ConversationStyle = "deep_discussions"
	ConversationCasual  ConversationStyle = "casual_banter"
	ConversationBalance ConversationStyle = "mix_of_both"
)

// IsValid checks the conversation style value.
func (c ConversationStyle) IsValid() bool {
	return c == ConversationDeep || c == ConversationCasual || c == ConversationBalance
}

// LifeStage is the candidate's life stage.
type LifeStage string

const (
	LifeStageSingle      LifeStage = "single"
	LifeStagePartnered   LifeStage = "partnered"
	LifeStageYoungFamily LifeStage = "young_family"
	LifeStageEstablished LifeStage = "established_family"
	LifeStageEmptyNester LifeStage = "empty_nester"
)

// IsValid checks the life stage value.
func (l LifeStage) IsValid() bool {
	switch l {
	case LifeStageSingle, LifeStagePartnered, LifeStageYoungFamily,
		LifeStageEstablished, LifeStageEmptyNester:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CANDIDATE
// A snapshot of one eligible user, immutable for the duration of a run.
// ══════════════════════════════════════════════════════════════════════════════

// Candidate is one eligible member of the weekly pool, sourced fresh from
// the profile store at the start of every run.
type Candidate struct {
	// ID - profile store identifier of the member.
	ID CandidateID

	// DisplayName - name for run reports and logs.
	DisplayName string

	// Specialty - medical specialty (e.g., "cardiology").
	Specialty string

	// City - city/location of the member.
	City string

	// Age - age in years.
	Age int

	// Gender - stated gender.
	Gender Gender

	// CareerStage - career stage.
	CareerStage CareerStage

	// ActivityLevel - community activity level.
	ActivityLevel ActivityLevel

	// SocialEnergy - self-reported social energy.
	SocialEnergy SocialEnergy

	// ConversationStyle - preferred conversation style.
	ConversationStyle ConversationStyle

	// LifeStage - life stage.
	LifeStage LifeStage

	// Interests - set of interest tags.
	Interests []string

	// AvailabilityDays - weekdays the member marked as available
	// (0 = Sunday .. 6 = Saturday).
	AvailabilityDays []time.Weekday

	// GenderPreference - stated gender composition preference.
	GenderPreference GenderPreference

	// SpecialtyPreference - stated specialty composition preference.
	SpecialtyPreference SpecialtyPreference

	// VerifiedAt - when the member passed verification.
	VerifiedAt time.Time
}

// Validate checks that the snapshot is usable for scoring.
func (c Candidate) Validate() error {
	if !c.ID.IsValid() {
		return ErrInvalidCandidate
	}
	if c.Age < 0 {
		return ErrInvalidCandidate
	}
	if !c.GenderPreference.IsValid() || !c.SpecialtyPreference.IsValid() {
		return ErrInvalidCandidate
	}
	return nil
}

// HasInterest checks whether the candidate has the given interest tag.
func (c Candidate) HasInterest(tag string) bool {
	for _, t := range c.Interests {
		if t == tag {
			return true
		}
	}
	return false
}

// CommonInterests returns the interest tags shared with another candidate.
func (c Candidate) CommonInterests(other Candidate) []string {
	common := make([]string, 0)
	for _, t := range c.Interests {
		if other.HasInterest(t) {
			common = append(common, t)
		}
	}
	return common
}

// AvailabilityOverlap returns the number of weekdays both candidates
// marked as available.
func (c Candidate) AvailabilityOverlap(other Candidate) int {
	overlap := 0
	for _, d := range c.AvailabilityDays {
		for _, o := range other.AvailabilityDays {
			if d == o {
				overlap++
				break
			}
		}
	}
	return overlap
}
