package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/matching"
)

// ══════════════════════════════════════════════════════════════════════════════
// CANDIDATE REPOSITORY
// Read-only view over the candidates table. The full eligibility
// predicate lives in SQL so the engine receives a complete pool in one
// round trip: active, onboarded, opted in, verified, and not already
// placed in a group for the target week.
// ══════════════════════════════════════════════════════════════════════════════

// CandidateRepository implements matching.CandidateSource.
type CandidateRepository struct {
	conn *Connection
}

// NewCandidateRepository creates a new CandidateRepository.
func NewCandidateRepository(conn *Connection) *CandidateRepository {
	return &CandidateRepository{conn: conn}
}

const listEligibleSQL = `
	SELECT
		id, display_name, specialty, city, age, gender,
		career_stage, activity_level, social_energy, conversation_style, life_stage,
		interests, availability_days, gender_preference, specialty_preference,
		verified_at
	FROM candidates c
	WHERE c.status = 'active'
	  AND c.onboarding_complete
	  AND c.match_opt_in
	  AND c.verified_at IS NOT NULL
	  AND NOT EXISTS (
		SELECT 1 FROM match_group_members m
		WHERE m.candidate_id = c.id AND m.week = $1
	  )
	ORDER BY c.id
`

// ListEligible returns the candidate pool for the target week. Any
// storage failure surfaces as ErrDataUnavailable: a partial pool would
// silently skew formation, so the caller must fail the run instead. An
// unreachable store additionally carries the service-unavailable kind
// via ErrEligibilityUnavailable.
func (r *CandidateRepository) ListEligible(ctx context.Context, week matching.WeekID) ([]matching.Candidate, error) {
	rows, err := r.conn.Query(ctx, listEligibleSQL, string(week))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", matching.ErrEligibilityUnavailable, err)
	}
	defer rows.Close()

	var pool []matching.Candidate
	for rows.Next() {
		var (
			c            matching.Candidate
			id           string
			gender       string
			careerStage  string
			activity     string
			socialEnergy string
			convStyle    string
			lifeStage    string
			genderPref   string
			specPref     string
			days         []int16
		)

		err := rows.Scan(
			&id, &c.DisplayName, &c.Specialty, &c.City, &c.Age, &gender,
			&careerStage, &activity, &socialEnergy, &convStyle, &lifeStage,
			&c.Interests, &days, &genderPref, &specPref,
			&c.VerifiedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning candidate row: %v", matching.ErrDataUnavailable, err)
		}

		c.ID = matching.CandidateID(id)
		c.Gender = matching.Gender(gender)
		c.CareerStage = matching.CareerStage(careerStage)
		c.ActivityLevel = matching.ActivityLevel(activity)
		c.SocialEnergy = matching.SocialEnergy(socialEnergy)
		c.ConversationStyle = matching.ConversationStyle(convStyle)
		c.LifeStage = matching.LifeStage(lifeStage)
		c.GenderPreference = matching.GenderPreference(genderPref)
		c.SpecialtyPreference = matching.SpecialtyPreference(specPref)
		c.AvailabilityDays = toWeekdays(days)

		pool = append(pool, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading candidate rows: %v", matching.ErrDataUnavailable, err)
	}

	return pool, nil
}

func toWeekdays(days []int16) []time.Weekday {
	if len(days) == 0 {
		return nil
	}
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		out = append(out, time.Weekday(d))
	}
	return out
}
