// Package postgres implements the PostgreSQL persistence layer for the
// matching engine.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE CANDIDATES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create candidates read model
-- Version: 001
-- The engine does not own profile editing; this table is the snapshot the
-- eligibility query reads from.

CREATE TABLE IF NOT EXISTS candidates (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    display_name VARCHAR(100) NOT NULL,
    specialty VARCHAR(60) NOT NULL,
    city VARCHAR(60) NOT NULL DEFAULT '',
    age INTEGER NOT NULL DEFAULT 0,
    gender VARCHAR(20) NOT NULL,
    career_stage VARCHAR(20) NOT NULL,
    activity_level VARCHAR(20) NOT NULL,
    social_energy VARCHAR(20) NOT NULL,
    conversation_style VARCHAR(30) NOT NULL,
    life_stage VARCHAR(30) NOT NULL,
    interests TEXT[] NOT NULL DEFAULT '{}',
    availability_days SMALLINT[] NOT NULL DEFAULT '{}',
    gender_preference VARCHAR(30) NOT NULL DEFAULT 'no_preference',
    specialty_preference VARCHAR(30) NOT NULL DEFAULT 'no_preference',

    status VARCHAR(20) NOT NULL DEFAULT 'active',
    onboarding_complete BOOLEAN NOT NULL DEFAULT FALSE,
    match_opt_in BOOLEAN NOT NULL DEFAULT TRUE,
    verified_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- Constraints for data integrity
    CONSTRAINT valid_status CHECK (status IN ('active', 'paused', 'banned', 'deleted')),
    CONSTRAINT valid_gender CHECK (gender IN ('female', 'male', 'non_binary', 'undisclosed')),
    CONSTRAINT valid_gender_preference CHECK (gender_preference IN ('no_preference', 'same_gender_only')),
    CONSTRAINT valid_specialty_preference CHECK (specialty_preference IN ('no_preference', 'same_specialty_only', 'different_specialties_only')),
    CONSTRAINT valid_age CHECK (age >= 0 AND age < 130)
);

-- Indexes for the eligibility query
CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(status);
CREATE INDEX IF NOT EXISTS idx_candidates_eligible ON candidates(id)
    WHERE status = 'active' AND onboarding_complete AND match_opt_in AND verified_at IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_candidates_specialty ON candidates(specialty);

-- Updated_at trigger function for automatic timestamp updates
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_candidates_updated_at ON candidates;
CREATE TRIGGER update_candidates_updated_at
    BEFORE UPDATE ON candidates
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration001Down = `
DROP TRIGGER IF EXISTS update_candidates_updated_at ON candidates;
DROP FUNCTION IF EXISTS update_updated_at_column();
DROP TABLE IF EXISTS candidates;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE MATCHING
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create batch run, group, and history tables
-- Version: 002

-- One row per execution of the weekly engine
CREATE TABLE IF NOT EXISTS batch_runs (
    id UUID PRIMARY KEY,
    week VARCHAR(8) NOT NULL,
    algorithm_version VARCHAR(20) NOT NULL,
    trigger_kind VARCHAR(20) NOT NULL,
    operator_id VARCHAR(100) NOT NULL DEFAULT '',
    status VARCHAR(30) NOT NULL,
    eligible_count INTEGER NOT NULL DEFAULT 0,
    groups_formed INTEGER NOT NULL DEFAULT 0,
    groups_persisted INTEGER NOT NULL DEFAULT 0,
    users_placed INTEGER NOT NULL DEFAULT 0,
    users_unplaced INTEGER NOT NULL DEFAULT 0,
    failure_reason TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    heartbeat_at TIMESTAMP WITH TIME ZONE NOT NULL,
    completed_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_run_status CHECK (status IN ('running', 'completed', 'partially_completed', 'failed')),
    CONSTRAINT valid_trigger CHECK (trigger_kind IN ('scheduled', 'forced'))
);

CREATE INDEX IF NOT EXISTS idx_batch_runs_week ON batch_runs(week, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_batch_runs_running ON batch_runs(heartbeat_at) WHERE status = 'running';

-- At most one blocking (running or successfully completed) run per week.
-- Failed runs do not count; the next scheduled trigger may retry.
CREATE UNIQUE INDEX IF NOT EXISTS idx_batch_runs_one_running_per_week
    ON batch_runs(week) WHERE status = 'running';

-- Finalized groups
CREATE TABLE IF NOT EXISTS match_groups (
    id UUID PRIMARY KEY,
    batch_id UUID NOT NULL REFERENCES batch_runs(id) ON DELETE CASCADE,
    week VARCHAR(8) NOT NULL,
    average_score INTEGER NOT NULL,
    algorithm_version VARCHAR(20) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_average_score CHECK (average_score >= 0 AND average_score <= 100)
);

CREATE INDEX IF NOT EXISTS idx_match_groups_batch ON match_groups(batch_id);
CREATE INDEX IF NOT EXISTS idx_match_groups_week ON match_groups(week);

-- Group membership; position preserves formation order (seed pair first)
CREATE TABLE IF NOT EXISTS match_group_members (
    group_id UUID NOT NULL REFERENCES match_groups(id) ON DELETE CASCADE,
    candidate_id UUID NOT NULL REFERENCES candidates(id) ON DELETE CASCADE,
    week VARCHAR(8) NOT NULL,
    position INTEGER NOT NULL,

    PRIMARY KEY (group_id, candidate_id),
    -- Disjointness: a candidate belongs to at most one group per week
    CONSTRAINT one_group_per_week UNIQUE (candidate_id, week)
);

CREATE INDEX IF NOT EXISTS idx_group_members_candidate ON match_group_members(candidate_id);

-- Append-only pair history driving the cooldown exclusion
CREATE TABLE IF NOT EXISTS match_history (
    id BIGSERIAL PRIMARY KEY,
    pair_lo UUID NOT NULL,
    pair_hi UUID NOT NULL,
    batch_id UUID NOT NULL REFERENCES batch_runs(id) ON DELETE CASCADE,
    group_id UUID NOT NULL REFERENCES match_groups(id) ON DELETE CASCADE,
    week VARCHAR(8) NOT NULL,
    grouped_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- Canonical pair order makes the pair addressable with one index
    CONSTRAINT canonical_pair CHECK (pair_lo < pair_hi),
    CONSTRAINT one_entry_per_pair_week UNIQUE (pair_lo, pair_hi, week)
);

CREATE INDEX IF NOT EXISTS idx_match_history_week ON match_history(week);
CREATE INDEX IF NOT EXISTS idx_match_history_pair ON match_history(pair_lo, pair_hi, week DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS match_history;
DROP TABLE IF EXISTS match_group_members;
DROP TABLE IF EXISTS match_groups;
DROP TABLE IF EXISTS batch_runs;
`
