package matching

import (
	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// BatchStartedEvent is emitted when a run enters the Running state.
type BatchStartedEvent struct {
	shared.BaseEvent
	RunID   string      `json:"run_id"`
	Week    WeekID      `json:"week"`
	Trigger TriggerKind `json:"trigger"`
}

// Payload implements shared.Event.
func (e BatchStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"run_id":  e.RunID,
		"week":    string(e.Week),
		"trigger": string(e.Trigger),
	}
}

// NewBatchStartedEvent creates a new BatchStartedEvent.
func NewBatchStartedEvent(run *BatchRun) BatchStartedEvent {
	return BatchStartedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventBatchStarted, run.ID),
		RunID:     run.ID,
		Week:      run.Week,
		Trigger:   run.Trigger,
	}
}

// BatchFinishedEvent is emitted when a run reaches a terminal state.
type BatchFinishedEvent struct {
	shared.BaseEvent
	RunID         string    `json:"run_id"`
	Week          WeekID    `json:"week"`
	Status        RunStatus `json:"status"`
	GroupsFormed  int       `json:"groups_formed"`
	UsersPlaced   int       `json:"users_placed"`
	UsersUnplaced int       `json:"users_unplaced"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// Payload implements shared.Event.
func (e BatchFinishedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"run_id":         e.RunID,
		"week":           string(e.Week),
		"status":         string(e.Status),
		"groups_formed":  e.GroupsFormed,
		"users_placed":   e.UsersPlaced,
		"users_unplaced": e.UsersUnplaced,
		"failure_reason": e.FailureReason,
	}
}

// NewBatchFinishedEvent creates the terminal event for a run.
func NewBatchFinishedEvent(run *BatchRun) BatchFinishedEvent {
	eventType := shared.EventBatchCompleted
	switch run.Status {
	case RunStatusPartiallyCompleted:
		eventType = shared.EventBatchPartiallyCompleted
	case RunStatusFailed:
		eventType = shared.EventBatchFailed
	}

	return BatchFinishedEvent{
		BaseEvent:     shared.NewBaseEvent(eventType, run.ID),
		RunID:         run.ID,
		Week:          run.Week,
		Status:        run.Status,
		GroupsFormed:  run.GroupsFormed,
		UsersPlaced:   run.UsersPlaced,
		UsersUnplaced: run.UsersUnplaced,
		FailureReason: run.FailureReason,
	}
}

// GroupFormedEvent is emitted after a group has been persisted. The
// notification boundary subscribes to it to create the group's chat
// channel and notify members.
type GroupFormedEvent struct {
	shared.BaseEvent
	GroupID      string        `json:"group_id"`
	BatchID      string        `json:"batch_id"`
	MemberIDs    []CandidateID `json:"member_ids"`
	AverageScore Score         `json:"average_score"`
}

// Payload implements shared.Event.
func (e GroupFormedEvent) Payload() map[string]interface{} {
	members := make([]string, 0, len(e.MemberIDs))
	for _, m := range e.MemberIDs {
		members = append(members, string(m))
	}
	return map[string]interface{}{
		"group_id":      e.GroupID,
		"batch_id":      e.BatchID,
		"member_ids":    members,
		"average_score": int(e.AverageScore),
	}
}

// NewGroupFormedEvent creates a new GroupFormedEvent.
func NewGroupFormedEvent(group *Group) GroupFormedEvent {
	return GroupFormedEvent{
		BaseEvent:    shared.NewBaseEvent(shared.EventGroupFormed, group.ID),
		GroupID:      group.ID,
		BatchID:      group.BatchID,
		MemberIDs:    group.Members,
		AverageScore: group.AverageScore,
	}
}

// WatchdogTimeoutEvent is emitted when the watchdog fails a stuck run.
type WatchdogTimeoutEvent struct {
	shared.BaseEvent
	RunID string `json:"run_id"`
	Week  WeekID `json:"week"`
}

// Payload implements shared.Event.
func (e WatchdogTimeoutEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"run_id": e.RunID,
		"week":   string(e.Week),
	}
}

// NewWatchdogTimeoutEvent creates a new WatchdogTimeoutEvent.
func NewWatchdogTimeoutEvent(run *BatchRun) WatchdogTimeoutEvent {
	return WatchdogTimeoutEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventWatchdogTimeout, run.ID),
		RunID:     run.ID,
		Week:      run.Week,
	}
}
