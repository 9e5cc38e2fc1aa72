// Package service contains infrastructure implementations of domain
// collaborator ports.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/matching"
	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/shared"
	"github.com/medcircle-hub/medcircle-match-engine/internal/infrastructure/external/community"
	"github.com/medcircle-hub/medcircle-match-engine/pkg/circuitbreaker"
	"github.com/medcircle-hub/medcircle-match-engine/pkg/retry"
)

// IDGeneratorImpl implements matching.IDGenerator.
type IDGeneratorImpl struct{}

func NewIDGenerator() *IDGeneratorImpl {
	return &IDGeneratorImpl{}
}

func (g *IDGeneratorImpl) GenerateID() string {
	return uuid.New().String()
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUP NOTIFIER
// Hands persisted groups to the community platform, which creates the
// chat channel and messages members. The call is wrapped in a circuit
// breaker and retried with backoff; a dead platform degrades group
// announcements, never the batch run itself.
// ══════════════════════════════════════════════════════════════════════════════

// GroupNotifier implements matching.GroupLifecycleNotifier against the
// community platform API.
type GroupNotifier struct {
	client  *community.Client
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
	logger  *slog.Logger
}

// NewGroupNotifier creates a new GroupNotifier.
func NewGroupNotifier(client *community.Client, logger *slog.Logger) *GroupNotifier {
	if logger == nil {
		logger = slog.Default()
	}

	n := &GroupNotifier{
		client:  client,
		retrier: retry.NotifierRetrier(),
		logger:  logger,
	}
	n.breaker = circuitbreaker.NotifierBreaker(func(name string, from, to circuitbreaker.State) {
		logger.Warn("notifier circuit state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})

	return n
}

// GroupFormed provisions the chat channel for a persisted group.
func (n *GroupNotifier) GroupFormed(ctx context.Context, group *matching.Group) error {
	members := make([]string, 0, len(group.Members))
	for _, m := range group.Members {
		members = append(members, string(m))
	}

	req := community.GroupChannelRequest{
		GroupID:      group.ID,
		MemberIDs:    members,
		AverageScore: int(group.AverageScore),
	}

	return n.retrier.Do(ctx, func(ctx context.Context) error {
		return n.breaker.Execute(ctx, func(ctx context.Context) error {
			resp, err := n.client.CreateGroupChannel(ctx, req)
			if err != nil {
				return err
			}
			n.logger.Info("group channel created",
				"group_id", group.ID,
				"channel_id", resp.ChannelID,
				"notified", resp.Notified,
			)
			return nil
		})
	})
}

// LogNotifier is a stand-in matching.GroupLifecycleNotifier for local
// runs without a community platform.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) GroupFormed(ctx context.Context, group *matching.Group) error {
	n.logger.Info("stub: group formed",
		"group_id", group.ID,
		"members", len(group.Members),
		"average_score", int(group.AverageScore),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT WIRING
// ══════════════════════════════════════════════════════════════════════════════

// SubscribeGroupFormed routes group.formed events to the notifier. The
// engine publishes the event after the group row commits, so the
// notifier only ever sees durable groups.
func SubscribeGroupFormed(bus shared.EventSubscriber, notifier matching.GroupLifecycleNotifier, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	return bus.Subscribe(shared.EventGroupFormed, func(event shared.Event) error {
		formed, ok := event.(matching.GroupFormedEvent)
		if !ok {
			return fmt.Errorf("unexpected event type for %s: %T", shared.EventGroupFormed, event)
		}

		group := &matching.Group{
			ID:           formed.GroupID,
			BatchID:      formed.BatchID,
			Members:      formed.MemberIDs,
			AverageScore: formed.AverageScore,
		}

		if err := notifier.GroupFormed(context.Background(), group); err != nil {
			logger.Error("group notification failed",
				"group_id", group.ID,
				"error", err,
			)
			return err
		}
		return nil
	})
}
