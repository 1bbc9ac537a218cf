// Package notifier implements the Notifier external interface (spec §6)
// against Slack, wrapped in a circuit breaker so a degraded Slack workspace
// cannot slow down approval transitions (spec §4.5 NEW "Notification";
// spec §7 "notifier_unavailable is logged, never fatal").
package notifier

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/sony/gobreaker"

	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
	"github.com/jordigilh/territory-assignment-core/internal/config"
)

// Slack is the Notifier implementation. Every call runs through a
// gobreaker.CircuitBreaker: once Slack starts failing, the breaker opens and
// subsequent calls fail fast instead of blocking the workflow service.
type Slack struct {
	client         *slack.Client
	defaultChannel string
	breaker        *gobreaker.CircuitBreaker
}

func NewSlack(cfg config.NotifierConfig) *Slack {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "slack-notifier",
		MaxRequests: 1,
		Interval:    0,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &Slack{
		client:         slack.New(cfg.SlackToken),
		defaultChannel: cfg.DefaultChannel,
		breaker:        breaker,
	}
}

// NotifyProposalRejected implements spec §6 Notifier.
func (s *Slack) NotifyProposalRejected(ctx context.Context, recipient, accountName, actorName, reason string) error {
	text := fmt.Sprintf(":x: Your reassignment proposal for *%s* was rejected by %s: %s", accountName, actorName, reason)
	return s.send(ctx, recipient, text)
}

// NotifySuperseded implements spec §4.5 "The proposer must be notified
// through the external Notifier."
func (s *Slack) NotifySuperseded(ctx context.Context, recipient, accountName, actorName string) error {
	text := fmt.Sprintf(":arrows_counterclockwise: Your reassignment proposal for *%s* was superseded by a direct RevOps assignment from %s", accountName, actorName)
	return s.send(ctx, recipient, text)
}

func (s *Slack) send(ctx context.Context, recipient, text string) error {
	channel := recipient
	if channel == "" {
		channel = s.defaultChannel
	}
	_, err := s.breaker.Execute(func() (any, error) {
		_, _, err := s.client.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
		return nil, err
	})
	if err != nil {
		return apperrors.NewNotifierUnavailable(err)
	}
	return nil
}
