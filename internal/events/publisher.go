// Package events announces status changes and reminder commands on Redis
// pub/sub channels for the gateway and the notification worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"workforce/status-service/internal/pipeline"
)

// Channel names. The payload's "type" field repeats the channel name.
const (
	ChannelStatusChanged           = "EVENT_PARTICIPANT_STATUS_CHANGED"
	ChannelAcknowledgementReminder = "CMD_ACKNOWLEDGEMENT_REMINDER"
)

// publishClient is the subset of *redis.Client used here.
type publishClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher serialises events as JSON and publishes them with PUBLISH.
type RedisPublisher struct {
	rdb   publishClient
	newID func() string
}

// NewRedisPublisher returns a publisher writing through rdb.
func NewRedisPublisher(rdb publishClient) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, newID: uuid.NewString}
}

type statusChangedEvent struct {
	Type          string `json:"type"`
	EventID       string `json:"eventId"`
	ParticipantID string `json:"participantId"`
	EmployerID    string `json:"employerId"`
	StatusID      int64  `json:"statusId"`
	From          string `json:"from"`
	To            string `json:"to"`
	At            string `json:"at"`
}

// PublishStatusChanged implements pipeline.Publisher.
func (p *RedisPublisher) PublishStatusChanged(ctx context.Context, ev pipeline.StatusChanged) error {
	return p.publish(ctx, ChannelStatusChanged, statusChangedEvent{
		Type:          ChannelStatusChanged,
		EventID:       p.newID(),
		ParticipantID: ev.ParticipantID,
		EmployerID:    ev.EmployerID,
		StatusID:      ev.StatusID,
		From:          string(ev.From),
		To:            string(ev.To),
		At:            ev.At.UTC().Format(time.RFC3339),
	})
}

// AcknowledgementReminder asks the notification worker to nudge one
// employer about records still awaiting their acknowledgement.
type AcknowledgementReminder struct {
	EmployerID string    `json:"employerId"`
	StatusIDs  []int64   `json:"statusIds"`
	Oldest     time.Time `json:"oldest"`
}

type reminderEvent struct {
	Type    string `json:"type"`
	EventID string `json:"eventId"`
	AcknowledgementReminder
}

// PublishAcknowledgementReminder sends one reminder command.
func (p *RedisPublisher) PublishAcknowledgementReminder(ctx context.Context, r AcknowledgementReminder) error {
	return p.publish(ctx, ChannelAcknowledgementReminder, reminderEvent{
		Type:                    ChannelAcknowledgementReminder,
		EventID:                 p.newID(),
		AcknowledgementReminder: r,
	})
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", channel, err)
	}
	if err := p.rdb.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// ─── LogPublisher ────────────────────────────────────────────────────────────

// LogPublisher writes events to the structured log. It stands in for Redis
// in single-node deployments.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a LogPublisher. A nil logger uses slog.Default.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// PublishStatusChanged implements pipeline.Publisher.
func (p *LogPublisher) PublishStatusChanged(ctx context.Context, ev pipeline.StatusChanged) error {
	p.logger.InfoContext(ctx, "participant status changed",
		"participantId", ev.ParticipantID,
		"employerId", ev.EmployerID,
		"statusId", ev.StatusID,
		"from", ev.From,
		"to", ev.To,
	)
	return nil
}

// PublishAcknowledgementReminder logs the reminder.
func (p *LogPublisher) PublishAcknowledgementReminder(ctx context.Context, r AcknowledgementReminder) error {
	p.logger.InfoContext(ctx, "acknowledgement reminder",
		"employerId", r.EmployerID,
		"count", len(r.StatusIDs),
		"oldest", r.Oldest,
	)
	return nil
}
