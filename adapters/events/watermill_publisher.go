package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/nostr-gate/ports"
)

// DefaultTopic receives one message per successful verification
const DefaultTopic = "nostrgate.auth.verified"

// VerifiedEvent is published after a challenge is verified and a session issued
type VerifiedEvent struct {
	ChallengeID string    `json:"challenge_id"`
	Pubkey      string    `json:"pubkey"`
	SessionID   string    `json:"session_id"`
	VerifiedAt  time.Time `json:"verified_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher, topic string) *WatermillPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishVerified publishes a verification event
func (p *WatermillPublisher) PublishVerified(ctx context.Context, challengeID, pubkey, sessionID string, at time.Time) error {
	event := VerifiedEvent{
		ChallengeID: challengeID,
		Pubkey:      pubkey,
		SessionID:   sessionID,
		VerifiedAt:  at.UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(sessionID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("pubkey", pubkey)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Topic returns the topic events are published to
func (p *WatermillPublisher) Topic() string {
	return p.topic
}

// NopPublisher drops every event
type NopPublisher struct{}

// PublishVerified does nothing
func (NopPublisher) PublishVerified(context.Context, string, string, string, time.Time) error {
	return nil
}
