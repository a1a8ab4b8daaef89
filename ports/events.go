package ports

import (
	"context"
	"time"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishVerified(ctx context.Context, challengeID, pubkey, sessionID string, at time.Time) error
}
