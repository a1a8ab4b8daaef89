package events

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// ZapLogger adapts a zap logger to watermill
type ZapLogger struct {
	logger *zap.Logger
}

var _ watermill.LoggerAdapter = (*ZapLogger)(nil)

// NewZapLogger wraps logger for use by watermill publishers and subscribers
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

func (l *ZapLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (l *ZapLogger) Info(msg string, fields watermill.LogFields) {
	l.logger.Info(msg, zapFields(fields)...)
}

func (l *ZapLogger) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, zapFields(fields)...)
}

// Trace maps to Debug; zap has no lower level
func (l *ZapLogger) Trace(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, zapFields(fields)...)
}

func (l *ZapLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &ZapLogger{logger: l.logger.With(zapFields(fields)...)}
}

func zapFields(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// LogVerified logs every VerifiedEvent received on messages until the channel closes
func LogVerified(messages <-chan *message.Message, logger *zap.Logger) {
	for msg := range messages {
		var ev VerifiedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			logger.Warn("dropping malformed verified event", zap.String("message_id", msg.UUID), zap.Error(err))
			msg.Ack()
			continue
		}
		logger.Info("session issued",
			zap.String("challenge_id", ev.ChallengeID),
			zap.String("pubkey", ev.Pubkey),
			zap.String("session_id", ev.SessionID),
			zap.Time("verified_at", ev.VerifiedAt),
		)
		msg.Ack()
	}
}
