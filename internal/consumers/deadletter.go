package consumers

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ndgaspar/go-commerce-backend/internal/bus"
	"github.com/ndgaspar/go-commerce-backend/internal/repo"
)

// DeadLetterStore persists messages that exhausted their delivery budget so
// they can be inspected out-of-band. It implements bus.DeadLetterSink.
type DeadLetterStore struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// HoldDeadLetter records the failed message. A storage failure here is the
// worst case (the message would be lost), so it is logged at error level
// with the full payload.
func (d *DeadLetterStore) HoldDeadLetter(ctx context.Context, consumer, topic string, env bus.Envelope, attempts int, lastErr error) {
	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	if _, err := repo.CreateDeadLetter(ctx, d.DB, consumer, topic, env.EventType, string(env.Data), attempts, errMsg); err != nil {
		d.Log.Error().Err(err).
			Str("consumer", consumer).
			Str("topic", topic).
			Str("message_id", env.MessageID).
			RawJSON("payload", env.Data).
			Msg("dead letter could not be stored")
	}
}
