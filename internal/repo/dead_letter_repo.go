// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the dead-letter holding area: messages
// that exhausted their delivery-retry budget are kept here for manual
// inspection instead of being dropped.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ndgaspar/go-commerce-backend/internal/domain"
)

// CreateDeadLetter records one permanently failed delivery.
func CreateDeadLetter(ctx context.Context, db *gorm.DB, consumer, topic, eventType, payload string, attempts int, lastErr string) (*domain.DeadLetter, error) {
	dl := &domain.DeadLetter{
		ID:        uuid.NewString(),
		Consumer:  consumer,
		Topic:     topic,
		EventType: eventType,
		Payload:   payload,
		Attempts:  attempts,
		LastError: lastErr,
		CreatedAt: time.Now().UnixMilli(),
	}
	return dl, db.WithContext(ctx).Create(dl).Error
}

// ListDeadLetters returns the held messages for one consumer, oldest first.
// An empty consumer returns everything.
func ListDeadLetters(ctx context.Context, db *gorm.DB, consumer string) ([]domain.DeadLetter, error) {
	q := db.WithContext(ctx).Order("created_at ASC, id ASC")
	if consumer != "" {
		q = q.Where("consumer = ?", consumer)
	}
	var out []domain.DeadLetter
	err := q.Find(&out).Error
	return out, err
}
