// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// lifecycle event log.
//
// Expiry is lazy on reads (rows past their TTL are filtered out) and physical
// removal happens in the background sweep; see DeleteExpiredEvents.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ndgaspar/go-commerce-backend/internal/domain"
)

// PutEvent appends one event row. Notifications are delivered at-least-once,
// so an identical (pk, sk) pair may arrive twice within the same millisecond;
// the conflict is ignored rather than surfaced, making the write idempotent
// on the natural key.
func PutEvent(ctx context.Context, db *gorm.DB, ev *domain.LifecycleEvent) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ev).Error
}

// ListEventsByEmail returns the live (non-expired) events recorded for one
// customer, in ascending timestamp order. A non-empty prefix restricts the
// result to event types beginning with it (e.g. "ORDER_" or one full type).
func ListEventsByEmail(ctx context.Context, db *gorm.DB, email, prefix string, nowSec int64) ([]domain.LifecycleEvent, error) {
	q := db.WithContext(ctx).
		Where("email = ?", email).
		Where("ttl > ?", nowSec)
	if prefix != "" {
		q = q.Where("event_type LIKE ?", prefix+"%")
	}
	var out []domain.LifecycleEvent
	err := q.Order("created_at ASC, sk ASC").Find(&out).Error
	return out, err
}

// DeleteExpiredEvents removes every event row whose TTL elapsed, returning
// the number of rows deleted.
func DeleteExpiredEvents(ctx context.Context, db *gorm.DB, nowSec int64) (int64, error) {
	res := db.WithContext(ctx).
		Where("ttl <= ?", nowSec).
		Delete(&domain.LifecycleEvent{})
	return res.RowsAffected, res.Error
}
