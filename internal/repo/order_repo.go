// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Order rows,
// keyed by the (email, id) composite.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/ndgaspar/go-commerce-backend/internal/domain"
)

// CreateOrder inserts a new order row.
func CreateOrder(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	return db.WithContext(ctx).Create(o).Error
}

// GetOrder fetches one order by its composite key.
func GetOrder(ctx context.Context, db *gorm.DB, email, orderID string) (*domain.Order, error) {
	var o domain.Order
	if err := db.WithContext(ctx).Where("email = ? AND id = ?", email, orderID).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrders returns every order (unbounded scan, a known scale limitation
// of the unfiltered listing endpoint).
func ListOrders(ctx context.Context, db *gorm.DB) ([]domain.Order, error) {
	var out []domain.Order
	err := db.WithContext(ctx).Order("email ASC, created_at ASC").Find(&out).Error
	return out, err
}

// ListOrdersByEmail returns all orders for one customer in creation order.
func ListOrdersByEmail(ctx context.Context, db *gorm.DB, email string) ([]domain.Order, error) {
	var out []domain.Order
	err := db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// DeleteOrder removes an order and returns the prior row, or
// gorm.ErrRecordNotFound if it was absent. No conditional write: concurrent
// deleters race on last-write-wins like every other mutation here.
func DeleteOrder(ctx context.Context, db *gorm.DB, email, orderID string) (*domain.Order, error) {
	prior, err := GetOrder(ctx, db, email, orderID)
	if err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).
		Where("email = ? AND id = ?", email, orderID).
		Delete(&domain.Order{}).Error
	if err != nil {
		return nil, err
	}
	return prior, nil
}
