// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for invoice
// transactions (the short-lived upload handshake records) and imported
// invoices.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/ndgaspar/go-commerce-backend/internal/domain"
)

// CreateTransaction inserts a new handshake record.
func CreateTransaction(ctx context.Context, db *gorm.DB, tx *domain.InvoiceTransaction) error {
	return db.WithContext(ctx).Create(tx).Error
}

// GetTransaction fetches a live transaction by id. Rows past their TTL are
// treated as absent; the sweeper will remove them and emit the timeout
// notification.
func GetTransaction(ctx context.Context, db *gorm.DB, id string, nowSec int64) (*domain.InvoiceTransaction, error) {
	var tx domain.InvoiceTransaction
	err := db.WithContext(ctx).
		Where("id = ? AND ttl > ?", id, nowSec).
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdateTransactionStatus advances the handshake state machine.
func UpdateTransactionStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	return db.WithContext(ctx).
		Model(&domain.InvoiceTransaction{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// ListExpiredTransactions returns every transaction whose TTL elapsed, for
// the sweep to remove and report.
func ListExpiredTransactions(ctx context.Context, db *gorm.DB, nowSec int64) ([]domain.InvoiceTransaction, error) {
	var out []domain.InvoiceTransaction
	err := db.WithContext(ctx).Where("ttl <= ?", nowSec).Find(&out).Error
	return out, err
}

// DeleteTransaction removes a handshake record.
func DeleteTransaction(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Delete(&domain.InvoiceTransaction{}, "id = ?", id).Error
}

// CreateInvoice persists an imported invoice. Invoices are written once and
// never updated or expired.
func CreateInvoice(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	return db.WithContext(ctx).Create(inv).Error
}

// GetInvoice fetches one invoice by its (customer, number) composite key.
func GetInvoice(ctx context.Context, db *gorm.DB, customer, number string) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.WithContext(ctx).
		Where("customer = ? AND number = ?", customer, number).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
