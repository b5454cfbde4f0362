// Package services – InvoiceService
//
// This file implements the invoice upload handshake, a strict linear state
// machine per transaction id:
//
//	(none) → URL_GENERATED → INVOICE_RECEIVED → INVOICE_PROCESSED
//
// The suspend point between issuing the upload target and receiving the
// upload is structural: nothing waits in-process. Correlation happens solely
// through the persisted transaction record, whose short TTL doubles as the
// timeout — the sweep removes expired records and reports TIMEOUT over the
// still-open connection.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ndgaspar/go-commerce-backend/internal/domain"
	"github.com/ndgaspar/go-commerce-backend/internal/repo"
	"github.com/ndgaspar/go-commerce-backend/internal/storage"
)

// ConnectionGateway is the live-connection surface the workflow pushes
// through. Push errors are tolerated (the client may already be gone);
// Disconnect tears the connection down after a terminal status.
type ConnectionGateway interface {
	Push(ctx context.Context, connectionID string, payload any) error
	Disconnect(connectionID string) error
}

// UploadTarget is pushed to the client when a target is issued.
type UploadTarget struct {
	URL           string `json:"url"`
	Expires       int64  `json:"expires"`
	TransactionID string `json:"transactionId"`
}

// StatusPush is pushed to the client on every subsequent status change.
type StatusPush struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

// invoicePayload is the expected shape of an uploaded invoice file.
type invoicePayload struct {
	InvoiceNumber string  `json:"invoiceNumber"`
	CustomerName  string  `json:"customerName"`
	TotalValue    float64 `json:"totalValue"`
	ProductID     string  `json:"productId"`
	Quantity      int     `json:"quantity"`
}

// InvoiceService owns invoice transactions and imported invoices.
type InvoiceService struct {
	DB    *gorm.DB
	Store storage.ObjectStore
	Conns ConnectionGateway
	Bus   Publisher
	Log   zerolog.Logger

	UploadBaseURL  string
	UploadExpiry   time.Duration
	TransactionTTL time.Duration
}

// GetUploadTarget issues a time-limited upload target for the given live
// connection, persists the URL_GENERATED transaction, and pushes the target
// back over the connection before returning it.
func (s *InvoiceService) GetUploadTarget(ctx context.Context, connectionID, requestID string) (*UploadTarget, error) {
	key := uuid.NewString()
	now := time.Now()

	tx := &domain.InvoiceTransaction{
		ID:           key,
		Status:       domain.TransactionURLGenerated,
		TTL:          now.Add(s.TransactionTTL).Unix(),
		CreatedAt:    now.UnixMilli(),
		ExpiresIn:    int64(s.UploadExpiry.Seconds()),
		ConnectionID: connectionID,
		RequestID:    requestID,
	}
	if err := repo.CreateTransaction(ctx, s.DB, tx); err != nil {
		return nil, err
	}

	target := &UploadTarget{
		URL:           fmt.Sprintf("%s/invoices/upload/%s", s.UploadBaseURL, key),
		Expires:       tx.ExpiresIn,
		TransactionID: key,
	}
	if err := s.Conns.Push(ctx, connectionID, target); err != nil {
		return nil, err
	}
	s.Log.Info().
		Str("transaction_id", key).
		Str("connection_id", connectionID).
		Msg("upload target issued")
	return target, nil
}

// OnUploadReceived resumes the handshake when an object lands under key
// (the transaction id doubles as the object key).
//
// An absent transaction degrades to best-effort processing with no pushes.
// A transaction past URL_GENERATED gets its current status re-pushed and the
// duplicate or out-of-order upload is otherwise ignored. On the happy path
// the invoice is persisted, the object deleted, INVOICE_PROCESSED pushed,
// and the connection closed — the handshake is a single round-trip.
func (s *InvoiceService) OnUploadReceived(ctx context.Context, key string) error {
	tx, err := repo.GetTransaction(ctx, s.DB, key, time.Now().Unix())
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if tx != nil {
		if tx.Status != domain.TransactionURLGenerated {
			s.push(ctx, tx.ConnectionID, StatusPush{Key: tx.ID, Status: tx.Status})
			s.Log.Warn().
				Str("transaction_id", tx.ID).
				Str("status", tx.Status).
				Msg("upload ignored: transaction not awaiting upload")
			return nil
		}
		s.push(ctx, tx.ConnectionID, StatusPush{Key: tx.ID, Status: domain.TransactionInvoiceReceived})
		if err := repo.UpdateTransactionStatus(ctx, s.DB, tx.ID, domain.TransactionInvoiceReceived); err != nil {
			return err
		}
	}

	data, err := s.Store.Get(ctx, key)
	if err != nil {
		return err
	}
	var inv invoicePayload
	if err := json.Unmarshal(data, &inv); err != nil || inv.InvoiceNumber == "" {
		if tx != nil {
			s.push(ctx, tx.ConnectionID, StatusPush{Key: tx.ID, Status: "ERROR: NO INVOICE NUMBER IN FILE"})
			s.disconnect(tx.ConnectionID)
		}
		s.Log.Error().Str("key", key).Msg("uploaded invoice rejected")
		return ErrMissingInvoiceNumber
	}

	record := &domain.Invoice{
		Customer:      inv.CustomerName,
		Number:        inv.InvoiceNumber,
		TotalValue:    inv.TotalValue,
		ProductID:     inv.ProductID,
		Quantity:      inv.Quantity,
		TransactionID: key,
		CreatedAt:     time.Now().UnixMilli(),
	}
	if err := repo.CreateInvoice(ctx, s.DB, record); err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, key); err != nil {
		return err
	}

	requestID := ""
	if tx != nil {
		requestID = tx.RequestID
	}
	ev := domain.InvoiceEvent{
		RequestID:     requestID,
		InvoiceNumber: record.Number,
		TransactionID: key,
		ProductID:     record.ProductID,
		Customer:      record.Customer,
	}
	if err := s.Bus.Publish(ctx, domain.TopicInvoiceEvents, domain.EventInvoiceCreated, ev); err != nil {
		return err
	}

	if tx != nil {
		s.push(ctx, tx.ConnectionID, StatusPush{Key: tx.ID, Status: domain.TransactionInvoiceProcessed})
		if err := repo.UpdateTransactionStatus(ctx, s.DB, tx.ID, domain.TransactionInvoiceProcessed); err != nil {
			return err
		}
		s.disconnect(tx.ConnectionID)
	}
	s.Log.Info().
		Str("invoice_number", record.Number).
		Str("transaction_id", key).
		Msg("invoice imported")
	return nil
}

// ExpireTransactions removes every transaction whose TTL elapsed. Records
// that never reached INVOICE_PROCESSED are reported as TIMEOUT over their
// connection; either way the connection is closed. Returns the number of
// transactions swept.
func (s *InvoiceService) ExpireTransactions(ctx context.Context, now time.Time) (int, error) {
	expired, err := repo.ListExpiredTransactions(ctx, s.DB, now.Unix())
	if err != nil {
		return 0, err
	}
	for _, tx := range expired {
		if err := repo.DeleteTransaction(ctx, s.DB, tx.ID); err != nil {
			return 0, err
		}
		if tx.Status != domain.TransactionInvoiceProcessed {
			s.push(ctx, tx.ConnectionID, StatusPush{Key: tx.ID, Status: domain.TransactionTimeout})
			s.Log.Warn().
				Str("transaction_id", tx.ID).
				Str("status", tx.Status).
				Msg("invoice transaction timed out")
		}
		s.disconnect(tx.ConnectionID)
	}
	return len(expired), nil
}

// push is best-effort: the client may have dropped the connection already.
func (s *InvoiceService) push(ctx context.Context, connectionID string, payload any) {
	if err := s.Conns.Push(ctx, connectionID, payload); err != nil {
		s.Log.Debug().Err(err).Str("connection_id", connectionID).Msg("push skipped")
	}
}

func (s *InvoiceService) disconnect(connectionID string) {
	if err := s.Conns.Disconnect(connectionID); err != nil {
		s.Log.Debug().Err(err).Str("connection_id", connectionID).Msg("disconnect skipped")
	}
}
