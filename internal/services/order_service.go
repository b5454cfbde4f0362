// Package services – OrderService
//
// This file implements the order workflow: validate a submission against the
// product catalog (all-or-nothing), snapshot the resolved prices, persist the
// order under a fresh id, and publish the lifecycle notification before
// responding. The total price is always recomputed server-side from the
// snapshot; client-supplied totals are never trusted.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ndgaspar/go-commerce-backend/internal/domain"
	"github.com/ndgaspar/go-commerce-backend/internal/repo"
)

// OrderRequest is a validated order submission.
type OrderRequest struct {
	Email      string
	ProductIDs []string
	Payment    string
	Shipping   domain.Shipping
}

// OrderService owns order persistence and its lifecycle notifications.
type OrderService struct {
	DB  *gorm.DB
	Bus Publisher
	Log zerolog.Logger
}

// Submit validates, persists, and announces a new order.
//
// Every requested product id must resolve; if any is missing the submission
// fails with ErrProductsNotFound and nothing is persisted. There is no
// idempotency key: submitting the same request twice creates two orders.
func (s *OrderService) Submit(ctx context.Context, requestID string, req OrderRequest) (*domain.Order, error) {
	if len(req.ProductIDs) == 0 {
		return nil, ErrEmptyOrder
	}
	if !domain.ValidPayment(req.Payment) {
		return nil, ErrInvalidPayment
	}

	products, err := repo.BatchGetProducts(ctx, s.DB, req.ProductIDs)
	if err != nil {
		return nil, err
	}
	if len(products) != len(req.ProductIDs) {
		return nil, ErrProductsNotFound
	}

	var totalPrice float64
	snapshot := make(domain.OrderProducts, 0, len(products))
	for _, p := range products {
		totalPrice += p.Price
		snapshot = append(snapshot, domain.OrderProduct{Code: p.Code, Price: p.Price})
	}

	order := &domain.Order{
		Email:     req.Email,
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UnixMilli(),
		Products:  snapshot,
		Billing: domain.Billing{
			Payment:    req.Payment,
			TotalPrice: totalPrice,
		},
		Shipping: req.Shipping,
	}
	if err := repo.CreateOrder(ctx, s.DB, order); err != nil {
		return nil, err
	}

	if err := s.publish(ctx, domain.EventOrderCreated, order, requestID); err != nil {
		return nil, err
	}
	return order, nil
}

// List returns every order when email is empty, otherwise the customer's
// orders in creation order.
func (s *OrderService) List(ctx context.Context, email string) ([]domain.Order, error) {
	if email == "" {
		return repo.ListOrders(ctx, s.DB)
	}
	return repo.ListOrdersByEmail(ctx, s.DB, email)
}

// Get returns one order or ErrOrderNotFound.
func (s *OrderService) Get(ctx context.Context, email, orderID string) (*domain.Order, error) {
	o, err := repo.GetOrder(ctx, s.DB, email, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// Delete removes an order, returning its prior state and publishing
// ORDER_DELETED derived from the deleted record. Fails with ErrOrderNotFound
// when the pair is absent.
func (s *OrderService) Delete(ctx context.Context, requestID, email, orderID string) (*domain.Order, error) {
	prior, err := repo.DeleteOrder(ctx, s.DB, email, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.publish(ctx, domain.EventOrderDeleted, prior, requestID); err != nil {
		return nil, err
	}
	return prior, nil
}

func (s *OrderService) publish(ctx context.Context, eventType string, o *domain.Order, requestID string) error {
	codes := make([]string, 0, len(o.Products))
	for _, p := range o.Products {
		codes = append(codes, p.Code)
	}
	ev := domain.OrderEvent{
		Email:        o.Email,
		OrderID:      o.ID,
		Billing:      o.Billing,
		Shipping:     o.Shipping,
		RequestID:    requestID,
		ProductCodes: codes,
	}
	if err := s.Bus.Publish(ctx, domain.TopicOrderEvents, eventType, ev); err != nil {
		s.Log.Error().Err(err).
			Str("event_type", eventType).
			Str("order_id", o.ID).
			Msg("order event publish failed")
		return err
	}
	return nil
}
