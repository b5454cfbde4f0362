// Package services – ProductService
//
// This file implements the product catalog: read/write by id plus lifecycle
// notifications. The notification publish is synchronous — the caller only
// sees success after the bus accepted the message. That trades latency for a
// stable ordering between the client-visible response and the notification,
// but it is not transactional: when persistence succeeds and the publish
// fails, the whole operation is reported as failed even though the mutation
// is already durable.
package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ndgaspar/go-commerce-backend/internal/domain"
	"github.com/ndgaspar/go-commerce-backend/internal/repo"
)

// Publisher is the slice of the event bus the workflows depend on. Publish
// blocks until the messaging layer accepts the message; acceptance does not
// imply delivery to consumers.
type Publisher interface {
	Publish(ctx context.Context, topic, eventType string, payload any) error
}

// ProductData is the writable portion of a product, as accepted by create
// and update.
type ProductData struct {
	Name  string
	Code  string
	Price float64
	Model string
	URL   string
}

// ProductService owns the product catalog.
type ProductService struct {
	DB  *gorm.DB
	Bus Publisher
	Log zerolog.Logger
}

// List returns the whole catalog.
func (s *ProductService) List(ctx context.Context) ([]domain.Product, error) {
	return repo.ListProducts(ctx, s.DB)
}

// Get returns one product or ErrProductNotFound.
func (s *ProductService) Get(ctx context.Context, id string) (*domain.Product, error) {
	p, err := repo.GetProduct(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	return p, err
}

// Create assigns a fresh id, persists the product, and emits
// PRODUCT_CREATED before returning the stored record.
func (s *ProductService) Create(ctx context.Context, requestID, actorEmail string, data ProductData) (*domain.Product, error) {
	p := &domain.Product{
		ID:    uuid.NewString(),
		Name:  data.Name,
		Code:  data.Code,
		Price: data.Price,
		Model: data.Model,
		URL:   data.URL,
	}
	if err := repo.CreateProduct(ctx, s.DB, p); err != nil {
		return nil, err
	}
	if err := s.publish(ctx, domain.EventProductCreated, p, requestID, actorEmail); err != nil {
		return nil, err
	}
	return p, nil
}

// Update replaces the stored product wholesale (last-write-wins, no version
// field) and emits PRODUCT_UPDATED. Fails with ErrProductNotFound when the
// id is absent.
func (s *ProductService) Update(ctx context.Context, requestID, actorEmail, id string, data ProductData) (*domain.Product, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	p := &domain.Product{
		ID:    id,
		Name:  data.Name,
		Code:  data.Code,
		Price: data.Price,
		Model: data.Model,
		URL:   data.URL,
	}
	if err := repo.UpdateProduct(ctx, s.DB, p); err != nil {
		return nil, err
	}
	if err := s.publish(ctx, domain.EventProductUpdated, p, requestID, actorEmail); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a product, emits PRODUCT_DELETED, and returns the deleted
// record. Fails with ErrProductNotFound when the id is absent.
func (s *ProductService) Delete(ctx context.Context, requestID, actorEmail, id string) (*domain.Product, error) {
	prior, err := repo.DeleteProduct(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.publish(ctx, domain.EventProductDeleted, prior, requestID, actorEmail); err != nil {
		return nil, err
	}
	return prior, nil
}

func (s *ProductService) publish(ctx context.Context, eventType string, p *domain.Product, requestID, actorEmail string) error {
	ev := domain.ProductEvent{
		RequestID:    requestID,
		ProductID:    p.ID,
		ProductCode:  p.Code,
		ProductPrice: p.Price,
		Email:        actorEmail,
	}
	if err := s.Bus.Publish(ctx, domain.TopicProductEvents, eventType, ev); err != nil {
		s.Log.Error().Err(err).
			Str("event_type", eventType).
			Str("product_id", p.ID).
			Msg("product event publish failed")
		return err
	}
	return nil
}
