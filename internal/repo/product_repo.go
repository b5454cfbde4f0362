// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Product
// catalog.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/ndgaspar/go-commerce-backend/internal/domain"
)

// ListProducts returns every catalog row (unbounded scan, matching the
// catalog's full-listing endpoint).
func ListProducts(ctx context.Context, db *gorm.DB) ([]domain.Product, error) {
	var out []domain.Product
	err := db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

// GetProduct fetches a product by ID.
func GetProduct(ctx context.Context, db *gorm.DB, id string) (*domain.Product, error) {
	var p domain.Product
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// BatchGetProducts resolves a set of product ids in one query. Missing ids
// are simply absent from the result; callers decide whether partial
// resolution is acceptable.
func BatchGetProducts(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Product, error) {
	var out []domain.Product
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

// CreateProduct inserts a new catalog row.
func CreateProduct(ctx context.Context, db *gorm.DB, p *domain.Product) error {
	return db.WithContext(ctx).Create(p).Error
}

// UpdateProduct persists a full replacement of the row. Existence is checked
// by the service layer before calling; concurrent writers follow
// last-write-wins.
func UpdateProduct(ctx context.Context, db *gorm.DB, p *domain.Product) error {
	return db.WithContext(ctx).Save(p).Error
}

// DeleteProduct removes a product and returns the deleted row, or
// gorm.ErrRecordNotFound if it was absent.
func DeleteProduct(ctx context.Context, db *gorm.DB, id string) (*domain.Product, error) {
	prior, err := GetProduct(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Delete(&domain.Product{}, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return prior, nil
}
