// Package services defines the business logic for the product catalog, the
// order workflow, the lifecycle event log, and the invoice upload handshake.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into HTTP status codes or WebSocket status pushes is performed
// at the transport layer.
package services

import "errors"

var (
	// ErrProductNotFound indicates that the requested product does not exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrProductsNotFound is returned when an order submission references at
	// least one unresolvable product id. Partial resolution is never
	// accepted: the whole submission fails and nothing is persisted.
	ErrProductsNotFound = errors.New("some products were not found")

	// ErrOrderNotFound indicates that the requested (email, orderId) pair
	// does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrEmptyOrder is returned when a submission carries no product ids.
	ErrEmptyOrder = errors.New("order must contain at least one product")

	// ErrInvalidPayment is returned for a payment method outside the
	// accepted set.
	ErrInvalidPayment = errors.New("invalid payment method")

	// ErrMissingInvoiceNumber is returned when an uploaded invoice lacks the
	// required invoiceNumber field. The upload is rejected and no record is
	// persisted.
	ErrMissingInvoiceNumber = errors.New("no invoice number in file")
)
