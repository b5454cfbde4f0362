// Package domain — lifecycle event log and notification payloads.
//
// Every state change in a product, order, or invoice is published as a
// lifecycle notification and appended by the event correlator to a single
// time-bounded event log. The log is denormalized and self-contained: it
// references orders and products by id/code but never joins back to live
// rows.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Topics carried by the event bus.
const (
	TopicOrderEvents   = "order-events"
	TopicProductEvents = "product-events"
	TopicInvoiceEvents = "invoice-events"
)

// Lifecycle event types. Query filtering matches on prefixes ("ORDER_",
// "PRODUCT_"), so the naming is load-bearing.
const (
	EventOrderCreated   = "ORDER_CREATED"
	EventOrderDeleted   = "ORDER_DELETED"
	EventProductCreated = "PRODUCT_CREATED"
	EventProductUpdated = "PRODUCT_UPDATED"
	EventProductDeleted = "PRODUCT_DELETED"
	EventInvoiceCreated = "INVOICE_CREATED"
)

// OrderEvent is the payload of ORDER_CREATED / ORDER_DELETED notifications.
// It carries product codes, not full product records.
type OrderEvent struct {
	Email        string   `json:"email"`
	OrderID      string   `json:"orderId"`
	Billing      Billing  `json:"billing"`
	Shipping     Shipping `json:"shipping"`
	RequestID    string   `json:"requestId"`
	ProductCodes []string `json:"productCodes"`
}

// ProductEvent is the payload of PRODUCT_* notifications.
type ProductEvent struct {
	RequestID    string  `json:"requestId"`
	ProductID    string  `json:"productId"`
	ProductCode  string  `json:"productCode"`
	ProductPrice float64 `json:"productPrice"`
	Email        string  `json:"email"`
}

// InvoiceEvent is the payload of INVOICE_CREATED notifications.
type InvoiceEvent struct {
	RequestID     string `json:"requestId"`
	InvoiceNumber string `json:"invoiceNumber"`
	TransactionID string `json:"transactionId"`
	ProductID     string `json:"productId"`
	Customer      string `json:"customerName"`
}

// EventInfo is the type-specific payload embedded in a LifecycleEvent row,
// stored as a JSON text column. Only the fields relevant to the event type
// are populated.
type EventInfo struct {
	OrderID       string   `json:"orderId,omitempty"`
	ProductCodes  []string `json:"productCodes,omitempty"`
	ProductID     string   `json:"productId,omitempty"`
	Price         float64  `json:"price,omitempty"`
	TransactionID string   `json:"transactionId,omitempty"`
	MessageID     string   `json:"messageId,omitempty"`
}

// Value serializes the payload for storage.
func (i EventInfo) Value() (driver.Value, error) {
	b, err := json.Marshal(i)
	return string(b), err
}

// Scan deserializes the payload from storage.
func (i *EventInfo) Scan(v any) error {
	switch s := v.(type) {
	case string:
		return json.Unmarshal([]byte(s), i)
	case []byte:
		return json.Unmarshal(s, i)
	case nil:
		*i = EventInfo{}
		return nil
	}
	return errors.New("domain: unsupported EventInfo column type")
}

// LifecycleEvent is one immutable row of the event log.
//
// Keys:
//   - PK encodes the subject ("#order_<id>", "#product_<code>",
//     "#invoice_<number>").
//   - SK is "<EVENT_TYPE>#<epochMillis>", giving chronological order within a
//     partition and making type-prefix range filters cheap.
//
// Email is a secondary attribute for the cross-partition per-customer query.
// TTL (epoch seconds) bounds the log in time: rows past their TTL are treated
// as absent by reads and removed by the background sweep. Redelivered
// notifications may produce duplicate logical rows; that is accepted.
type LifecycleEvent struct {
	PK        string    `gorm:"column:pk;type:varchar(128);primaryKey"`
	SK        string    `gorm:"column:sk;type:varchar(128);primaryKey"`
	TTL       int64     `gorm:"column:ttl;not null;index:idx_events_ttl"`
	Email     string    `gorm:"type:varchar(255);index:idx_events_email"`
	CreatedAt int64     `gorm:"not null"`
	RequestID string    `gorm:"type:char(36)"`
	EventType string    `gorm:"type:varchar(64);not null"`
	Info      EventInfo `gorm:"type:text"`
}

// TableName returns the database table name for LifecycleEvent.
func (LifecycleEvent) TableName() string { return "events" }

// OrderPartition returns the event-log partition key for an order id.
func OrderPartition(orderID string) string { return fmt.Sprintf("#order_%s", orderID) }

// ProductPartition returns the event-log partition key for a product code.
func ProductPartition(code string) string { return fmt.Sprintf("#product_%s", code) }

// InvoicePartition returns the event-log partition key for an invoice number.
func InvoicePartition(number string) string { return fmt.Sprintf("#invoice_%s", number) }

// SortKey builds the chronological sort key for an event row.
func SortKey(eventType string, epochMillis int64) string {
	return fmt.Sprintf("%s#%d", eventType, epochMillis)
}
