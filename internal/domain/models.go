// Package domain defines the persistence models for products, orders, the
// lifecycle event log, and invoice imports. These types are mapped with GORM
// and form the core data layer of the e-commerce backend.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Payment methods accepted on order submission.
const (
	PaymentCash       = "CASH"
	PaymentDebitCard  = "DEBIT_CARD"
	PaymentCreditCard = "CREDIT_CARD"
)

// ValidPayment reports whether p is one of the accepted payment methods.
func ValidPayment(p string) bool {
	switch p {
	case PaymentCash, PaymentDebitCard, PaymentCreditCard:
		return true
	}
	return false
}

// Product represents a catalog entry. Products are mutable (last-write-wins)
// and carry no version field; orders snapshot the code and price at submission
// time instead of referencing the live row.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name / Code / Price / Model / URL: catalog attributes; Code is indexed
//     because lifecycle events are partitioned by it.
type Product struct {
	ID    string  `json:"id"          gorm:"type:char(36);primaryKey"`
	Name  string  `json:"productName" gorm:"type:varchar(255);not null"`
	Code  string  `json:"code"        gorm:"type:varchar(64);not null;index:idx_product_code"`
	Price float64 `json:"price"       gorm:"not null"`
	Model string  `json:"model"       gorm:"type:varchar(64)"`
	URL   string  `json:"productUrl"  gorm:"type:varchar(512)"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// OrderProduct is the (code, price) snapshot of a product captured at order
// creation time. Later catalog changes never alter past orders.
type OrderProduct struct {
	Code  string  `json:"code"`
	Price float64 `json:"price"`
}

// OrderProducts is the ordered product snapshot list, stored as a JSON text
// column.
type OrderProducts []OrderProduct

// Value serializes the snapshot list for storage.
func (p OrderProducts) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

// Scan deserializes the snapshot list from storage.
func (p *OrderProducts) Scan(v any) error {
	switch s := v.(type) {
	case string:
		return json.Unmarshal([]byte(s), p)
	case []byte:
		return json.Unmarshal(s, p)
	case nil:
		*p = nil
		return nil
	}
	return errors.New("domain: unsupported OrderProducts column type")
}

// Billing carries the payment method and the server-computed order total.
type Billing struct {
	Payment    string  `json:"payment"`
	TotalPrice float64 `json:"totalPrice"`
}

// Shipping carries the delivery type and carrier selected for an order.
type Shipping struct {
	Type    string `json:"type"`
	Carrier string `json:"carrier"`
}

// Order is identified by the (Email, ID) composite key; the ID is a fresh
// UUID generated on submission. Orders are immutable after creation: there is
// no update operation, only delete-and-return.
//
// CreatedAt is epoch milliseconds, matching every persisted timestamp in this
// system.
type Order struct {
	Email     string        `json:"email"     gorm:"type:varchar(255);primaryKey"`
	ID        string        `json:"id"        gorm:"type:char(36);primaryKey"`
	CreatedAt int64         `json:"createdAt" gorm:"not null"`
	Products  OrderProducts `json:"products"  gorm:"type:text;not null"`
	Billing   Billing       `json:"billing"   gorm:"embedded;embeddedPrefix:billing_"`
	Shipping  Shipping      `json:"shipping"  gorm:"embedded;embeddedPrefix:shipping_"`
}

// TableName returns the database table name for Order.
func (Order) TableName() string { return "orders" }

// InvoiceTransaction correlates one upload handshake: URL issuance, the
// eventual upload, and the push notifications back over the originating
// WebSocket connection. The short TTL doubles as the timeout mechanism — an
// expired row that never reached INVOICE_PROCESSED is reported as TIMEOUT by
// the sweeper.
//
// TTL is epoch seconds; CreatedAt is epoch milliseconds.
type InvoiceTransaction struct {
	ID           string `json:"transactionId" gorm:"type:char(36);primaryKey"`
	Status       string `json:"status"        gorm:"type:varchar(32);not null"`
	TTL          int64  `json:"ttl"           gorm:"column:ttl;not null;index:idx_tx_ttl"`
	CreatedAt    int64  `json:"createdAt"     gorm:"not null"`
	ExpiresIn    int64  `json:"expires"`
	ConnectionID string `json:"connectionId"  gorm:"type:varchar(64)"`
	RequestID    string `json:"requestId"     gorm:"type:char(36)"`
}

// TableName returns the database table name for InvoiceTransaction.
func (InvoiceTransaction) TableName() string { return "invoice_transactions" }

// Invoice transaction statuses. The machine is strictly linear:
// URL_GENERATED → INVOICE_RECEIVED → INVOICE_PROCESSED.
const (
	TransactionURLGenerated     = "URL_GENERATED"
	TransactionInvoiceReceived  = "INVOICE_RECEIVED"
	TransactionInvoiceProcessed = "INVOICE_PROCESSED"
	TransactionTimeout          = "TIMEOUT"
)

// Invoice is an imported invoice record, keyed by customer and invoice
// number. Created once on successful import; never updated or expired.
type Invoice struct {
	Customer      string  `json:"customerName"  gorm:"type:varchar(255);primaryKey"`
	Number        string  `json:"invoiceNumber" gorm:"type:varchar(64);primaryKey"`
	TotalValue    float64 `json:"totalValue"`
	ProductID     string  `json:"productId"     gorm:"type:char(36)"`
	Quantity      int     `json:"quantity"`
	TransactionID string  `json:"transactionId" gorm:"type:char(36);index"`
	CreatedAt     int64   `json:"createdAt"     gorm:"not null"`
}

// TableName returns the database table name for Invoice.
func (Invoice) TableName() string { return "invoices" }

// DeadLetter holds a message that exhausted its delivery-retry budget for one
// consumer. Rows are kept for manual inspection instead of being dropped.
type DeadLetter struct {
	ID        string `gorm:"type:char(36);primaryKey"`
	Consumer  string `gorm:"type:varchar(64);not null;index"`
	Topic     string `gorm:"type:varchar(64);not null"`
	EventType string `gorm:"type:varchar(64);not null"`
	Payload   string `gorm:"type:text;not null"`
	Attempts  int    `gorm:"not null"`
	LastError string `gorm:"type:text"`
	CreatedAt int64  `gorm:"not null"`
}

// TableName returns the database table name for DeadLetter.
func (DeadLetter) TableName() string { return "dead_letters" }
