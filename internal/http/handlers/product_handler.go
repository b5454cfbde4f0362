// Product HTTP handlers.
//
// This file exposes REST endpoints for the product catalog:
//   - GET    /products        (list)
//   - POST   /products        (create)
//   - GET    /products/{id}   (fetch)
//   - PUT    /products/{id}   (replace)
//   - DELETE /products/{id}   (delete, returns prior record)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. This file also declares the
// service contracts and the Handlers aggregate used by the whole package.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ndgaspar/go-commerce-backend/internal/domain"
	"github.com/ndgaspar/go-commerce-backend/internal/services"
	"github.com/ndgaspar/go-commerce-backend/internal/storage"
)

//
// Service contracts (context-aware)
//

// ProductCatalog defines catalog operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ProductCatalog interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, requestID, actorEmail string, data services.ProductData) (*domain.Product, error)
	Update(ctx context.Context, requestID, actorEmail, id string, data services.ProductData) (*domain.Product, error)
	Delete(ctx context.Context, requestID, actorEmail, id string) (*domain.Product, error)
}

// OrderWorkflow defines order lifecycle operations consumed by HTTP handlers.
type OrderWorkflow interface {
	Submit(ctx context.Context, requestID string, req services.OrderRequest) (*domain.Order, error)
	List(ctx context.Context, email string) ([]domain.Order, error)
	Get(ctx context.Context, email, orderID string) (*domain.Order, error)
	Delete(ctx context.Context, requestID, email, orderID string) (*domain.Order, error)
}

// EventQuery answers the per-customer lifecycle event query.
type EventQuery interface {
	QueryByCustomer(ctx context.Context, email, prefix string) ([]services.CustomerEvent, error)
}

// InvoiceIntake resumes the invoice handshake once an upload landed.
type InvoiceIntake interface {
	OnUploadReceived(ctx context.Context, key string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for products, orders, events, and invoice
// uploads. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	products ProductCatalog
	orders   OrderWorkflow
	events   EventQuery
	invoices InvoiceIntake
	store    storage.ObjectStore
}

// New constructs and returns a Handlers instance bound to the given services.
func New(products ProductCatalog, orders OrderWorkflow, events EventQuery, invoices InvoiceIntake, store storage.ObjectStore) *Handlers {
	return &Handlers{
		products: products,
		orders:   orders,
		events:   events,
		invoices: invoices,
		store:    store,
	}
}

// userEmail extracts the acting customer's email from the X-User-Email header.
// The demo deployment has no auth layer; the header stands in for an
// authenticated identity and may be empty.
func userEmail(c *gin.Context) string {
	if c != nil && c.Request != nil {
		return strings.TrimSpace(c.GetHeader("X-User-Email"))
	}
	return ""
}

// requestID returns the correlation id attached by the RequestID middleware.
func requestID(c *gin.Context) string {
	return c.Writer.Header().Get("X-Request-ID")
}

//
// DTOs
//

// ProductRequest is the JSON payload for creating or replacing a product.
type ProductRequest struct {
	Name  string  `json:"productName" binding:"required" example:"Notebook Avell A52"`
	Code  string  `json:"code" binding:"required" example:"AVL-A52"`
	Price float64 `json:"price" binding:"required,gt=0" example:"7499.90"`
	Model string  `json:"model" example:"A52 LIV"`
	URL   string  `json:"productUrl" example:"https://shop.example.com/products/avl-a52"`
}

func (r ProductRequest) data() services.ProductData {
	return services.ProductData{
		Name:  strings.TrimSpace(r.Name),
		Code:  strings.TrimSpace(r.Code),
		Price: r.Price,
		Model: strings.TrimSpace(r.Model),
		URL:   strings.TrimSpace(r.URL),
	}
}

//
// Handlers
//

// ListProducts godoc
// @ID          listProducts
// @Summary     List products
// @Description Returns the full product catalog.
// @Tags        Products
// @Produce     json
//
// @Success     200  {array}   domain.Product
// @Failure     500  {string}  string "Internal error"
// @Router      /products [get]
func (h *Handlers) ListProducts(c *gin.Context) {
	items, err := h.products.List(c.Request.Context())
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// GetProduct godoc
// @ID          getProduct
// @Summary     Fetch a product
// @Description Returns one product by id.
// @Tags        Products
// @Produce     json
//
// @Param       id  path  string  true  "Product ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Product
// @Failure     404  {string}  string "Product not found"
// @Router      /products/{id} [get]
func (h *Handlers) GetProduct(c *gin.Context) {
	p, err := h.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// CreateProduct godoc
// @ID          createProduct
// @Summary     Create a product
// @Description Persists a new product and publishes its lifecycle event.
// @Tags        Products
// @Accept      json
// @Produce     json
//
// @Param       X-User-Email  header  string                   false "Acting user email"
// @Param       body          body    handlers.ProductRequest  true  "Product payload"
//
// @Success     201  {object}  domain.Product
// @Failure     400  {string}  string "Bad request"
// @Failure     500  {string}  string "Internal error"
// @Router      /products [post]
func (h *Handlers) CreateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid product payload")
		return
	}
	p, err := h.products.Create(c.Request.Context(), requestID(c), userEmail(c), req.data())
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

// UpdateProduct godoc
// @ID          updateProduct
// @Summary     Replace a product
// @Description Replaces the stored product wholesale (last write wins).
// @Tags        Products
// @Accept      json
// @Produce     json
//
// @Param       X-User-Email  header  string                   false "Acting user email"
// @Param       id            path    string                   true  "Product ID (UUID)"  format(uuid)
// @Param       body          body    handlers.ProductRequest  true  "Product payload"
//
// @Success     200  {object}  domain.Product
// @Failure     400  {string}  string "Bad request"
// @Failure     404  {string}  string "Product not found"
// @Router      /products/{id} [put]
func (h *Handlers) UpdateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid product payload")
		return
	}
	p, err := h.products.Update(c.Request.Context(), requestID(c), userEmail(c), c.Param("id"), req.data())
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// DeleteProduct godoc
// @ID          deleteProduct
// @Summary     Delete a product
// @Description Deletes a product and returns the removed record.
// @Tags        Products
// @Produce     json
//
// @Param       X-User-Email  header  string  false "Acting user email"
// @Param       id            path    string  true  "Product ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Product
// @Failure     404  {string}  string "Product not found"
// @Router      /products/{id} [delete]
func (h *Handlers) DeleteProduct(c *gin.Context) {
	p, err := h.products.Delete(c.Request.Context(), requestID(c), userEmail(c), c.Param("id"))
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}
