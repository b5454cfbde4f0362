// Order HTTP handlers.
//
// This file exposes REST endpoints for the order workflow and the correlated
// event log:
//   - GET    /orders          (all, by email, or one by email+orderId)
//   - POST   /orders          (submit)
//   - DELETE /orders          (delete by email+orderId, returns prior record)
//   - GET    /orders/events   (per-customer lifecycle events)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ndgaspar/go-commerce-backend/internal/domain"
	"github.com/ndgaspar/go-commerce-backend/internal/services"
)

// OrderSubmission is the JSON payload for submitting an order.
type OrderSubmission struct {
	Email      string   `json:"email" binding:"required,email" example:"customer@example.com"`
	ProductIDs []string `json:"productIds" binding:"required,min=1"`
	Payment    string   `json:"payment" binding:"required" example:"CREDIT_CARD"`
	Shipping   struct {
		Type    string `json:"type" example:"EXPRESS"`
		Carrier string `json:"carrier" example:"DHL"`
	} `json:"shipping"`
}

// GetOrders godoc
// @ID          getOrders
// @Summary     List or fetch orders
// @Description Without query params returns every order; with email returns that
// @Description customer's orders; with email and orderId returns the single order.
// @Description orderId without email is rejected.
// @Tags        Orders
// @Produce     json
//
// @Param       email    query  string  false "Customer email"
// @Param       orderId  query  string  false "Order ID (requires email)"  format(uuid)
//
// @Success     200  {array}   domain.Order
// @Failure     400  {string}  string "orderId requires email"
// @Failure     404  {string}  string "Order not found"
// @Router      /orders [get]
func (h *Handlers) GetOrders(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	orderID := strings.TrimSpace(c.Query("orderId"))

	if orderID != "" {
		if email == "" {
			fail(c, http.StatusBadRequest, "orderId query parameter requires email")
			return
		}
		o, err := h.orders.Get(c.Request.Context(), email, orderID)
		if err != nil {
			failFromService(c, err)
			return
		}
		ok(c, http.StatusOK, o)
		return
	}

	items, err := h.orders.List(c.Request.Context(), email)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// SubmitOrder godoc
// @ID          submitOrder
// @Summary     Submit an order
// @Description Resolves every product id (all-or-nothing), computes the total
// @Description server-side, persists the order, and publishes ORDER_CREATED.
// @Tags        Orders
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.OrderSubmission  true  "Order payload"
//
// @Success     201  {object}  domain.Order
// @Failure     400  {string}  string "Bad request"
// @Failure     404  {string}  string "Some products were not found"
// @Router      /orders [post]
func (h *Handlers) SubmitOrder(c *gin.Context) {
	var req OrderSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid order payload")
		return
	}

	o, err := h.orders.Submit(c.Request.Context(), requestID(c), services.OrderRequest{
		Email:      strings.TrimSpace(req.Email),
		ProductIDs: req.ProductIDs,
		Payment:    req.Payment,
		Shipping: domain.Shipping{
			Type:    req.Shipping.Type,
			Carrier: req.Shipping.Carrier,
		},
	})
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusCreated, o)
}

// DeleteOrder godoc
// @ID          deleteOrder
// @Summary     Delete an order
// @Description Deletes one order by (email, orderId) and returns the removed
// @Description record; publishes ORDER_DELETED derived from it.
// @Tags        Orders
// @Produce     json
//
// @Param       email    query  string  true  "Customer email"
// @Param       orderId  query  string  true  "Order ID"  format(uuid)
//
// @Success     200  {object}  domain.Order
// @Failure     400  {string}  string "Missing email or orderId"
// @Failure     404  {string}  string "Order not found"
// @Router      /orders [delete]
func (h *Handlers) DeleteOrder(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	orderID := strings.TrimSpace(c.Query("orderId"))
	if email == "" || orderID == "" {
		fail(c, http.StatusBadRequest, "email and orderId query parameters are required")
		return
	}

	o, err := h.orders.Delete(c.Request.Context(), requestID(c), email, orderID)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}

// GetOrderEvents godoc
// @ID          getOrderEvents
// @Summary     Query lifecycle events
// @Description Returns the customer's lifecycle events in ascending timestamp
// @Description order, optionally filtered to an event type prefix (e.g. "ORDER_").
// @Tags        Orders
// @Produce     json
//
// @Param       email      query  string  true  "Customer email"
// @Param       eventType  query  string  false "Event type prefix filter"  example(ORDER_)
//
// @Success     200  {array}   services.CustomerEvent
// @Failure     400  {string}  string "Missing email"
// @Router      /orders/events [get]
func (h *Handlers) GetOrderEvents(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		fail(c, http.StatusBadRequest, "email query parameter is required")
		return
	}

	events, err := h.events.QueryByCustomer(c.Request.Context(), email, strings.TrimSpace(c.Query("eventType")))
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, events)
}
