// Invoice upload handler.
//
// This file exposes the time-limited upload target issued over the WebSocket
// channel:
//   - PUT /invoices/upload/{key}
//
// The endpoint plays the role of a presigned object PUT: it stores the body
// under the key and then resumes the invoice handshake. The processing
// outcome (INVOICE_RECEIVED / INVOICE_PROCESSED / error) is reported over the
// live connection, not in the HTTP response — once the object is accepted the
// upload itself has succeeded.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ndgaspar/go-commerce-backend/internal/http/middleware"
	"github.com/ndgaspar/go-commerce-backend/internal/storage"
)

// UploadInvoice godoc
// @ID          uploadInvoice
// @Summary     Upload an invoice file
// @Description Stores the uploaded object under the key issued by the WebSocket
// @Description channel and resumes the invoice transaction. Processing status is
// @Description pushed over the originating connection.
// @Tags        Invoices
// @Accept      json
// @Produce     json
//
// @Param       key  path  string  true  "Upload key (transaction ID)"  format(uuid)
//
// @Success     200  {string}  string "Upload accepted"
// @Failure     400  {string}  string "Invalid key or unreadable body"
// @Failure     500  {string}  string "Storage error"
// @Router      /invoices/upload/{key} [put]
func (h *Handlers) UploadInvoice(c *gin.Context) {
	key := c.Param("key")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, "unreadable request body")
		return
	}

	ctx := c.Request.Context()
	if err := h.store.Put(ctx, key, body); err != nil {
		if errors.Is(err, storage.ErrInvalidKey) {
			fail(c, http.StatusBadRequest, "invalid upload key")
			return
		}
		failFromService(c, err)
		return
	}

	// The object is durable; handshake errors from here on are the client's
	// to observe over its connection.
	if err := h.invoices.OnUploadReceived(ctx, key); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).
			Str("key", key).
			Msg("invoice processing failed")
	}
	ok(c, http.StatusOK, "upload accepted")
}
