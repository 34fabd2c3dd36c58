package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/internal/service"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
	"github.com/swg-labs/smssend-api/pkg/response"
	"github.com/swg-labs/smssend-api/pkg/storage"
)

// BillingHandler wires checkout and invoice endpoints.
type BillingHandler struct {
	service *service.BillingService
	files   *storage.LocalStorage
}

// NewBillingHandler creates a new handler.
func NewBillingHandler(svc *service.BillingService, files *storage.LocalStorage) *BillingHandler {
	return &BillingHandler{service: svc, files: files}
}

// Checkout godoc
// @Summary Start a checkout session
// @Description Opens a hosted checkout session for an SMS credit pack.
// @Tags Billing
// @Accept json
// @Produce json
// @Param payload body models.CheckoutRequest true "Checkout payload"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Security BearerAuth
// @Router /billing/checkout [post]
func (h *BillingHandler) Checkout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid checkout payload"))
		return
	}

	session, err := h.service.Checkout(c.Request.Context(), claims.UserID, req, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, session, nil)
}

// GenerateInvoice godoc
// @Summary Generate an invoice PDF
// @Tags Billing
// @Accept json
// @Produce json
// @Param payload body models.CheckoutRequest true "Pack to invoice"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /billing/invoices [post]
func (h *BillingHandler) GenerateInvoice(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid invoice payload"))
		return
	}

	invoice, err := h.service.GenerateInvoice(c.Request.Context(), claims.UserID, req.Pack)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, invoice, nil)
}

// DownloadInvoice godoc
// @Summary Download a generated invoice
// @Tags Billing
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /billing/invoices/{token} [get]
func (h *BillingHandler) DownloadInvoice(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	relPath, err := h.service.ResolveInvoice(claims.UserID, c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.FileAttachment(h.files.Path(relPath), relPath)
}
