package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/internal/service"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
	"github.com/swg-labs/smssend-api/pkg/response"
	"github.com/swg-labs/smssend-api/pkg/storage"
)

// OrderHandler wires order import, listing, and export endpoints.
type OrderHandler struct {
	service *service.OrderService
	files   *storage.LocalStorage
}

// NewOrderHandler creates a new handler.
func NewOrderHandler(svc *service.OrderService, files *storage.LocalStorage) *OrderHandler {
	return &OrderHandler{service: svc, files: files}
}

// Import godoc
// @Summary Import order rows
// @Description Store a batch of pre-parsed order rows; duplicates are skipped.
// @Tags Orders
// @Accept json
// @Produce json
// @Param payload body models.OrderImportRequest true "Import payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /orders/import [post]
func (h *OrderHandler) Import(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.OrderImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid import payload"))
		return
	}

	res, err := h.service.Import(c.Request.Context(), claims.UserID, req, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// List godoc
// @Summary List orders
// @Tags Orders
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param search query string false "Search order number, customer, AWB"
// @Param status query string false "Order status filter"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /orders [get]
func (h *OrderHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.OrderFilter{
		UserID:    claims.UserID,
		Search:    c.Query("search"),
		Status:    c.Query("status"),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	orders, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, orders, pagination)
}

// Export godoc
// @Summary Export orders as CSV
// @Description Renders every order into a CSV file and returns a signed, expiring download link.
// @Tags Orders
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /orders/export [post]
func (h *OrderHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	res, err := h.service.Export(c.Request.Context(), claims.UserID, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Download godoc
// @Summary Download a generated export
// @Tags Orders
// @Produce text/csv
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /orders/export/{token} [get]
func (h *OrderHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	relPath, err := h.service.ResolveExport(claims.UserID, c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.FileAttachment(h.files.Path(relPath), relPath)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
