package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/internal/service"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
	"github.com/swg-labs/smssend-api/pkg/response"
)

// SmsHandler wires SMS dispatch, history, and settings endpoints.
type SmsHandler struct {
	service *service.SmsService
}

// NewSmsHandler creates a new handler.
func NewSmsHandler(svc *service.SmsService) *SmsHandler {
	return &SmsHandler{service: svc}
}

// Dispatch godoc
// @Summary Queue review-request messages
// @Description Queue one SMS per selected order; delivery happens in the background.
// @Tags SMS
// @Accept json
// @Produce json
// @Param payload body models.SmsDispatchRequest true "Dispatch payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /sms/dispatch [post]
func (h *SmsHandler) Dispatch(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.SmsDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid dispatch payload"))
		return
	}

	res, err := h.service.Dispatch(c.Request.Context(), claims.UserID, req, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, res, nil)
}

// History godoc
// @Summary Recent dispatch log
// @Tags SMS
// @Produce json
// @Param limit query int false "Row limit"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sms/history [get]
func (h *SmsHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	logs, err := h.service.History(c.Request.Context(), claims.UserID, queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, logs, nil)
}

// GetSettings godoc
// @Summary Sender settings
// @Description Returns the per-user sender configuration; the token is masked.
// @Tags SMS
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sms/settings [get]
func (h *SmsHandler) GetSettings(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	settings, err := h.service.GetSettings(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, settings, nil)
}

// UpdateSettings godoc
// @Summary Update sender settings
// @Tags SMS
// @Accept json
// @Produce json
// @Param payload body models.SmsSettingsRequest true "Settings payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /sms/settings [put]
func (h *SmsHandler) UpdateSettings(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.SmsSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid settings payload"))
		return
	}

	settings, err := h.service.UpdateSettings(c.Request.Context(), claims.UserID, req, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, settings, nil)
}
