package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/internal/service"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
	"github.com/swg-labs/smssend-api/pkg/response"
)

// PasswordResetHandler wires the forgot/reset-password endpoints.
type PasswordResetHandler struct {
	service *service.PasswordResetService
}

// NewPasswordResetHandler creates a new handler.
func NewPasswordResetHandler(svc *service.PasswordResetService) *PasswordResetHandler {
	return &PasswordResetHandler{service: svc}
}

// Forgot godoc
// @Summary Request a password reset code
// @Description Mails a short one-time code. The answer does not reveal whether the address has an account.
// @Tags Account
// @Accept json
// @Produce json
// @Param payload body models.ForgotPasswordRequest true "Forgot payload"
// @Success 202 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/forgot-password [post]
func (h *PasswordResetHandler) Forgot(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	res, err := h.service.Forgot(c.Request.Context(), req, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, res, nil)
}

// Reset godoc
// @Summary Reset the password with a mailed code
// @Description Consumes the code, replaces the password, and closes every open session.
// @Tags Account
// @Accept json
// @Produce json
// @Param payload body models.ResetPasswordRequest true "Reset payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/reset-password [post]
func (h *PasswordResetHandler) Reset(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.Reset(c.Request.Context(), req, clientMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"reset": true}, nil)
}
