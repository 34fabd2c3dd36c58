package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/internal/service"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
	"github.com/swg-labs/smssend-api/pkg/response"
)

// AccountHandler wires registration and email verification endpoints.
type AccountHandler struct {
	service *service.AccountService
}

// NewAccountHandler creates a new handler.
func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{service: svc}
}

// Register godoc
// @Summary Register a new account
// @Description Create an account and mail a verification link. The answer does not reveal whether the address was already registered.
// @Tags Account
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/register [post]
func (h *AccountHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	res, err := h.service.Register(c.Request.Context(), req, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, res, nil)
}

// VerifyEmail godoc
// @Summary Confirm an email address
// @Tags Account
// @Accept json
// @Produce json
// @Param payload body models.VerifyEmailRequest true "Verification payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/verify-email [post]
func (h *AccountHandler) VerifyEmail(c *gin.Context) {
	var req models.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid verification payload"))
		return
	}

	if err := h.service.VerifyEmail(c.Request.Context(), req, clientMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"verified": true}, nil)
}

// ResendVerification godoc
// @Summary Resend the verification email
// @Description Mails a fresh verification link. The answer does not reveal whether the address has an account.
// @Tags Account
// @Accept json
// @Produce json
// @Param payload body models.ResendVerificationRequest true "Resend payload"
// @Success 202 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/resend-verification [post]
func (h *AccountHandler) ResendVerification(c *gin.Context) {
	var req models.ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	res, err := h.service.ResendVerification(c.Request.Context(), req, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, res, nil)
}
