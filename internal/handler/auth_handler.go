package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/internal/service"
	"github.com/swg-labs/smssend-api/pkg/config"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
	"github.com/swg-labs/smssend-api/pkg/response"
)

// AuthHandler wires the session endpoints. The refresh token travels in
// an HttpOnly cookie only; response bodies never carry it.
type AuthHandler struct {
	service *service.AuthService
	config  config.AuthConfig
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc *service.AuthService, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{service: svc, config: cfg}
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate by email and password; sets the refresh cookie
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	pair, err := h.service.Login(c.Request.Context(), req, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	response.JSON(c, http.StatusOK, pair, nil)
}

// Refresh godoc
// @Summary Rotate the refresh session
// @Description Exchange the refresh cookie for a new token pair
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	raw, _ := c.Cookie(h.config.CookieName)

	pair, err := h.service.Refresh(c.Request.Context(), raw, clientMeta(c))
	if err != nil {
		// A dead session keeps no cookie.
		h.clearRefreshCookie(c)
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	response.JSON(c, http.StatusOK, pair, nil)
}

// Logout godoc
// @Summary Close the current session
// @Description Revoke the refresh session and clear the cookie
// @Tags Authentication
// @Produce json
// @Success 204 "No Content"
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	raw, _ := c.Cookie(h.config.CookieName)

	if err := h.service.Logout(c.Request.Context(), raw, clientMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	h.clearRefreshCookie(c)
	response.NoContent(c)
}

// Me godoc
// @Summary Current user profile
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.service.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user, nil)
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(
		h.config.CookieName,
		token,
		int(h.config.RefreshTokenExpiry.Seconds()),
		h.config.CookiePath,
		h.config.CookieDomain,
		h.config.CookieSecure,
		true,
	)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.config.CookieName, "", -1, h.config.CookiePath, h.config.CookieDomain, h.config.CookieSecure, true)
}
