package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/swg-labs/smssend-api/internal/middleware"
	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/internal/security"
)

func claimsFromContext(c *gin.Context) *security.AccessClaims {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil
	}
	return claims
}

func clientMeta(c *gin.Context) models.ClientMeta {
	return models.ClientMeta{
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
}
