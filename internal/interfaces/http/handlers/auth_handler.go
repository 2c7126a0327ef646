package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/turtacn/keytrust/internal/application/dto"
	"github.com/turtacn/keytrust/internal/application/service"
	"github.com/turtacn/keytrust/internal/interfaces/http/middleware"
	"github.com/turtacn/keytrust/pkg/errors"
	"github.com/turtacn/keytrust/pkg/logger"
	"github.com/turtacn/keytrust/pkg/utils"
)

// AuthHandler handles HTTP requests for authenticated callers.
type AuthHandler struct {
	revocation service.RevocationService
	logger     logger.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(revocation service.RevocationService, log logger.Logger) *AuthHandler {
	return &AuthHandler{revocation: revocation, logger: log.WithComponent("AuthHandler")}
}

// Logout revokes the bearer token the caller authenticated with. Runs behind the authentication gate.
func (h *AuthHandler) Logout(c *gin.Context) {
	raw, ok := utils.ExtractBearerToken(c.GetHeader("Authorization"))
	if !ok {
		sendError(c, errors.ErrUnauthenticated)
		return
	}

	entry, err := h.revocation.Logout(c.Request.Context(), raw)
	if err != nil {
		sendError(c, err)
		return
	}
	sendOK(c, &dto.LogoutResponse{TokenID: entry.TokenID, Revoked: true})
}

// Me returns the verified identity of the caller.
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		sendError(c, errors.ErrUnauthenticated)
		return
	}
	sendOK(c, dto.NewIdentityResponse(identity))
}
