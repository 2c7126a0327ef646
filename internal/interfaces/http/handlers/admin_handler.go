package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/turtacn/keytrust/internal/application/dto"
	"github.com/turtacn/keytrust/internal/application/service"
	"github.com/turtacn/keytrust/internal/interfaces/http/middleware"
	"github.com/turtacn/keytrust/pkg/errors"
	"github.com/turtacn/keytrust/pkg/logger"
)

// AdminHandler exposes key administration and token issuance to privileged callers.
type AdminHandler struct {
	lifecycle service.KeyLifecycleService
	issuer    service.TokenIssuer
	clock     func() time.Time
	logger    logger.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(lifecycle service.KeyLifecycleService, issuer service.TokenIssuer, log logger.Logger) *AdminHandler {
	return &AdminHandler{
		lifecycle: lifecycle,
		issuer:    issuer,
		clock:     time.Now,
		logger:    log.WithComponent("AdminHandler"),
	}
}

// ListKeys returns metadata of every stored key, newest first.
func (h *AdminHandler) ListKeys(c *gin.Context) {
	keys, err := h.lifecycle.ListKeys(c.Request.Context())
	if err != nil {
		sendError(c, err)
		return
	}
	sendOK(c, &dto.KeyListResponse{Keys: keys, Total: len(keys)})
}

// RotateKey rotates the signing key if it is due. ?force=true rotates unconditionally.
func (h *AdminHandler) RotateKey(c *gin.Context) {
	ctx := c.Request.Context()
	force, _ := strconv.ParseBool(c.Query("force"))

	var (
		res *service.RotationResult
		err error
	)
	if force {
		res, err = h.lifecycle.ForceRotate(ctx)
	} else {
		res, err = h.lifecycle.Rotate(ctx)
	}
	if err != nil {
		sendError(c, err)
		return
	}

	if identity, ok := middleware.IdentityFrom(c); ok {
		h.logger.Info(ctx, "Key rotation requested",
			logger.String("sub", identity.Subject),
			logger.Bool("force", force),
			logger.Bool("rotated", res.Rotated),
			logger.String("kid", res.Key.KeyID),
		)
	}
	sendOK(c, &dto.RotationResponse{
		Rotated:       res.Rotated,
		PreviousKeyID: res.PreviousKeyID,
		ActiveKey:     res.Key.Info(h.clock()),
	})
}

// PurgeKeys deletes keys expired longer than the configured retention.
func (h *AdminHandler) PurgeKeys(c *gin.Context) {
	purged, err := h.lifecycle.PurgeExpired(c.Request.Context(), 0)
	if err != nil {
		sendError(c, err)
		return
	}
	sendOK(c, &dto.PurgeResponse{Purged: purged})
}

// IssueToken signs a token for the requested subject.
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req dto.TokenIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, errors.ErrInvalidRequest("request body must be a JSON token issue request"))
		return
	}

	token, err := h.issuer.Issue(c.Request.Context(), &req)
	if err != nil {
		sendError(c, err)
		return
	}
	sendOK(c, dto.NewTokenResponse(token))
}
