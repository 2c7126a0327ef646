package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/internal/infrastructure/crypto"
	"github.com/turtacn/keytrust/pkg/errors"
	"github.com/turtacn/keytrust/pkg/logger"
)

// jwksCacheControl lets relying parties cache the set briefly and revalidate by ETag.
const jwksCacheControl = "public, max-age=300, must-revalidate"

// KeySetSource provides the current verification key set.
type KeySetSource interface {
	GetVerificationKeySet(ctx context.Context) (*models.TrustedKeySet, error)
}

// JWKSHandler publishes the verification key set as an RFC 7517 JWKS document.
type JWKSHandler struct {
	keys    KeySetSource
	pubkeys *crypto.PublicKeyCache
	logger  logger.Logger
}

func NewJWKSHandler(keys KeySetSource, log logger.Logger) *JWKSHandler {
	return &JWKSHandler{keys: keys, pubkeys: crypto.NewPublicKeyCache(), logger: log.WithComponent("JWKSHandler")}
}

// GetJWKS serves every key still trusted for verification. Private material never leaves the store.
// Clients presenting a matching If-None-Match get 304.
func (h *JWKSHandler) GetJWKS(c *gin.Context) {
	ctx := c.Request.Context()

	set, err := h.keys.GetVerificationKeySet(ctx)
	if err != nil {
		h.logger.Error(ctx, "get verification key set failed", err)
		c.JSON(errors.HTTPStatusOf(err), errors.ToErrorResponse(err))
		return
	}
	h.pubkeys.Retain(set)

	etag, body, err := crypto.JWKSETag(crypto.ToJWKS(set, h.pubkeys))
	if err != nil {
		h.logger.Error(ctx, "encode jwks failed", err)
		c.JSON(http.StatusInternalServerError, errors.ToErrorResponse(errors.ErrInternal))
		return
	}

	c.Header("ETag", etag)
	c.Header("Cache-Control", jwksCacheControl)
	if match := c.GetHeader("If-None-Match"); match == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}
