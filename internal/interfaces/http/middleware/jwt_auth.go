package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/turtacn/keytrust/internal/application/service"
	"github.com/turtacn/keytrust/internal/domain/models"
	domainService "github.com/turtacn/keytrust/internal/domain/service"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/errors"
	"github.com/turtacn/keytrust/pkg/logger"
	"github.com/turtacn/keytrust/pkg/utils"
)

// unauthenticated is the only body a rejected caller ever sees.
var unauthenticated = gin.H{"error": string(errors.CodeUnauthenticated)}

// RequireAuth protects routes that need a verified caller. Any token rejection yields the same
// 401 body so callers cannot tell which check failed; backend unavailability yields 503.
// permissions may be nil, in which case the authorities carried by the token are used as-is.
func RequireAuth(verifier service.TokenVerifier, permissions domainService.PermissionLoader, log logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("AuthenticationGate")
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		raw, ok := utils.ExtractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthenticated)
			return
		}

		identity, err := verifier.Verify(ctx, raw)
		if err != nil {
			if errors.IsUnavailable(err) {
				log.Error(ctx, "Token verification unavailable", err, logger.String("path", c.FullPath()))
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, errors.ToErrorResponse(err))
				return
			}
			log.Debug(ctx, "Token rejected",
				logger.String("reason", string(errors.CodeOf(err))), logger.String("token", utils.MaskToken(raw)))
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthenticated)
			return
		}

		if permissions != nil {
			authorities, err := permissions.LoadPermissions(ctx, identity)
			if err != nil {
				log.Warn(ctx, "Permission reload failed, continuing with no authorities",
					logger.String("sub", identity.Subject), logger.Error(err))
				authorities = []string{}
			}
			identity.Authorities = authorities
		}

		c.Set(constants.GinKeyIdentity, identity)
		c.Request = c.Request.WithContext(context.WithValue(ctx, constants.ContextKeyIdentity, identity))
		c.Next()
	}
}

// RequirePermission rejects callers holding none of the listed authorities with 403.
// It must run after RequireAuth.
func RequirePermission(perms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthenticated)
			return
		}
		if len(perms) > 0 && !identity.HasAnyAuthority(perms...) {
			c.AbortWithStatusJSON(http.StatusForbidden, errors.ToErrorResponse(errors.ErrForbidden))
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by RequireAuth.
func IdentityFrom(c *gin.Context) (*models.Identity, bool) {
	v, ok := c.Get(constants.GinKeyIdentity)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*models.Identity)
	return identity, ok && identity != nil
}

// IdentityFromContext returns the identity stored in a request context by RequireAuth.
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(constants.ContextKeyIdentity).(*models.Identity)
	return identity, ok && identity != nil
}
