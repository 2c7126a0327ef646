package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/internal/domain/service/mocks"
	"github.com/turtacn/keytrust/pkg/errors"
	"github.com/turtacn/keytrust/pkg/logger"
)

type verifierFunc func(ctx context.Context, token string) (*models.Identity, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (*models.Identity, error) {
	return f(ctx, token)
}

func identityFor(authorities ...string) verifierFunc {
	return func(context.Context, string) (*models.Identity, error) {
		return &models.Identity{Subject: "alice", UserID: "7", TokenID: "jti-1", Authorities: authorities}, nil
	}
}

func serve(t *testing.T, handlers ...gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", handlers...)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func ok(c *gin.Context) { c.Status(http.StatusNoContent) }

func TestRequireAuth_RejectionsAreUniform(t *testing.T) {
	rejections := []error{
		errors.ErrMalformedToken,
		errors.ErrSignatureInvalid,
		errors.ErrTokenExpired,
		errors.ErrTokenNotYetValid,
		errors.ErrTokenRevoked,
	}
	for _, rejection := range rejections {
		t.Run(string(errors.CodeOf(rejection)), func(t *testing.T) {
			v := verifierFunc(func(context.Context, string) (*models.Identity, error) { return nil, rejection })
			w := serve(t, RequireAuth(v, nil, logger.NewNoopLogger()), ok)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"unauthenticated"}`, w.Body.String())
		})
	}
}

func TestRequireAuth_BackendUnavailableIs503(t *testing.T) {
	for _, cause := range []error{
		errors.RevocationUnavailable("is_revoked", stderrors.New("redis down")),
		errors.StoreUnavailable("list_valid", stderrors.New("pg down")),
	} {
		v := verifierFunc(func(context.Context, string) (*models.Identity, error) { return nil, cause })
		w := serve(t, RequireAuth(v, nil, logger.NewNoopLogger()), ok)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.NotContains(t, w.Body.String(), "down")
	}
}

func TestRequireAuth_StoresIdentity(t *testing.T) {
	var fromGin, fromCtx *models.Identity
	capture := func(c *gin.Context) {
		fromGin, _ = IdentityFrom(c)
		fromCtx, _ = IdentityFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	}
	w := serve(t, RequireAuth(identityFor("a"), nil, logger.NewNoopLogger()), capture)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, fromGin)
	assert.Same(t, fromGin, fromCtx)
	assert.Equal(t, []string{"a"}, fromGin.Authorities)
}

func TestRequireAuth_PermissionReload(t *testing.T) {
	loader := new(mocks.MockPermissionLoader)
	loader.On("LoadPermissions", mock.Anything, mock.MatchedBy(func(id *models.Identity) bool { return id.UserID == "7" })).
		Return([]string{"system:key:query"}, nil).Once()

	w := serve(t,
		RequireAuth(identityFor("stale"), loader, logger.NewNoopLogger()),
		RequirePermission("system:key:query"),
		ok,
	)
	assert.Equal(t, http.StatusNoContent, w.Code)
	loader.AssertExpectations(t)
}

func TestRequireAuth_PermissionLoadFailureMeansNoAuthorities(t *testing.T) {
	loader := new(mocks.MockPermissionLoader)
	loader.On("LoadPermissions", mock.Anything, mock.Anything).Return(nil, stderrors.New("user service down"))

	w := serve(t,
		RequireAuth(identityFor("system:key:query"), loader, logger.NewNoopLogger()),
		RequirePermission("system:key:query"),
		ok,
	)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name  string
		held  []string
		perms []string
		want  int
	}{
		{"holds one of", []string{"b"}, []string{"a", "b"}, http.StatusNoContent},
		{"holds none", []string{"c"}, []string{"a", "b"}, http.StatusForbidden},
		{"nothing required", nil, nil, http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(t, RequireAuth(identityFor(tc.held...), nil, logger.NewNoopLogger()), RequirePermission(tc.perms...), ok)
			assert.Equal(t, tc.want, w.Code)
		})
	}

	w := serve(t, RequirePermission("a"), ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "gate missing from chain")
}
