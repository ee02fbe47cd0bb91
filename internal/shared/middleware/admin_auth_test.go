package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	admin := r.Group("/admin", AdminAuth(secret))
	admin.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString("admin_subject")})
	})
	return r
}

func signToken(t *testing.T, secret []byte, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops@terangashop.sn",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func adminGet(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAdminAuth(t *testing.T) {
	router := newAdminRouter("server-secret")

	w := adminGet(router, signToken(t, []byte("server-secret"), "admin"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuth_MissingToken(t *testing.T) {
	router := newAdminRouter("server-secret")

	assert.Equal(t, http.StatusUnauthorized, adminGet(router, "").Code)
}

func TestAdminAuth_WrongKey(t *testing.T) {
	router := newAdminRouter("server-secret")

	// Tokens minted with a guessed key must not verify; the empty key is the
	// classic guess when a deployment forgets to set the secret.
	assert.Equal(t, http.StatusUnauthorized, adminGet(router, signToken(t, []byte(""), "admin")).Code)
	assert.Equal(t, http.StatusUnauthorized, adminGet(router, signToken(t, []byte("other"), "admin")).Code)
}

func TestAdminAuth_NonAdminRole(t *testing.T) {
	router := newAdminRouter("server-secret")

	assert.Equal(t, http.StatusForbidden, adminGet(router, signToken(t, []byte("server-secret"), "support")).Code)
}

func TestAdminAuth_RejectsUnsignedToken(t *testing.T) {
	router := newAdminRouter("server-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodNone, &AdminClaims{Role: "admin"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, adminGet(router, signed).Code)
}
