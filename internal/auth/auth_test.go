package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newProtectedRouter(audience string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/private", JWTMiddleware(testSecret, audience), func(c *gin.Context) {
		identity, _ := GetIdentity(c.Request.Context())
		c.String(http.StatusOK, identity)
	})
	return router
}

func doRequest(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestIssuedTokenUnlocksMiddleware(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, "dashboard", time.Minute)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, expires, err := issuer.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expected future expiry, got %v", expires)
	}

	resp := doRequest(newProtectedRouter("dashboard"), "Bearer "+token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp.Body.String() != "alice" {
		t.Fatalf("expected identity alice, got %q", resp.Body.String())
	}
}

func TestMiddlewareRejections(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, "", time.Minute)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	valid, _, err := issuer.Issue("bob")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	expiredIssuer, _ := NewTokenIssuer(testSecret, "", time.Minute)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := expiredIssuer.Issue("bob")
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "bob",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign foreign: %v", err)
	}

	wrongKey, _ := NewTokenIssuer("other-secret", "", time.Minute)
	forged, _, _ := wrongKey.Issue("bob")

	cases := map[string]struct {
		router *gin.Engine
		header string
	}{
		"missing header": {newProtectedRouter(""), ""},
		"not bearer":     {newProtectedRouter(""), "Basic abc"},
		"empty token":    {newProtectedRouter(""), "Bearer   "},
		"expired":        {newProtectedRouter(""), "Bearer " + expired},
		"foreign issuer": {newProtectedRouter(""), "Bearer " + foreign},
		"forged":         {newProtectedRouter(""), "Bearer " + forged},
		"wrong audience": {newProtectedRouter("dashboard"), "Bearer " + valid},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if resp := doRequest(tc.router, tc.header); resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.Code)
			}
		})
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer("  ", "", time.Minute); err != ErrMissingSecret {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}
