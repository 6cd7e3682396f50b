package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/prizzzz/leaseIQ/config"
	"github.com/prizzzz/leaseIQ/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testAuth = &config.AuthConfig{
	JWTSecret:        "test-secret-key",
	TokenExpireHours: 24,
}

func signClaims(t *testing.T, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testAuth.JWTSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func TestGenerateToken(t *testing.T) {
	token, expiresAt, err := GenerateToken("testuser", "testtenant", testAuth)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	expectedExpiry := time.Now().Add(24 * time.Hour)
	if expiresAt.Before(expectedExpiry.Add(-time.Minute)) || expiresAt.After(expectedExpiry.Add(time.Minute)) {
		t.Errorf("Expiry time %v is not within expected range of %v", expiresAt, expectedExpiry)
	}

	claims, err := ParseToken(token, testAuth)
	if err != nil {
		t.Fatalf("Failed to parse generated token: %v", err)
	}
	if claims.Username != "testuser" || claims.Tenant != "testtenant" || claims.Subject != "testuser" {
		t.Errorf("Unexpected claims: %+v", claims)
	}
}

func TestAuthMiddleware(t *testing.T) {
	token, _, err := GenerateToken("testuser", "testtenant", testAuth)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	valid := jwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"invalid format", token, http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"invalid token", "Bearer invalid.token.here", http.StatusUnauthorized},
		{
			"expired token",
			"Bearer " + signClaims(t, jwt.SigningMethodHS256, Claims{Username: "u", Tenant: "t", RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			}}),
			http.StatusUnauthorized,
		},
		{
			"foreign issuer",
			"Bearer " + signClaims(t, jwt.SigningMethodHS256, Claims{Username: "u", Tenant: "t", RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "someone-else",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}}),
			http.StatusUnauthorized,
		},
		{
			"other algorithm",
			"Bearer " + signClaims(t, jwt.SigningMethodHS512, Claims{Username: "u", Tenant: "t", RegisteredClaims: valid}),
			http.StatusUnauthorized,
		},
		{
			"no tenant",
			"Bearer " + signClaims(t, jwt.SigningMethodHS256, Claims{Username: "u", RegisteredClaims: valid}),
			http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(AuthMiddleware(testAuth))
			router.GET("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "ok"})
			})

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestAuthMiddlewarePopulatesLogContext(t *testing.T) {
	token, _, _ := GenerateToken("testuser", "testtenant", testAuth)

	var tenant, username any
	router := gin.New()
	router.Use(AuthMiddleware(testAuth))
	router.GET("/test", func(c *gin.Context) {
		tenant = c.Request.Context().Value(logger.TenantKey)
		username = c.Request.Context().Value(logger.UsernameKey)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if tenant != "testtenant" || username != "testuser" {
		t.Errorf("Expected tenant and username in request context, got %v/%v", tenant, username)
	}
}

func TestGetUsername(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if GetUsername(c) != "" {
		t.Error("Expected empty string for unset username")
	}

	c.Set("username", "testuser")
	if GetUsername(c) != "testuser" {
		t.Errorf("Expected 'testuser', got '%s'", GetUsername(c))
	}
}

func TestGetTenant(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if GetTenant(c) != "" {
		t.Error("Expected empty string for unset tenant")
	}

	c.Set("tenant", "testtenant")
	if GetTenant(c) != "testtenant" {
		t.Errorf("Expected 'testtenant', got '%s'", GetTenant(c))
	}
}
