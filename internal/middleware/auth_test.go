package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "test-secret"

func signToken(t *testing.T, id primitive.ObjectID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  id.Hex(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestTokenFromRequestHeaderAndQueryResolveIdentically(t *testing.T) {
	gin.SetMode(gin.TestMode)
	id := primitive.NewObjectID()
	token := signToken(t, id, RoleUser)

	byHeader, _ := gin.CreateTestContext(httptest.NewRecorder())
	byHeader.Request = httptest.NewRequest("GET", "/api/notifications/subscribe", nil)
	byHeader.Request.Header.Set("Authorization", "Bearer "+token)

	byQuery, _ := gin.CreateTestContext(httptest.NewRecorder())
	byQuery.Request = httptest.NewRequest("GET", "/api/notifications/subscribe?token="+token, nil)

	for name, c := range map[string]*gin.Context{"header": byHeader, "query": byQuery} {
		raw, err := TokenFromRequest(c)
		if err != nil {
			t.Fatalf("%s: TokenFromRequest returned error: %v", name, err)
		}
		gotID, gotRole, err := ResolvePrincipal(raw, testSecret)
		if err != nil {
			t.Fatalf("%s: ResolvePrincipal returned error: %v", name, err)
		}
		if gotID != id || gotRole != RoleUser {
			t.Fatalf("%s: resolved (%s, %s), want (%s, %s)", name, gotID.Hex(), gotRole, id.Hex(), RoleUser)
		}
	}
}

func TestTokenFromRequestRejectsMalformedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)
	c.Request.Header.Set("Authorization", "Token abc")

	if _, err := TokenFromRequest(c); err == nil {
		t.Fatal("expected error for non-bearer scheme")
	}
}

func TestAuthGuardRoleEnforcement(t *testing.T) {
	gin.SetMode(gin.TestMode)
	id := primitive.NewObjectID()

	router := gin.New()
	router.GET("/center-only", AuthGuard(testSecret, RoleCarCenter), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong role", signToken(t, id, RoleUser), http.StatusForbidden},
		{"allowed role", signToken(t, id, RoleCarCenter), http.StatusOK},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/center-only", nil)
		if tt.token != "" {
			req.Header.Set("Authorization", "Bearer "+tt.token)
		}
		router.ServeHTTP(rec, req)
		if rec.Code != tt.status {
			t.Fatalf("%s: got status %d, want %d", tt.name, rec.Code, tt.status)
		}
	}
}

func TestResolvePrincipalRejectsBadSignature(t *testing.T) {
	id := primitive.NewObjectID()
	token := signToken(t, id, RoleUser)
	if _, _, err := ResolvePrincipal(token, "other-secret"); err == nil {
		t.Fatal("expected error for wrong signing secret")
	}
}
