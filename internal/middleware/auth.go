package middleware

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Principal roles carried in the token. The role travels inside the signed
// claims, so resolving a caller never probes the user, center and admin
// collections in sequence.
const (
	RoleUser      = "USER"
	RoleCarCenter = "CAR_CENTER"
	RoleAdmin     = "ADMIN"
)

const (
	principalIDKey = "principalId"
	roleKey        = "role"
)

// TokenFromRequest extracts the bearer credential from the Authorization
// header or, for streaming clients that cannot set headers, from the token
// query parameter. Both paths feed the same parsing logic.
func TokenFromRequest(c *gin.Context) (string, error) {
	raw := strings.TrimSpace(c.GetHeader("Authorization"))
	if raw != "" {
		parts := strings.Split(raw, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", errors.New("invalid token format")
		}
		return parts[1], nil
	}

	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token, nil
	}

	return "", errors.New("missing token")
}

// ResolvePrincipal validates the token and returns the principal id and role.
func ResolvePrincipal(tokenString, secret string) (primitive.ObjectID, string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return primitive.NilObjectID, "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return primitive.NilObjectID, "", errors.New("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || strings.TrimSpace(sub) == "" {
		return primitive.NilObjectID, "", errors.New("sub claim missing")
	}

	id, err := primitive.ObjectIDFromHex(sub)
	if err != nil {
		return primitive.NilObjectID, "", errors.New("invalid sub claim")
	}

	role, _ := claims["role"].(string)
	if role == "" {
		return primitive.NilObjectID, "", errors.New("role claim missing")
	}

	return id, role, nil
}

// AuthGuard validates the bearer credential and, when roles are given,
// requires the principal's role to be one of them.
func AuthGuard(secret string, allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := TokenFromRequest(c)
		if err != nil {
			log.Println("[AUTH] [ERROR]", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, role, err := ResolvePrincipal(tokenString, secret)
		if err != nil {
			log.Println("[AUTH] [ERROR] token validation failed:", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if len(allowedRoles) > 0 {
			match := false
			for _, allowed := range allowedRoles {
				if role == allowed {
					match = true
					break
				}
			}
			if !match {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
		}

		c.Set(principalIDKey, id)
		c.Set(roleKey, role)
		c.Next()
	}
}

// PrincipalID returns the authenticated principal id set by AuthGuard.
func PrincipalID(c *gin.Context) (primitive.ObjectID, bool) {
	value, ok := c.Get(principalIDKey)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, ok := value.(primitive.ObjectID)
	return id, ok
}

// Role returns the authenticated principal role set by AuthGuard.
func Role(c *gin.Context) string {
	value, ok := c.Get(roleKey)
	if !ok {
		return ""
	}
	role, _ := value.(string)
	return role
}
