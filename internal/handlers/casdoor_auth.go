package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/openlearn-io/quiz-attempt-service/internal/config"
	"github.com/openlearn-io/quiz-attempt-service/internal/models"
)

// CasdoorAuthMiddleware resolves the caller's identity, role, and classroom
// from a Casdoor JWT. Everything downstream trusts the Actor it builds.
type CasdoorAuthMiddleware struct {
	client *casdoorsdk.Client
	config config.CasdoorConfig
}

func NewCasdoorAuthMiddleware(cfg config.CasdoorConfig) *CasdoorAuthMiddleware {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Cert,
		cfg.Application,
		cfg.Organization,
	)

	return &CasdoorAuthMiddleware{
		client: client,
		config: cfg,
	}
}

// AuthMiddleware validates the Bearer token and stores the resolved Actor in
// the gin context.
func (cam *CasdoorAuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "authorization header missing",
			})
			c.Abort()
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid authorization header format",
			})
			c.Abort()
			return
		}

		claims, err := cam.client.ParseJwtToken(tokenParts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": fmt.Sprintf("invalid token: %v", err),
			})
			c.Abort()
			return
		}

		actor, err := actorFromClaims(claims)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": err.Error(),
			})
			c.Abort()
			return
		}

		c.Set("actor", actor)
		c.Set("user_id", actor.UserID)
		c.Set("user_role", actor.Role)

		c.Next()
	}
}

// RequireRoleMiddleware gates a route group to the given roles.
func (cam *CasdoorAuthMiddleware) RequireRoleMiddleware(requiredRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get("user_role")
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "user role not found in context",
			})
			c.Abort()
			return
		}

		role, ok := userRole.(models.UserRole)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "invalid user role format",
			})
			c.Abort()
			return
		}

		for _, required := range requiredRoles {
			if role == required {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": fmt.Sprintf("insufficient permissions, required role: %v", requiredRoles),
		})
		c.Abort()
	}
}

// actorFromClaims builds the Actor from JWT claims. The classroom is carried
// in the user's tag, set by the enrollment flow at token issue time.
func actorFromClaims(claims *casdoorsdk.Claims) (models.Actor, error) {
	userID := claims.Id
	if userID == "" {
		return models.Actor{}, fmt.Errorf("invalid user ID in token")
	}

	classroomID, err := strconv.ParseUint(claims.User.Tag, 10, 32)
	if err != nil {
		return models.Actor{}, fmt.Errorf("missing classroom in token")
	}

	return models.Actor{
		UserID:      userID,
		Role:        mapCasdoorRole(claims.User.Type),
		ClassroomID: uint(classroomID),
	}, nil
}

func mapCasdoorRole(casdoorType string) models.UserRole {
	switch strings.ToLower(casdoorType) {
	case "teacher", "instructor", "educator":
		return models.RoleInstructor
	default:
		return models.RoleStudent
	}
}
