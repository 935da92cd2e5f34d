package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/auth"
	"github.com/seal-agent/backend/internal/config"
	"github.com/seal-agent/backend/internal/http/dto"
	"github.com/seal-agent/backend/internal/rbac"
)

const (
	CtxOperator = "operator"
	CtxRole     = "role"
)

// AuthMiddleware requires a bearer operator token.
func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "missing authorization header", RequestID: GetRequestID(c)})
		}

		tokenStr, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid authorization format", RequestID: GetRequestID(c)})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid or expired token", RequestID: GetRequestID(c)})
		}

		c.Locals(CtxOperator, claims.Operator)
		c.Locals(CtxRole, claims.Role)
		return c.Next()
	}
}

// RequirePermission rejects tokens whose role lacks perm. Must run after
// AuthMiddleware.
func RequirePermission(perm string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := GetRole(c)
		if !rbac.HasPermission(role, perm) {
			if rbac.MovesValue(perm) {
				log.Warn("value-moving request denied", zap.String("role", role), zap.String("path", c.Path()))
			}
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "insufficient permissions", RequestID: GetRequestID(c)})
		}
		return c.Next()
	}
}

func GetRole(c *fiber.Ctx) string {
	role, _ := c.Locals(CtxRole).(string)
	return role
}

func GetOperator(c *fiber.Ctx) string {
	op, _ := c.Locals(CtxOperator).(string)
	return op
}
