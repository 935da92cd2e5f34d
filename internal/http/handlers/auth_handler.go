package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/auth"
	"github.com/seal-agent/backend/internal/config"
	"github.com/seal-agent/backend/internal/http/dto"
	"github.com/seal-agent/backend/internal/middleware"
)

type AuthHandler struct {
	cfg *config.Config
	log *zap.Logger
}

func NewAuthHandler(cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, log: log}
}

// IssueToken exchanges OPERATOR_KEY or VIEWER_KEY for a control API token.
// POST /api/v1/auth/token
func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body", RequestID: middleware.GetRequestID(c)})
	}
	if err := dto.Validate(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error(), RequestID: middleware.GetRequestID(c)})
	}

	role, err := auth.RoleForKey(h.cfg.OperatorKey, h.cfg.ViewerKey, req.OperatorKey)
	if err != nil {
		h.log.Warn("operator key rejected", zap.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid operator key", RequestID: middleware.GetRequestID(c)})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, role, role, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error", RequestID: middleware.GetRequestID(c)})
	}

	return c.JSON(dto.TokenResponse{
		Token:     token,
		Role:      role,
		ExpiresAt: time.Now().Add(h.cfg.JWTExpiration).UTC(),
	})
}
