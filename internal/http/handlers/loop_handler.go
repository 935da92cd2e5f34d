package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/control"
	"github.com/seal-agent/backend/internal/http/dto"
	"github.com/seal-agent/backend/internal/lifecycle"
	"github.com/seal-agent/backend/internal/middleware"
	"github.com/seal-agent/backend/internal/watcher"
)

type LoopHandler struct {
	base     context.Context
	registry *control.Registry
	log      *zap.Logger
}

// NewLoopHandler starts loops under base so they outlive the request.
func NewLoopHandler(base context.Context, registry *control.Registry, log *zap.Logger) *LoopHandler {
	return &LoopHandler{base: base, registry: registry, log: log}
}

// GET /api/v1/loops
func (h *LoopHandler) List(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.registry.List()})
}

// POST /api/v1/loops/:name/start
func (h *LoopHandler) Start(c *fiber.Ctx) error {
	loop, err := h.registry.Get(c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "unknown loop", RequestID: middleware.GetRequestID(c)})
	}

	changed, err := loop.Start(h.base)
	switch {
	case errors.Is(err, lifecycle.ErrTransfersDisabled), errors.Is(err, watcher.ErrNoAddress):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: err.Error(), RequestID: middleware.GetRequestID(c)})
	case err != nil:
		h.log.Error("failed to start loop", zap.String("loop", loop.Name()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error", RequestID: middleware.GetRequestID(c)})
	}

	h.log.Info("loop start requested", zap.String("loop", loop.Name()), zap.Bool("changed", changed), zap.String("operator", middleware.GetOperator(c)))
	return h.respond(c, loop, changed)
}

// POST /api/v1/loops/:name/stop
func (h *LoopHandler) Stop(c *fiber.Ctx) error {
	loop, err := h.registry.Get(c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "unknown loop", RequestID: middleware.GetRequestID(c)})
	}

	changed := loop.Stop()
	h.log.Info("loop stop requested", zap.String("loop", loop.Name()), zap.Bool("changed", changed), zap.String("operator", middleware.GetOperator(c)))
	return h.respond(c, loop, changed)
}

func (h *LoopHandler) respond(c *fiber.Ctx, loop *control.Handle, changed bool) error {
	status := fiber.StatusOK
	if !changed {
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(dto.LoopResponse{Name: loop.Name(), Active: loop.IsActive(), Changed: changed})
}
