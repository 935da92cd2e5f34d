package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/http/dto"
	"github.com/seal-agent/backend/internal/ledger"
	"github.com/seal-agent/backend/internal/middleware"
	"github.com/seal-agent/backend/internal/models"
)

const defaultPageSize = 50

type PayoutLister interface {
	List(ctx context.Context, campaignID string, limit, offset int) ([]models.Payout, error)
}

// CampaignHandler serves read-only ledger views.
type CampaignHandler struct {
	ledger  ledger.Ledger
	payouts PayoutLister
	log     *zap.Logger
}

// NewCampaignHandler builds the handler. payouts may be nil when no
// database is configured.
func NewCampaignHandler(l ledger.Ledger, payouts PayoutLister, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{ledger: l, payouts: payouts, log: log}
}

// GET /api/v1/campaigns
func (h *CampaignHandler) ListCampaigns(c *fiber.Ctx) error {
	campaigns, err := h.ledger.ListCampaigns(c.UserContext())
	if err != nil {
		return h.internal(c, "failed to list campaigns", err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: campaigns})
}

// GET /api/v1/campaigns/open
func (h *CampaignHandler) OpenCampaign(c *fiber.Ctx) error {
	campaign, err := h.ledger.GetOpenCampaign(c.UserContext())
	if errors.Is(err, ledger.ErrNoOpenCampaign) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "no open campaign", RequestID: middleware.GetRequestID(c)})
	}
	if err != nil {
		return h.internal(c, "failed to get open campaign", err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

// GET /api/v1/campaigns/:id
func (h *CampaignHandler) GetCampaign(c *fiber.Ctx) error {
	campaign, err := h.ledger.GetCampaign(c.UserContext(), c.Params("id"))
	if errors.Is(err, ledger.ErrCampaignNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "campaign not found", RequestID: middleware.GetRequestID(c)})
	}
	if err != nil {
		return h.internal(c, "failed to get campaign", err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

// GET /api/v1/claims
func (h *CampaignHandler) ListClaims(c *fiber.Ctx) error {
	claims, err := h.ledger.ListClaims(c.UserContext())
	if err != nil {
		return h.internal(c, "failed to list claims", err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: claims})
}

// GET /api/v1/pending
func (h *CampaignHandler) ListPending(c *fiber.Ctx) error {
	pending, err := h.ledger.ListPendingTargets(c.UserContext())
	if err != nil {
		return h.internal(c, "failed to list pending targets", err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: pending})
}

// GET /api/v1/payouts?campaign_id=&limit=&offset=
func (h *CampaignHandler) ListPayouts(c *fiber.Ctx) error {
	if h.payouts == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "payout journal not configured", RequestID: middleware.GetRequestID(c)})
	}

	var q dto.PayoutQuery
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid query", RequestID: middleware.GetRequestID(c)})
	}
	if err := dto.Validate(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error(), RequestID: middleware.GetRequestID(c)})
	}
	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}

	payouts, err := h.payouts.List(c.UserContext(), q.CampaignID, q.Limit, q.Offset)
	if err != nil {
		return h.internal(c, "failed to list payouts", err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payouts})
}

func (h *CampaignHandler) internal(c *fiber.Ctx, msg string, err error) error {
	h.log.Error(msg, zap.Error(err), zap.String("request_id", middleware.GetRequestID(c)))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error", RequestID: middleware.GetRequestID(c)})
}
