package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/http/dto"
)

type CKBBalances interface {
	Balance(ctx context.Context) (int64, error)
	TokenBalance(ctx context.Context, xudtArgs string) (int64, error)
}

type TONBalance interface {
	Address() string
	Balance(ctx context.Context) (int64, error)
}

type WalletHandler struct {
	ckb      CKBBalances
	ton      TONBalance
	sealArgs string
	log      *zap.Logger
}

// NewWalletHandler builds the handler. ton may be nil.
func NewWalletHandler(ckb CKBBalances, ton TONBalance, sealXUDTArgs string, log *zap.Logger) *WalletHandler {
	return &WalletHandler{ckb: ckb, ton: ton, sealArgs: sealXUDTArgs, log: log}
}

// Balance reports hot wallet balances. A failing backend is reported in
// errors and does not fail the request.
// GET /api/v1/wallet/balance
func (h *WalletHandler) Balance(c *fiber.Ctx) error {
	ctx := c.UserContext()
	var resp dto.BalanceResponse

	if v, err := h.ckb.Balance(ctx); err != nil {
		h.log.Warn("ckb balance failed", zap.Error(err))
		resp.Errors = append(resp.Errors, "ckb: "+err.Error())
	} else {
		resp.CKB = &v
	}

	if h.sealArgs != "" {
		if v, err := h.ckb.TokenBalance(ctx, h.sealArgs); err != nil {
			h.log.Warn("seal balance failed", zap.Error(err))
			resp.Errors = append(resp.Errors, "seal: "+err.Error())
		} else {
			resp.Seal = &v
		}
	}

	if h.ton != nil {
		resp.TONAddress = h.ton.Address()
		if v, err := h.ton.Balance(ctx); err != nil {
			h.log.Warn("ton balance failed", zap.Error(err))
			resp.Errors = append(resp.Errors, "ton: "+err.Error())
		} else {
			resp.TON = &v
		}
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: resp})
}
