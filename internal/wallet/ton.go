package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	tonwallet "github.com/xssnick/tonutils-go/ton/wallet"
	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/config"
)

const nanoPerTON = 1_000_000_000

// TONWallet is a V4R2 hot wallet paying whole-TON rewards.
type TONWallet struct {
	api ton.APIClientWrapped
	w   *tonwallet.Wallet
	log *zap.Logger
}

// ConnectTON opens a lite server pool, either the configured server or the
// network's global config.
func ConnectTON(ctx context.Context, cfg *config.Config, log *zap.Logger) (ton.APIClientWrapped, error) {
	client := liteclient.NewConnectionPool()

	if cfg.LiteServerHost != "" && cfg.LiteServerKey != "" {
		addr := fmt.Sprintf("%s:%d", cfg.LiteServerHost, cfg.LiteServerPort)
		log.Info("connecting to lite server", zap.String("addr", addr))
		if err := client.AddConnection(ctx, addr, cfg.LiteServerKey); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addr, err)
		}
	} else {
		configURL := "https://ton.org/testnet-global.config.json"
		if strings.ToLower(cfg.TONNetwork) == "mainnet" {
			configURL = "https://ton.org/global.config.json"
		}
		log.Info("connecting via global config", zap.String("url", configURL), zap.String("network", cfg.TONNetwork))
		if err := client.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	proofPolicy := ton.ProofCheckPolicyFast
	if strings.ToLower(cfg.TONNetwork) == "mainnet" {
		proofPolicy = ton.ProofCheckPolicySecure
	}
	return ton.NewAPIClient(client, proofPolicy).WithRetry(), nil
}

// NewTONWallet derives the hot wallet from a space separated seed phrase.
func NewTONWallet(api ton.APIClientWrapped, seed string, log *zap.Logger) (*TONWallet, error) {
	words := strings.Fields(seed)
	if len(words) == 0 {
		return nil, fmt.Errorf("ton wallet: %w: empty seed", ErrNotConfigured)
	}
	w, err := tonwallet.FromSeed(api, words, tonwallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("ton wallet from seed: %w", err)
	}
	log.Info("ton hot wallet ready", zap.String("address", w.WalletAddress().String()))
	return &TONWallet{api: api, w: w, log: log}, nil
}

func (t *TONWallet) Address() string {
	return t.w.WalletAddress().String()
}

// Balance returns the hot wallet balance in nanoTON.
func (t *TONWallet) Balance(ctx context.Context) (int64, error) {
	block, err := t.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("masterchain info: %w", err)
	}
	coins, err := t.w.GetBalance(ctx, block)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return coins.Nano().Int64(), nil
}

// Transfer sends amount whole TON and waits for the wallet transaction.
// Returns the transaction hash in hex.
func (t *TONWallet) Transfer(ctx context.Context, to string, amount int64, comment string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: non-positive amount %d", ErrTransferFailed, amount)
	}
	dst, err := address.ParseAddr(to)
	if err != nil {
		return "", fmt.Errorf("%w: bad address %q: %v", ErrTransferFailed, to, err)
	}

	msg, err := t.w.BuildTransfer(dst, tlb.FromNanoTONU(uint64(amount)*nanoPerTON), false, comment)
	if err != nil {
		return "", fmt.Errorf("build transfer: %w", err)
	}
	tx, _, err := t.w.SendWaitTransaction(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	hash := hex.EncodeToString(tx.Hash)
	t.log.Info("ton transfer confirmed", zap.String("to", dst.String()), zap.Int64("amount_ton", amount), zap.String("tx_hash", hash))
	return hash, nil
}
