package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/classifier"
	"github.com/seal-agent/backend/internal/config"
	"github.com/seal-agent/backend/internal/control"
	"github.com/seal-agent/backend/internal/db"
	"github.com/seal-agent/backend/internal/events"
	apphttp "github.com/seal-agent/backend/internal/http"
	"github.com/seal-agent/backend/internal/http/handlers"
	"github.com/seal-agent/backend/internal/ingestion"
	"github.com/seal-agent/backend/internal/ledger"
	"github.com/seal-agent/backend/internal/lifecycle"
	"github.com/seal-agent/backend/internal/llm"
	"github.com/seal-agent/backend/internal/logger"
	"github.com/seal-agent/backend/internal/policy"
	"github.com/seal-agent/backend/internal/repositories"
	"github.com/seal-agent/backend/internal/social"
	"github.com/seal-agent/backend/internal/store"
	"github.com/seal-agent/backend/internal/transfer"
	"github.com/seal-agent/backend/internal/wallet"
	"github.com/seal-agent/backend/internal/watcher"
	"github.com/seal-agent/backend/migrations"
)

func main() {
	cfg := config.Load()
	log := logger.Must(cfg.LogLevel, cfg.LogFile)
	defer log.Sync()

	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Postgres payout journal is optional
	var (
		payoutJournal ingestion.PayoutJournal
		payoutLister  handlers.PayoutLister
		thanksJournal watcher.ThanksJournal
	)
	if cfg.PostgresDSN != "" {
		pool, err := db.OpenJournal(ctx, cfg.PostgresDSN, migrations.FS, log)
		if err != nil {
			log.Fatal("failed to open payout journal", zap.Error(err))
		}
		defer pool.Close()

		payouts := repositories.NewPayoutRepo(pool)
		payoutJournal, payoutLister = payouts, payouts
		thanksJournal = repositories.NewThanksRepo(pool)
	} else {
		log.Warn("POSTGRES_DSN is empty, payout journal disabled")
	}

	st := store.NewRedisStore(rdb)
	led := ledger.NewKV(st)
	bus := events.NewRedisBus(rdb, log.Named("events"))

	// Oracle
	oracle, err := llm.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to create oracle client", zap.Error(err))
	}
	adapter := classifier.NewAdapter(oracle, cfg.RewardFlow, log)
	generator := classifier.NewGenerator(oracle)

	// Wallets
	ckb := wallet.NewCKBClient(cfg.WalletBaseURL, cfg.WalletAuthToken, log)
	var (
		tonBackend transfer.TONBackend
		tonBalance handlers.TONBalance
	)
	if cfg.TONEnabled() {
		api, err := wallet.ConnectTON(ctx, cfg, log)
		if err != nil {
			log.Fatal("failed to connect to TON", zap.Error(err))
		}
		tw, err := wallet.NewTONWallet(api, cfg.TONWalletSeed, log)
		if err != nil {
			log.Fatal("failed to open TON wallet", zap.Error(err))
		}
		tonBackend, tonBalance = tw, tw
	}
	executor := transfer.NewExecutor(ckb, tonBackend, cfg.SealXUDTArgs, log)

	// Loops
	twitter := social.NewTwitterClient(cfg.TwitterAPIURL, cfg.TwitterUserToken, log)
	loop := ingestion.NewLoop(ingestion.ConfigFrom(cfg), ingestion.Deps{
		Ledger:     led,
		Social:     twitter,
		Classifier: adapter,
		Policy:     policy.FromConfig(cfg),
		Payer:      executor,
		Publisher:  bus,
		Journal:    payoutJournal,
	}, log.Named("ingestion"))
	machine := lifecycle.NewMachine(lifecycle.ConfigFrom(cfg), led, generator, twitter, loop, policy.BandsFromConfig(cfg), bus, log.Named("lifecycle"))
	txWatcher := watcher.New(st, twitter, cfg.OurAddress, cfg.WatchInterval, thanksJournal, bus, log.Named("watcher"))

	registry := control.NewRegistry(
		control.NewHandle(control.LoopQuestions, machine.Run, log).WithPrecheck(func() error {
			if !cfg.TransfersEnabled {
				return lifecycle.ErrTransfersDisabled
			}
			return nil
		}),
		control.NewHandle(control.LoopTransactions, txWatcher.Run, log).WithPrecheck(func() error {
			if cfg.OurAddress == "" {
				return watcher.ErrNoAddress
			}
			return nil
		}),
	)

	// Handlers
	authHandler := handlers.NewAuthHandler(cfg, log)
	loopHandler := handlers.NewLoopHandler(ctx, registry, log)
	campaignHandler := handlers.NewCampaignHandler(led, payoutLister, log)
	walletHandler := handlers.NewWalletHandler(ckb, tonBalance, cfg.SealXUDTArgs, log)
	wsHub := handlers.NewWSHub(cfg, bus, log)

	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe ws hub", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, loopHandler, campaignHandler, walletHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		registry.StopAll()
		cancel()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting control API", zap.String("addr", addr), zap.String("flow", cfg.RewardFlow), zap.Bool("transfers", cfg.TransfersEnabled))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
