package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/config"
	"github.com/seal-agent/backend/internal/db"
	"github.com/seal-agent/backend/internal/events"
	"github.com/seal-agent/backend/internal/logger"
)

// Notify Bridge subscribes to settlement events and forwards each one to an
// operator webhook.

func main() {
	cfg := config.Load()
	log := logger.Must(cfg.LogLevel, cfg.LogFile)
	defer log.Sync()

	if cfg.NotifyWebhookURL == "" {
		log.Fatal("NOTIFY_WEBHOOK_URL is not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	bus := events.NewRedisBus(rdb, log)
	client := &http.Client{Timeout: 10 * time.Second}

	if err := bus.Subscribe(ctx, events.StreamSettlement, func(event events.Event) {
		log.Info("forwarding event", zap.String("type", event.Type), zap.String("campaign_id", event.CampaignID))
		if err := forward(ctx, client, cfg.NotifyWebhookURL, event); err != nil {
			log.Warn("failed to forward event", zap.String("id", event.ID), zap.Error(err))
		}
	}); err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("notify-bridge started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
}

func forward(ctx context.Context, client *http.Client, url string, event events.Event) error {
	body, err := json.Marshal(map[string]any{
		"text":  summary(event),
		"event": event,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func summary(event events.Event) string {
	switch event.Type {
	case events.EventRewardPaid:
		return fmt.Sprintf("Paid %v %v to %v on campaign %s (tx %v)",
			event.Payload["amount"], event.Payload["currency"], event.Payload["author_id"], event.CampaignID, event.Payload["tx_ref"])
	case events.EventTransferFailed:
		return fmt.Sprintf("Transfer to %v failed on campaign %s: %v", event.Payload["author_id"], event.CampaignID, event.Payload["error"])
	case events.EventThanksPosted:
		return fmt.Sprintf("Thanked %v for %v", event.Payload["sender"], event.Payload["value"])
	default:
		if event.CampaignID != "" {
			return fmt.Sprintf("%s: campaign %s", event.Type, event.CampaignID)
		}
		return event.Type
	}
}
