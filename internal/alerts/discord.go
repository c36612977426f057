package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"apr-signal-bot/internal/config"
)

// Discord posts alerts as webhook embeds. The webhook URL carries its own
// authentication; there is no token handling here.
type Discord struct {
	enabled    bool
	webhookURL string
	client     *http.Client
	log        *zap.Logger
}

func NewDiscord(cfg config.DiscordConfig, log *zap.Logger) *Discord {
	return newDiscord(cfg, log, &http.Client{Timeout: 10 * time.Second})
}

func newDiscord(cfg config.DiscordConfig, log *zap.Logger, client *http.Client) *Discord {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Discord{
		enabled:    cfg.Enabled,
		webhookURL: strings.TrimSpace(cfg.WebhookURL),
		client:     client,
		log:        log,
	}
}

func (d *Discord) Name() string { return "discord" }

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

func (d *Discord) Send(ctx context.Context, alert Alert) error {
	if !d.enabled {
		return nil
	}
	if d.webhookURL == "" {
		return errors.New("discord webhook_url is required")
	}
	payload := discordPayload{
		Embeds: []discordEmbed{{
			Title:       alert.Title,
			Description: alert.Body,
			Color:       alert.Color,
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("discord send failed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
