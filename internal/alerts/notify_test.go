package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"apr-signal-bot/internal/config"
	"apr-signal-bot/internal/strategy"
)

func sampleAlert() Alert {
	return Alert{
		Title:  "ETHUSDT simple_directional ENTER_LONG",
		Body:   "Action: ENTER_LONG",
		Color:  colorGreen,
		Symbol: "ETHUSDT",
		Kind:   strategy.KindSimpleDirectional,
		Action: strategy.ActionEnterLong,
	}
}

func TestTelegramSendDisabled(t *testing.T) {
	client := newTelegram(config.TelegramConfig{Enabled: false}, zap.NewNop(), "http://unused", nil)
	if err := client.Send(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("expected nil error when disabled, got %v", err)
	}
}

func TestTelegramSendMissingConfig(t *testing.T) {
	client := newTelegram(config.TelegramConfig{Enabled: true}, zap.NewNop(), "http://unused", nil)
	if err := client.Send(context.Background(), sampleAlert()); err == nil {
		t.Fatalf("expected error for missing token/chat_id")
	}
}

func TestTelegramSendPostsAlert(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	cfg := config.TelegramConfig{Enabled: true, Token: "token", ChatID: "123"}
	client := newTelegram(cfg, zap.NewNop(), server.URL, server.Client())
	if err := client.Send(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("expected send success, got %v", err)
	}
	if gotPath != "/bottoken/sendMessage" {
		t.Fatalf("expected path /bottoken/sendMessage, got %s", gotPath)
	}
	if gotPayload["chat_id"] != "123" {
		t.Fatalf("expected chat_id 123, got %q", gotPayload["chat_id"])
	}
	if gotPayload["text"] != "ETHUSDT simple_directional ENTER_LONG\nAction: ENTER_LONG" {
		t.Fatalf("unexpected text %q", gotPayload["text"])
	}
}

func TestTelegramSendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	cfg := config.TelegramConfig{Enabled: true, Token: "token", ChatID: "123"}
	client := newTelegram(cfg, zap.NewNop(), server.URL, server.Client())
	if err := client.Send(context.Background(), sampleAlert()); err == nil {
		t.Fatalf("expected error for ok=false response")
	}
}

func TestDiscordSendDisabled(t *testing.T) {
	client := newDiscord(config.DiscordConfig{Enabled: false}, zap.NewNop(), nil)
	if err := client.Send(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("expected nil error when disabled, got %v", err)
	}
}

func TestDiscordSendPostsEmbed(t *testing.T) {
	var gotPayload discordPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := config.DiscordConfig{Enabled: true, WebhookURL: server.URL}
	client := newDiscord(cfg, zap.NewNop(), server.Client())
	if err := client.Send(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("expected send success, got %v", err)
	}
	if len(gotPayload.Embeds) != 1 {
		t.Fatalf("expected one embed, got %d", len(gotPayload.Embeds))
	}
	embed := gotPayload.Embeds[0]
	if embed.Title != "ETHUSDT simple_directional ENTER_LONG" || embed.Color != colorGreen {
		t.Fatalf("unexpected embed %+v", embed)
	}
}

func TestDiscordSendHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.DiscordConfig{Enabled: true, WebhookURL: server.URL}
	client := newDiscord(cfg, zap.NewNop(), server.Client())
	if err := client.Send(context.Background(), sampleAlert()); err == nil {
		t.Fatalf("expected error for http 429")
	}
}
