// Package telegram implements a thin Telegram Bot API client used as one of
// Alerter's dispatch channels.
//
// Grounded on orbo's internal/telegram/bot.go TelegramBot almost verbatim
// for the wire mechanics (sendMessage/sendPhoto multipart upload, response
// envelope, per-action-type cooldown map) -- trimmed of orbo's
// face-recognition-specific message building (SendMotionAlertWithFaces,
// FaceRecognitionInfo, forensic thumbnails), which has no equivalent in
// this module's Observation-centric alerting.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

// Bot sends text/photo messages to one configured chat.
type Bot struct {
	botToken   string
	chatID     string
	httpClient *http.Client

	mu              sync.RWMutex
	enabled         bool
	cooldownTracker map[string]time.Time
	cooldownPeriod  time.Duration
}

// Config holds Bot configuration.
type Config struct {
	BotToken        string
	ChatID          string
	Enabled         bool
	CooldownSeconds int
}

type apiResponse struct {
	OK          bool        `json:"ok"`
	Result      interface{} `json:"result,omitempty"`
	ErrorCode   int         `json:"error_code,omitempty"`
	Description string      `json:"description,omitempty"`
}

// New creates a Bot from Config, defaulting to a 30s cooldown between sends
// of the same action type, matching orbo's NewTelegramBot.
func New(cfg Config) *Bot {
	cooldown := time.Duration(cfg.CooldownSeconds) * time.Second
	if cooldown == 0 {
		cooldown = 30 * time.Second
	}
	return &Bot{
		botToken:        cfg.BotToken,
		chatID:          cfg.ChatID,
		enabled:         cfg.Enabled,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		cooldownTracker: make(map[string]time.Time),
		cooldownPeriod:  cooldown,
	}
}

// IsEnabled reports whether the bot is configured and active.
func (b *Bot) IsEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

// SendMessage sends a plain text message, subject to the per-action cooldown.
func (b *Bot) SendMessage(ctx context.Context, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled {
		return fmt.Errorf("telegram bot is disabled")
	}
	if b.botToken == "" || b.chatID == "" {
		return fmt.Errorf("telegram bot token or chat id not configured")
	}
	if !b.checkCooldown("message") {
		return fmt.Errorf("message cooldown period not yet elapsed")
	}

	payload := map[string]interface{}{
		"chat_id":    b.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if err := b.sendRequest(ctx, "sendMessage", payload); err != nil {
		return err
	}
	b.updateCooldown("message")
	return nil
}

// SendPhoto uploads a photo with an optional caption.
func (b *Bot) SendPhoto(ctx context.Context, photo []byte, caption string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled {
		return fmt.Errorf("telegram bot is disabled")
	}
	if b.botToken == "" || b.chatID == "" {
		return fmt.Errorf("telegram bot token or chat id not configured")
	}
	if !b.checkCooldown("photo") {
		return fmt.Errorf("photo cooldown period not yet elapsed")
	}
	if err := b.uploadPhoto(ctx, photo, caption); err != nil {
		return err
	}
	b.updateCooldown("photo")
	return nil
}

func (b *Bot) uploadPhoto(ctx context.Context, photo []byte, caption string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendPhoto", b.botToken)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", b.chatID); err != nil {
		return fmt.Errorf("write chat_id field: %w", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("write caption field: %w", err)
		}
		if err := writer.WriteField("parse_mode", "HTML"); err != nil {
			return fmt.Errorf("write parse_mode field: %w", err)
		}
	}

	part, err := writer.CreateFormFile("photo", "frame.jpg")
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(photo); err != nil {
		return fmt.Errorf("write photo data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp)
}

func (b *Bot) sendRequest(ctx context.Context, method string, payload map[string]interface{}) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/%s", b.botToken, method)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp)
}

func decodeResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if !parsed.OK {
		return fmt.Errorf("telegram api error %d: %s", parsed.ErrorCode, parsed.Description)
	}
	return nil
}

func (b *Bot) checkCooldown(action string) bool {
	last, ok := b.cooldownTracker[action]
	if !ok {
		return true
	}
	return time.Since(last) >= b.cooldownPeriod
}

func (b *Bot) updateCooldown(action string) {
	b.cooldownTracker[action] = time.Now()
}
