package alerter

import (
	"context"
	"fmt"
	"strings"

	"github.com/orbo-vision/coreflow/internal/telegram"
)

// TelegramSink delivers a batch of Observations as one formatted Telegram
// message, grounded on orbo's TelegramBot.SendMotionAlert message shape
// (emoji header, camera/time fields) generalized to a list of summaries
// since this sink receives a batch, not a single per-camera event.
type TelegramSink struct {
	bot *telegram.Bot
}

// NewTelegramSink wraps bot as an AlertSink.
func NewTelegramSink(bot *telegram.Bot) *TelegramSink {
	return &TelegramSink{bot: bot}
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Send(ctx context.Context, payload Payload) SinkStatus {
	if len(payload.Observations) == 0 {
		return StatusOk
	}

	var b strings.Builder
	b.WriteString("🚨 <b>Activity detected</b>\n\n")
	for _, obs := range payload.Observations {
		fmt.Fprintf(&b, "🕐 %s\n%s\n\n", obs.Timestamp.Format("2 Jan 2006, 15:04:05"), obs.Summary)
	}

	if err := t.bot.SendMessage(ctx, b.String()); err != nil {
		return StatusTransientError
	}
	return StatusOk
}
