// Package notify delivers a run summary to operators after each
// maintenance run. Delivery failures are logged, never fatal.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"ftmaint/internal/maint"
	logx "ftmaint/pkg/logx"
)

// Notifier receives the stats of a finished run.
type Notifier interface {
	RunFinished(ctx context.Context, server string, stats *maint.Stats) error
}

type TelegramConfig struct {
	Token  string
	ChatID int64
}

type telegramNotifier struct {
	bot    *tele.Bot
	chatID int64
	log    logx.Logger
}

// NewTelegram builds a send-only Telegram notifier. No poller is
// attached; the bot is used purely as an outbound API client.
func NewTelegram(cfg TelegramConfig, log logx.Logger) (Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &telegramNotifier{bot: b, chatID: cfg.ChatID, log: log}, nil
}

func (n *telegramNotifier) RunFinished(_ context.Context, server string, stats *maint.Stats) error {
	_, err := n.bot.Send(tele.ChatID(n.chatID), FormatReport(server, stats))
	if err != nil {
		return err
	}
	n.log.Debug("run report sent", logx.Int64("chat_id", n.chatID))
	return nil
}

// FormatReport renders the plain-text run summary.
func FormatReport(server string, stats *maint.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ftmaint run on %s\n", server)
	fmt.Fprintf(&b, "dispatched %d, ok %d, failed %d, skipped %d",
		stats.Dispatched, stats.Succeeded, stats.Failed, stats.Skipped)
	if stats.Aborted {
		b.WriteString(" (window overrun, aborted)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "took %s, queue %d/%d scanned\n",
		stats.Finished.Sub(stats.Started).Round(time.Second), stats.Queued, stats.Scanned)

	for _, r := range stats.Results {
		switch r.Outcome {
		case maint.OutcomeDone:
			fmt.Fprintf(&b, "- %s: %s ok (%s, %d fragments)\n",
				r.Name, strings.ToLower(string(r.Action)), r.Duration.Round(time.Second), r.FragmentCount)
		case maint.OutcomeFailed:
			fmt.Fprintf(&b, "- %s: %s FAILED: %v\n", r.Name, strings.ToLower(string(r.Action)), r.Err)
		case maint.OutcomeSkipped:
			fmt.Fprintf(&b, "- %s: skipped (would overrun window)\n", r.Name)
		case maint.OutcomePlanned:
			fmt.Fprintf(&b, "- %s: would %s (%d fragments)\n",
				r.Name, strings.ToLower(string(r.Action)), r.FragmentCount)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
