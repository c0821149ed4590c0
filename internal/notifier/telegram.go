package notifier

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pricewatch/internal/models"
)

const queueSize = 32

// sender is the part of tgbotapi.BotAPI the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts alert digests and failed jobs to one chat. Messages are
// queued and delivered by Run so that crawls never wait on the Bot API.
type Telegram struct {
	bot    sender
	chatID int64
	queue  chan string
}

// NewTelegram authorises the bot token and returns a notifier for chatID.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot authorisation failed: %w", err)
	}
	bot.Debug = false
	log.Info().Str("bot", bot.Self.UserName).Int64("chat_id", chatID).Msg("Telegram notifier ready")
	return newTelegram(bot, chatID), nil
}

func newTelegram(bot sender, chatID int64) *Telegram {
	return &Telegram{bot: bot, chatID: chatID, queue: make(chan string, queueSize)}
}

// Run delivers queued messages until ctx is done.
func (t *Telegram) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-t.queue:
			msg := tgbotapi.NewMessage(t.chatID, text)
			msg.DisableWebPagePreview = true
			if _, err := t.bot.Send(msg); err != nil {
				log.Error().Err(err).Int64("chat_id", t.chatID).Msg("Failed to send Telegram message")
			}
		}
	}
}

// NotifyAlerts queues one digest message for the batch.
func (t *Telegram) NotifyAlerts(alerts []models.PriceAlert) {
	if len(alerts) == 0 {
		return
	}
	t.enqueue(formatAlerts(alerts))
}

// NotifyJobFinished only reports failed jobs.
func (t *Telegram) NotifyJobFinished(job *models.CrawlJob) {
	if job.Status != models.JobFailed {
		return
	}
	reason := ""
	if job.FailureReason != nil {
		reason = *job.FailureReason
	}
	t.enqueue(fmt.Sprintf("Crawl failed for %q on %s: %s", job.Target, job.Sites, reason))
}

func (t *Telegram) enqueue(text string) {
	select {
	case t.queue <- text:
	default:
		log.Warn().Msg("Telegram queue full, dropping message")
	}
}

func formatAlerts(alerts []models.PriceAlert) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d price alert(s)\n", len(alerts))
	for _, a := range alerts {
		sb.WriteString("\n")
		switch a.Kind {
		case models.AlertPriceDrop, models.AlertPriceRise, models.AlertReview:
			fmt.Fprintf(&sb, "[%s] %s (%s) %+.2f%%\n", a.Kind, a.ProductName, a.Site, a.Magnitude)
		default:
			fmt.Fprintf(&sb, "[%s] %s (%s)\n", a.Kind, a.ProductName, a.Site)
		}
		sb.WriteString(a.Message)
		sb.WriteString("\n")
		sb.WriteString(a.ProductRef)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
