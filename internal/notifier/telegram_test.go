package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/pricewatch/internal/models"
)

type fakeBot struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func (f *fakeBot) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

func TestTelegramDeliversAlertDigest(t *testing.T) {
	bot := &fakeBot{}
	n := newTelegram(bot, 42)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	n.NotifyAlerts([]models.PriceAlert{
		{Kind: models.AlertPriceDrop, ProductName: "Earbuds", Site: "alpha", Message: "Price dropped from 10000 to 8900", ProductRef: "https://alpha.example/p/1", Magnitude: -11},
		{Kind: models.AlertNewProduct, ProductName: "Case", Site: "beta", Message: "New product", ProductRef: "https://beta.example/p/2"},
	})
	n.NotifyAlerts(nil)

	require.Eventually(t, func() bool { return len(bot.messages()) == 1 }, time.Second, 5*time.Millisecond)
	msg := bot.messages()[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Contains(t, msg.Text, "2 price alert(s)")
	assert.Contains(t, msg.Text, "[price_drop] Earbuds (alpha) -11.00%")
	assert.Contains(t, msg.Text, "[new_product] Case (beta)")
	assert.Contains(t, msg.Text, "https://beta.example/p/2")
}

func TestTelegramReportsOnlyFailedJobs(t *testing.T) {
	bot := &fakeBot{err: errors.New("bad gateway")}
	n := newTelegram(bot, 42)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	ok := models.NewCrawlJob("earbuds", models.ModeSearch, "alpha", time.Now())
	require.NoError(t, ok.Start())
	require.NoError(t, ok.Complete(3, time.Now()))
	n.NotifyJobFinished(ok)

	failed := models.NewCrawlJob("earbuds", models.ModeSearch, "alpha", time.Now())
	require.NoError(t, failed.Start())
	require.NoError(t, failed.Fail(models.FailureAllCrawlersFailed, nil, time.Now()))
	n.NotifyJobFinished(failed)

	require.Eventually(t, func() bool { return len(bot.messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, bot.messages()[0].Text, "ALL_CRAWLERS_FAILED")
}

func TestTelegramQueueDropsWhenFull(t *testing.T) {
	n := newTelegram(&fakeBot{}, 1)
	for i := 0; i < queueSize+5; i++ {
		n.NotifyAlerts([]models.PriceAlert{{Kind: models.AlertNewProduct}})
	}
	assert.Len(t, n.queue, queueSize)
}
