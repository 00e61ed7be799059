package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"partner_bitrix/internal/config"
	"partner_bitrix/internal/partner"
	"partner_bitrix/internal/repo"
	"partner_bitrix/internal/stats"
)

// Bot onboards partners (phone, code, statistics) and end-users (documents,
// consultation lead) over one long-polling loop.
type Bot struct {
	api      *tgbotapi.BotAPI
	db       *repo.RequestsRepository
	dir      *partner.Directory
	rec      *partner.Reconciler
	agg      *stats.Aggregator
	docs     []Document
	sessions *sessionStore
	log      *logrus.Entry
}

func New(cfg config.Config, db *repo.RequestsRepository, dir *partner.Directory, rec *partner.Reconciler, agg *stats.Aggregator) (*Bot, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is empty")
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram api: %w", err)
	}

	docs, err := LoadDocuments(cfg.DocumentsPath)
	if err != nil {
		logrus.WithError(err).Warnf("загрузка документов из %s", cfg.DocumentsPath)
	}

	return &Bot{
		api:      api,
		db:       db,
		dir:      dir,
		rec:      rec,
		agg:      agg,
		docs:     docs,
		sessions: newSessionStore(),
		log:      logrus.WithField("component", "bot"),
	}, nil
}

// Run polls for updates until the context is cancelled. Updates are handled
// sequentially, one at a time.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	b.log.Infof("старт Telegram-бота @%s", b.api.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info("Telegram-бот остановлен")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			switch {
			case update.Message != nil:
				b.handleMessage(ctx, update.Message)
			case update.CallbackQuery != nil:
				b.handleCallback(ctx, update.CallbackQuery)
			}
		}
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.WithError(err).Warn("отправка сообщения")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) replyWithMarkup(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	b.send(msg)
}
