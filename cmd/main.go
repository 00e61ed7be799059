package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"partner_bitrix/internal/bitrix"
	"partner_bitrix/internal/bot"
	"partner_bitrix/internal/config"
	"partner_bitrix/internal/partner"
	"partner_bitrix/internal/repo"
	"partner_bitrix/internal/server"
	"partner_bitrix/internal/stats"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Load()

	mode := "all"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	runCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bx := bitrix.NewClient(cfg.BitrixWebhookBaseURL)
	dir := partner.NewDirectory(bx, cfg)
	rec := partner.NewReconciler(bx, dir, cfg)
	cache := stats.NewNameCache(bx, 0)
	agg := stats.NewAggregator(bx, dir, cache, cfg)

	var repository *repo.RequestsRepository
	if (mode == "bot" || mode == "all") && cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(runCtx, cfg.DatabaseURL)
		if err != nil {
			logrus.Fatalf("pgxpool.New: %v", err)
		}
		defer pool.Close()

		repository = repo.NewRequestsRepository(pool)
		if err := repository.Migrate(runCtx); err != nil {
			logrus.Fatalf("migrate: %v", err)
		}
	}

	httpServer := server.New(cfg, bx, dir, rec, agg, cache)

	switch mode {
	case "serve":
		if err := httpServer.Start(cfg.ListenAddr); err != nil {
			logrus.Fatal(err)
		}
	case "bot":
		if err := runBot(runCtx, cfg, repository, dir, rec, agg); err != nil {
			logrus.Fatal(err)
		}
	case "all":
		if cfg.BotToken == "" {
			logrus.Warn("BOT_TOKEN не задан, запускается только HTTP-сервер")
			if err := httpServer.Start(cfg.ListenAddr); err != nil {
				logrus.Fatal(err)
			}
			return
		}
		go func() {
			if err := httpServer.Start(cfg.ListenAddr); err != nil {
				logrus.Fatalf("http server: %v", err)
			}
		}()
		if err := runBot(runCtx, cfg, repository, dir, rec, agg); err != nil {
			logrus.Fatal(err)
		}
	default:
		logrus.Fatalf("unknown mode: %s (use: serve | bot | all)", mode)
	}
}

func runBot(ctx context.Context, cfg config.Config, repository *repo.RequestsRepository, dir *partner.Directory, rec *partner.Reconciler, agg *stats.Aggregator) error {
	tgBot, err := bot.New(cfg, repository, dir, rec, agg)
	if err != nil {
		return err
	}
	if err := tgBot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
