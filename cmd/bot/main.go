package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	botadapter "dodekaedr-bot/internal/adapters/bot"
	"dodekaedr-bot/internal/adapters/repo"
	"dodekaedr-bot/internal/content"
	"dodekaedr-bot/internal/domain"
	"dodekaedr-bot/internal/infra/cache"
	"dodekaedr-bot/internal/infra/config"
	"dodekaedr-bot/internal/infra/db"
	httpinfra "dodekaedr-bot/internal/infra/http"
	applog "dodekaedr-bot/internal/infra/log"
	"dodekaedr-bot/internal/infra/metrics"
	"dodekaedr-bot/internal/infra/queue"
	"dodekaedr-bot/internal/usecase/reminder"
	"dodekaedr-bot/internal/usecase/roll"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("bot: неизвестный часовой пояс")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: нет подключения к БД")
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool, logger.With().Str("component", "migrate").Logger()); err != nil {
		logger.Fatal().Err(err).Msg("bot: миграция схемы не прошла")
	}

	repoAdapter := repo.NewPostgres(pool)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	cacheAdapter := cache.NewRedis(redisClient)

	var reminderQueue domain.ReminderQueue
	if cfg.RabbitURL != "" {
		rabbitQueue, err := queue.NewRabbitReminderQueue(cfg.RabbitURL, cfg.Queues.Reminders)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbitQueue.Close()
		reminderQueue = rabbitQueue
	} else {
		reminderQueue = queue.NewRedisReminderQueue(redisClient, cfg.Queues.Reminders)
	}

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("bot: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось создать бота")
	}

	lib := content.NewLibrary()
	rollService := roll.NewService(repoAdapter, repoAdapter, repoAdapter, loc, logger.With().Str("component", "roll").Logger())
	scheduler := reminder.NewScheduler(repoAdapter, reminderQueue, loc, logger.With().Str("component", "scheduler").Logger())
	sender := botadapter.NewSender(botAPI)
	worker := reminder.NewWorker(reminderQueue, repoAdapter, rollService, sender, cacheAdapter, loc, logger.With().Str("component", "worker").Logger())
	handler := botadapter.NewHandler(botAPI, logger.With().Str("component", "bot").Logger(), rollService, scheduler, lib, cfg.AdminChatID)

	// Таймеры целиком восстановимы из БД; без них процесс бесполезен.
	if err := scheduler.RestoreAll(ctx); err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось восстановить таймеры")
	}
	defer scheduler.Stop()

	go worker.Run(ctx)

	httpServer := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	httpServer.Start(fmt.Sprintf(":%d", cfg.Port))

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := botAPI.GetUpdatesChan(updateCfg)

	logger.Info().Msg("bot: запущен")
	go func() {
		for upd := range updates {
			// Каждый апдейт в своей горутине: медленный пользователь не
			// задерживает остальных.
			go handler.HandleUpdate(ctx, upd)
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("bot: остановка")
	botAPI.StopReceivingUpdates()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("bot: HTTP сервер не остановился корректно")
	}
}
