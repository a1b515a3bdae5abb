package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию процесса.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Prague"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token string `envconfig:"TG_BOT_TOKEN"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Reminders string `envconfig:"REMINDER_QUEUE_KEY" default:"reminder_jobs"`
	} `envconfig:""`

	AdminChatID int64 `envconfig:"ADMIN_CHAT_ID"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
