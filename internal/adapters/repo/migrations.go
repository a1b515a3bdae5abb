package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// migration — один версионированный шаг схемы. Шаги только вперёд и только
// аддитивные после v1: старые строки без новых колонок остаются валидными.
type migration struct {
	Version    int
	Statements []string
}

var migrations = []migration{
	{
		Version: 1,
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
	chat_id BIGINT PRIMARY KEY,
	default_tone TEXT NOT NULL DEFAULT 'ZÁKLADNÍ',
	morning_time TEXT NOT NULL DEFAULT '07:00',
	evening_time TEXT NOT NULL DEFAULT '21:00',
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
			`CREATE TABLE IF NOT EXISTS rolls (
	chat_id BIGINT NOT NULL,
	day DATE NOT NULL,
	topic INT NOT NULL,
	verdict TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chat_id, day)
)`,
		},
	},
	{
		// Тон дня и явный статус появились позже первой раскатки; колонки
		// nullable/с дефолтом, чтобы исторические строки остались читаемыми.
		Version: 2,
		Statements: []string{
			`ALTER TABLE rolls ADD COLUMN IF NOT EXISTS tone TEXT`,
			`ALTER TABLE rolls ADD COLUMN IF NOT EXISTS status TEXT NOT NULL DEFAULT 'PENDING'`,
		},
	},
}

// Migrate применяет недостающие шаги схемы. Каждый шаг идёт в своей
// транзакции вместе с записью версии; падение на старте фатально для
// процесса.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return fmt.Errorf("создание schema_migrations: %w", err)
	}

	var current int
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("чтение версии схемы: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("начало транзакции миграции %d: %w", m.Version, err)
		}
		for _, stmt := range m.Statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("миграция %d: %w", m.Version, err)
			}
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("запись версии %d: %w", m.Version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("фиксация миграции %d: %w", m.Version, err)
		}
		log.Info().Int("version", m.Version).Msg("миграция применена")
	}
	return nil
}
