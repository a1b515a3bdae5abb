package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dodekaedr-bot/internal/domain"
	"dodekaedr-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo  = (*Postgres)(nil)
	_ domain.RollRepo  = (*Postgres)(nil)
	_ domain.StatsRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// UpsertUser реализует domain.UserRepo. Вставка условная, дефолты живут в
// схеме, поэтому повторный вызов ничего не меняет.
func (p *Postgres) UpsertUser(ctx context.Context, chatID int64) (domain.UserSettings, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO users (chat_id) VALUES ($1)
ON CONFLICT (chat_id) DO NOTHING
`, chatID)
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	if err != nil {
		return domain.UserSettings{}, err
	}
	user, found, err := p.GetUser(ctx, chatID)
	if err != nil {
		return domain.UserSettings{}, err
	}
	if !found {
		return domain.UserSettings{}, errors.New("пользователь не найден после upsert")
	}
	return user, nil
}

// GetUser реализует domain.UserRepo.
func (p *Postgres) GetUser(ctx context.Context, chatID int64) (domain.UserSettings, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT chat_id, default_tone, morning_time, evening_time, enabled, created_at, updated_at
FROM users WHERE chat_id = $1
`, chatID)
	var (
		user domain.UserSettings
		tone string
	)
	err := row.Scan(&user.ChatID, &tone, &user.MorningTime, &user.EveningTime, &user.Enabled, &user.CreatedAt, &user.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserSettings{}, false, nil
	}
	if err != nil {
		return domain.UserSettings{}, false, err
	}
	user.DefaultTone = domain.Tone(tone)
	return user, true, nil
}

// SetDefaultTone реализует domain.UserRepo.
func (p *Postgres) SetDefaultTone(ctx context.Context, chatID int64, tone domain.Tone) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE users SET default_tone = $1, updated_at = now() WHERE chat_id = $2
`, string(tone), chatID)
	metrics.ObserveNetworkRequest("postgres", "users_set_tone", "users", start, err)
	return err
}

// SetTimes реализует domain.UserRepo.
func (p *Postgres) SetTimes(ctx context.Context, chatID int64, morning, evening string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE users SET morning_time = $1, evening_time = $2, updated_at = now() WHERE chat_id = $3
`, morning, evening, chatID)
	metrics.ObserveNetworkRequest("postgres", "users_set_times", "users", start, err)
	return err
}

// SetEnabled реализует domain.UserRepo.
func (p *Postgres) SetEnabled(ctx context.Context, chatID int64, enabled bool) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE users SET enabled = $1, updated_at = now() WHERE chat_id = $2
`, enabled, chatID)
	metrics.ObserveNetworkRequest("postgres", "users_set_enabled", "users", start, err)
	return err
}

// ListUsers реализует domain.UserRepo.
func (p *Postgres) ListUsers(ctx context.Context) ([]domain.UserSettings, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT chat_id, default_tone, morning_time, evening_time, enabled, created_at, updated_at
FROM users ORDER BY chat_id
`)
	metrics.ObserveNetworkRequest("postgres", "users_list", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.UserSettings
	for rows.Next() {
		var (
			user domain.UserSettings
			tone string
		)
		if err := rows.Scan(&user.ChatID, &tone, &user.MorningTime, &user.EveningTime, &user.Enabled, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		user.DefaultTone = domain.Tone(tone)
		users = append(users, user)
	}
	return users, rows.Err()
}

// CreateRoll реализует domain.RollRepo. Вставка create-if-absent: при гонке
// за один день выживает ровно одна строка, проигравший читает победителя.
func (p *Postgres) CreateRoll(ctx context.Context, chatID int64, day string, topic int) (domain.DailyRoll, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO rolls (chat_id, day, topic, status) VALUES ($1, $2, $3, 'PENDING')
ON CONFLICT (chat_id, day) DO NOTHING
`, chatID, day, topic)
	metrics.ObserveNetworkRequest("postgres", "rolls_insert", "rolls", start, err)
	if err != nil {
		return domain.DailyRoll{}, false, err
	}
	created := tag.RowsAffected() == 1

	roll, found, err := p.GetRoll(ctx, chatID, day)
	if err != nil {
		return domain.DailyRoll{}, false, err
	}
	if !found {
		return domain.DailyRoll{}, false, errors.New("бросок не найден после вставки")
	}
	return roll, created, nil
}

// GetRoll реализует domain.RollRepo.
func (p *Postgres) GetRoll(ctx context.Context, chatID int64, day string) (domain.DailyRoll, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT chat_id, to_char(day, 'YYYY-MM-DD'), topic, COALESCE(tone, ''), status, COALESCE(verdict, ''), created_at
FROM rolls WHERE chat_id = $1 AND day = $2
`, chatID, day)
	var (
		roll    domain.DailyRoll
		tone    string
		status  string
		verdict string
	)
	err := row.Scan(&roll.ChatID, &roll.Day, &roll.Topic, &tone, &status, &verdict, &roll.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "rolls_get", "rolls", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DailyRoll{}, false, nil
	}
	if err != nil {
		return domain.DailyRoll{}, false, err
	}
	roll.Tone = domain.Tone(tone)
	roll.Status = domain.RollStatus(status)
	roll.Verdict = domain.Verdict(verdict)
	return roll, true, nil
}

// LockRoll реализует domain.RollRepo. Обновление защищено условием
// status='PENDING': второй конкурентный вызов получает locked=false и ничего
// не перезаписывает.
func (p *Postgres) LockRoll(ctx context.Context, chatID int64, day string, tone domain.Tone) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE rolls SET tone = $1, status = 'LOCKED'
WHERE chat_id = $2 AND day = $3 AND status = 'PENDING'
`, string(tone), chatID, day)
	metrics.ObserveNetworkRequest("postgres", "rolls_lock", "rolls", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetVerdict реализует domain.RollRepo. Обновление защищено условием
// status='LOCKED'; повторная запись перезаписывает вердикт.
func (p *Postgres) SetVerdict(ctx context.Context, chatID int64, day string, verdict domain.Verdict) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE rolls SET verdict = $1
WHERE chat_id = $2 AND day = $3 AND status = 'LOCKED'
`, string(verdict), chatID, day)
	metrics.ObserveNetworkRequest("postgres", "rolls_verdict", "rolls", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListRecent реализует domain.RollRepo: последние limit бросков, новые первыми.
func (p *Postgres) ListRecent(ctx context.Context, chatID int64, limit int) ([]domain.HistoryEntry, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT to_char(day, 'YYYY-MM-DD'), topic, COALESCE(verdict, '')
FROM rolls WHERE chat_id = $1
ORDER BY day DESC
LIMIT $2
`, chatID, limit)
	metrics.ObserveNetworkRequest("postgres", "rolls_history", "rolls", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var (
			entry   domain.HistoryEntry
			verdict string
		)
		if err := rows.Scan(&entry.Day, &entry.Topic, &verdict); err != nil {
			return nil, err
		}
		entry.Verdict = domain.Verdict(verdict)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CollectStats реализует domain.StatsRepo.
func (p *Postgres) CollectStats(ctx context.Context, day string) (domain.StatsReport, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT
	(SELECT count(*) FROM users),
	(SELECT count(*) FROM users WHERE enabled),
	(SELECT count(*) FROM rolls WHERE day = $1),
	(SELECT count(*) FROM rolls WHERE day = $1 AND status = 'LOCKED'),
	(SELECT count(*) FROM rolls WHERE verdict = $2),
	(SELECT count(*) FROM rolls WHERE verdict = $3)
`, day, string(domain.VerdictPass), string(domain.VerdictFail))
	var report domain.StatsReport
	err := row.Scan(&report.TotalUsers, &report.EnabledUsers, &report.RollsToday, &report.LockedToday, &report.PassTotal, &report.FailTotal)
	metrics.ObserveNetworkRequest("postgres", "stats_collect", "rolls", start, err)
	if err != nil {
		return domain.StatsReport{}, err
	}
	return report, nil
}
