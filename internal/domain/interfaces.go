package domain

import "context"

// UserRepo управляет настройками пользователей.
type UserRepo interface {
	// UpsertUser создаёт строку пользователя при первом контакте и возвращает
	// актуальные настройки. Повторные вызовы идемпотентны.
	UpsertUser(ctx context.Context, chatID int64) (UserSettings, error)
	GetUser(ctx context.Context, chatID int64) (UserSettings, bool, error)
	SetDefaultTone(ctx context.Context, chatID int64, tone Tone) error
	SetTimes(ctx context.Context, chatID int64, morning, evening string) error
	SetEnabled(ctx context.Context, chatID int64, enabled bool) error
	// ListUsers возвращает всех пользователей для восстановления таймеров
	// после рестарта.
	ListUsers(ctx context.Context) ([]UserSettings, error)
}

// RollRepo управляет бросками. Все условные записи атомарны на стороне БД:
// сервис никогда не делает read-then-write в два шага.
type RollRepo interface {
	// CreateRoll вставляет бросок, если за (chat_id, day) его ещё нет.
	// Возвращает выжившую строку и признак, что вставка принадлежит вызову.
	CreateRoll(ctx context.Context, chatID int64, day string, topic int) (DailyRoll, bool, error)
	GetRoll(ctx context.Context, chatID int64, day string) (DailyRoll, bool, error)
	// LockRoll переводит PENDING→LOCKED и фиксирует тон. Обновление защищено
	// условием status='PENDING': проигравший гонку получает locked=false.
	LockRoll(ctx context.Context, chatID int64, day string, tone Tone) (locked bool, err error)
	// SetVerdict перезаписывает вердикт, но только для LOCKED-строки.
	SetVerdict(ctx context.Context, chatID int64, day string, verdict Verdict) (updated bool, err error)
	ListRecent(ctx context.Context, chatID int64, limit int) ([]HistoryEntry, error)
}

// StatsRepo считает агрегаты для администратора.
type StatsRepo interface {
	CollectStats(ctx context.Context, day string) (StatsReport, error)
}

// ReminderSender доставляет напоминания пользователю. Тексты и клавиатуры —
// забота транспортного адаптера.
type ReminderSender interface {
	SendMorning(chatID int64, tone Tone) error
	SendEveningVerdict(chatID int64, tone Tone) error
	SendNoRollNudge(chatID int64) error
	SendToneMissingNudge(chatID int64) error
}
