// Package roll реализует машину состояний дневного броска:
// NO_ROLL → PENDING → LOCKED, плюс вердикт поверх LOCKED.
package roll

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"dodekaedr-bot/internal/domain"
	"dodekaedr-bot/internal/infra/metrics"
)

var (
	// ErrNoRollYet — операция требует сегодняшний бросок, которого нет.
	ErrNoRollYet = errors.New("dnes ještě nepadl hod")
	// ErrNotLockedYet — вердикт запрошен до выбора тона.
	ErrNotLockedYet = errors.New("tón dne ještě není zvolen")
	// ErrInvalidTone — значение вне перечисления тонов.
	ErrInvalidTone = errors.New("neznámý tón")
	// ErrInvalidVerdict — значение вне перечисления вердиктов.
	ErrInvalidVerdict = errors.New("neznámý verdikt")
)

// LockResult — итог попытки зафиксировать тон дня.
type LockResult struct {
	Topic int
	// Applied — тон, который реально действует сегодня. При AlreadyLocked
	// это тон победителя первоначальной фиксации, не тон вызова.
	Applied       domain.Tone
	AlreadyLocked bool
}

// Service — машина состояний броска над репозиториями.
type Service struct {
	users domain.UserRepo
	rolls domain.RollRepo
	stats domain.StatsRepo
	loc   *time.Location
	pick  func() int
	log   zerolog.Logger
}

// NewService создаёт сервис.
func NewService(users domain.UserRepo, rolls domain.RollRepo, stats domain.StatsRepo, loc *time.Location, log zerolog.Logger) *Service {
	return &Service{
		users: users,
		rolls: rolls,
		stats: stats,
		loc:   loc,
		pick:  randomTopic,
		log:   log,
	}
}

// randomTopic выбирает грань 1..12 равномерно из crypto/rand. Детерминированный
// вариант (дата+id) был отвергнут как предсказуемый.
func randomTopic() int {
	n, err := crand.Int(crand.Reader, big.NewInt(int64(domain.MaxTopic)))
	if err != nil {
		// Источник энтропии ОС недоступен — ситуация уровня паники процесса.
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return int(n.Int64()) + domain.MinTopic
}

// Today возвращает текущую ISO-дату в фиксированном часовом поясе.
func (s *Service) Today() string {
	return time.Now().In(s.loc).Format("2006-01-02")
}

// Touch идемпотентно заводит пользователя при первом контакте.
func (s *Service) Touch(ctx context.Context, chatID int64) (domain.UserSettings, error) {
	user, err := s.users.UpsertUser(ctx, chatID)
	if err != nil {
		return domain.UserSettings{}, fmt.Errorf("upsert пользователя: %w", err)
	}
	return user, nil
}

// EnsureRoll возвращает грань дня, создавая PENDING-бросок при первом вызове.
// Вставка условная: при гонке выживает ровно одна строка, и все вызовы видят
// одну и ту же грань.
func (s *Service) EnsureRoll(ctx context.Context, chatID int64) (topic int, created bool, err error) {
	if _, err := s.users.UpsertUser(ctx, chatID); err != nil {
		return 0, false, fmt.Errorf("upsert пользователя: %w", err)
	}
	roll, created, err := s.rolls.CreateRoll(ctx, chatID, s.Today(), s.pick())
	if err != nil {
		return 0, false, fmt.Errorf("создание броска: %w", err)
	}
	if created {
		metrics.IncRollCreated()
	}
	return roll.Topic, created, nil
}

// LockTone атомарно фиксирует тон дня. Повторная фиксация не меняет тон дня,
// но default_tone пользователя обновляется в любом случае.
func (s *Service) LockTone(ctx context.Context, chatID int64, tone domain.Tone) (LockResult, error) {
	if _, ok := domain.ParseTone(string(tone)); !ok {
		return LockResult{}, ErrInvalidTone
	}
	day := s.Today()
	locked, err := s.rolls.LockRoll(ctx, chatID, day, tone)
	if err != nil {
		return LockResult{}, fmt.Errorf("фиксация тона: %w", err)
	}
	roll, found, err := s.rolls.GetRoll(ctx, chatID, day)
	if err != nil {
		return LockResult{}, fmt.Errorf("чтение броска: %w", err)
	}
	if !found {
		return LockResult{}, ErrNoRollYet
	}
	// Побочный эффект независим и идемпотентен: default_tone двигается всегда.
	if err := s.users.SetDefaultTone(ctx, chatID, tone); err != nil {
		return LockResult{}, fmt.Errorf("обновление default_tone: %w", err)
	}
	if locked {
		metrics.IncToneLock(string(tone))
	}
	return LockResult{Topic: roll.Topic, Applied: roll.Tone, AlreadyLocked: !locked}, nil
}

// RecordVerdict перезаписывает вердикт LOCKED-броска, последняя запись
// побеждает.
func (s *Service) RecordVerdict(ctx context.Context, chatID int64, verdict domain.Verdict) error {
	if _, ok := domain.ParseVerdict(string(verdict)); !ok {
		return ErrInvalidVerdict
	}
	day := s.Today()
	updated, err := s.rolls.SetVerdict(ctx, chatID, day, verdict)
	if err != nil {
		return fmt.Errorf("запись вердикта: %w", err)
	}
	if updated {
		metrics.IncVerdict(string(verdict))
		return nil
	}
	_, found, err := s.rolls.GetRoll(ctx, chatID, day)
	if err != nil {
		return fmt.Errorf("чтение броска: %w", err)
	}
	if !found {
		return ErrNoRollYet
	}
	return ErrNotLockedYet
}

// TodayStatus — чистое чтение фазы дня.
func (s *Service) TodayStatus(ctx context.Context, chatID int64) (domain.DayStatus, error) {
	roll, found, err := s.rolls.GetRoll(ctx, chatID, s.Today())
	if err != nil {
		return domain.DayStatus{}, fmt.Errorf("чтение броска: %w", err)
	}
	if !found {
		return domain.DayStatus{Phase: domain.DayNoRoll}, nil
	}
	if !roll.Locked() {
		return domain.DayStatus{Phase: domain.DayAwaitingTone, Topic: roll.Topic}, nil
	}
	return domain.DayStatus{Phase: domain.DayReady, Topic: roll.Topic, Tone: roll.Tone}, nil
}

// RecentHistory возвращает до limit последних бросков, новые первыми.
func (s *Service) RecentHistory(ctx context.Context, chatID int64, limit int) ([]domain.HistoryEntry, error) {
	entries, err := s.rolls.ListRecent(ctx, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("чтение истории: %w", err)
	}
	return entries, nil
}

// Stats собирает агрегаты за сегодня для администратора.
func (s *Service) Stats(ctx context.Context) (domain.StatsReport, error) {
	report, err := s.stats.CollectStats(ctx, s.Today())
	if err != nil {
		return domain.StatsReport{}, fmt.Errorf("сбор статистики: %w", err)
	}
	return report, nil
}

// SetDefaultTone меняет тон по умолчанию, не трогая сегодняшний бросок.
func (s *Service) SetDefaultTone(ctx context.Context, chatID int64, tone domain.Tone) error {
	if _, ok := domain.ParseTone(string(tone)); !ok {
		return ErrInvalidTone
	}
	if err := s.users.SetDefaultTone(ctx, chatID, tone); err != nil {
		return fmt.Errorf("обновление default_tone: %w", err)
	}
	return nil
}

// SetTimes сохраняет время утреннего и вечернего напоминания.
func (s *Service) SetTimes(ctx context.Context, chatID int64, morning, evening string) error {
	if err := s.users.SetTimes(ctx, chatID, morning, evening); err != nil {
		return fmt.Errorf("обновление времени: %w", err)
	}
	return nil
}

// SetEnabled включает или выключает напоминания пользователю.
func (s *Service) SetEnabled(ctx context.Context, chatID int64, enabled bool) error {
	if err := s.users.SetEnabled(ctx, chatID, enabled); err != nil {
		return fmt.Errorf("переключение напоминаний: %w", err)
	}
	return nil
}
