// Package reminder отвечает за повторяющиеся напоминания: планировщик держит
// именованные таймеры (chat_id, слот), воркер доставляет поставленные ими
// задачи.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dodekaedr-bot/internal/domain"
	"dodekaedr-bot/internal/infra/metrics"
)

const enqueueTimeout = 5 * time.Second

type timerKey struct {
	ChatID int64
	Slot   domain.ReminderSlot
}

// Scheduler держит по два именованных таймера на включённого пользователя.
// Вся память реконструируется из БД через RestoreAll, переживать рестарт ей
// не нужно.
type Scheduler struct {
	users domain.UserRepo
	queue domain.ReminderQueue
	loc   *time.Location
	log   zerolog.Logger
	now   func() time.Time

	mu      sync.Mutex
	timers  map[timerKey]*time.Timer
	stopped bool
}

// NewScheduler создаёт планировщик.
func NewScheduler(users domain.UserRepo, queue domain.ReminderQueue, loc *time.Location, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		users:  users,
		queue:  queue,
		loc:    loc,
		log:    log,
		now:    time.Now,
		timers: make(map[timerKey]*time.Timer),
	}
}

// RestoreAll перечитывает всех пользователей и восстанавливает их таймеры.
// Вызывается один раз на старте процесса.
func (s *Scheduler) RestoreAll(ctx context.Context) error {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("выборка пользователей: %w", err)
	}
	for _, user := range users {
		s.apply(user, false)
	}
	s.log.Info().Int("users", len(users)).Msg("таймеры напоминаний восстановлены")
	return nil
}

// Reconcile приводит таймеры пользователя в соответствие с настройками.
// Существующие таймеры не пересоздаются, отмена отсутствующего — no-op.
func (s *Scheduler) Reconcile(ctx context.Context, chatID int64) error {
	return s.reconcile(ctx, chatID, false)
}

// ForceReconcile отменяет и пересоздаёт оба таймера. Используется после смены
// времени, чтобы новое расписание вступило в силу немедленно.
func (s *Scheduler) ForceReconcile(ctx context.Context, chatID int64) error {
	return s.reconcile(ctx, chatID, true)
}

func (s *Scheduler) reconcile(ctx context.Context, chatID int64, force bool) error {
	user, found, err := s.users.GetUser(ctx, chatID)
	if err != nil {
		return fmt.Errorf("чтение настроек: %w", err)
	}
	if !found {
		s.cancelUser(chatID)
		return nil
	}
	s.apply(user, force)
	return nil
}

// apply — единственное место, где таймеры создаются и отменяются. Окно
// «нет таймера» при force не шире самого вызова: всё происходит под mu без
// точек блокировки.
func (s *Scheduler) apply(user domain.UserSettings, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if !user.Enabled {
		s.cancelLocked(timerKey{ChatID: user.ChatID, Slot: domain.SlotMorning})
		s.cancelLocked(timerKey{ChatID: user.ChatID, Slot: domain.SlotEvening})
		return
	}
	s.armLocked(user.ChatID, domain.SlotMorning, user.MorningTime, force)
	s.armLocked(user.ChatID, domain.SlotEvening, user.EveningTime, force)
}

func (s *Scheduler) armLocked(chatID int64, slot domain.ReminderSlot, at string, force bool) {
	key := timerKey{ChatID: chatID, Slot: slot}
	if _, exists := s.timers[key]; exists {
		if !force {
			return
		}
		s.cancelLocked(key)
	}
	delay, err := nextFireDelay(s.now().In(s.loc), at)
	if err != nil {
		// Невалидное время в БД не должно попасть сюда: хендлер валидирует ввод.
		s.log.Error().Err(err).Int64("chat", chatID).Str("slot", string(slot)).Msg("не удалось вычислить время срабатывания")
		return
	}
	s.timers[key] = time.AfterFunc(delay, func() { s.fire(chatID, slot, at) })
}

func (s *Scheduler) cancelUser(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(timerKey{ChatID: chatID, Slot: domain.SlotMorning})
	s.cancelLocked(timerKey{ChatID: chatID, Slot: domain.SlotEvening})
}

func (s *Scheduler) cancelLocked(key timerKey) {
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
}

// fire выполняется в горутине таймера: снимает себя с учёта, ставит задачу в
// очередь и перевзводится на следующий день. Отправкой занимается воркер,
// поэтому медленная доставка одному пользователю не задерживает остальных.
func (s *Scheduler) fire(chatID int64, slot domain.ReminderSlot, at string) {
	s.mu.Lock()
	delete(s.timers, timerKey{ChatID: chatID, Slot: slot})
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()

	// Гонка с выключением допустима: настройки перечитываются и здесь,
	// и в воркере перед отправкой.
	user, found, err := s.users.GetUser(ctx, chatID)
	if err != nil {
		s.log.Error().Err(err).Int64("chat", chatID).Str("slot", string(slot)).Msg("не удалось перечитать настройки при срабатывании")
		// Таймер уже снят с учёта; перевзводимся на то же время, иначе слот
		// умрёт насовсем от одного сбоя стора.
		s.rearm(chatID, slot, at)
		return
	}
	if !found || !user.Enabled {
		return
	}

	job := domain.ReminderJob{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		Slot:       slot,
		Day:        s.now().In(s.loc).Format("2006-01-02"),
		EnqueuedAt: s.now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.log.Error().Err(err).Int64("chat", chatID).Str("slot", string(slot)).Msg("не удалось поставить напоминание в очередь")
	} else {
		metrics.IncReminderFired(string(slot))
	}
	s.apply(user, false)
}

func (s *Scheduler) rearm(chatID int64, slot domain.ReminderSlot, at string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.armLocked(chatID, slot, at, false)
}

// Stop отменяет все таймеры. После Stop планировщик не перевзводится.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
}

// ActiveSlots возвращает живые слоты пользователя (для диагностики и тестов).
func (s *Scheduler) ActiveSlots(chatID int64) []domain.ReminderSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var slots []domain.ReminderSlot
	for _, slot := range []domain.ReminderSlot{domain.SlotMorning, domain.SlotEvening} {
		if _, ok := s.timers[timerKey{ChatID: chatID, Slot: slot}]; ok {
			slots = append(slots, slot)
		}
	}
	return slots
}

// nextFireDelay считает задержку до ближайшего HH:MM в поясе now. Если время
// сегодня уже прошло, берётся завтрашний день.
func nextFireDelay(now time.Time, at string) (time.Duration, error) {
	parsed, err := time.Parse("15:04", at)
	if err != nil {
		return 0, fmt.Errorf("разбор времени %q: %w", at, err)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now), nil
}
