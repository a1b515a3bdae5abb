package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dodekaedr-bot/internal/domain"
	"dodekaedr-bot/internal/infra/metrics"
	"dodekaedr-bot/internal/usecase/roll"
)

// dedupTTL должен доживать до конца календарного дня, но не заходить в
// следующий: повтор задачи в пределах дня глушится, завтрашняя — нет.
const dedupTTL = 20 * time.Hour

// popRetryDelay — пауза после ошибки чтения очереди, чтобы умершая очередь
// не превращала цикл в busy loop.
const popRetryDelay = time.Second

// Worker доставляет напоминания из очереди. Доставка at-least-once: дубликаты
// в пределах (день, слот, пользователь) отсеиваются через Cache.Once.
type Worker struct {
	queue  domain.ReminderQueue
	users  domain.UserRepo
	rolls  *roll.Service
	sender domain.ReminderSender
	cache  domain.Cache
	loc    *time.Location
	log    zerolog.Logger
}

// NewWorker создаёт воркер.
func NewWorker(queue domain.ReminderQueue, users domain.UserRepo, rolls *roll.Service, sender domain.ReminderSender, cache domain.Cache, loc *time.Location, log zerolog.Logger) *Worker {
	return &Worker{
		queue:  queue,
		users:  users,
		rolls:  rolls,
		sender: sender,
		cache:  cache,
		loc:    loc,
		log:    log,
	}
}

// Run крутит цикл обработки до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			w.log.Error().Err(err).Msg("не удалось прочитать задачу из очереди")
			select {
			case <-ctx.Done():
				return
			case <-time.After(popRetryDelay):
			}
			continue
		}
		if err := w.process(ctx, job); err != nil {
			w.log.Error().Err(err).Str("job", job.ID).Int64("chat", job.ChatID).Str("slot", string(job.Slot)).Msg("не удалось доставить напоминание")
		}
	}
}

func (w *Worker) process(ctx context.Context, job domain.ReminderJob) error {
	// Задача могла пролежать в очереди через полночь или рестарт — вчерашние
	// напоминания не доставляем.
	today := time.Now().In(w.loc).Format("2006-01-02")
	if job.Day != "" && job.Day != today {
		w.log.Warn().Str("job", job.ID).Str("day", job.Day).Msg("устаревшая задача пропущена")
		return nil
	}

	user, found, err := w.users.GetUser(ctx, job.ChatID)
	if err != nil {
		return fmt.Errorf("чтение настроек: %w", err)
	}
	if !found || !user.Enabled {
		return nil
	}

	key := fmt.Sprintf("reminder:%s:%s:%d", today, job.Slot, job.ChatID)
	return w.cache.Once(key, dedupTTL, func() error {
		return w.deliver(ctx, job, user)
	})
}

func (w *Worker) deliver(ctx context.Context, job domain.ReminderJob, user domain.UserSettings) error {
	switch job.Slot {
	case domain.SlotMorning:
		if err := w.sender.SendMorning(job.ChatID, user.DefaultTone); err != nil {
			return fmt.Errorf("утреннее напоминание: %w", err)
		}
		metrics.IncReminderDelivered(string(job.Slot), "morning_prompt")
		return nil
	case domain.SlotEvening:
		// Состояние дня читается в момент доставки, не в момент срабатывания:
		// тон, выбранный между ними, всё равно даст запрос вердикта.
		status, err := w.rolls.TodayStatus(ctx, job.ChatID)
		if err != nil {
			return fmt.Errorf("статус дня: %w", err)
		}
		switch status.Phase {
		case domain.DayNoRoll:
			if err := w.sender.SendNoRollNudge(job.ChatID); err != nil {
				return fmt.Errorf("напоминание о броске: %w", err)
			}
			metrics.IncReminderDelivered(string(job.Slot), "no_roll_nudge")
		case domain.DayAwaitingTone:
			if err := w.sender.SendToneMissingNudge(job.ChatID); err != nil {
				return fmt.Errorf("напоминание о тоне: %w", err)
			}
			metrics.IncReminderDelivered(string(job.Slot), "tone_missing_nudge")
		case domain.DayReady:
			if err := w.sender.SendEveningVerdict(job.ChatID, status.Tone); err != nil {
				return fmt.Errorf("запрос вердикта: %w", err)
			}
			metrics.IncReminderDelivered(string(job.Slot), "verdict_prompt")
		}
		return nil
	default:
		return fmt.Errorf("неизвестный слот %q", job.Slot)
	}
}
