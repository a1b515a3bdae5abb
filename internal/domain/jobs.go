package domain

import (
	"context"
	"time"
)

// ReminderSlot — один из двух суточных слотов напоминаний.
type ReminderSlot string

const (
	SlotMorning ReminderSlot = "morning"
	SlotEvening ReminderSlot = "evening"
)

// ReminderJob — задача на доставку напоминания. Таймер только ставит задачу
// в очередь, отправкой занимается воркер.
type ReminderJob struct {
	ID         string       `json:"job_id"`
	ChatID     int64        `json:"chat_id"`
	Slot       ReminderSlot `json:"slot"`
	Day        string       `json:"day"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

// ReminderQueue описывает очередь задач на доставку напоминаний.
type ReminderQueue interface {
	Enqueue(ctx context.Context, job ReminderJob) error
	Pop(ctx context.Context) (ReminderJob, error)
}

// Cache глушит повторное выполнение по ключу в пределах TTL.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
}
