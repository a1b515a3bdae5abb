package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"dodekaedr-bot/internal/domain"
	"dodekaedr-bot/internal/infra/metrics"
)

// RabbitReminderQueue реализует очередь напоминаний через AMQP. Очередь
// долговечная, сообщения персистентные: напоминание переживает рестарт
// брокера и воркера.
type RabbitReminderQueue struct {
	conn  *amqp.Connection
	queue string

	mu         sync.Mutex
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// NewRabbitReminderQueue подключается к брокеру и объявляет очередь.
func NewRabbitReminderQueue(amqpURL, queueName string) (*RabbitReminderQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queueName == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitReminderQueue{conn: conn, ch: ch, queue: queueName}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitReminderQueue) Enqueue(ctx context.Context, job domain.ReminderJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	ch, err := q.channel()
	if err != nil {
		return err
	}
	start := time.Now()
	err = ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    job.ID,
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RabbitReminderQueue) Pop(ctx context.Context) (domain.ReminderJob, error) {
	deliveries, err := q.consume()
	if err != nil {
		return domain.ReminderJob{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return domain.ReminderJob{}, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				// Закрытый канал доставок означает смерть AMQP-канала.
				// Сбрасываем кэш, следующий Pop откроет consume заново.
				q.dropConsume(deliveries)
				return domain.ReminderJob{}, errors.New("rabbitmq queue: consume channel closed")
			}
			var job domain.ReminderJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				// Непарсящееся сообщение возвращать в очередь бессмысленно.
				_ = d.Reject(false)
				return domain.ReminderJob{}, fmt.Errorf("decode job: %w", err)
			}
			if err := d.Ack(false); err != nil {
				return domain.ReminderJob{}, fmt.Errorf("ack job: %w", err)
			}
			return job, nil
		}
	}
}

func (q *RabbitReminderQueue) consume() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	ch, err := q.channelLocked()
	if err != nil {
		return nil, err
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume queue: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

func (q *RabbitReminderQueue) dropConsume(deliveries <-chan amqp.Delivery) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries == deliveries {
		q.deliveries = nil
	}
}

func (q *RabbitReminderQueue) channel() (*amqp.Channel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.channelLocked()
}

// channelLocked переоткрывает AMQP-канал, если брокер его убил. Канал
// умирает от любой ошибки протокола, соединение обычно живёт дольше.
func (q *RabbitReminderQueue) channelLocked() (*amqp.Channel, error) {
	if !q.ch.IsClosed() {
		return q.ch, nil
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("reopen channel: %w", err)
	}
	if _, err := ch.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	q.ch = ch
	q.deliveries = nil
	return ch, nil
}

// Close закрывает канал и соединение.
func (q *RabbitReminderQueue) Close() error {
	q.mu.Lock()
	ch := q.ch
	q.mu.Unlock()
	if err := ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
