package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dodekaedr-bot/internal/domain"
)

var errSettingsRead = errors.New("settings store is down")

// fakeStore покрывает все репозитории, которые нужны планировщику и воркеру.
type fakeStore struct {
	mu      sync.Mutex
	users   map[int64]domain.UserSettings
	rolls   map[int64]domain.DailyRoll
	failGet bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[int64]domain.UserSettings),
		rolls: make(map[int64]domain.DailyRoll),
	}
}

func (f *fakeStore) putUser(user domain.UserSettings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ChatID] = user
}

func (f *fakeStore) putRoll(roll domain.DailyRoll) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rolls[roll.ChatID] = roll
}

func (f *fakeStore) UpsertUser(ctx context.Context, chatID int64) (domain.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[chatID]; ok {
		return user, nil
	}
	user := domain.UserSettings{ChatID: chatID, DefaultTone: domain.ToneBase, MorningTime: "07:00", EveningTime: "21:00", Enabled: true}
	f.users[chatID] = user
	return user, nil
}

func (f *fakeStore) GetUser(ctx context.Context, chatID int64) (domain.UserSettings, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return domain.UserSettings{}, false, errSettingsRead
	}
	user, ok := f.users[chatID]
	return user, ok, nil
}

func (f *fakeStore) setFailGetUser(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet = fail
}

func (f *fakeStore) SetDefaultTone(ctx context.Context, chatID int64, tone domain.Tone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[chatID]
	user.DefaultTone = tone
	f.users[chatID] = user
	return nil
}

func (f *fakeStore) SetTimes(ctx context.Context, chatID int64, morning, evening string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[chatID]
	user.MorningTime = morning
	user.EveningTime = evening
	f.users[chatID] = user
	return nil
}

func (f *fakeStore) SetEnabled(ctx context.Context, chatID int64, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[chatID]
	user.Enabled = enabled
	f.users[chatID] = user
	return nil
}

func (f *fakeStore) ListUsers(ctx context.Context) ([]domain.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]domain.UserSettings, 0, len(f.users))
	for _, user := range f.users {
		users = append(users, user)
	}
	return users, nil
}

func (f *fakeStore) CreateRoll(ctx context.Context, chatID int64, day string, topic int) (domain.DailyRoll, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if roll, ok := f.rolls[chatID]; ok && roll.Day == day {
		return roll, false, nil
	}
	roll := domain.DailyRoll{ChatID: chatID, Day: day, Topic: topic, Status: domain.RollPending}
	f.rolls[chatID] = roll
	return roll, true, nil
}

func (f *fakeStore) GetRoll(ctx context.Context, chatID int64, day string) (domain.DailyRoll, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roll, ok := f.rolls[chatID]
	if !ok || roll.Day != day {
		return domain.DailyRoll{}, false, nil
	}
	return roll, true, nil
}

func (f *fakeStore) LockRoll(ctx context.Context, chatID int64, day string, tone domain.Tone) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roll, ok := f.rolls[chatID]
	if !ok || roll.Day != day || roll.Status != domain.RollPending {
		return false, nil
	}
	roll.Tone = tone
	roll.Status = domain.RollLocked
	f.rolls[chatID] = roll
	return true, nil
}

func (f *fakeStore) SetVerdict(ctx context.Context, chatID int64, day string, verdict domain.Verdict) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roll, ok := f.rolls[chatID]
	if !ok || roll.Day != day || roll.Status != domain.RollLocked {
		return false, nil
	}
	roll.Verdict = verdict
	f.rolls[chatID] = roll
	return true, nil
}

func (f *fakeStore) ListRecent(ctx context.Context, chatID int64, limit int) ([]domain.HistoryEntry, error) {
	return nil, nil
}

func (f *fakeStore) CollectStats(ctx context.Context, day string) (domain.StatsReport, error) {
	return domain.StatsReport{}, nil
}

// fakeQueue собирает задачи в память.
type fakeQueue struct {
	mu   sync.Mutex
	jobs []domain.ReminderJob
}

func (f *fakeQueue) Enqueue(ctx context.Context, job domain.ReminderJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) Pop(ctx context.Context) (domain.ReminderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		return domain.ReminderJob{}, context.Canceled
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return job, nil
}

func (f *fakeQueue) all() []domain.ReminderJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ReminderJob(nil), f.jobs...)
}

func enabledUser(chatID int64) domain.UserSettings {
	return domain.UserSettings{
		ChatID:      chatID,
		DefaultTone: domain.ToneBase,
		MorningTime: "07:00",
		EveningTime: "21:00",
		Enabled:     true,
	}
}

func newTestScheduler(store *fakeStore, queue *fakeQueue) *Scheduler {
	s := NewScheduler(store, queue, time.UTC, zerolog.Nop())
	s.now = func() time.Time {
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func TestReconcileArmsBothSlots(t *testing.T) {
	store := newFakeStore()
	store.putUser(enabledUser(1))
	s := newTestScheduler(store, &fakeQueue{})
	defer s.Stop()

	if err := s.Reconcile(context.Background(), 1); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := len(s.ActiveSlots(1)); got != 2 {
		t.Fatalf("ожидали 2 таймера, получили %d", got)
	}
}

func TestReconcileDisabledCancels(t *testing.T) {
	store := newFakeStore()
	store.putUser(enabledUser(1))
	s := newTestScheduler(store, &fakeQueue{})
	defer s.Stop()

	if err := s.Reconcile(context.Background(), 1); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if err := store.SetEnabled(context.Background(), 1, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if err := s.Reconcile(context.Background(), 1); err != nil {
		t.Fatalf("повторный Reconcile: %v", err)
	}
	if got := len(s.ActiveSlots(1)); got != 0 {
		t.Fatalf("таймеры выключенного должны быть сняты, осталось %d", got)
	}

	if err := store.SetEnabled(context.Background(), 1, true); err != nil {
		t.Fatalf("повторное включение: %v", err)
	}
	if err := s.Reconcile(context.Background(), 1); err != nil {
		t.Fatalf("Reconcile после включения: %v", err)
	}
	if got := len(s.ActiveSlots(1)); got != 2 {
		t.Fatalf("после включения должно быть 2 таймера, получили %d", got)
	}
}

func TestReconcileUnknownUserIsNoop(t *testing.T) {
	s := newTestScheduler(newFakeStore(), &fakeQueue{})
	defer s.Stop()

	if err := s.Reconcile(context.Background(), 42); err != nil {
		t.Fatalf("Reconcile по неизвестному пользователю: %v", err)
	}
	if got := len(s.ActiveSlots(42)); got != 0 {
		t.Fatalf("таймеров быть не должно, получили %d", got)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	store := newFakeStore()
	store.putUser(enabledUser(1))
	s := newTestScheduler(store, &fakeQueue{})
	defer s.Stop()

	for i := 0; i < 3; i++ {
		if err := s.Reconcile(context.Background(), 1); err != nil {
			t.Fatalf("Reconcile #%d: %v", i, err)
		}
	}
	if got := len(s.ActiveSlots(1)); got != 2 {
		t.Fatalf("повторный Reconcile не должен плодить таймеры, получили %d", got)
	}
}

func TestForceReconcileRearms(t *testing.T) {
	store := newFakeStore()
	store.putUser(enabledUser(1))
	s := newTestScheduler(store, &fakeQueue{})
	defer s.Stop()

	if err := s.Reconcile(context.Background(), 1); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if err := store.SetTimes(context.Background(), 1, "08:30", "22:15"); err != nil {
		t.Fatalf("SetTimes: %v", err)
	}
	if err := s.ForceReconcile(context.Background(), 1); err != nil {
		t.Fatalf("ForceReconcile: %v", err)
	}
	if got := len(s.ActiveSlots(1)); got != 2 {
		t.Fatalf("после пересоздания должно остаться 2 таймера, получили %d", got)
	}
}

func TestRestoreAll(t *testing.T) {
	store := newFakeStore()
	store.putUser(enabledUser(1))
	disabled := enabledUser(2)
	disabled.Enabled = false
	store.putUser(disabled)
	s := newTestScheduler(store, &fakeQueue{})
	defer s.Stop()

	if err := s.RestoreAll(context.Background()); err != nil {
		t.Fatalf("RestoreAll: %v", err)
	}
	if got := len(s.ActiveSlots(1)); got != 2 {
		t.Fatalf("включённому нужны 2 таймера, получили %d", got)
	}
	if got := len(s.ActiveSlots(2)); got != 0 {
		t.Fatalf("выключенному таймеры не нужны, получили %d", got)
	}
}

func TestFireEnqueuesAndRearms(t *testing.T) {
	store := newFakeStore()
	store.putUser(enabledUser(1))
	queue := &fakeQueue{}
	s := newTestScheduler(store, queue)
	defer s.Stop()

	s.fire(1, domain.SlotMorning, "07:00")

	jobs := queue.all()
	if len(jobs) != 1 {
		t.Fatalf("ожидали одну задачу, получили %d", len(jobs))
	}
	job := jobs[0]
	if job.ChatID != 1 || job.Slot != domain.SlotMorning {
		t.Fatalf("неожиданная задача: %+v", job)
	}
	if job.Day != "2026-08-30" {
		t.Fatalf("день задачи должен совпадать с днём срабатывания, получили %q", job.Day)
	}
	if job.ID == "" {
		t.Fatal("у задачи должен быть идентификатор")
	}
	if got := len(s.ActiveSlots(1)); got != 2 {
		t.Fatalf("после срабатывания таймер должен перевзвестись, живых слотов %d", got)
	}
}

func TestFireDisabledEnqueuesNothing(t *testing.T) {
	store := newFakeStore()
	disabled := enabledUser(1)
	disabled.Enabled = false
	store.putUser(disabled)
	queue := &fakeQueue{}
	s := newTestScheduler(store, queue)
	defer s.Stop()

	s.fire(1, domain.SlotEvening, "21:00")

	if got := len(queue.all()); got != 0 {
		t.Fatalf("выключенному ничего не ставим, получили %d задач", got)
	}
	if got := len(s.ActiveSlots(1)); got != 0 {
		t.Fatalf("таймеры выключенного не перевзводятся, получили %d", got)
	}
}

func TestStopCancelsEverything(t *testing.T) {
	store := newFakeStore()
	store.putUser(enabledUser(1))
	queue := &fakeQueue{}
	s := newTestScheduler(store, queue)

	if err := s.Reconcile(context.Background(), 1); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	s.Stop()
	if got := len(s.ActiveSlots(1)); got != 0 {
		t.Fatalf("после Stop таймеров быть не должно, получили %d", got)
	}

	s.fire(1, domain.SlotMorning, "07:00")
	if got := len(queue.all()); got != 0 {
		t.Fatalf("после Stop срабатывания глушатся, получили %d задач", got)
	}
}

func TestFireSurvivesSettingsReadFailure(t *testing.T) {
	store := newFakeStore()
	store.putUser(enabledUser(1))
	queue := &fakeQueue{}
	s := newTestScheduler(store, queue)
	defer s.Stop()

	if err := s.Reconcile(context.Background(), 1); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	store.setFailGetUser(true)

	s.fire(1, domain.SlotMorning, "07:00")

	if got := len(queue.all()); got != 0 {
		t.Fatalf("при сбое чтения настроек ничего не ставим, получили %d задач", got)
	}
	if got := len(s.ActiveSlots(1)); got != 2 {
		t.Fatalf("слот должен пережить сбой стора, живых слотов %d", got)
	}

	store.setFailGetUser(false)
	s.fire(1, domain.SlotMorning, "07:00")
	if got := len(queue.all()); got != 1 {
		t.Fatalf("после восстановления стора задача должна встать, получили %d", got)
	}
}

func TestNextFireDelay(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	delay, err := nextFireDelay(now, "10:30")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if delay != 30*time.Minute {
		t.Fatalf("ожидали 30m, получили %v", delay)
	}

	delay, err = nextFireDelay(now, "09:00")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if delay != 23*time.Hour {
		t.Fatalf("прошедшее время уходит на завтра, ожидали 23h, получили %v", delay)
	}

	delay, err = nextFireDelay(now, "10:00")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if delay != 24*time.Hour {
		t.Fatalf("совпадение с текущей минутой уходит на завтра, получили %v", delay)
	}

	if _, err := nextFireDelay(now, "25:99"); err == nil {
		t.Fatal("ожидали ошибку разбора")
	}
	if _, err := nextFireDelay(now, "morning"); err == nil {
		t.Fatal("ожидали ошибку разбора")
	}
}
