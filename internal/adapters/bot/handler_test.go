package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"dodekaedr-bot/internal/content"
	"dodekaedr-bot/internal/domain"
	"dodekaedr-bot/internal/usecase/reminder"
	"dodekaedr-bot/internal/usecase/roll"
)

// fakeAPI подменяет Bot API и копит исходящие сообщения.
type fakeAPI struct {
	sent []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) texts() []string {
	var out []string
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg.Text)
		}
	}
	return out
}

// handlerStore — in-memory репозитории для сборки хендлера.
type handlerStore struct {
	users map[int64]domain.UserSettings
	rolls map[int64]domain.DailyRoll
}

func newHandlerStore() *handlerStore {
	return &handlerStore{
		users: make(map[int64]domain.UserSettings),
		rolls: make(map[int64]domain.DailyRoll),
	}
}

func (s *handlerStore) UpsertUser(ctx context.Context, chatID int64) (domain.UserSettings, error) {
	if user, ok := s.users[chatID]; ok {
		return user, nil
	}
	user := domain.UserSettings{ChatID: chatID, DefaultTone: domain.ToneBase, MorningTime: "07:00", EveningTime: "21:00", Enabled: true}
	s.users[chatID] = user
	return user, nil
}

func (s *handlerStore) GetUser(ctx context.Context, chatID int64) (domain.UserSettings, bool, error) {
	user, ok := s.users[chatID]
	return user, ok, nil
}

func (s *handlerStore) SetDefaultTone(ctx context.Context, chatID int64, tone domain.Tone) error {
	user := s.users[chatID]
	user.DefaultTone = tone
	s.users[chatID] = user
	return nil
}

func (s *handlerStore) SetTimes(ctx context.Context, chatID int64, morning, evening string) error {
	user := s.users[chatID]
	user.MorningTime = morning
	user.EveningTime = evening
	s.users[chatID] = user
	return nil
}

func (s *handlerStore) SetEnabled(ctx context.Context, chatID int64, enabled bool) error {
	user := s.users[chatID]
	user.Enabled = enabled
	s.users[chatID] = user
	return nil
}

func (s *handlerStore) ListUsers(ctx context.Context) ([]domain.UserSettings, error) {
	users := make([]domain.UserSettings, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	return users, nil
}

func (s *handlerStore) CreateRoll(ctx context.Context, chatID int64, day string, topic int) (domain.DailyRoll, bool, error) {
	if roll, ok := s.rolls[chatID]; ok && roll.Day == day {
		return roll, false, nil
	}
	roll := domain.DailyRoll{ChatID: chatID, Day: day, Topic: topic, Status: domain.RollPending}
	s.rolls[chatID] = roll
	return roll, true, nil
}

func (s *handlerStore) GetRoll(ctx context.Context, chatID int64, day string) (domain.DailyRoll, bool, error) {
	roll, ok := s.rolls[chatID]
	if !ok || roll.Day != day {
		return domain.DailyRoll{}, false, nil
	}
	return roll, true, nil
}

func (s *handlerStore) LockRoll(ctx context.Context, chatID int64, day string, tone domain.Tone) (bool, error) {
	roll, ok := s.rolls[chatID]
	if !ok || roll.Day != day || roll.Status != domain.RollPending {
		return false, nil
	}
	roll.Tone = tone
	roll.Status = domain.RollLocked
	s.rolls[chatID] = roll
	return true, nil
}

func (s *handlerStore) SetVerdict(ctx context.Context, chatID int64, day string, verdict domain.Verdict) (bool, error) {
	roll, ok := s.rolls[chatID]
	if !ok || roll.Day != day || roll.Status != domain.RollLocked {
		return false, nil
	}
	roll.Verdict = verdict
	s.rolls[chatID] = roll
	return true, nil
}

func (s *handlerStore) ListRecent(ctx context.Context, chatID int64, limit int) ([]domain.HistoryEntry, error) {
	return nil, nil
}

func (s *handlerStore) CollectStats(ctx context.Context, day string) (domain.StatsReport, error) {
	return domain.StatsReport{TotalUsers: len(s.users)}, nil
}

type noopQueue struct{}

func (noopQueue) Enqueue(ctx context.Context, job domain.ReminderJob) error { return nil }

func (noopQueue) Pop(ctx context.Context) (domain.ReminderJob, error) {
	return domain.ReminderJob{}, context.Canceled
}

func newTestHandler(store *handlerStore, api *fakeAPI, adminChatID int64) *Handler {
	rolls := roll.NewService(store, store, store, time.UTC, zerolog.Nop())
	sched := reminder.NewScheduler(store, noopQueue{}, time.UTC, zerolog.Nop())
	return NewHandler(api, zerolog.Nop(), rolls, sched, content.NewLibrary(), adminChatID)
}

func textMessage(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{Text: text, Chat: &tgbotapi.Chat{ID: chatID}}
}

func TestUnknownTextWithoutRoll(t *testing.T) {
	api := &fakeAPI{}
	h := newTestHandler(newHandlerStore(), api, 0)

	h.handleMessage(context.Background(), textMessage(1, "ahoj"))

	texts := api.texts()
	if len(texts) != 1 || texts[0] != msgNoRollYet() {
		t.Fatalf("без броска ждём приглашение к /hod, получили %v", texts)
	}
}

func TestUnknownTextLockedShowsScenario(t *testing.T) {
	store := newHandlerStore()
	store.users[1] = domain.UserSettings{ChatID: 1, DefaultTone: domain.ToneBase, Enabled: true}
	today := time.Now().UTC().Format("2006-01-02")
	store.rolls[1] = domain.DailyRoll{ChatID: 1, Day: today, Topic: 3, Tone: domain.ToneHard, Status: domain.RollLocked}
	api := &fakeAPI{}
	h := newTestHandler(store, api, 0)

	h.handleMessage(context.Background(), textMessage(1, "ahoj"))

	texts := api.texts()
	if len(texts) != 1 {
		t.Fatalf("ожидали один ответ, получили %v", texts)
	}
	if texts[0] == msgNoRollYet() {
		t.Fatal("при зафиксированном дне нельзя отвечать приглашением к броску")
	}
	if !strings.Contains(texts[0], "Uzamčeno do 24:00.") {
		t.Fatalf("ожидали карточку дня, получили %q", texts[0])
	}
}

func TestStatsAdminOnly(t *testing.T) {
	api := &fakeAPI{}
	h := newTestHandler(newHandlerStore(), api, 99)

	h.handleMessage(context.Background(), textMessage(1, "/stats"))
	if texts := api.texts(); len(texts) != 0 {
		t.Fatalf("не админ не должен получать отчёт, получили %v", texts)
	}

	h.handleMessage(context.Background(), textMessage(99, "/stats"))
	texts := api.texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "Přehled") {
		t.Fatalf("админ должен получить отчёт, получили %v", texts)
	}
}
