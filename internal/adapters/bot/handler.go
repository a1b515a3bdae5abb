package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"dodekaedr-bot/internal/content"
	"dodekaedr-bot/internal/domain"
	"dodekaedr-bot/internal/infra/metrics"
	"dodekaedr-bot/internal/usecase/reminder"
	"dodekaedr-bot/internal/usecase/roll"
)

// telegramAPI покрывает методы Bot API, которыми пользуется обработчик.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler обслуживает входящие апдейты бота.
type Handler struct {
	bot         telegramAPI
	log         zerolog.Logger
	rolls       *roll.Service
	scheduler   *reminder.Scheduler
	lib         *content.Library
	adminChatID int64
}

// NewHandler создаёт обработчик.
func NewHandler(botAPI telegramAPI, log zerolog.Logger, rolls *roll.Service, scheduler *reminder.Scheduler, lib *content.Library, adminChatID int64) *Handler {
	return &Handler{
		bot:         botAPI,
		log:         log,
		rolls:       rolls,
		scheduler:   scheduler,
		lib:         lib,
		adminChatID: adminChatID,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID
	switch {
	case strings.HasPrefix(text, "/start"):
		h.handleStart(ctx, chatID)
	case strings.HasPrefix(text, "/hod"):
		h.handleRoll(ctx, chatID)
	case strings.HasPrefix(text, "/dnes"):
		h.handleToday(ctx, chatID)
	case strings.HasPrefix(text, "/rezim"):
		h.handleTone(ctx, chatID)
	case strings.HasPrefix(text, "/historie"):
		h.handleHistory(ctx, chatID)
	case strings.HasPrefix(text, "/cas"):
		h.handleTimes(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/cas")))
	case strings.HasPrefix(text, "/stop"):
		h.handleStop(ctx, chatID)
	case strings.HasPrefix(text, "/stats"):
		h.handleStats(ctx, chatID)
	default:
		// Нераспознанный текст отвечает текущей фазой дня, не уговорами бросить.
		h.showToday(ctx, chatID)
	}
}

func (h *Handler) handleStart(ctx context.Context, chatID int64) {
	if _, err := h.rolls.Touch(ctx, chatID); err != nil {
		h.replyFailure(chatID, err)
		return
	}
	// /start — путь обратно после /stop, поэтому включаем напоминания явно.
	if err := h.rolls.SetEnabled(ctx, chatID, true); err != nil {
		h.replyFailure(chatID, err)
		return
	}
	if err := h.scheduler.Reconcile(ctx, chatID); err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось согласовать таймеры")
	}
	h.replyHTML(chatID, startText(), nil)
	h.reply(chatID, "Ráno a večer přijde připomínka.\nRytmus změníš: /cas 07:00 21:00", nil)
}

// handleRoll — /hod: ленивое создание броска дня. Если бросок уже есть,
// показывает текущую фазу вместо повторного броска.
func (h *Handler) handleRoll(ctx context.Context, chatID int64) {
	topic, created, err := h.rolls.EnsureRoll(ctx, chatID)
	if err != nil {
		h.replyFailure(chatID, err)
		return
	}
	if created {
		h.replyHTML(chatID, formatRollAnnounce(h.lib, topic), toneKeyboard(pickPrefix))
		return
	}
	h.showToday(ctx, chatID)
}

func (h *Handler) handleToday(ctx context.Context, chatID int64) {
	if _, err := h.rolls.Touch(ctx, chatID); err != nil {
		h.replyFailure(chatID, err)
		return
	}
	h.showToday(ctx, chatID)
}

// showToday показывает фазу дня: нет броска → /hod, ждём тон → выбор тона,
// готово → карточка сценария.
func (h *Handler) showToday(ctx context.Context, chatID int64) {
	status, err := h.rolls.TodayStatus(ctx, chatID)
	if err != nil {
		h.replyFailure(chatID, err)
		return
	}
	switch status.Phase {
	case domain.DayNoRoll:
		h.reply(chatID, msgNoRollYet(), nil)
	case domain.DayAwaitingTone:
		h.reply(chatID, msgPendingPickMode(), toneKeyboard(pickPrefix))
	case domain.DayReady:
		h.replyHTML(chatID, formatScenario(h.lib, status.Tone, status.Topic), actionKeyboard())
	}
}

func (h *Handler) handleTone(ctx context.Context, chatID int64) {
	status, err := h.rolls.TodayStatus(ctx, chatID)
	if err != nil {
		h.replyFailure(chatID, err)
		return
	}
	if status.Phase == domain.DayAwaitingTone {
		h.reply(chatID, "Dnes je rovina určená. Zvol tón pro dnešek:", toneKeyboard(pickPrefix))
		return
	}
	h.reply(chatID, "Zvol výchozí tón:", toneKeyboard(defaultPrefix))
}

func (h *Handler) handleHistory(ctx context.Context, chatID int64) {
	entries, err := h.rolls.RecentHistory(ctx, chatID, 12)
	if err != nil {
		h.replyFailure(chatID, err)
		return
	}
	h.reply(chatID, formatHistory(entries, h.lib), nil)
}

func (h *Handler) handleTimes(ctx context.Context, chatID int64, payload string) {
	if payload == "" {
		h.reply(chatID, msgTimesHelp(), nil)
		return
	}
	parts := strings.Fields(payload)
	if len(parts) != 2 {
		h.reply(chatID, "Použití: /cas 07:00 21:00", nil)
		return
	}
	morning, errM := ParseHHMM(parts[0])
	evening, errE := ParseHHMM(parts[1])
	if errM != nil || errE != nil {
		h.reply(chatID, "Špatný formát. Použij HH:MM (např. 07:00 21:00).", nil)
		return
	}
	if _, err := h.rolls.Touch(ctx, chatID); err != nil {
		h.replyFailure(chatID, err)
		return
	}
	if err := h.rolls.SetTimes(ctx, chatID, morning, evening); err != nil {
		h.replyFailure(chatID, err)
		return
	}
	// Смена времени — единственный путь принудительного пересоздания таймеров.
	if err := h.scheduler.ForceReconcile(ctx, chatID); err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось пересоздать таймеры")
	}
	h.reply(chatID, msgTimesSet(morning, evening), nil)
}

func (h *Handler) handleStop(ctx context.Context, chatID int64) {
	if _, err := h.rolls.Touch(ctx, chatID); err != nil {
		h.replyFailure(chatID, err)
		return
	}
	if err := h.rolls.SetEnabled(ctx, chatID, false); err != nil {
		h.replyFailure(chatID, err)
		return
	}
	if err := h.scheduler.Reconcile(ctx, chatID); err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось снять таймеры")
	}
	h.reply(chatID, msgPaused(), nil)
}

// handleStats — агрегаты только для администратора: проверка способности,
// не ролевая модель.
func (h *Handler) handleStats(ctx context.Context, chatID int64) {
	if h.adminChatID == 0 || chatID != h.adminChatID {
		return
	}
	report, err := h.rolls.Stats(ctx)
	if err != nil {
		h.replyFailure(chatID, err)
		return
	}
	h.reply(chatID, formatStats(report), nil)
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	data := strings.TrimSpace(cb.Data)

	switch {
	case data == "accept":
		h.clearKeyboard(chatID, cb.Message.MessageID)
		h.reply(chatID, "Přijato.\nTeď to unes.", nil)
	case data == "verdict":
		h.handleVerdictRequest(ctx, chatID)
	case strings.HasPrefix(data, verdictPrefix):
		h.handleVerdictValue(ctx, chatID, strings.TrimPrefix(data, verdictPrefix))
	case strings.HasPrefix(data, pickPrefix):
		h.handleTonePick(ctx, chatID, strings.TrimPrefix(data, pickPrefix))
	case strings.HasPrefix(data, defaultPrefix):
		h.handleToneDefault(ctx, chatID, strings.TrimPrefix(data, defaultPrefix))
	case data == "roll_now":
		h.handleRoll(ctx, chatID)
	}

	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) handleVerdictRequest(ctx context.Context, chatID int64) {
	status, err := h.rolls.TodayStatus(ctx, chatID)
	if err != nil {
		h.replyFailure(chatID, err)
		return
	}
	switch status.Phase {
	case domain.DayNoRoll:
		h.reply(chatID, msgNoRollYet(), nil)
	case domain.DayAwaitingTone:
		h.reply(chatID, "Nejdřív zvol tón pro dnešek.", toneKeyboard(pickPrefix))
	case domain.DayReady:
		h.reply(chatID, copyEvening(status.Tone), verdictKeyboard())
	}
}

func (h *Handler) handleVerdictValue(ctx context.Context, chatID int64, raw string) {
	verdict, ok := domain.ParseVerdict(raw)
	if !ok {
		return
	}
	if err := h.rolls.RecordVerdict(ctx, chatID, verdict); err != nil {
		switch {
		case errors.Is(err, roll.ErrNoRollYet):
			h.reply(chatID, msgNoRollYet(), nil)
		case errors.Is(err, roll.ErrNotLockedYet):
			h.reply(chatID, "Nejdřív zvol tón pro dnešek.", toneKeyboard(pickPrefix))
		default:
			h.replyFailure(chatID, err)
		}
		return
	}
	status, err := h.rolls.TodayStatus(ctx, chatID)
	if err != nil {
		h.replyFailure(chatID, err)
		return
	}
	h.reply(chatID, verdictReply(status.Tone, verdict), nil)
}

func (h *Handler) handleTonePick(ctx context.Context, chatID int64, raw string) {
	tone, ok := domain.ParseTone(raw)
	if !ok {
		return
	}
	res, err := h.rolls.LockTone(ctx, chatID, tone)
	if err != nil {
		if errors.Is(err, roll.ErrNoRollYet) {
			h.reply(chatID, "Nejdřív hoď: /hod", nil)
			return
		}
		h.replyFailure(chatID, err)
		return
	}
	if res.AlreadyLocked {
		// Тон дня не меняется, но выбор сохранён как default на будущее.
		h.reply(chatID, "Dnešek už je uzamčený.\n"+msgModeDefaultSet(tone), nil)
		return
	}
	h.reply(chatID, "Režim: "+string(res.Applied), nil)
	h.replyHTML(chatID, formatScenario(h.lib, res.Applied, res.Topic), actionKeyboard())
}

func (h *Handler) handleToneDefault(ctx context.Context, chatID int64, raw string) {
	tone, ok := domain.ParseTone(raw)
	if !ok {
		return
	}
	if err := h.rolls.SetDefaultTone(ctx, chatID, tone); err != nil {
		h.replyFailure(chatID, err)
		return
	}
	h.reply(chatID, msgModeDefaultSet(tone), nil)
}

func (h *Handler) replyFailure(chatID int64, err error) {
	h.log.Error().Err(err).Int64("chat", chatID).Msg("операция не выполнена")
	h.reply(chatID, msgStorageTrouble(), nil)
}

func (h *Handler) clearKeyboard(chatID int64, messageID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	start := time.Now()
	_, err := h.bot.Request(edit)
	metrics.ObserveNetworkRequest("telegram_bot", "edit_markup", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Debug().Err(err).Msg("не удалось убрать клавиатуру")
	}
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	h.send(msg)
}

func (h *Handler) replyHTML(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	h.send(msg)
}

func (h *Handler) send(msg tgbotapi.MessageConfig) {
	start := time.Now()
	_, err := h.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(msg.ChatID, 10), start, err)
	if err != nil {
		metrics.IncBotSendError()
		h.log.Error().Err(err).Msg("не удалось отправить сообщение")
	}
}
