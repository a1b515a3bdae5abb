package bot

import (
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dodekaedr-bot/internal/domain"
	"dodekaedr-bot/internal/infra/metrics"
)

// Sender реализует domain.ReminderSender. В отличие от ответов хендлера
// ошибка отправки возвращается вызывающему: воркер должен знать, что
// напоминание не ушло, чтобы дедупликация не проглотила повтор.
type Sender struct {
	bot *tgbotapi.BotAPI
}

// NewSender создаёт отправителя напоминаний.
func NewSender(botAPI *tgbotapi.BotAPI) *Sender {
	return &Sender{bot: botAPI}
}

var _ domain.ReminderSender = (*Sender)(nil)

// SendMorning отправляет утреннее приглашение к броску.
func (s *Sender) SendMorning(chatID int64, tone domain.Tone) error {
	return s.send(chatID, copyMorning(tone), rollNowKeyboard())
}

// SendEveningVerdict отправляет вечерний запрос вердикта.
func (s *Sender) SendEveningVerdict(chatID int64, tone domain.Tone) error {
	return s.send(chatID, copyEvening(tone), verdictKeyboard())
}

// SendNoRollNudge напоминает, что сегодня ещё не было броска.
func (s *Sender) SendNoRollNudge(chatID int64) error {
	return s.send(chatID, "Bez hodu není stopa.\nPoužij /hod.", nil)
}

// SendToneMissingNudge напоминает, что тон дня не выбран.
func (s *Sender) SendToneMissingNudge(chatID int64) error {
	return s.send(chatID, "Dnes ještě chybí tón.\nZvol ho: /rezim", nil)
}

func (s *Sender) send(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	start := time.Now()
	_, err := s.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_reminder", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		metrics.IncBotSendError()
	}
	return err
}
