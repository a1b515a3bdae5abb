package domain

import "time"

// Tone — интенсивность сценария дня. Значения совпадают с подписями кнопок
// и хранятся в БД как есть.
type Tone string

const (
	ToneBase   Tone = "ZÁKLADNÍ"
	ToneHard   Tone = "TVRDÝ"
	ToneLegion Tone = "LEGIONÁŘSKÝ"
)

// Tones перечисляет допустимые тоны в порядке показа кнопок.
var Tones = []Tone{ToneBase, ToneHard, ToneLegion}

// ParseTone проверяет, что строка входит в закрытое перечисление тонов.
func ParseTone(raw string) (Tone, bool) {
	for _, tone := range Tones {
		if string(tone) == raw {
			return tone, true
		}
	}
	return "", false
}

// Verdict — вечерний самоотчёт пользователя по сценарию дня.
type Verdict string

const (
	VerdictPass Verdict = "OBSTÁL"
	VerdictFail Verdict = "UHNUL"
)

// ParseVerdict проверяет, что строка входит в закрытое перечисление вердиктов.
func ParseVerdict(raw string) (Verdict, bool) {
	switch Verdict(raw) {
	case VerdictPass, VerdictFail:
		return Verdict(raw), true
	}
	return "", false
}

// RollStatus — состояние броска дня. Переход PENDING→LOCKED однонаправленный.
type RollStatus string

const (
	RollPending RollStatus = "PENDING"
	RollLocked  RollStatus = "LOCKED"
)

// MinTopic и MaxTopic ограничивают диапазон граней додекаэдра.
const (
	MinTopic = 1
	MaxTopic = 12
)

// UserSettings описывает настройки пользователя. Строка создаётся при первом
// контакте и никогда не удаляется — только is_enabled выключается.
type UserSettings struct {
	ChatID      int64
	DefaultTone Tone
	MorningTime string
	EveningTime string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DailyRoll — бросок одного пользователя за один календарный день.
// Day хранится как ISO-дата в фиксированном часовом поясе.
type DailyRoll struct {
	ChatID    int64
	Day       string
	Topic     int
	Tone      Tone
	Status    RollStatus
	Verdict   Verdict
	CreatedAt time.Time
}

// Locked сообщает, выбран ли тон дня.
func (r DailyRoll) Locked() bool {
	return r.Status == RollLocked
}

// HistoryEntry — одна строка истории бросков.
type HistoryEntry struct {
	Day     string
	Topic   int
	Verdict Verdict
}

// DayPhase описывает фазу дня: нет броска, ждём тон, сценарий готов.
type DayPhase int

const (
	DayNoRoll DayPhase = iota
	DayAwaitingTone
	DayReady
)

// DayStatus — ответ на запрос состояния дня.
type DayStatus struct {
	Phase DayPhase
	Topic int
	Tone  Tone
}

// StatsReport — агрегаты для администратора.
type StatsReport struct {
	TotalUsers   int
	EnabledUsers int
	RollsToday   int
	LockedToday  int
	PassTotal    int
	FailTotal    int
}
