package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dodekaedr-bot/internal/content"
	"dodekaedr-bot/internal/domain"
)

// Тексты и клавиатуры бота. Вся копирайтинговая часть живёт здесь, ядро
// оперирует только типами domain.

func startText() string {
	return strings.Join([]string{
		"<b>DODEKAEDR</b>",
		"Digitální disciplína reality.",
		"",
		"Hod určuje rovinu dne.",
		"Nevybíráš si ji. Přijímáš ji.",
		"",
		"<b>Příkazy</b>",
		"• /hod — hod dne (1× denně)",
		"• /dnes — připomenout dnešní rovinu",
		"• /rezim — změnit výchozí tón",
		"• /historie — posledních 12 dní",
		"• /cas 07:00 21:00 — nastavit rytmus",
		"• /stop — zastavit připomínky",
		"",
		"Začni až ve chvíli, kdy uneseš důsledek.",
	}, "\n")
}

func msgNoRollYet() string {
	return "Dnes ještě nepadl hod.\nPoužij /hod."
}

func msgPendingPickMode() string {
	return "Rovina dne je určená.\nTeď zvol tón:"
}

func msgModeDefaultSet(tone domain.Tone) string {
	return fmt.Sprintf("Výchozí tón nastaven: %s", tone)
}

func msgPaused() string {
	return "Zastaveno.\nAž budeš chtít znovu: /start."
}

func msgTimesHelp() string {
	return strings.Join([]string{
		"Nastav rytmus (HH:MM)",
		"",
		"Použij:",
		"/cas 07:00 21:00",
		"",
		"První čas = ráno, druhý = večer.",
	}, "\n")
}

func msgTimesSet(morning, evening string) string {
	return fmt.Sprintf("Nastaveno.\nRáno: %s\nVečer: %s", morning, evening)
}

func msgStorageTrouble() string {
	return "Něco se pokazilo. Zkus to znovu."
}

func copyMorning(tone domain.Tone) string {
	switch tone {
	case domain.ToneLegion:
		return "Dnes se ukáže charakter.\n\n🎲 Hoď. Pak zvol tón."
	case domain.ToneHard:
		return "Dnes se počítá tvar.\n\n🎲 Hoď. Pak zvol tón."
	default:
		return "Dnes přijde rovina.\n\n🎲 Hoď. Pak zvol tón."
	}
}

func copyEvening(tone domain.Tone) string {
	switch tone {
	case domain.ToneLegion:
		return "Den je uzavřen.\n\nObstál jsi, nebo jsi uhnul?"
	case domain.ToneHard:
		return "Teď bez výmluv.\n\nObstál jsi, nebo jsi uhnul?"
	default:
		return "Závěr dne.\n\nObstál jsi, nebo jsi uhnul?"
	}
}

func verdictReply(tone domain.Tone, verdict domain.Verdict) string {
	if verdict == domain.VerdictPass {
		switch tone {
		case domain.ToneLegion:
			return "Udržel jsi linii."
		case domain.ToneHard:
			return "Udržel jsi tvar."
		default:
			return "Zůstal jsi ve směru."
		}
	}
	switch tone {
	case domain.ToneLegion:
		return "Zapsáno.\nTeď s tím pracuj."
	case domain.ToneHard:
		return "Pravda zapsaná.\nBez omluv."
	default:
		return "Zapsáno.\nZítra znovu."
	}
}

// formatScenario собирает HTML-карточку сценария дня.
func formatScenario(lib *content.Library, tone domain.Tone, topic int) string {
	name, _ := lib.Topic(topic)
	sc, _ := lib.Scenario(tone, topic)
	return strings.Join([]string{
		fmt.Sprintf("<b>🎲 %d — %s</b>", topic, html.EscapeString(name)),
		fmt.Sprintf("<i>%s</i>", html.EscapeString(sc.Impulse)),
		"",
		fmt.Sprintf("<b>%s</b>", html.EscapeString(sc.Task)),
		"<i>Uzamčeno do 24:00.</i>",
	}, "\n")
}

func formatRollAnnounce(lib *content.Library, topic int) string {
	name, _ := lib.Topic(topic)
	return fmt.Sprintf("🎲 Rovina dne: <b>%d — %s</b>\n\n%s", topic, html.EscapeString(name), msgPendingPickMode())
}

func historyDot(verdict domain.Verdict) string {
	switch verdict {
	case domain.VerdictPass:
		return "●"
	case domain.VerdictFail:
		return "○"
	default:
		return "·"
	}
}

func formatHistory(entries []domain.HistoryEntry, lib *content.Library) string {
	if len(entries) == 0 {
		return "Zatím žádná stopa."
	}
	lines := []string{"Posledních 12 dní:", ""}
	for _, e := range entries {
		name, _ := lib.Topic(e.Topic)
		lines = append(lines, fmt.Sprintf("%s  %s — %d %s", historyDot(e.Verdict), e.Day, e.Topic, name))
	}
	return strings.Join(lines, "\n")
}

func formatStats(report domain.StatsReport) string {
	return strings.Join([]string{
		"Přehled:",
		fmt.Sprintf("uživatelé: %d (zapnuto %d)", report.TotalUsers, report.EnabledUsers),
		fmt.Sprintf("hody dnes: %d (s tónem %d)", report.RollsToday, report.LockedToday),
		fmt.Sprintf("verdikty celkem: %s %d / %s %d", domain.VerdictPass, report.PassTotal, domain.VerdictFail, report.FailTotal),
	}, "\n")
}

const (
	pickPrefix    = "pick:"
	defaultPrefix = "default:"
	verdictPrefix = "v:"
)

func toneKeyboard(prefix string) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(domain.Tones))
	for _, tone := range domain.Tones {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(string(tone), prefix+string(tone)),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func actionKeyboard() *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("PŘIJÍMÁM", "accept")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("VERDIKT", "verdict")),
	)
	return &markup
}

func verdictKeyboard() *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("OBSTÁL JSEM", verdictPrefix+string(domain.VerdictPass))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("UHNUL JSEM", verdictPrefix+string(domain.VerdictFail))),
	)
	return &markup
}

func rollNowKeyboard() *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("HOĎ", "roll_now")),
	)
	return &markup
}

// ParseHHMM нормализует ввод времени в формат HH:MM.
func ParseHHMM(input string) (string, error) {
	tm, err := time.Parse("15:04", strings.TrimSpace(input))
	if err != nil {
		return "", err
	}
	return tm.Format("15:04"), nil
}
