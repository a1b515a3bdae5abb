// Package content хранит неизменяемые тексты граней и сценариев.
// Таблицы строятся один раз на старте и дальше читаются по ссылке.
package content

import "dodekaedr-bot/internal/domain"

// Scenario — пара «импульс + задание» для конкретной грани и тона.
type Scenario struct {
	Impulse string
	Task    string
}

// Library — read-only справочник текстов. После NewLibrary не мутируется.
type Library struct {
	topics    map[int]string
	scenarios map[domain.Tone]map[int]Scenario
}

// NewLibrary собирает справочник.
func NewLibrary() *Library {
	return &Library{topics: topics, scenarios: scenarios}
}

// Topic возвращает название грани 1..12.
func (l *Library) Topic(n int) (string, bool) {
	name, ok := l.topics[n]
	return name, ok
}

// Scenario возвращает сценарий для тона и грани.
func (l *Library) Scenario(tone domain.Tone, n int) (Scenario, bool) {
	byTopic, ok := l.scenarios[tone]
	if !ok {
		return Scenario{}, false
	}
	sc, ok := byTopic[n]
	return sc, ok
}

var topics = map[int]string{
	1:  "TĚLO",
	2:  "NÁVYK",
	3:  "STABILITA",
	4:  "ČIN",
	5:  "SMĚR",
	6:  "ODVAHA",
	7:  "ROZEZNÁNÍ",
	8:  "HRANICE",
	9:  "ODPOVĚDNOST",
	10: "PAMĚŤ",
	11: "PROPOJENÍ",
	12: "NASLOUCHÁNÍ",
}

var scenarios = map[domain.Tone]map[int]Scenario{
	domain.ToneBase: {
		1:  {"Tělo nelže. My ano.", "Udělej dnes jednu věc pro tělo vědomě."},
		2:  {"Opakuješ to, čím se stáváš.", "Zachyť jeden automatismus a uprav ho."},
		3:  {"Klid není slabost. Je to tvar.", "Zůstaň klidný v jedné napjaté situaci."},
		4:  {"Úmysl nestačí.", "Udělej dnes jednu věc, kterou odkládáš."},
		5:  {"Bez směru se pohyb mění v rozptyl.", "Napiš jednu větu o tom, kam směřuješ."},
		6:  {"Odvaha není hluk. Je to krok.", "Udělej dnes jednu nepohodlnou věc."},
		7:  {"Ne všechno, co cítíš, je pravda.", "Odděl dnes fakt od domněnky."},
		8:  {"Bez hranic ztrácíš tvar.", "Jednou dnes řekni jasné „ne“."},
		9:  {"Svoboda má důsledky.", "Přiznej dnes jeden důsledek bez výmluv."},
		10: {"Paměť je závazek.", "Připomeň si jednu lekci, kterou nechceš opustit."},
		11: {"Nikdo nežije izolovaně.", "Uvědom si dopad svého jednání na druhé."},
		12: {"Ticho je také čin.", "Jednou dnes jen poslouchej — bez reakce."},
	},
	domain.ToneHard: {
		1:  {"Tělo je základ, ne nástroj.", "Udělej pro tělo něco nepohodlného, ale správného."},
		2:  {"Návyk je řetěz i opora.", "Zruš dnes jeden zbytečný automatismus."},
		3:  {"Stabilita je disciplína, ne nálada.", "Udrž klid tam, kde bys dřív zrychlil."},
		4:  {"Slova nic neudělají.", "Dokonči dnes jednu odkládanou věc."},
		5:  {"Bez směru se ztrácíš.", "Pojmenuj dnešní směr jednou větou."},
		6:  {"Komfort není argument.", "Udělej dnes krok navzdory odporu."},
		7:  {"Pocit není důkaz.", "Odděl fakta od interpretací."},
		8:  {"Bez hranic se rozplýváš.", "Jednou dnes odmítni to, co ti bere tvar."},
		9:  {"Odpovědnost není emoce.", "Přiznej důsledek a vezmi ho na sebe."},
		10: {"Zapomnění je pohodlné.", "Vrať si jednu lekci a drž ji."},
		11: {"Dopad se počítá.", "Dnes jednej tak, aby to unesl i druhý."},
		12: {"Naslouchej, než promluvíš.", "Dnes jednou mlč a vnímej."},
	},
	domain.ToneLegion: {
		1:  {"Tělo je bojiště disciplíny.", "Dnes tělo posílíš. Bez vyjednávání."},
		2:  {"Návyk je osud.", "Dnes jeden špatný návyk zlomíš."},
		3:  {"Stabilita je tvar pod tlakem.", "Dnes se nezlomíš v drobnosti."},
		4:  {"Čin rozhoduje.", "Dnes uděláš to, co odkládáš."},
		5:  {"Směr je závazek.", "Dnes řekneš, kam jdeš. Jednou větou."},
		6:  {"Strach není omluva.", "Dnes uděláš nepohodlný krok."},
		7:  {"Rozlišuj, nebo budeš veden.", "Dnes oddělíš fakt od projekce."},
		8:  {"Hranice chrání tvar.", "Dnes jednou řekneš „dost“."},
		9:  {"Odpovědnost se neptá.", "Dnes vezmeš důsledek bez výmluv."},
		10: {"Paměť drží identitu.", "Dnes si připomeneš lekci a nezradíš ji."},
		11: {"Propojení je síť důsledků.", "Dnes si uvědomíš, koho svým činem zasáhneš."},
		12: {"Ticho je síla.", "Dnes jednou budeš jen poslouchat."},
	},
}
