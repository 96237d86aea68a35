package progress

import (
	"sort"
	"time"

	"github.com/wellness-escape/vitality-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETED SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

// SessionSet - множество завершённых уроков.
// Хранится как JSON-массив ID в порядке завершения.
type SessionSet []string

// Has проверяет, завершён ли урок.
func (s SessionSet) Has(sessionID string) bool {
	for _, id := range s {
		if id == sessionID {
			return true
		}
	}
	return false
}

// with возвращает множество с добавленным уроком и признак изменения.
func (s SessionSet) with(sessionID string) (SessionSet, bool) {
	if s.Has(sessionID) {
		return s, false
	}
	out := make(SessionSet, len(s), len(s)+1)
	copy(out, s)
	return append(out, sessionID), true
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEK PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// MaxReflectionRunes - ограничение на длину недельной рефлексии.
const MaxReflectionRunes = 10000

// WeekProgress - прогресс недельного плана действий.
type WeekProgress struct {
	// CompletedSteps - индексы отмеченных шагов, по возрастанию, без повторов.
	CompletedSteps []int `json:"completed_steps"`

	// JournalEntry - текст рефлексии.
	JournalEntry string `json:"journal_entry"`

	// IsComplete - неделя отмечена как пройденная.
	IsComplete bool `json:"is_complete"`
}

// HasStep проверяет, отмечен ли шаг.
func (w WeekProgress) HasStep(index int) bool {
	for _, i := range w.CompletedSteps {
		if i == index {
			return true
		}
	}
	return false
}

// toggle переключает шаг и возвращает новое состояние.
func (w WeekProgress) toggle(index int) WeekProgress {
	steps := make([]int, 0, len(w.CompletedSteps)+1)
	found := false
	for _, i := range w.CompletedSteps {
		if i == index {
			found = true
			continue
		}
		steps = append(steps, i)
	}
	if !found {
		steps = append(steps, index)
	}
	sort.Ints(steps)
	w.CompletedSteps = steps
	return w
}

// normalize приводит шаги к инварианту: в пределах плана, без повторов, по возрастанию.
func (w WeekProgress) normalize(stepCount int) WeekProgress {
	seen := make(map[int]bool, len(w.CompletedSteps))
	steps := make([]int, 0, len(w.CompletedSteps))
	for _, i := range w.CompletedSteps {
		if i < 0 || i >= stepCount || seen[i] {
			continue
		}
		seen[i] = true
		steps = append(steps, i)
	}
	sort.Ints(steps)
	w.CompletedSteps = steps
	return w
}

// ══════════════════════════════════════════════════════════════════════════════
// WORKSHEET
// ══════════════════════════════════════════════════════════════════════════════

// WorksheetAnswers - ответы на рабочий лист по ID вопроса.
type WorksheetAnswers map[string]string

// merge применяет изменения: пустой ответ удаляет запись, остальные не трогаются.
func (a WorksheetAnswers) merge(changes map[string]string) WorksheetAnswers {
	out := make(WorksheetAnswers, len(a)+len(changes))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range changes {
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// HABITS
// ══════════════════════════════════════════════════════════════════════════════

// maxCheckIns - сколько последних отметок хранится в журнале.
const maxCheckIns = 90

// CheckIn - отметка привычки за день.
type CheckIn struct {
	ID   string    `json:"id"`
	Day  string    `json:"day"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

// Streak - серия дней подряд с отметкой.
type Streak struct {
	// Current - текущая серия дней.
	Current int `json:"current"`

	// Best - лучшая серия дней.
	Best int `json:"best"`

	// LastActiveDay - последний день с отметкой (YYYY-MM-DD).
	LastActiveDay string `json:"last_active_day,omitempty"`

	// StartedOn - день начала текущей серии.
	StartedOn string `json:"started_on,omitempty"`
}

// record учитывает активность в день day и возвращает false, если день уже учтён.
// Отметка за прошедший день серию не двигает.
func (s *Streak) record(day time.Time) bool {
	dayStr := timeutil.FormatDateStr(day)

	if s.LastActiveDay == "" {
		s.Current = 1
		s.Best = max(s.Best, 1)
		s.LastActiveDay = dayStr
		s.StartedOn = dayStr
		return true
	}

	last, err := timeutil.ParseDate(s.LastActiveDay)
	if err != nil {
		*s = Streak{Current: 1, Best: max(s.Best, 1), LastActiveDay: dayStr, StartedOn: dayStr}
		return true
	}

	switch diff := timeutil.DaysBetween(last, day); {
	case diff <= 0:
		return false
	case diff == 1:
		s.Current++
		if s.Current > s.Best {
			s.Best = s.Current
		}
	default:
		// Пропущены дни - серия начинается заново
		s.Current = 1
		s.StartedOn = dayStr
	}

	s.LastActiveDay = dayStr
	return true
}

// AsOf возвращает серию на момент now: если вчера и сегодня отметок не было,
// текущая серия считается прерванной.
func (s Streak) AsOf(now time.Time) Streak {
	if s.LastActiveDay == "" {
		return s
	}
	last, err := timeutil.ParseDate(s.LastActiveDay)
	if err != nil || timeutil.DaysBetween(last, now) > 1 {
		s.Current = 0
		s.StartedOn = ""
	}
	return s
}

// HabitLog - журнал отметок привычки и производная серия.
type HabitLog struct {
	Streak   Streak    `json:"streak"`
	CheckIns []CheckIn `json:"check_ins"`
}

// HasDay проверяет, была ли отметка в указанный день.
func (h HabitLog) HasDay(day string) bool {
	for _, c := range h.CheckIns {
		if c.Day == day {
			return true
		}
	}
	return false
}

// DaysInWeek считает дни с отметкой в неделе, содержащей now.
func (h HabitLog) DaysInWeek(now time.Time) int {
	start := timeutil.StartOfWeek(now)
	n := 0
	for _, c := range h.CheckIns {
		d, err := timeutil.ParseDate(c.Day)
		if err != nil {
			continue
		}
		if diff := timeutil.DaysBetween(start, d); diff >= 0 && diff < 7 {
			n++
		}
	}
	return n
}

// add добавляет отметку, если за этот день её ещё нет.
func (h HabitLog) add(c CheckIn) (HabitLog, bool) {
	if h.HasDay(c.Day) {
		return h, false
	}
	day, err := timeutil.ParseDate(c.Day)
	if err != nil {
		return h, false
	}
	h.Streak.record(day)

	checkIns := make([]CheckIn, 0, len(h.CheckIns)+1)
	checkIns = append(checkIns, h.CheckIns...)
	checkIns = append(checkIns, c)
	sort.Slice(checkIns, func(i, j int) bool { return checkIns[i].Day < checkIns[j].Day })
	if len(checkIns) > maxCheckIns {
		checkIns = checkIns[len(checkIns)-maxCheckIns:]
	}
	h.CheckIns = checkIns
	return h, true
}
