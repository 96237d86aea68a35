package progress

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/pkg/timeutil"
)

// Каждая операция ниже - чтение-изменение-запись одного ключа через Update:
// операции над одним ключом выполняются по очереди.

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

// CompletedSessions возвращает множество завершённых уроков.
func (s *Store) CompletedSessions(ctx context.Context, user shared.UserID) SessionSet {
	key, err := NewKey(user, NamespaceSessions, completedContent)
	if err != nil {
		return SessionSet{}
	}
	return Load(ctx, s, key, SessionSet{})
}

// IsComplete проверяет, завершён ли урок.
func (s *Store) IsComplete(ctx context.Context, user shared.UserID, sessionID string) bool {
	return s.CompletedSessions(ctx, user).Has(sessionID)
}

// MarkSessionComplete отмечает урок завершённым. Повторный вызов ничего не меняет.
// Возвращает true, если урок отмечен впервые.
func (s *Store) MarkSessionComplete(ctx context.Context, user shared.UserID, sessionID string) (bool, error) {
	if _, err := shared.NewContentID(sessionID); err != nil {
		return false, err
	}
	key, err := NewKey(user, NamespaceSessions, completedContent)
	if err != nil {
		return false, err
	}

	_, changed := Update(ctx, s, key, SessionSet{}, func(set SessionSet) (SessionSet, bool) {
		return set.with(sessionID)
	})
	return changed, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEKS
// ══════════════════════════════════════════════════════════════════════════════

// WeekProgress возвращает прогресс плана недели.
func (s *Store) WeekProgress(ctx context.Context, user shared.UserID, weekID string) WeekProgress {
	key, err := NewKey(user, NamespaceWeek, weekID)
	if err != nil {
		return WeekProgress{}
	}
	return Load(ctx, s, key, WeekProgress{})
}

// ToggleActionStep отмечает шаг плана или снимает отметку.
// stepCount - количество шагов в плане недели.
func (s *Store) ToggleActionStep(ctx context.Context, user shared.UserID, weekID string, index, stepCount int) (WeekProgress, error) {
	if index < 0 || index >= stepCount {
		return WeekProgress{}, shared.ErrInvalidStepIndex
	}
	key, err := NewKey(user, NamespaceWeek, weekID)
	if err != nil {
		return WeekProgress{}, err
	}

	// При повторе на сохранённом значении шаг приводится к выбранному состоянию.
	var want *bool
	wp, _ := Update(ctx, s, key, WeekProgress{}, func(wp WeekProgress) (WeekProgress, bool) {
		wp = wp.normalize(stepCount)
		if want == nil {
			v := !wp.HasStep(index)
			want = &v
		}
		if wp.HasStep(index) == *want {
			return wp, false
		}
		return wp.toggle(index), true
	})
	return wp, nil
}

// SaveReflection перезаписывает текст недельной рефлексии.
func (s *Store) SaveReflection(ctx context.Context, user shared.UserID, weekID, text string) (WeekProgress, error) {
	if utf8.RuneCountInString(text) > MaxReflectionRunes {
		return WeekProgress{}, shared.ErrReflectionTooLarge
	}
	key, err := NewKey(user, NamespaceWeek, weekID)
	if err != nil {
		return WeekProgress{}, err
	}

	wp, _ := Update(ctx, s, key, WeekProgress{}, func(wp WeekProgress) (WeekProgress, bool) {
		wp.JournalEntry = text
		return wp, true
	})
	return wp, nil
}

// MarkWeekComplete отмечает неделю пройденной. Повторный вызов ничего не меняет.
func (s *Store) MarkWeekComplete(ctx context.Context, user shared.UserID, weekID string) (WeekProgress, error) {
	key, err := NewKey(user, NamespaceWeek, weekID)
	if err != nil {
		return WeekProgress{}, err
	}

	wp, _ := Update(ctx, s, key, WeekProgress{}, func(wp WeekProgress) (WeekProgress, bool) {
		if wp.IsComplete {
			return wp, false
		}
		wp.IsComplete = true
		return wp, true
	})
	return wp, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WORKSHEETS
// ══════════════════════════════════════════════════════════════════════════════

// WorksheetAnswers возвращает ответы на рабочий лист урока.
func (s *Store) WorksheetAnswers(ctx context.Context, user shared.UserID, sessionID string) WorksheetAnswers {
	key, err := NewKey(user, NamespaceWorksheet, sessionID)
	if err != nil {
		return WorksheetAnswers{}
	}
	answers := Load(ctx, s, key, WorksheetAnswers{})
	if answers == nil {
		return WorksheetAnswers{}
	}
	return answers
}

// SaveWorksheetAnswers сливает ответы с сохранёнными по ID вопроса.
// Пустой ответ удаляет запись; вопросы вне changes не меняются.
func (s *Store) SaveWorksheetAnswers(ctx context.Context, user shared.UserID, sessionID string, changes map[string]string) (WorksheetAnswers, error) {
	key, err := NewKey(user, NamespaceWorksheet, sessionID)
	if err != nil {
		return nil, err
	}

	merged, _ := Update(ctx, s, key, WorksheetAnswers{}, func(a WorksheetAnswers) (WorksheetAnswers, bool) {
		return a.merge(changes), true
	})
	return merged, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HABITS
// ══════════════════════════════════════════════════════════════════════════════

// HabitLog возвращает журнал отметок привычки.
func (s *Store) HabitLog(ctx context.Context, user shared.UserID, habitID string) HabitLog {
	key, err := NewKey(user, NamespaceHabit, habitID)
	if err != nil {
		return HabitLog{}
	}
	return Load(ctx, s, key, HabitLog{})
}

// RecordHabitCheckIn добавляет отметку за день c.At. Одна отметка в календарный
// день: повторная возвращает recorded=false и текущий журнал.
func (s *Store) RecordHabitCheckIn(ctx context.Context, user shared.UserID, habitID string, c CheckIn) (HabitLog, bool, error) {
	key, err := NewKey(user, NamespaceHabit, habitID)
	if err != nil {
		return HabitLog{}, false, err
	}
	if c.At.IsZero() {
		c.At = timeutil.Now()
	}
	c.Day = timeutil.FormatDateStr(c.At)

	log, recorded := Update(ctx, s, key, HabitLog{}, func(h HabitLog) (HabitLog, bool) {
		return h.add(c)
	})
	return log, recorded, nil
}

// HabitStreak возвращает серию привычки на момент now.
func (s *Store) HabitStreak(ctx context.Context, user shared.UserID, habitID string, now time.Time) Streak {
	return s.HabitLog(ctx, user, habitID).Streak.AsOf(now)
}

// ══════════════════════════════════════════════════════════════════════════════
// FLAGS
// ══════════════════════════════════════════════════════════════════════════════

// Flag читает булев флаг пользователя.
func (s *Store) Flag(ctx context.Context, user shared.UserID, name string) bool {
	key, err := NewKey(user, NamespaceFlags, name)
	if err != nil {
		return false
	}
	return Load(ctx, s, key, false)
}

// SetFlag выставляет булев флаг пользователя.
func (s *Store) SetFlag(ctx context.Context, user shared.UserID, name string, value bool) error {
	key, err := NewKey(user, NamespaceFlags, name)
	if err != nil {
		return err
	}
	Save(ctx, s, key, value)
	return nil
}

// OrientationSeen возвращает, закрыл ли пользователь ориентацию.
func (s *Store) OrientationSeen(ctx context.Context, user shared.UserID) bool {
	return s.Flag(ctx, user, FlagOrientationSeen)
}

// MarkOrientationSeen отмечает ориентацию просмотренной.
func (s *Store) MarkOrientationSeen(ctx context.Context, user shared.UserID) error {
	return s.SetFlag(ctx, user, FlagOrientationSeen, true)
}
