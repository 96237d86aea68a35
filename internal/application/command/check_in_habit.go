package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wellness-escape/vitality-hub/internal/domain/access"
	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/pkg/logger"
	"github.com/wellness-escape/vitality-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK IN HABIT COMMAND
// Одна отметка привычки в календарный день (в часовом поясе приложения).
// ══════════════════════════════════════════════════════════════════════════════

// ErrHabitTrackingDisabled возвращается, когда привычки выключены флагом.
var ErrHabitTrackingDisabled = shared.NewDomainError("command", "CheckInHabit", shared.ErrNotFound, "habit tracking is disabled")

// CheckInHabitCommand отмечает привычку за сегодня.
type CheckInHabitCommand struct {
	HabitID string `validate:"required,max=64"`
	Note    string `validate:"max=280"`

	CorrelationID string
}

// CheckInHabitResult - журнал привычки после отметки.
type CheckInHabitResult struct {
	HabitID string          `json:"habit_id"`
	Day     string          `json:"day"`
	Streak  progress.Streak `json:"streak"`

	// Recorded=false - за сегодня отметка уже была.
	Recorded     bool `json:"recorded"`
	DaysThisWeek int  `json:"days_this_week"`
}

// CheckInHabitHandler обрабатывает CheckInHabitCommand.
type CheckInHabitHandler struct {
	base
	enabled bool
	now     func() time.Time
	newID   func() string
}

// NewCheckInHabitHandler создаёт обработчик.
func NewCheckInHabitHandler(d Deps, enabled bool) *CheckInHabitHandler {
	return &CheckInHabitHandler{
		base:    newBase(d),
		enabled: enabled,
		now:     timeutil.Now,
		newID:   uuid.NewString,
	}
}

// Handle записывает отметку. Повторная отметка за день ничего не меняет.
func (h *CheckInHabitHandler) Handle(ctx context.Context, p access.Principal, cmd CheckInHabitCommand) (*CheckInHabitResult, error) {
	const op = "CheckInHabit"

	if !h.enabled {
		return nil, ErrHabitTrackingDisabled
	}
	if err := validateCommand(op, cmd); err != nil {
		return nil, err
	}
	if err := h.authorize(op, p); err != nil {
		return nil, err
	}
	habit, ok := h.catalog.Habit(cmd.HabitID)
	if !ok {
		return nil, shared.ErrHabitNotFound
	}
	if err := h.require(op, p, access.NodeActionSteps); err != nil {
		return nil, err
	}

	now := h.now()
	checkIn := progress.CheckIn{ID: h.newID(), At: now, Note: cmd.Note}
	log, recorded, err := h.store.RecordHabitCheckIn(ctx, p.UserID, habit.ID, checkIn)
	if err != nil {
		return nil, err
	}

	result := &CheckInHabitResult{
		HabitID:      habit.ID,
		Day:          timeutil.FormatDateStr(now),
		Streak:       log.Streak.AsOf(now),
		Recorded:     recorded,
		DaysThisWeek: log.DaysInWeek(now),
	}

	if recorded {
		ev := shared.NewHabitCheckedInEvent(p.UserID, habit.ID, checkIn.ID, result.Day, result.Streak.Current, result.Streak.Best)
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		h.publish(ev)

		h.log.Info("habit checked in",
			logger.UserID(p.UserID.String()),
			logger.HabitID(habit.ID),
			logger.Int("streak", result.Streak.Current),
		)
	}

	return result, nil
}
