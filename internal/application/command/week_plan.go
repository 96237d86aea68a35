package command

import (
	"context"
	"unicode/utf8"

	"github.com/wellness-escape/vitality-hub/internal/domain/access"
	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE ACTION STEP COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// ToggleActionStepCommand переключает шаг недельного плана.
type ToggleActionStepCommand struct {
	WeekID string `validate:"required,max=64"`
	Index  int    `validate:"gte=0"`

	CorrelationID string
}

// WeekResult - прогресс недели после команды.
type WeekResult struct {
	WeekID   string                `json:"week_id"`
	Progress progress.WeekProgress `json:"progress"`

	// Checked - состояние переключённого шага.
	Checked bool `json:"checked,omitempty"`

	// AlreadyCompleted - неделя уже была отмечена пройденной.
	AlreadyCompleted bool `json:"already_completed,omitempty"`
}

// ToggleActionStepHandler обрабатывает ToggleActionStepCommand.
type ToggleActionStepHandler struct {
	base
}

// NewToggleActionStepHandler создаёт обработчик.
func NewToggleActionStepHandler(d Deps) *ToggleActionStepHandler {
	return &ToggleActionStepHandler{base: newBase(d)}
}

// Handle переключает шаг. Повторный вызов возвращает исходное состояние.
func (h *ToggleActionStepHandler) Handle(ctx context.Context, p access.Principal, cmd ToggleActionStepCommand) (*WeekResult, error) {
	const op = "ToggleActionStep"

	if err := validateCommand(op, cmd); err != nil {
		return nil, err
	}
	if err := h.authorize(op, p); err != nil {
		return nil, err
	}
	week, err := h.week(op, cmd.WeekID)
	if err != nil {
		return nil, err
	}
	if week.ActionPlan == nil {
		return nil, shared.ErrNoActionPlan
	}
	if err := h.require(op, p, access.NodeActionSteps); err != nil {
		return nil, err
	}

	wp, err := h.store.ToggleActionStep(ctx, p.UserID, week.ID, cmd.Index, len(week.ActionPlan.ActionSteps))
	if err != nil {
		return nil, err
	}
	checked := wp.HasStep(cmd.Index)

	ev := shared.NewActionStepToggledEvent(p.UserID, week.ID, cmd.Index, checked)
	ev.BaseEvent = ev.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	h.publish(ev)

	h.log.Debug("action step toggled",
		logger.UserID(p.UserID.String()),
		logger.WeekID(week.ID),
		logger.Int("index", cmd.Index),
		logger.Bool("checked", checked),
	)

	return &WeekResult{WeekID: week.ID, Progress: wp, Checked: checked}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SAVE REFLECTION COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// SaveReflectionCommand перезаписывает недельную рефлексию.
// Пустой текст допустим: он стирает запись.
type SaveReflectionCommand struct {
	WeekID string `validate:"required,max=64"`
	Text   string

	CorrelationID string
}

// SaveReflectionHandler обрабатывает SaveReflectionCommand.
type SaveReflectionHandler struct {
	base
}

// NewSaveReflectionHandler создаёт обработчик.
func NewSaveReflectionHandler(d Deps) *SaveReflectionHandler {
	return &SaveReflectionHandler{base: newBase(d)}
}

// Handle сохраняет рефлексию.
func (h *SaveReflectionHandler) Handle(ctx context.Context, p access.Principal, cmd SaveReflectionCommand) (*WeekResult, error) {
	const op = "SaveReflection"

	if err := validateCommand(op, cmd); err != nil {
		return nil, err
	}
	if err := h.authorize(op, p); err != nil {
		return nil, err
	}
	week, err := h.week(op, cmd.WeekID)
	if err != nil {
		return nil, err
	}
	if err := h.require(op, p, access.NodeJournal); err != nil {
		return nil, err
	}

	wp, err := h.store.SaveReflection(ctx, p.UserID, week.ID, cmd.Text)
	if err != nil {
		return nil, err
	}

	length := utf8.RuneCountInString(cmd.Text)
	ev := shared.NewReflectionSavedEvent(p.UserID, week.ID, length)
	ev.BaseEvent = ev.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	h.publish(ev)

	h.log.Debug("reflection saved",
		logger.UserID(p.UserID.String()),
		logger.WeekID(week.ID),
		logger.Int("length", length),
	)

	return &WeekResult{WeekID: week.ID, Progress: wp}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE WEEK COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CompleteWeekCommand отмечает неделю пройденной.
type CompleteWeekCommand struct {
	WeekID string `validate:"required,max=64"`

	CorrelationID string
}

// CompleteWeekHandler обрабатывает CompleteWeekCommand.
type CompleteWeekHandler struct {
	base
}

// NewCompleteWeekHandler создаёт обработчик.
func NewCompleteWeekHandler(d Deps) *CompleteWeekHandler {
	return &CompleteWeekHandler{base: newBase(d)}
}

// Handle отмечает неделю. Повторный вызов ничего не меняет.
func (h *CompleteWeekHandler) Handle(ctx context.Context, p access.Principal, cmd CompleteWeekCommand) (*WeekResult, error) {
	const op = "CompleteWeek"

	if err := validateCommand(op, cmd); err != nil {
		return nil, err
	}
	if err := h.authorize(op, p); err != nil {
		return nil, err
	}
	week, err := h.week(op, cmd.WeekID)
	if err != nil {
		return nil, err
	}
	if err := h.require(op, p, access.NodeActionSteps); err != nil {
		return nil, err
	}

	already := h.store.WeekProgress(ctx, p.UserID, week.ID).IsComplete
	wp, err := h.store.MarkWeekComplete(ctx, p.UserID, week.ID)
	if err != nil {
		return nil, err
	}

	if !already {
		ev := shared.NewWeekCompletedEvent(p.UserID, week.ID, week.Number)
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		h.publish(ev)

		h.log.Info("week completed",
			logger.UserID(p.UserID.String()),
			logger.WeekID(week.ID),
			logger.Int("number", week.Number),
		)
	}

	return &WeekResult{WeekID: week.ID, Progress: wp, AlreadyCompleted: already}, nil
}
