package command

import (
	"context"

	"github.com/wellness-escape/vitality-hub/internal/domain/access"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE SESSION COMMAND
// Отмечает урок завершённым и открывает следующий.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteSessionCommand содержит данные для завершения урока.
type CompleteSessionCommand struct {
	SessionID string `validate:"required,max=64"`

	// CorrelationID для трассировки.
	CorrelationID string
}

// CompleteSessionResult - результат завершения урока.
type CompleteSessionResult struct {
	SessionID string `json:"session_id"`

	// AlreadyCompleted - урок был завершён раньше, ничего не изменилось.
	AlreadyCompleted bool `json:"already_completed"`

	CompletedCount int `json:"completed_count"`
	TotalSessions  int `json:"total_sessions"`

	// NextSessionID - следующий незавершённый урок, пусто если программа пройдена.
	NextSessionID string `json:"next_session_id,omitempty"`
}

// CompleteSessionHandler обрабатывает CompleteSessionCommand.
type CompleteSessionHandler struct {
	base
}

// NewCompleteSessionHandler создаёт обработчик.
func NewCompleteSessionHandler(d Deps) *CompleteSessionHandler {
	return &CompleteSessionHandler{base: newBase(d)}
}

// Handle завершает урок. Закрытый гейтом урок завершить нельзя.
func (h *CompleteSessionHandler) Handle(ctx context.Context, p access.Principal, cmd CompleteSessionCommand) (*CompleteSessionResult, error) {
	const op = "CompleteSession"

	if err := validateCommand(op, cmd); err != nil {
		return nil, err
	}
	if err := h.authorize(op, p); err != nil {
		return nil, err
	}
	session, err := h.session(op, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if err := h.require(op, p, access.NodeVideo); err != nil {
		return nil, err
	}
	if err := h.checkGate(ctx, op, p, session.ID); err != nil {
		return nil, err
	}

	first, err := h.store.MarkSessionComplete(ctx, p.UserID, session.ID)
	if err != nil {
		return nil, err
	}

	done := h.store.CompletedSessions(ctx, p.UserID)
	result := &CompleteSessionResult{
		SessionID:        session.ID,
		AlreadyCompleted: !first,
		CompletedCount:   h.gate.CompletedCount(done),
		TotalSessions:    h.catalog.SessionCount(),
	}
	if next, ok := h.gate.Next(done); ok {
		result.NextSessionID = next.ID
	}

	if first {
		week, _ := h.catalog.WeekContainingSession(session.ID)
		ev := shared.NewSessionCompletedEvent(p.UserID, session.ID, week.ID, result.CompletedCount, result.TotalSessions)
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		h.publish(ev)

		h.log.Info("session completed",
			logger.UserID(p.UserID.String()),
			logger.SessionID(session.ID),
			logger.Int("completed", result.CompletedCount),
			logger.Int("total", result.TotalSessions),
		)
	}

	return result, nil
}
