package command

import (
	"context"

	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESET PROGRESS COMMAND
// Админский сброс всего прогресса пользователя. Права проверяет вызывающий:
// API-ключ в HTTP или доступ к CLI.
// ══════════════════════════════════════════════════════════════════════════════

// ResetProgressCommand содержит данные для сброса.
type ResetProgressCommand struct {
	UserID string `validate:"required,max=128"`

	// Actor - кто выполнил сброс (для аудита).
	Actor string `validate:"required"`
}

// ResetProgressResult - результат сброса.
type ResetProgressResult struct {
	UserID      string `json:"user_id"`
	KeysRemoved int64  `json:"keys_removed"`
}

// ResetProgressHandler обрабатывает ResetProgressCommand.
type ResetProgressHandler struct {
	base
}

// NewResetProgressHandler создаёт обработчик.
func NewResetProgressHandler(d Deps) *ResetProgressHandler {
	return &ResetProgressHandler{base: newBase(d)}
}

// Handle удаляет прогресс. Ошибки носителя здесь возвращаются.
func (h *ResetProgressHandler) Handle(ctx context.Context, cmd ResetProgressCommand) (*ResetProgressResult, error) {
	const op = "ResetProgress"

	if err := validateCommand(op, cmd); err != nil {
		return nil, err
	}
	user, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, err
	}

	removed, err := h.store.Reset(ctx, user)
	if err != nil {
		h.log.Error("progress reset failed",
			logger.UserID(user.String()),
			logger.String("actor", cmd.Actor),
			logger.Err(err),
		)
		return nil, err
	}

	h.publish(shared.NewProgressResetEvent(user, removed, cmd.Actor))
	h.log.Warn("progress reset",
		logger.UserID(user.String()),
		logger.String("actor", cmd.Actor),
		logger.Int64("keys_removed", removed),
	)

	return &ResetProgressResult{UserID: user.String(), KeysRemoved: removed}, nil
}
