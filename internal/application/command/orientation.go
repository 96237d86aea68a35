package command

import (
	"context"

	"github.com/wellness-escape/vitality-hub/internal/domain/access"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISMISS ORIENTATION COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// DismissOrientationHandler скрывает ориентацию в дашборде.
// Доступа к программе не требует: флаг принадлежит пользователю.
type DismissOrientationHandler struct {
	base
}

// NewDismissOrientationHandler создаёт обработчик.
func NewDismissOrientationHandler(d Deps) *DismissOrientationHandler {
	return &DismissOrientationHandler{base: newBase(d)}
}

// Handle отмечает ориентацию просмотренной. Повторный вызов ничего не меняет.
func (h *DismissOrientationHandler) Handle(ctx context.Context, p access.Principal) error {
	const op = "DismissOrientation"

	if err := h.authorize(op, p); err != nil {
		return err
	}
	if h.store.OrientationSeen(ctx, p.UserID) {
		return nil
	}
	if err := h.store.MarkOrientationSeen(ctx, p.UserID); err != nil {
		return err
	}

	h.publish(shared.NewOrientationDismissedEvent(p.UserID))
	h.log.Debug("orientation dismissed", logger.UserID(p.UserID.String()))
	return nil
}
