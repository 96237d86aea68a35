package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wellness-escape/vitality-hub/internal/domain/access"
	"github.com/wellness-escape/vitality-hub/internal/domain/catalog"
	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SAVE WORKSHEET COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// MaxAnswerRunes - ограничение длины одного ответа.
const MaxAnswerRunes = 4000

// SaveWorksheetCommand сливает ответы с сохранёнными.
// Пустой ответ удаляет запись, вопросы вне Answers не меняются.
type SaveWorksheetCommand struct {
	SessionID string            `validate:"required,max=64"`
	Answers   map[string]string `validate:"required,min=1,dive,keys,required,max=64,endkeys,max=4000"`

	CorrelationID string
}

// SaveWorksheetResult - ответы после слияния.
type SaveWorksheetResult struct {
	SessionID string                    `json:"session_id"`
	Answers   progress.WorksheetAnswers `json:"answers"`
}

// SaveWorksheetHandler обрабатывает SaveWorksheetCommand.
type SaveWorksheetHandler struct {
	base
}

// NewSaveWorksheetHandler создаёт обработчик.
func NewSaveWorksheetHandler(d Deps) *SaveWorksheetHandler {
	return &SaveWorksheetHandler{base: newBase(d)}
}

// Handle сохраняет ответы на рабочий лист урока.
func (h *SaveWorksheetHandler) Handle(ctx context.Context, p access.Principal, cmd SaveWorksheetCommand) (*SaveWorksheetResult, error) {
	const op = "SaveWorksheet"

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
	if session.Worksheet == nil {
		return nil, shared.ErrNoWorksheet
	}
	if err := h.require(op, p, access.NodeWorksheet); err != nil {
		return nil, err
	}

	changes := make(map[string]string, len(cmd.Answers))
	for id, answer := range cmd.Answers {
		q, ok := session.Worksheet.Question(id)
		if !ok {
			return nil, shared.WrapError("command", op, shared.ErrInvalidInput, "unknown question "+id, shared.ErrUnknownQuestion)
		}
		answer = strings.TrimSpace(answer)
		if err := checkAnswer(q, answer); err != nil {
			return nil, err
		}
		changes[id] = answer
	}

	merged, err := h.store.SaveWorksheetAnswers(ctx, p.UserID, session.ID, changes)
	if err != nil {
		return nil, err
	}

	ev := shared.NewWorksheetSavedEvent(p.UserID, session.ID, len(merged))
	ev.BaseEvent = ev.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	h.publish(ev)

	h.log.Debug("worksheet saved",
		logger.UserID(p.UserID.String()),
		logger.SessionID(session.ID),
		logger.Int("answered", len(merged)),
	)

	return &SaveWorksheetResult{SessionID: session.ID, Answers: merged}, nil
}

// checkAnswer проверяет ответ на вопрос-шкалу: целое от 1 до 10.
func checkAnswer(q catalog.WorksheetQuestion, answer string) error {
	if answer == "" || q.Kind != catalog.QuestionScale {
		return nil
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > 10 {
		return shared.NewDomainError("command", "SaveWorksheet", shared.ErrOutOfRange,
			fmt.Sprintf("question %s expects a value from 1 to 10", q.ID))
	}
	return nil
}
