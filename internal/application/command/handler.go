// Package command contains write operations (CQRS - Commands).
//
// Каждая команда проверяет ввод, требует аутентификации, спрашивает политику
// доступа и (для уроков) гейт, пишет через progress.Store и публикует событие.
// Сбои носителя до вызывающего не доходят: Store их поглощает.
package command

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/wellness-escape/vitality-hub/internal/domain/access"
	"github.com/wellness-escape/vitality-hub/internal/domain/catalog"
	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/progression"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// DenialRecorder считает отказы политики ("policy") и гейта ("gate").
type DenialRecorder interface {
	Denied(reason string)
}

// Deps - общие зависимости обработчиков команд.
type Deps struct {
	Catalog   *catalog.Catalog
	Store     *progress.Store
	Gate      *progression.Gate
	Publisher shared.EventPublisher

	// Logger - необязателен, по умолчанию Nop.
	Logger *logger.Logger

	// Denials - необязателен.
	Denials DenialRecorder
}

// base - общая часть всех обработчиков.
type base struct {
	catalog   *catalog.Catalog
	store     *progress.Store
	gate      *progression.Gate
	publisher shared.EventPublisher
	log       *logger.Logger
	denials   DenialRecorder
}

func newBase(d Deps) base {
	b := base{
		catalog:   d.Catalog,
		store:     d.Store,
		gate:      d.Gate,
		publisher: d.Publisher,
		log:       d.Logger,
		denials:   d.Denials,
	}
	if b.publisher == nil {
		b.publisher = shared.NopPublisher{}
	}
	if b.log == nil {
		b.log = logger.Nop()
	}
	return b
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateCommand проверяет теги validate и приводит ошибку к ErrValidation.
func validateCommand(op string, cmd any) error {
	if err := validate.Struct(cmd); err != nil {
		return shared.WrapError("command", op, shared.ErrValidation, "invalid command", err)
	}
	return nil
}

// authorize требует аутентифицированного пользователя.
func (b base) authorize(op string, p access.Principal) error {
	if !p.Authenticated || !p.UserID.IsValid() {
		return shared.NewDomainError("command", op, shared.ErrUnauthorized, "sign in required")
	}
	return nil
}

// require спрашивает политику доступа для узла.
func (b base) require(op string, p access.Principal, node access.Node) error {
	if err := access.Require(p, node); err != nil {
		b.deny("policy")
		b.log.Info("command denied by access policy",
			logger.Operation(op),
			logger.UserID(p.UserID.String()),
			logger.String("node", string(node)),
		)
		return err
	}
	return nil
}

// checkGate спрашивает гейт, открыт ли урок для пользователя.
func (b base) checkGate(ctx context.Context, op string, p access.Principal, sessionID string) error {
	done := b.store.CompletedSessions(ctx, p.UserID)
	if err := b.gate.Check(sessionID, done); err != nil {
		b.deny("gate")
		b.log.Info("command denied by progression gate",
			logger.Operation(op),
			logger.UserID(p.UserID.String()),
			logger.SessionID(sessionID),
		)
		return err
	}
	return nil
}

func (b base) deny(reason string) {
	if b.denials != nil {
		b.denials.Denied(reason)
	}
}

// publish отправляет событие. Ошибка подписчиков команду не отменяет.
func (b base) publish(ev shared.Event) {
	if err := b.publisher.Publish(ev); err != nil {
		b.log.Warn("failed to publish event",
			logger.String("event_type", string(ev.EventType())),
			logger.Err(err),
		)
	}
}

func (b base) session(op, id string) (catalog.Session, error) {
	s, ok := b.catalog.SessionByID(id)
	if !ok {
		return catalog.Session{}, shared.NewDomainError("command", op, shared.ErrNotFound,
			fmt.Sprintf("session %q not found", id))
	}
	return s, nil
}

func (b base) week(op, id string) (catalog.Week, error) {
	w, ok := b.catalog.WeekByID(id)
	if !ok {
		return catalog.Week{}, shared.NewDomainError("command", op, shared.ErrNotFound,
			fmt.Sprintf("week %q not found", id))
	}
	return w, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// Handlers собирает все обработчики команд для слоя представления.
type Handlers struct {
	CompleteSession    *CompleteSessionHandler
	ToggleActionStep   *ToggleActionStepHandler
	SaveReflection     *SaveReflectionHandler
	CompleteWeek       *CompleteWeekHandler
	SaveWorksheet      *SaveWorksheetHandler
	CheckInHabit       *CheckInHabitHandler
	DismissOrientation *DismissOrientationHandler
	ResetProgress      *ResetProgressHandler
}

// NewHandlers создаёт все обработчики над общими зависимостями.
// habitTracking выключает отметки привычек целиком.
func NewHandlers(d Deps, habitTracking bool) *Handlers {
	return &Handlers{
		CompleteSession:    NewCompleteSessionHandler(d),
		ToggleActionStep:   NewToggleActionStepHandler(d),
		SaveReflection:     NewSaveReflectionHandler(d),
		CompleteWeek:       NewCompleteWeekHandler(d),
		SaveWorksheet:      NewSaveWorksheetHandler(d),
		CheckInHabit:       NewCheckInHabitHandler(d, habitTracking),
		DismissOrientation: NewDismissOrientationHandler(d),
		ResetProgress:      NewResetProgressHandler(d),
	}
}
