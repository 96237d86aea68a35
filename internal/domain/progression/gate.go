// Package progression открывает уроки по порядку: урок доступен, когда
// завершён предыдущий. Первый урок программы открыт всегда.
package progression

import (
	"github.com/wellness-escape/vitality-hub/internal/domain/catalog"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
)

// SessionOrder - порядок уроков, по которому работает гейт.
type SessionOrder interface {
	FirstSession() catalog.Session
	Sessions() []catalog.Session
	Position(sessionID string) (int, bool)
	Previous(sessionID string) (catalog.Session, bool)
}

// Completion - множество завершённых уроков пользователя.
type Completion interface {
	Has(sessionID string) bool
}

// Reason объясняет решение гейта.
type Reason string

const (
	ReasonFirstSession       Reason = "first_session"
	ReasonPreviousComplete   Reason = "previous_complete"
	ReasonPreviousIncomplete Reason = "previous_incomplete"
	ReasonGateDisabled       Reason = "gate_disabled"
)

// Unlock - решение гейта для урока.
type Unlock struct {
	// SessionID - урок, к которому относится решение (после подстановки первого).
	SessionID string `json:"session_id"`

	Unlocked bool   `json:"unlocked"`
	Reason   Reason `json:"reason"`

	// Requires - урок, который нужно завершить, если текущий закрыт.
	Requires string `json:"requires,omitempty"`

	// FellBack - запрошенный урок не найден, решение дано для первого.
	FellBack bool `json:"fell_back,omitempty"`
}

// Gate - гейт последовательного открытия уроков.
type Gate struct {
	order   SessionOrder
	enabled bool
}

// NewGate создаёт гейт. При enabled=false все уроки открыты.
func NewGate(order SessionOrder, enabled bool) *Gate {
	return &Gate{order: order, enabled: enabled}
}

// Enabled возвращает, включено ли последовательное открытие.
func (g *Gate) Enabled() bool {
	return g.enabled
}

// Evaluate решает, открыт ли урок. Неизвестный ID заменяется первым уроком.
func (g *Gate) Evaluate(sessionID string, completed Completion) Unlock {
	u := Unlock{SessionID: sessionID}

	pos, ok := g.order.Position(sessionID)
	if !ok {
		u.SessionID = g.order.FirstSession().ID
		u.FellBack = true
		pos = 0
	}

	switch {
	case pos == 0:
		u.Unlocked = true
		u.Reason = ReasonFirstSession
	case !g.enabled:
		u.Unlocked = true
		u.Reason = ReasonGateDisabled
	default:
		prev, _ := g.order.Previous(u.SessionID)
		if completed != nil && completed.Has(prev.ID) {
			u.Unlocked = true
			u.Reason = ReasonPreviousComplete
		} else {
			u.Reason = ReasonPreviousIncomplete
			u.Requires = prev.ID
		}
	}

	return u
}

// Check возвращает ErrSessionLocked, если урок ещё закрыт.
func (g *Gate) Check(sessionID string, completed Completion) error {
	u := g.Evaluate(sessionID, completed)
	if u.Unlocked {
		return nil
	}
	return shared.NewDomainError("progression", "Check", shared.ErrSessionLocked,
		"complete session "+u.Requires+" first")
}

// Next возвращает первый незавершённый урок в порядке программы.
// Если завершены все, возвращает false.
func (g *Gate) Next(completed Completion) (catalog.Session, bool) {
	for _, s := range g.order.Sessions() {
		if completed == nil || !completed.Has(s.ID) {
			return s, true
		}
	}
	return catalog.Session{}, false
}

// CompletedCount считает завершённые уроки, известные каталогу.
func (g *Gate) CompletedCount(completed Completion) int {
	if completed == nil {
		return 0
	}
	n := 0
	for _, s := range g.order.Sessions() {
		if completed.Has(s.ID) {
			n++
		}
	}
	return n
}
