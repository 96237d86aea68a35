// Package access решает, что пользователь может видеть и с чем работать,
// исходя только из аутентификации и прав. Без состояния и кэширования.
package access

import (
	"strings"

	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRINCIPAL
// ══════════════════════════════════════════════════════════════════════════════

// Principal - снимок личности и прав на момент запроса.
// Хранится провайдером идентичности, здесь только читается.
type Principal struct {
	Authenticated bool
	UserID        shared.UserID
	DisplayName   string
	Email         string
	IsAdmin       bool
	HasAccess     bool
}

// Anonymous - неаутентифицированный посетитель.
var Anonymous = Principal{}

// Entitled возвращает true, если пользователь видит контент целиком.
// Флаги учитываются только у аутентифицированного пользователя: IsAdmin или
// HasAccess без Authenticated не дают VisibleInteractive, в том числе админу.
func (p Principal) Entitled() bool {
	return p.Authenticated && (p.IsAdmin || p.HasAccess)
}

// Admin возвращает true для аутентифицированного администратора.
// IsAdmin без Authenticated игнорируется.
func (p Principal) Admin() bool {
	return p.Authenticated && p.IsAdmin
}

// Name возвращает имя для приветствия: имя, иначе часть email до "@", иначе "Guest".
func (p Principal) Name() string {
	if n := strings.TrimSpace(p.DisplayName); n != "" {
		return n
	}
	if at := strings.IndexByte(p.Email, '@'); at > 0 {
		return p.Email[:at]
	}
	return "Guest"
}

// ══════════════════════════════════════════════════════════════════════════════
// NODES & STATES
// ══════════════════════════════════════════════════════════════════════════════

// Node - вид узла контента, к которому применяется политика.
type Node string

const (
	// Узлы с превью: заголовки и описания видны всем.
	NodeProgramDescription Node = "program_description"
	NodeWeekDescription    Node = "week_description"
	NodeSessionDescription Node = "session_description"
	NodeCoachingOutline    Node = "coaching_outline"
	NodeReflectionPrompt   Node = "reflection_prompt"

	// Узлы с сутью контента: без прав закрыты.
	NodeVideo            Node = "video"
	NodeWorksheet        Node = "worksheet"
	NodeAssignmentDetail Node = "assignment_detail"
	NodeActionSteps      Node = "action_steps"
	NodeJournal          Node = "journal"
)

// State - результат политики для узла.
type State string

const (
	// VisibleInteractive - виден и доступен для действий.
	VisibleInteractive State = "visible_interactive"
	// VisiblePreviewOnly - виден только заголовок и описание.
	VisiblePreviewOnly State = "visible_preview_only"
	// Locked - содержимое скрыто, показывается приглашение купить.
	Locked State = "locked"
)

// Interactive возвращает true, если с узлом можно работать.
func (s State) Interactive() bool {
	return s == VisibleInteractive
}

// previewable - узлы, которые без прав показываются в режиме превью.
var previewable = map[Node]bool{
	NodeProgramDescription: true,
	NodeWeekDescription:    true,
	NodeSessionDescription: true,
	NodeCoachingOutline:    true,
	NodeReflectionPrompt:   true,
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Decide возвращает состояние узла для пользователя.
// Неизвестный узел без прав считается закрытым. Админ получает
// VisibleInteractive только после аутентификации, см. Principal.Entitled.
func Decide(p Principal, node Node) State {
	if p.Entitled() {
		return VisibleInteractive
	}
	if previewable[node] {
		return VisiblePreviewOnly
	}
	return Locked
}

// Require возвращает ErrPolicyDenied, если узел не интерактивен.
func Require(p Principal, node Node) error {
	if Decide(p, node).Interactive() {
		return nil
	}
	return shared.NewDomainError("access", "Require", shared.ErrPolicyDenied, "content requires program access: "+string(node))
}

// Decision - состояния всех узлов урока для одного пользователя.
type Decision struct {
	Description State `json:"description"`
	Video       State `json:"video"`
	Worksheet   State `json:"worksheet"`
	Assignments State `json:"assignments"`
	Journal     State `json:"journal"`
}

// DecideSession вычисляет состояния узлов урока.
func DecideSession(p Principal) Decision {
	return Decision{
		Description: Decide(p, NodeSessionDescription),
		Video:       Decide(p, NodeVideo),
		Worksheet:   Decide(p, NodeWorksheet),
		Assignments: Decide(p, NodeAssignmentDetail),
		Journal:     Decide(p, NodeJournal),
	}
}

// WeekDecision - состояния узлов недели.
type WeekDecision struct {
	Description      State `json:"description"`
	CoachingOutline  State `json:"coaching_outline"`
	ReflectionPrompt State `json:"reflection_prompt"`
	ActionSteps      State `json:"action_steps"`
	Journal          State `json:"journal"`
}

// DecideWeek вычисляет состояния узлов недели.
func DecideWeek(p Principal) WeekDecision {
	return WeekDecision{
		Description:      Decide(p, NodeWeekDescription),
		CoachingOutline:  Decide(p, NodeCoachingOutline),
		ReflectionPrompt: Decide(p, NodeReflectionPrompt),
		ActionSteps:      Decide(p, NodeActionSteps),
		Journal:          Decide(p, NodeJournal),
	}
}
