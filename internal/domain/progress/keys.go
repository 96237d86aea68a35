package progress

import (
	"strings"

	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// KEY SCHEME
// ══════════════════════════════════════════════════════════════════════════════

// KeyPrefix - общий префикс всех ключей прогресса в хранилище.
const KeyPrefix = "progress"

// Namespace - вид записи прогресса.
type Namespace string

const (
	// NamespaceSessions - множество завершённых уроков (один ключ на пользователя).
	NamespaceSessions Namespace = "sessions"
	// NamespaceWeek - прогресс недельного плана действий.
	NamespaceWeek Namespace = "week"
	// NamespaceWorksheet - ответы на рабочий лист урока.
	NamespaceWorksheet Namespace = "worksheet"
	// NamespaceHabit - журнал отметок привычки.
	NamespaceHabit Namespace = "habit"
	// NamespaceFlags - одиночные флаги пользователя.
	NamespaceFlags Namespace = "flags"
)

// IsValid проверяет, что namespace известен.
func (n Namespace) IsValid() bool {
	switch n {
	case NamespaceSessions, NamespaceWeek, NamespaceWorksheet, NamespaceHabit, NamespaceFlags:
		return true
	}
	return false
}

const (
	// completedContent - ID содержимого для множества завершённых уроков.
	completedContent = "completed"

	// FlagOrientationSeen - пользователь закрыл приветственную ориентацию.
	FlagOrientationSeen = "orientation-seen"
)

// Key - ключ записи прогресса: progress:{user}:{namespace}:{content}.
// Создаётся только через NewKey, поэтому всегда корректен.
type Key struct {
	user      shared.UserID
	namespace Namespace
	content   shared.ContentID
}

// NewKey проверяет компоненты и собирает ключ.
func NewKey(user shared.UserID, ns Namespace, content string) (Key, error) {
	if !user.IsValid() {
		return Key{}, shared.ErrInvalidUserID
	}
	if !ns.IsValid() {
		return Key{}, shared.NewDomainError("progress", "NewKey", shared.ErrInvalidInput, "unknown namespace "+string(ns))
	}
	cid, err := shared.NewContentID(content)
	if err != nil {
		return Key{}, err
	}
	return Key{user: user, namespace: ns, content: cid}, nil
}

// User возвращает владельца записи.
func (k Key) User() shared.UserID { return k.user }

// Namespace возвращает вид записи.
func (k Key) Namespace() Namespace { return k.namespace }

// Content возвращает ID содержимого.
func (k Key) Content() shared.ContentID { return k.content }

// String возвращает ключ в формате хранилища.
func (k Key) String() string {
	var b strings.Builder
	b.Grow(len(KeyPrefix) + len(k.user) + len(k.namespace) + len(k.content) + 3)
	b.WriteString(KeyPrefix)
	b.WriteByte(':')
	b.WriteString(string(k.user))
	b.WriteByte(':')
	b.WriteString(string(k.namespace))
	b.WriteByte(':')
	b.WriteString(string(k.content))
	return b.String()
}

// UserPrefix возвращает префикс всех ключей пользователя (для админского сброса).
func UserPrefix(user shared.UserID) string {
	return KeyPrefix + ":" + string(user) + ":"
}

// ParseKey разбирает ключ в формате хранилища. Обратна String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 || parts[0] != KeyPrefix {
		return Key{}, shared.NewDomainError("progress", "ParseKey", shared.ErrInvalidInput, "malformed key "+s)
	}
	return NewKey(shared.UserID(parts[1]), Namespace(parts[2]), parts[3])
}
