package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// USER ID
// ═══════════════════════════════════════════════════════════════════════════

// UserID - идентификатор пользователя, выданный провайдером идентичности.
type UserID string

var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.@-]{0,127}$`)

// IsValid проверяет, что ID непустой и не содержит разделителя ключей.
func (u UserID) IsValid() bool {
	return identifierRegex.MatchString(string(u))
}

// String возвращает строковое представление.
func (u UserID) String() string {
	return string(u)
}

// NewUserID создаёт UserID с валидацией.
func NewUserID(id string) (UserID, error) {
	u := UserID(strings.TrimSpace(id))
	if !u.IsValid() {
		return "", ErrInvalidUserID
	}
	return u, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// CONTENT ID
// ═══════════════════════════════════════════════════════════════════════════

// ContentID - идентификатор элемента каталога (неделя, сессия, привычка).
type ContentID string

// IsValid проверяет корректность идентификатора контента.
func (c ContentID) IsValid() bool {
	return identifierRegex.MatchString(string(c))
}

// String возвращает строковое представление.
func (c ContentID) String() string {
	return string(c)
}

// NewContentID создаёт ContentID с валидацией.
func NewContentID(id string) (ContentID, error) {
	c := ContentID(strings.TrimSpace(id))
	if !c.IsValid() {
		return "", ErrInvalidContentID
	}
	return c, nil
}
