// Package catalog содержит статичную структуру программы: недели, уроки,
// задания, созвоны и планы действий. Каталог загружается один раз при старте,
// проверяется целиком и дальше используется только на чтение.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
)

//go:embed content/vitality_reset.yaml
var defaultContent []byte

// legacyProgramAliases - старые ID программы, которые ещё встречаются в ссылках.
var legacyProgramAliases = map[string]string{
	"4-week": "vitality-reset",
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog - проиндексированный каталог программы.
// Безопасен для конкурентного чтения: после New ничего не мутирует.
// Все методы возвращают глубокие копии.
type Catalog struct {
	program Program

	// sessions - все уроки программы в порядке прохождения.
	sessions []Session

	// position - индекс урока в sessions по ID.
	position map[string]int

	// sessionWeek - индекс недели в program.Weeks по ID урока.
	sessionWeek map[string]int

	weekByID     map[string]int
	weekByNumber map[int]int
	pillars      map[string]int
	habits       map[string]int
}

// New проверяет программу и строит индексы.
// Любое нарушение структуры возвращается как ErrInvalidCatalog.
func New(p Program) (*Catalog, error) {
	if err := validateProgram(p); err != nil {
		return nil, err
	}

	c := &Catalog{
		program:      p,
		position:     make(map[string]int),
		sessionWeek:  make(map[string]int),
		weekByID:     make(map[string]int, len(p.Weeks)),
		weekByNumber: make(map[int]int, len(p.Weeks)),
		pillars:      make(map[string]int, len(p.Pillars)),
		habits:       make(map[string]int, len(p.Habits)),
	}

	for i, pl := range p.Pillars {
		c.pillars[pl.ID] = i
	}
	for i, h := range p.Habits {
		c.habits[h.ID] = i
	}
	for wi, w := range p.Weeks {
		c.weekByID[w.ID] = wi
		c.weekByNumber[w.Number] = wi
		for _, s := range w.Sessions {
			c.position[s.ID] = len(c.sessions)
			c.sessionWeek[s.ID] = wi
			c.sessions = append(c.sessions, s)
		}
	}

	return c, nil
}

// Load декодирует YAML и строит каталог.
func Load(r io.Reader) (*Catalog, error) {
	var p Program
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, shared.WrapError("catalog", "Load", shared.ErrInvalidCatalog, "decode yaml", err)
	}
	return New(p)
}

// LoadDefault загружает встроенный контент программы.
func LoadDefault() (*Catalog, error) {
	return Load(bytes.NewReader(defaultContent))
}

// MustLoadDefault загружает встроенный контент и паникует при ошибке.
// Предназначен для main: битый контент не должен доехать до пользователей.
func MustLoadDefault() *Catalog {
	c, err := LoadDefault()
	if err != nil {
		panic(fmt.Sprintf("catalog: %v", err))
	}
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// LOOKUPS
// ══════════════════════════════════════════════════════════════════════════════

// Program возвращает описание программы.
func (c *Catalog) Program() Program {
	return c.program.clone()
}

// WeeksForProgram возвращает недели программы в порядке номеров.
func (c *Catalog) WeeksForProgram(programID string) ([]Week, error) {
	if alias, ok := legacyProgramAliases[programID]; ok {
		programID = alias
	}
	if programID != c.program.ID {
		return nil, shared.ErrProgramNotFound
	}
	return cloneWeeks(c.program.Weeks), nil
}

// SessionByID возвращает урок по ID. Отсутствие - обычная ситуация.
func (c *Catalog) SessionByID(id string) (Session, bool) {
	i, ok := c.position[id]
	if !ok {
		return Session{}, false
	}
	return c.sessions[i].clone(), true
}

// WeekContainingSession возвращает неделю, которой принадлежит урок.
func (c *Catalog) WeekContainingSession(sessionID string) (Week, bool) {
	wi, ok := c.sessionWeek[sessionID]
	if !ok {
		return Week{}, false
	}
	return c.program.Weeks[wi].clone(), true
}

// WeekByID возвращает неделю по ID.
func (c *Catalog) WeekByID(id string) (Week, bool) {
	wi, ok := c.weekByID[id]
	if !ok {
		return Week{}, false
	}
	return c.program.Weeks[wi].clone(), true
}

// WeekByNumber возвращает неделю по порядковому номеру.
func (c *Catalog) WeekByNumber(n int) (Week, bool) {
	wi, ok := c.weekByNumber[n]
	if !ok {
		return Week{}, false
	}
	return c.program.Weeks[wi].clone(), true
}

// FirstWeek возвращает первую неделю программы.
func (c *Catalog) FirstWeek() Week {
	return c.program.Weeks[0].clone()
}

// Sessions возвращает все уроки в порядке прохождения.
func (c *Catalog) Sessions() []Session {
	out := make([]Session, len(c.sessions))
	for i, s := range c.sessions {
		out[i] = s.clone()
	}
	return out
}

// SessionCount возвращает количество уроков.
func (c *Catalog) SessionCount() int {
	return len(c.sessions)
}

// FirstSession возвращает первый урок программы.
func (c *Catalog) FirstSession() Session {
	return c.sessions[0].clone()
}

// Position возвращает позицию урока в порядке прохождения.
func (c *Catalog) Position(sessionID string) (int, bool) {
	i, ok := c.position[sessionID]
	return i, ok
}

// Previous возвращает урок, предшествующий данному.
// Для первого и неизвестного урока возвращает false.
func (c *Catalog) Previous(sessionID string) (Session, bool) {
	i, ok := c.position[sessionID]
	if !ok || i == 0 {
		return Session{}, false
	}
	return c.sessions[i-1].clone(), true
}

// Pillar возвращает опору по ID.
func (c *Catalog) Pillar(id string) (Pillar, bool) {
	i, ok := c.pillars[id]
	if !ok {
		return Pillar{}, false
	}
	return c.program.Pillars[i], true
}

// Habit возвращает привычку по ID.
func (c *Catalog) Habit(id string) (Habit, bool) {
	i, ok := c.habits[id]
	if !ok {
		return Habit{}, false
	}
	return c.program.Habits[i], true
}

// Habits возвращает все привычки программы.
func (c *Catalog) Habits() []Habit {
	out := make([]Habit, len(c.program.Habits))
	copy(out, c.program.Habits)
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func invalid(format string, args ...interface{}) error {
	return shared.NewDomainError("catalog", "Validate", shared.ErrInvalidCatalog, fmt.Sprintf(format, args...))
}

// validateProgram проверяет теги структур, затем связи между узлами.
func validateProgram(p Program) error {
	if err := structValidator.Struct(p); err != nil {
		return shared.WrapError("catalog", "Validate", shared.ErrInvalidCatalog, "field validation failed", err)
	}

	pillars := make(map[string]bool, len(p.Pillars))
	for _, pl := range p.Pillars {
		if pillars[pl.ID] {
			return invalid("duplicate pillar id %q", pl.ID)
		}
		pillars[pl.ID] = true
	}

	habits := make(map[string]bool, len(p.Habits))
	for _, h := range p.Habits {
		if !shared.ContentID(h.ID).IsValid() {
			return invalid("habit id %q is not a valid content id", h.ID)
		}
		if habits[h.ID] {
			return invalid("duplicate habit id %q", h.ID)
		}
		habits[h.ID] = true
	}

	weekIDs := make(map[string]bool, len(p.Weeks))
	sessionIDs := make(map[string]bool)
	assignmentIDs := make(map[string]bool)

	for i, w := range p.Weeks {
		if w.Number != i+1 {
			return invalid("week %q has number %d, expected %d", w.ID, w.Number, i+1)
		}
		if !shared.ContentID(w.ID).IsValid() {
			return invalid("week id %q is not a valid content id", w.ID)
		}
		if weekIDs[w.ID] {
			return invalid("duplicate week id %q", w.ID)
		}
		weekIDs[w.ID] = true

		for _, tag := range w.Pillars {
			if !pillars[tag] {
				return invalid("week %q references unknown pillar %q", w.ID, tag)
			}
		}
		if w.CoachingSession != nil && w.CoachingSession.WeekNumber != w.Number {
			return invalid("week %d coaching session declares week %d", w.Number, w.CoachingSession.WeekNumber)
		}

		for _, s := range w.Sessions {
			if !shared.ContentID(s.ID).IsValid() {
				return invalid("session id %q is not a valid content id", s.ID)
			}
			if sessionIDs[s.ID] {
				return invalid("duplicate session id %q", s.ID)
			}
			sessionIDs[s.ID] = true

			for _, a := range s.Assignments {
				if assignmentIDs[a.ID] {
					return invalid("duplicate assignment id %q", a.ID)
				}
				assignmentIDs[a.ID] = true
			}

			if s.Worksheet != nil {
				questions := make(map[string]bool, len(s.Worksheet.Questions))
				for _, q := range s.Worksheet.Questions {
					if questions[q.ID] {
						return invalid("session %q worksheet has duplicate question %q", s.ID, q.ID)
					}
					questions[q.ID] = true
				}
			}
		}
	}

	return nil
}
