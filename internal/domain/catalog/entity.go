package catalog

import "slices"

// ══════════════════════════════════════════════════════════════════════════════
// PROGRAM
// ══════════════════════════════════════════════════════════════════════════════

// Program - программа верхнего уровня. В этом развёртывании она одна.
// Неизменяема после загрузки каталога.
type Program struct {
	// ID - идентификатор программы (например, "vitality-reset").
	ID string `yaml:"id" json:"id" validate:"required"`

	// Version - версия контента, меняется при каждой правке каталога.
	Version string `yaml:"version" json:"version" validate:"required"`

	// Title - название программы.
	Title string `yaml:"title" json:"title" validate:"required"`

	// Tagline - короткий слоган для лендинга.
	Tagline string `yaml:"tagline" json:"tagline,omitempty"`

	// PriceDisplay - цена в виде строки для отображения ("$497 one time").
	PriceDisplay string `yaml:"price_display" json:"price_display,omitempty"`

	// ShortDescription - описание для карточек.
	ShortDescription string `yaml:"short_description" json:"short_description,omitempty"`

	// LongDescription - подробное описание.
	LongDescription string `yaml:"long_description" json:"long_description,omitempty"`

	// CoachBio - текст "о коуче".
	CoachBio string `yaml:"coach_bio" json:"coach_bio,omitempty"`

	// Pillars - опоры программы, на которые ссылаются недели.
	Pillars []Pillar `yaml:"pillars" json:"pillars" validate:"required,min=1,dive"`

	// Habits - привычки, по которым ведётся ежедневный трекинг.
	Habits []Habit `yaml:"habits" json:"habits,omitempty" validate:"dive"`

	// Weeks - недели в порядке номеров.
	Weeks []Week `yaml:"weeks" json:"weeks" validate:"required,min=1,dive"`
}

// Pillar - одна из опор программы (Prioritize, Optimize, ...).
type Pillar struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Name        string `yaml:"name" json:"name" validate:"required"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Habit - ежедневная привычка для отметок и серий.
type Habit struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Name        string `yaml:"name" json:"name" validate:"required"`
	Description string `yaml:"description" json:"description,omitempty"`

	// TargetPerWeek - сколько дней в неделю считается целью.
	TargetPerWeek int `yaml:"target_per_week" json:"target_per_week" validate:"gte=1,lte=7"`
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEK
// ══════════════════════════════════════════════════════════════════════════════

// Week принадлежит ровно одной программе.
// Номера недель уникальны и идут подряд начиная с 1.
type Week struct {
	ID      string `yaml:"id" json:"id" validate:"required"`
	Number  int    `yaml:"number" json:"number" validate:"gte=1"`
	Title   string `yaml:"title" json:"title" validate:"required"`
	Theme   string `yaml:"theme" json:"theme,omitempty"`
	Summary string `yaml:"summary" json:"summary,omitempty"`

	// Pillars - ссылки на Program.Pillars по ID.
	Pillars []string `yaml:"pillars" json:"pillars,omitempty" validate:"dive,required"`

	// Sessions - уроки недели в порядке прохождения.
	Sessions []Session `yaml:"sessions" json:"sessions" validate:"required,min=1,dive"`

	// CoachingSession - необязательный созвон с коучем.
	CoachingSession *CoachingSession `yaml:"coaching_session" json:"coaching_session,omitempty" validate:"omitempty"`

	// ActionPlan - необязательный недельный план действий ("Work It").
	ActionPlan *ActionPlan `yaml:"action_plan" json:"action_plan,omitempty" validate:"omitempty"`
}

// CoachingSession - статичное описание созвона; расписание живёт во внешнем календаре.
type CoachingSession struct {
	WeekNumber  int      `yaml:"week_number" json:"week_number" validate:"gte=1"`
	Title       string   `yaml:"title" json:"title" validate:"required"`
	Description string   `yaml:"description" json:"description,omitempty"`
	WhatToBring []string `yaml:"what_to_bring" json:"what_to_bring,omitempty"`
	Duration    string   `yaml:"duration" json:"duration,omitempty"`
}

// ActionPlan - недельный план: шаги, которые пользователь отмечает, и рефлексия.
type ActionPlan struct {
	ID               string   `yaml:"id" json:"id" validate:"required"`
	Subtitle         string   `yaml:"subtitle" json:"subtitle,omitempty"`
	Objective        string   `yaml:"objective" json:"objective,omitempty"`
	WhyItMatters     string   `yaml:"why_it_matters" json:"why_it_matters,omitempty"`
	ActionSteps      []string `yaml:"action_steps" json:"action_steps" validate:"required,min=1,dive,required"`
	ReflectionPrompt string   `yaml:"reflection_prompt" json:"reflection_prompt,omitempty"`
	JournalPrompts   []string `yaml:"journal_prompts" json:"journal_prompts,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session - урок. ID уникален в пределах всей программы и стабилен:
// он используется как ключ прогресса и для поиска предыдущего урока.
type Session struct {
	ID              string `yaml:"id" json:"id" validate:"required"`
	Title           string `yaml:"title" json:"title" validate:"required"`
	Subtitle        string `yaml:"subtitle" json:"subtitle,omitempty"`
	Description     string `yaml:"description" json:"description,omitempty"`
	DurationMinutes int    `yaml:"duration_minutes" json:"duration_minutes" validate:"gte=1"`

	// VideoURL - ссылка на основное видео урока.
	VideoURL string `yaml:"video_url" json:"video_url,omitempty" validate:"required,url"`

	JournalPrompt string `yaml:"journal_prompt" json:"journal_prompt,omitempty"`

	Assignments []ProgressionAssignment `yaml:"assignments" json:"assignments,omitempty" validate:"dive"`

	Worksheet *Worksheet `yaml:"worksheet" json:"worksheet,omitempty" validate:"omitempty"`
}

// ProgressionAssignment - структурированное задание урока.
// Собственного состояния не имеет: отметка "сделано" хранится в прогрессе.
type ProgressionAssignment struct {
	ID               string   `yaml:"id" json:"id" validate:"required"`
	Title            string   `yaml:"title" json:"title" validate:"required"`
	Description      string   `yaml:"description" json:"description,omitempty"`
	Steps            []string `yaml:"steps" json:"steps,omitempty" validate:"required,min=1,dive,required"`
	EstimatedMinutes int      `yaml:"estimated_minutes" json:"estimated_minutes,omitempty" validate:"gte=0"`
	BringToCall      []string `yaml:"bring_to_call" json:"bring_to_call,omitempty"`
}

// QuestionKind - тип ответа на вопрос рабочего листа.
type QuestionKind string

const (
	// QuestionText - свободный текст.
	QuestionText QuestionKind = "text"
	// QuestionScale - оценка по шкале 1..10.
	QuestionScale QuestionKind = "scale"
)

// Worksheet - рабочий лист урока.
type Worksheet struct {
	Title     string              `yaml:"title" json:"title" validate:"required"`
	Questions []WorksheetQuestion `yaml:"questions" json:"questions" validate:"required,min=1,dive"`
}

// WorksheetQuestion - вопрос рабочего листа.
type WorksheetQuestion struct {
	ID     string       `yaml:"id" json:"id" validate:"required"`
	Prompt string       `yaml:"prompt" json:"prompt" validate:"required"`
	Kind   QuestionKind `yaml:"kind" json:"kind" validate:"oneof=text scale"`
}

// Question возвращает вопрос по ID.
func (w *Worksheet) Question(id string) (WorksheetQuestion, bool) {
	if w == nil {
		return WorksheetQuestion{}, false
	}
	for _, q := range w.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return WorksheetQuestion{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// COPIES
// ══════════════════════════════════════════════════════════════════════════════

// Каталог отдаёт наружу только глубокие копии, поэтому вызывающий
// не может изменить загруженный контент.

func (p Program) clone() Program {
	p.Pillars = slices.Clone(p.Pillars)
	p.Habits = slices.Clone(p.Habits)
	p.Weeks = cloneWeeks(p.Weeks)
	return p
}

func cloneWeeks(weeks []Week) []Week {
	if weeks == nil {
		return nil
	}
	out := make([]Week, len(weeks))
	for i, w := range weeks {
		out[i] = w.clone()
	}
	return out
}

func (w Week) clone() Week {
	w.Pillars = slices.Clone(w.Pillars)
	if w.Sessions != nil {
		sessions := make([]Session, len(w.Sessions))
		for i, s := range w.Sessions {
			sessions[i] = s.clone()
		}
		w.Sessions = sessions
	}
	if w.CoachingSession != nil {
		cs := *w.CoachingSession
		cs.WhatToBring = slices.Clone(cs.WhatToBring)
		w.CoachingSession = &cs
	}
	if w.ActionPlan != nil {
		ap := *w.ActionPlan
		ap.ActionSteps = slices.Clone(ap.ActionSteps)
		ap.JournalPrompts = slices.Clone(ap.JournalPrompts)
		w.ActionPlan = &ap
	}
	return w
}

func (s Session) clone() Session {
	if s.Assignments != nil {
		assignments := make([]ProgressionAssignment, len(s.Assignments))
		for i, a := range s.Assignments {
			a.Steps = slices.Clone(a.Steps)
			a.BringToCall = slices.Clone(a.BringToCall)
			assignments[i] = a
		}
		s.Assignments = assignments
	}
	if s.Worksheet != nil {
		ws := *s.Worksheet
		ws.Questions = slices.Clone(ws.Questions)
		s.Worksheet = &ws
	}
	return s
}
