package query

import (
	"github.com/wellness-escape/vitality-hub/internal/domain/access"
	"github.com/wellness-escape/vitality-hub/internal/domain/catalog"
	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// VIEWS
// Представления для слоя отображения. Всё, что политика закрыла, вырезается
// здесь, поэтому отображение не может случайно показать закрытый контент.
// ══════════════════════════════════════════════════════════════════════════════

// UnlockURL - куда отправлять пользователя без доступа.
const UnlockURL = "/purchase"

// SessionDTO - урок после редактирования по правам.
type SessionDTO struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Subtitle        string `json:"subtitle,omitempty"`
	Description     string `json:"description,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`

	// VideoURL пуст, если видео закрыто политикой или гейтом.
	VideoURL string `json:"video_url,omitempty"`

	// JournalPrompt пуст без доступа к журналу.
	JournalPrompt string `json:"journal_prompt,omitempty"`

	// Assignments без доступа содержат только заголовки.
	Assignments []AssignmentDTO `json:"assignments,omitempty"`

	// Worksheet без доступа содержит только заголовок.
	Worksheet *WorksheetDTO `json:"worksheet,omitempty"`
}

// AssignmentDTO - задание урока.
type AssignmentDTO struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	Steps            []string `json:"steps,omitempty"`
	EstimatedMinutes int      `json:"estimated_minutes,omitempty"`
	BringToCall      []string `json:"bring_to_call,omitempty"`
}

// WorksheetDTO - рабочий лист урока.
type WorksheetDTO struct {
	Title     string                      `json:"title"`
	Questions []catalog.WorksheetQuestion `json:"questions,omitempty"`
}

// WeekRef - краткая ссылка на неделю.
type WeekRef struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// SessionProgress - прогресс пользователя по уроку.
type SessionProgress struct {
	Completed bool                      `json:"completed"`
	Answers   progress.WorksheetAnswers `json:"answers,omitempty"`
}

// SessionView - всё, что нужно странице урока.
type SessionView struct {
	Session  SessionDTO         `json:"session"`
	Week     WeekRef            `json:"week"`
	Access   access.Decision    `json:"access"`
	Unlock   progression.Unlock `json:"unlock"`
	Progress SessionProgress    `json:"progress"`
	FellBack bool               `json:"fell_back,omitempty"`
	Previous *SessionRef        `json:"previous,omitempty"`
	Next     *SessionRef        `json:"next,omitempty"`
	Links    map[string]string  `json:"links,omitempty"`
}

// SessionRef - урок в списках и навигации.
type SessionRef struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Unlocked  bool   `json:"unlocked"`
	Completed bool   `json:"completed"`
}

// ActionPlanDTO - недельный план после редактирования по правам.
type ActionPlanDTO struct {
	ID               string   `json:"id"`
	Subtitle         string   `json:"subtitle,omitempty"`
	Objective        string   `json:"objective,omitempty"`
	WhyItMatters     string   `json:"why_it_matters,omitempty"`
	StepCount        int      `json:"step_count"`
	ActionSteps      []string `json:"action_steps,omitempty"`
	ReflectionPrompt string   `json:"reflection_prompt,omitempty"`
	JournalPrompts   []string `json:"journal_prompts,omitempty"`
}

// CoachingDTO - описание созвона с коучем.
type CoachingDTO struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	WhatToBring []string `json:"what_to_bring,omitempty"`
	Duration    string   `json:"duration,omitempty"`
}

// WeekView - страница недели.
type WeekView struct {
	ID            string                `json:"id"`
	Number        int                   `json:"number"`
	Title         string                `json:"title"`
	Theme         string                `json:"theme,omitempty"`
	Summary       string                `json:"summary,omitempty"`
	Pillars       []catalog.Pillar      `json:"pillars,omitempty"`
	Access        access.WeekDecision   `json:"access"`
	Sessions      []SessionRef          `json:"sessions"`
	Coaching      *CoachingDTO          `json:"coaching,omitempty"`
	ActionPlan    *ActionPlanDTO        `json:"action_plan,omitempty"`
	Progress      progress.WeekProgress `json:"progress"`
	SchedulingURL string                `json:"scheduling_url,omitempty"`
	FellBack      bool                  `json:"fell_back,omitempty"`
	Links         map[string]string     `json:"links,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// REDACTION
// ══════════════════════════════════════════════════════════════════════════════

func sessionDTO(s catalog.Session, d access.Decision, unlocked bool) SessionDTO {
	dto := SessionDTO{
		ID:              s.ID,
		Title:           s.Title,
		Subtitle:        s.Subtitle,
		Description:     s.Description,
		DurationMinutes: s.DurationMinutes,
	}

	if d.Video.Interactive() && unlocked {
		dto.VideoURL = s.VideoURL
	}
	if d.Journal.Interactive() {
		dto.JournalPrompt = s.JournalPrompt
	}

	full := d.Assignments.Interactive()
	for _, a := range s.Assignments {
		ad := AssignmentDTO{ID: a.ID, Title: a.Title}
		if full {
			ad.Description = a.Description
			ad.Steps = append([]string(nil), a.Steps...)
			ad.EstimatedMinutes = a.EstimatedMinutes
			ad.BringToCall = append([]string(nil), a.BringToCall...)
		}
		dto.Assignments = append(dto.Assignments, ad)
	}

	if s.Worksheet != nil {
		ws := &WorksheetDTO{Title: s.Worksheet.Title}
		if d.Worksheet.Interactive() {
			ws.Questions = append([]catalog.WorksheetQuestion(nil), s.Worksheet.Questions...)
		}
		dto.Worksheet = ws
	}

	return dto
}

func actionPlanDTO(p *catalog.ActionPlan, d access.WeekDecision) *ActionPlanDTO {
	if p == nil {
		return nil
	}
	dto := &ActionPlanDTO{
		ID:           p.ID,
		Subtitle:     p.Subtitle,
		Objective:    p.Objective,
		WhyItMatters: p.WhyItMatters,
		StepCount:    len(p.ActionSteps),
	}
	if d.ReflectionPrompt != access.Locked {
		dto.ReflectionPrompt = p.ReflectionPrompt
	}
	if d.ActionSteps.Interactive() {
		dto.ActionSteps = append([]string(nil), p.ActionSteps...)
	}
	if d.Journal.Interactive() {
		dto.JournalPrompts = append([]string(nil), p.JournalPrompts...)
	}
	return dto
}

func coachingDTO(c *catalog.CoachingSession, d access.WeekDecision) *CoachingDTO {
	if c == nil || d.CoachingOutline == access.Locked {
		return nil
	}
	return &CoachingDTO{
		Title:       c.Title,
		Description: c.Description,
		WhatToBring: append([]string(nil), c.WhatToBring...),
		Duration:    c.Duration,
	}
}

func weekRef(w catalog.Week) WeekRef {
	return WeekRef{ID: w.ID, Number: w.Number, Title: w.Title}
}

// unlockLinks добавляет ссылку на покупку, если что-то закрыто политикой.
func unlockLinks(p access.Principal) map[string]string {
	if p.Entitled() {
		return nil
	}
	return map[string]string{"unlock": UnlockURL}
}
