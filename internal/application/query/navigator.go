// Package query contains read operations (CQRS - Queries).
//
// Navigator собирает каталог, прогресс, политику доступа и гейт в готовые
// представления. Только чтение: ни один запрос не пишет в хранилище.
package query

import (
	"context"
	"math"
	"time"

	"github.com/wellness-escape/vitality-hub/internal/domain/access"
	"github.com/wellness-escape/vitality-hub/internal/domain/catalog"
	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/progression"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// NAVIGATOR
// ══════════════════════════════════════════════════════════════════════════════

// NavigatorConfig - настройки навигатора.
type NavigatorConfig struct {
	// SchedulingURL - внешняя ссылка на запись к коучу.
	SchedulingURL string

	// HabitTracking включает привычки в дашборде.
	HabitTracking bool
}

// Navigator отвечает на запросы страниц программы, недели, урока и дашборда.
type Navigator struct {
	catalog *catalog.Catalog
	store   *progress.Store
	gate    *progression.Gate
	cfg     NavigatorConfig
	now     func() time.Time
}

// NewNavigator создаёт навигатор.
func NewNavigator(cat *catalog.Catalog, store *progress.Store, gate *progression.Gate, cfg NavigatorConfig) *Navigator {
	return &Navigator{
		catalog: cat,
		store:   store,
		gate:    gate,
		cfg:     cfg,
		now:     timeutil.Now,
	}
}

// completed читает завершённые уроки. Анонимный пользователь прогресса не имеет.
func (n *Navigator) completed(ctx context.Context, p access.Principal) progress.SessionSet {
	if !p.Authenticated {
		return progress.SessionSet{}
	}
	return n.store.CompletedSessions(ctx, p.UserID)
}

func (n *Navigator) sessionRef(s catalog.Session, done progress.SessionSet) SessionRef {
	return SessionRef{
		ID:        s.ID,
		Title:     s.Title,
		Unlocked:  n.gate.Evaluate(s.ID, done).Unlocked,
		Completed: done.Has(s.ID),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Describe возвращает представление урока. Неизвестный ID - это не ошибка:
// возвращается первый урок с FellBack=true.
func (n *Navigator) Describe(ctx context.Context, sessionID string, p access.Principal) SessionView {
	done := n.completed(ctx, p)

	unlock := n.gate.Evaluate(sessionID, done)
	session, ok := n.catalog.SessionByID(unlock.SessionID)
	if !ok {
		session = n.catalog.FirstSession()
	}
	week, _ := n.catalog.WeekContainingSession(session.ID)

	decision := access.DecideSession(p)
	view := SessionView{
		Session:  sessionDTO(session, decision, unlock.Unlocked),
		Week:     weekRef(week),
		Access:   decision,
		Unlock:   unlock,
		FellBack: unlock.FellBack,
		Progress: SessionProgress{Completed: done.Has(session.ID)},
		Links:    unlockLinks(p),
	}

	if p.Authenticated && session.Worksheet != nil && decision.Worksheet.Interactive() {
		view.Progress.Answers = n.store.WorksheetAnswers(ctx, p.UserID, session.ID)
	}

	if prev, ok := n.catalog.Previous(session.ID); ok {
		ref := n.sessionRef(prev, done)
		view.Previous = &ref
	}
	if pos, ok := n.catalog.Position(session.ID); ok {
		if all := n.catalog.Sessions(); pos+1 < len(all) {
			ref := n.sessionRef(all[pos+1], done)
			view.Next = &ref
		}
	}

	return view
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEK
// ══════════════════════════════════════════════════════════════════════════════

// DescribeWeek возвращает представление недели. Неизвестный ID заменяется первой неделей.
func (n *Navigator) DescribeWeek(ctx context.Context, weekID string, p access.Principal) WeekView {
	week, ok := n.catalog.WeekByID(weekID)
	if !ok {
		week = n.catalog.FirstWeek()
	}
	done := n.completed(ctx, p)
	decision := access.DecideWeek(p)

	view := WeekView{
		ID:            week.ID,
		Number:        week.Number,
		Title:         week.Title,
		Theme:         week.Theme,
		Summary:       week.Summary,
		Access:        decision,
		Coaching:      coachingDTO(week.CoachingSession, decision),
		ActionPlan:    actionPlanDTO(week.ActionPlan, decision),
		Progress:      progress.WeekProgress{CompletedSteps: []int{}},
		SchedulingURL: n.cfg.SchedulingURL,
		FellBack:      !ok,
		Links:         unlockLinks(p),
	}

	for _, id := range week.Pillars {
		if pillar, ok := n.catalog.Pillar(id); ok {
			view.Pillars = append(view.Pillars, pillar)
		}
	}
	for _, s := range week.Sessions {
		view.Sessions = append(view.Sessions, n.sessionRef(s, done))
	}

	if p.Authenticated && decision.ActionSteps.Interactive() {
		view.Progress = n.store.WeekProgress(ctx, p.UserID, week.ID)
	}

	return view
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRAM
// ══════════════════════════════════════════════════════════════════════════════

// ProgramView - обзор программы с отметками по урокам.
type ProgramView struct {
	ID               string           `json:"id"`
	Version          string           `json:"version"`
	Title            string           `json:"title"`
	Tagline          string           `json:"tagline,omitempty"`
	PriceDisplay     string           `json:"price_display,omitempty"`
	ShortDescription string           `json:"short_description,omitempty"`
	LongDescription  string           `json:"long_description,omitempty"`
	CoachBio         string           `json:"coach_bio,omitempty"`
	Pillars          []catalog.Pillar `json:"pillars"`
	Weeks            []ProgramWeek    `json:"weeks"`

	Access         access.State      `json:"access"`
	CompletedCount int               `json:"completed_count"`
	TotalSessions  int               `json:"total_sessions"`
	PercentDone    int               `json:"percent_done"`
	NextSessionID  string            `json:"next_session_id,omitempty"`
	Links          map[string]string `json:"links,omitempty"`
}

// ProgramWeek - неделя в обзоре программы.
type ProgramWeek struct {
	WeekRef
	Theme    string       `json:"theme,omitempty"`
	Sessions []SessionRef `json:"sessions"`
	Complete bool         `json:"complete"`
}

// DescribeProgram возвращает обзор программы. Неизвестная программа - NotFound.
func (n *Navigator) DescribeProgram(ctx context.Context, programID string, p access.Principal) (ProgramView, error) {
	weeks, err := n.catalog.WeeksForProgram(programID)
	if err != nil {
		return ProgramView{}, err
	}
	prog := n.catalog.Program()
	done := n.completed(ctx, p)

	view := ProgramView{
		ID:               prog.ID,
		Version:          prog.Version,
		Title:            prog.Title,
		Tagline:          prog.Tagline,
		PriceDisplay:     prog.PriceDisplay,
		ShortDescription: prog.ShortDescription,
		LongDescription:  prog.LongDescription,
		CoachBio:         prog.CoachBio,
		Pillars:          prog.Pillars,
		Access:           access.Decide(p, access.NodeVideo),
		CompletedCount:   n.gate.CompletedCount(done),
		TotalSessions:    n.catalog.SessionCount(),
		Links:            unlockLinks(p),
	}
	view.PercentDone = percent(view.CompletedCount, view.TotalSessions)

	for _, w := range weeks {
		pw := ProgramWeek{WeekRef: weekRef(w), Theme: w.Theme, Complete: true}
		for _, s := range w.Sessions {
			ref := n.sessionRef(s, done)
			pw.Complete = pw.Complete && ref.Completed
			pw.Sessions = append(pw.Sessions, ref)
		}
		view.Weeks = append(view.Weeks, pw)
	}

	if next, ok := n.gate.Next(done); ok {
		view.NextSessionID = next.ID
	}
	return view, nil
}

func percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}

// ══════════════════════════════════════════════════════════════════════════════
// DASHBOARD
// ══════════════════════════════════════════════════════════════════════════════

// HabitView - привычка в дашборде.
type HabitView struct {
	catalog.Habit
	Streak         progress.Streak `json:"streak"`
	DaysThisWeek   int             `json:"days_this_week"`
	CheckedInToday bool            `json:"checked_in_today"`
}

// Dashboard - главная страница участника.
type Dashboard struct {
	Name            string                 `json:"name"`
	HasAccess       bool                   `json:"has_access"`
	ShowOrientation bool                   `json:"show_orientation"`
	NextSession     *SessionRef            `json:"next_session,omitempty"`
	ProgramComplete bool                   `json:"program_complete"`
	CurrentWeek     *WeekRef               `json:"current_week,omitempty"`
	WeekProgress    *progress.WeekProgress `json:"week_progress,omitempty"`
	CompletedCount  int                    `json:"completed_count"`
	TotalSessions   int                    `json:"total_sessions"`
	PercentDone     int                    `json:"percent_done"`
	SchedulingURL   string                 `json:"scheduling_url,omitempty"`
	Habits          []HabitView            `json:"habits,omitempty"`
	Links           map[string]string      `json:"links,omitempty"`
}

// Dashboard собирает главную страницу. Требует аутентификации.
func (n *Navigator) Dashboard(ctx context.Context, p access.Principal) (Dashboard, error) {
	if !p.Authenticated {
		return Dashboard{}, shared.NewDomainError("query", "Dashboard", shared.ErrUnauthorized, "sign in required")
	}

	done := n.completed(ctx, p)
	d := Dashboard{
		Name:           p.Name(),
		HasAccess:      p.Entitled(),
		CompletedCount: n.gate.CompletedCount(done),
		TotalSessions:  n.catalog.SessionCount(),
		SchedulingURL:  n.cfg.SchedulingURL,
		Links:          unlockLinks(p),
	}
	d.PercentDone = percent(d.CompletedCount, d.TotalSessions)
	d.ShowOrientation = d.HasAccess && !n.store.OrientationSeen(ctx, p.UserID)

	next, ok := n.gate.Next(done)
	if !ok {
		d.ProgramComplete = true
		next = n.catalog.Sessions()[n.catalog.SessionCount()-1]
	} else {
		ref := n.sessionRef(next, done)
		d.NextSession = &ref
	}
	if week, ok := n.catalog.WeekContainingSession(next.ID); ok {
		ref := weekRef(week)
		d.CurrentWeek = &ref
		if d.HasAccess {
			wp := n.store.WeekProgress(ctx, p.UserID, week.ID)
			d.WeekProgress = &wp
		}
	}

	if n.cfg.HabitTracking && d.HasAccess {
		now := n.now()
		today := timeutil.FormatDateStr(now)
		for _, h := range n.catalog.Habits() {
			log := n.store.HabitLog(ctx, p.UserID, h.ID)
			d.Habits = append(d.Habits, HabitView{
				Habit:          h,
				Streak:         log.Streak.AsOf(now),
				DaysThisWeek:   log.DaysInWeek(now),
				CheckedInToday: log.HasDay(today),
			})
		}
	}

	return d, nil
}
