package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each one is emitted after the progress write it describes.
const (
	EventSessionCompleted     EventType = "progress.session_completed"
	EventActionStepToggled    EventType = "progress.action_step_toggled"
	EventReflectionSaved      EventType = "progress.reflection_saved"
	EventWeekCompleted        EventType = "progress.week_completed"
	EventWorksheetSaved       EventType = "progress.worksheet_saved"
	EventHabitCheckedIn       EventType = "progress.habit_checked_in"
	EventOrientationDismissed EventType = "progress.orientation_dismissed"
	EventProgressReset        EventType = "admin.progress_reset"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the user whose progress changed.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, userID UserID) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: string(userID),
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionCompletedEvent is emitted the first time a user completes a session.
type SessionCompletedEvent struct {
	BaseEvent
	SessionID      string `json:"session_id"`
	WeekID         string `json:"week_id"`
	CompletedCount int    `json:"completed_count"`
	TotalSessions  int    `json:"total_sessions"`
}

// NewSessionCompletedEvent creates a new SessionCompletedEvent.
func NewSessionCompletedEvent(user UserID, sessionID, weekID string, completed, total int) SessionCompletedEvent {
	return SessionCompletedEvent{
		BaseEvent:      NewBaseEvent(EventSessionCompleted, user),
		SessionID:      sessionID,
		WeekID:         weekID,
		CompletedCount: completed,
		TotalSessions:  total,
	}
}

// Payload implements Event interface.
func (e SessionCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id":      e.SessionID,
		"week_id":         e.WeekID,
		"completed_count": e.CompletedCount,
		"total_sessions":  e.TotalSessions,
	}
}

// WorksheetSavedEvent is emitted when worksheet answers are merged.
type WorksheetSavedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Answered  int    `json:"answered"`
}

// NewWorksheetSavedEvent creates a new WorksheetSavedEvent.
func NewWorksheetSavedEvent(user UserID, sessionID string, answered int) WorksheetSavedEvent {
	return WorksheetSavedEvent{
		BaseEvent: NewBaseEvent(EventWorksheetSaved, user),
		SessionID: sessionID,
		Answered:  answered,
	}
}

// Payload implements Event interface.
func (e WorksheetSavedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.SessionID,
		"answered":   e.Answered,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Week Events
// ═══════════════════════════════════════════════════════════════════════════

// ActionStepToggledEvent is emitted when a weekly action step is checked or unchecked.
type ActionStepToggledEvent struct {
	BaseEvent
	WeekID    string `json:"week_id"`
	StepIndex int    `json:"step_index"`
	Checked   bool   `json:"checked"`
}

// NewActionStepToggledEvent creates a new ActionStepToggledEvent.
func NewActionStepToggledEvent(user UserID, weekID string, index int, checked bool) ActionStepToggledEvent {
	return ActionStepToggledEvent{
		BaseEvent: NewBaseEvent(EventActionStepToggled, user),
		WeekID:    weekID,
		StepIndex: index,
		Checked:   checked,
	}
}

// Payload implements Event interface.
func (e ActionStepToggledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"week_id":    e.WeekID,
		"step_index": e.StepIndex,
		"checked":    e.Checked,
	}
}

// ReflectionSavedEvent is emitted when the weekly reflection is overwritten.
type ReflectionSavedEvent struct {
	BaseEvent
	WeekID string `json:"week_id"`
	Length int    `json:"length"`
}

// NewReflectionSavedEvent creates a new ReflectionSavedEvent.
func NewReflectionSavedEvent(user UserID, weekID string, length int) ReflectionSavedEvent {
	return ReflectionSavedEvent{
		BaseEvent: NewBaseEvent(EventReflectionSaved, user),
		WeekID:    weekID,
		Length:    length,
	}
}

// Payload implements Event interface.
func (e ReflectionSavedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"week_id": e.WeekID,
		"length":  e.Length,
	}
}

// WeekCompletedEvent is emitted the first time a week is marked complete.
type WeekCompletedEvent struct {
	BaseEvent
	WeekID     string `json:"week_id"`
	WeekNumber int    `json:"week_number"`
}

// NewWeekCompletedEvent creates a new WeekCompletedEvent.
func NewWeekCompletedEvent(user UserID, weekID string, number int) WeekCompletedEvent {
	return WeekCompletedEvent{
		BaseEvent:  NewBaseEvent(EventWeekCompleted, user),
		WeekID:     weekID,
		WeekNumber: number,
	}
}

// Payload implements Event interface.
func (e WeekCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"week_id":     e.WeekID,
		"week_number": e.WeekNumber,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Habit & Flag Events
// ═══════════════════════════════════════════════════════════════════════════

// HabitCheckedInEvent is emitted on the first check-in of a calendar day.
type HabitCheckedInEvent struct {
	BaseEvent
	HabitID       string `json:"habit_id"`
	CheckInID     string `json:"check_in_id"`
	Day           string `json:"day"`
	CurrentStreak int    `json:"current_streak"`
	BestStreak    int    `json:"best_streak"`
}

// NewHabitCheckedInEvent creates a new HabitCheckedInEvent.
func NewHabitCheckedInEvent(user UserID, habitID, checkInID, day string, current, best int) HabitCheckedInEvent {
	return HabitCheckedInEvent{
		BaseEvent:     NewBaseEvent(EventHabitCheckedIn, user),
		HabitID:       habitID,
		CheckInID:     checkInID,
		Day:           day,
		CurrentStreak: current,
		BestStreak:    best,
	}
}

// Payload implements Event interface.
func (e HabitCheckedInEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"habit_id":       e.HabitID,
		"check_in_id":    e.CheckInID,
		"day":            e.Day,
		"current_streak": e.CurrentStreak,
		"best_streak":    e.BestStreak,
	}
}

// OrientationDismissedEvent is emitted when the welcome orientation is closed.
type OrientationDismissedEvent struct {
	BaseEvent
}

// NewOrientationDismissedEvent creates a new OrientationDismissedEvent.
func NewOrientationDismissedEvent(user UserID) OrientationDismissedEvent {
	return OrientationDismissedEvent{BaseEvent: NewBaseEvent(EventOrientationDismissed, user)}
}

// Payload implements Event interface.
func (e OrientationDismissedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{}
}

// ProgressResetEvent is emitted when an operator wipes a user's progress.
type ProgressResetEvent struct {
	BaseEvent
	KeysRemoved int64  `json:"keys_removed"`
	Actor       string `json:"actor"`
}

// NewProgressResetEvent creates a new ProgressResetEvent.
func NewProgressResetEvent(user UserID, removed int64, actor string) ProgressResetEvent {
	return ProgressResetEvent{
		BaseEvent:   NewBaseEvent(EventProgressReset, user),
		KeysRemoved: removed,
		Actor:       actor,
	}
}

// Payload implements Event interface.
func (e ProgressResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"keys_removed": e.KeysRemoved,
		"actor":        e.Actor,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Handling
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
