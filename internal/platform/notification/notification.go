// Package notification provides the user-facing notification feed used by
// intake sessions: a Notifier contract, message templates, a bounded in-memory
// Feed that clients poll, and a logging decorator.
package notification

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Notification Types
// ---------------------------------------------------------------------------

// Severity selects how a client renders a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a single toast shown to the user.
type Notification struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Built-in template IDs.
const (
	TemplateMissingRequiredField = "missing-required-field"
	TemplateInvalidAge           = "invalid-age"
	TemplateFilesRejected        = "files-rejected"
	TemplatePatientRegistered    = "patient-registered"
	TemplateRegistrationFailed   = "registration-failed"
)

// Template defines a reusable notification with {{key}} placeholders.
type Template struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the intake templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:          TemplateMissingRequiredField,
			Title:       "Missing required fields",
			Description: "Please fill in full name, gender, age, address and mobile number.",
			Severity:    SeverityError,
		},
		{
			ID:          TemplateInvalidAge,
			Title:       "Invalid age",
			Description: "Please enter a valid age between 0 and 150.",
			Severity:    SeverityError,
		},
		{
			ID:          TemplateFilesRejected,
			Title:       "Some files were not added",
			Description: "Only PDF, JPG and PNG files up to 10MB are allowed.",
			Severity:    SeverityWarning,
		},
		{
			ID:          TemplatePatientRegistered,
			Title:       "Patient registered",
			Description: "{{patient_name}} has been registered with ID {{patient_id}}.",
			Severity:    SeveritySuccess,
		},
		{
			ID:          TemplateRegistrationFailed,
			Title:       "Registration failed",
			Description: "Failed to register patient. Please try again.",
			Severity:    SeverityError,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (Notification, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return Notification{}, fmt.Errorf("template %q not found", templateID)
	}

	n := Notification{Title: t.Title, Description: t.Description, Severity: t.Severity}
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		n.Title = strings.ReplaceAll(n.Title, placeholder, v)
		n.Description = strings.ReplaceAll(n.Description, placeholder, v)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Feed
// ---------------------------------------------------------------------------

// DefaultFeedCapacity bounds how many notifications a Feed retains.
const DefaultFeedCapacity = 50

// Feed is a thread-safe, bounded, ordered notification log. Oldest entries
// are dropped once capacity is reached.
type Feed struct {
	mu       sync.RWMutex
	items    []Notification
	capacity int
	now      func() time.Time
}

// NewFeed returns a Feed holding at most capacity notifications.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultFeedCapacity
	}
	return &Feed{capacity: capacity, now: time.Now}
}

// Notify assigns an ID and timestamp and appends n.
func (f *Feed) Notify(n Notification) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = f.now().UTC()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
	if over := len(f.items) - f.capacity; over > 0 {
		f.items = append([]Notification(nil), f.items[over:]...)
	}
}

// List returns a copy of the retained notifications, oldest first.
func (f *Feed) List() []Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Notification, len(f.items))
	copy(out, f.items)
	return out
}

// Since returns notifications created strictly after t.
func (f *Feed) Since(t time.Time) []Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := []Notification{}
	for _, n := range f.items {
		if n.CreatedAt.After(t) {
			out = append(out, n)
		}
	}
	return out
}

// Latest returns the most recent notification, if any.
func (f *Feed) Latest() (Notification, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.items) == 0 {
		return Notification{}, false
	}
	return f.items[len(f.items)-1], true
}

// ---------------------------------------------------------------------------
// Logging decorator
// ---------------------------------------------------------------------------

// WithLogging returns a Notifier that logs every notification before passing
// it to next. Warnings and errors are logged at warn level.
func WithLogging(next Notifier, logger zerolog.Logger) Notifier {
	return NotifierFunc(func(n Notification) {
		evt := logger.Info()
		if n.Severity == SeverityWarning || n.Severity == SeverityError {
			evt = logger.Warn()
		}
		evt.Str("severity", string(n.Severity)).Str("title", n.Title).Msg("notification")
		next.Notify(n)
	})
}
