package intake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/intake/internal/platform/notification"
)

// DefaultSessionTTL is how long an untouched session survives.
const DefaultSessionTTL = 2 * time.Hour

var ErrSessionNotFound = errors.New("intake session not found")

// Entry bundles a session with the notification feed and redirect history
// its client polls.
type Entry struct {
	Session       *Session
	Notifications *notification.Feed
	Redirects     *RedirectRecorder
}

// Publisher pushes session events to live subscribers. Topics are session
// ids.
type Publisher interface {
	Publish(topic, eventType string, payload interface{})
	CloseTopic(topic string)
}

// Event types sent through the Publisher.
const (
	EventNotification = "notification"
	EventRedirect     = "redirect"
	EventClosed       = "closed"
)

// Registry holds the live intake sessions.
type Registry struct {
	base      Deps
	ttl       time.Duration
	publisher Publisher

	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
}

// NewRegistry creates sessions from base; each session gets its own feed
// and redirect recorder in place of base.Notifier and base.Navigator.
func NewRegistry(base Deps, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Registry{
		base:    base.withDefaults(),
		ttl:     ttl,
		entries: make(map[uuid.UUID]*Entry),
	}
}

// WithPublisher mirrors every session's notifications and redirects to p.
// Call before the first Create.
func (r *Registry) WithPublisher(p Publisher) *Registry {
	r.publisher = p
	return r
}

// Create mounts a new empty session.
func (r *Registry) Create() *Entry {
	id := uuid.New()
	logger := r.base.Logger.With().Str("session_id", id.String()).Logger()

	feed := notification.NewFeed(notification.DefaultFeedCapacity)
	redirects := NewRedirectRecorder(r.base.Now)

	deps := r.base
	deps.Logger = logger
	deps.Notifier = notification.WithLogging(feed, logger)
	deps.Navigator = redirects
	if r.publisher != nil {
		deps.Notifier = r.publishNotifications(id.String(), deps.Notifier)
		deps.Navigator = r.publishRedirects(id.String(), redirects)
	}

	entry := &Entry{
		Session:       NewSession(id, deps),
		Notifications: feed,
		Redirects:     redirects,
	}

	r.mu.Lock()
	r.entries[id] = entry
	r.mu.Unlock()
	return entry
}

func (r *Registry) Get(id uuid.UUID) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

// Remove unmounts a session and closes it.
func (r *Registry) Remove(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	entry, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	r.close(ctx, entry)
	return nil
}

func (r *Registry) close(ctx context.Context, entry *Entry) {
	entry.Session.Close(ctx)
	if r.publisher != nil {
		topic := entry.Session.ID().String()
		r.publisher.Publish(topic, EventClosed, struct{}{})
		r.publisher.CloseTopic(topic)
	}
}

// publishNotifications stamps each notification so the pushed copy and the
// feed copy share an ID.
func (r *Registry) publishNotifications(topic string, next notification.Notifier) notification.Notifier {
	return notification.NotifierFunc(func(n notification.Notification) {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = r.base.Now().UTC()
		}
		next.Notify(n)
		r.publisher.Publish(topic, EventNotification, n)
	})
}

func (r *Registry) publishRedirects(topic string, rec *RedirectRecorder) Navigator {
	return NavigatorFunc(func(path string) {
		rec.Navigate(path)
		if last, ok := rec.Latest(); ok {
			r.publisher.Publish(topic, EventRedirect, last)
		}
	})
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sweep closes sessions idle for longer than the TTL. Sessions with a
// submission in flight are kept. It returns the number evicted.
func (r *Registry) Sweep(ctx context.Context) int {
	cutoff := r.base.Now().UTC().Add(-r.ttl)

	var expired []*Entry
	r.mu.Lock()
	for id, entry := range r.entries {
		if entry.Session.Busy() || entry.Session.LastActive().After(cutoff) {
			continue
		}
		delete(r.entries, id)
		expired = append(expired, entry)
	}
	r.mu.Unlock()

	for _, entry := range expired {
		r.close(ctx, entry)
	}
	if len(expired) > 0 {
		r.base.Logger.Info().Int("count", len(expired)).Msg("evicted idle intake sessions")
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// CloseAll closes every session, used on shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[uuid.UUID]*Entry)
	r.mu.Unlock()

	for _, entry := range entries {
		r.close(ctx, entry)
	}
}
