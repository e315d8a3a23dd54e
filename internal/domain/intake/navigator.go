package intake

import (
	"net/url"
	"sync"
	"time"
)

// SearchPath is the search view the form hands off to.
const SearchPath = "/search"

// SearchPathFor returns the search view filtered to one patient.
func SearchPathFor(patientID string) string {
	return SearchPath + "?patient=" + url.QueryEscape(patientID)
}

// Navigator moves the client to another view.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a plain function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Redirect is one navigation request recorded for a client to follow.
type Redirect struct {
	Path string    `json:"path"`
	At   time.Time `json:"at"`
}

// RedirectRecorder is a Navigator that keeps the navigation history of one
// session so a polling client can pick up where it should go.
type RedirectRecorder struct {
	mu      sync.RWMutex
	history []Redirect
	now     func() time.Time
}

func NewRedirectRecorder(now func() time.Time) *RedirectRecorder {
	if now == nil {
		now = time.Now
	}
	return &RedirectRecorder{now: now}
}

func (r *RedirectRecorder) Navigate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, Redirect{Path: path, At: r.now().UTC()})
}

// Latest returns the most recent redirect, if any.
func (r *RedirectRecorder) Latest() (Redirect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.history) == 0 {
		return Redirect{}, false
	}
	return r.history[len(r.history)-1], true
}
