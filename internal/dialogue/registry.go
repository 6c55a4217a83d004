// Package dialogue implements the session manager: it turns the stream of
// hotword, transcript, intent and explicit session requests on the bus into
// well ordered per-site conversational sessions.
package dialogue

import (
	"errors"
	"sync"
	"time"
)

// State is a session's lifecycle phase.
type State string

const (
	StateStarting State = "starting"
	StateActive   State = "active"
	StateEnding   State = "ending"
	StateEnded    State = "ended"
)

var (
	// ErrSiteBusy is returned when a site already has a live session.
	ErrSiteBusy = errors.New("dialogue: site already has an active session")
	// ErrUnknownSession is returned for lookups of ids with no live session.
	ErrUnknownSession = errors.New("dialogue: unknown session")
)

// Session is one bounded conversational turn-sequence on a site. The registry
// owns all sessions; other components refer to them by id only.
type Session struct {
	ID         string
	SiteID     string
	CustomData string
	State      State
	StartedAt  time.Time

	timer *time.Timer
}

// Registry is the authoritative table of live sessions. A site holds at most
// one live session at a time.
type Registry struct {
	mu     sync.RWMutex
	bySite map[string]*Session
	byID   map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bySite: make(map[string]*Session),
		byID:   make(map[string]*Session),
	}
}

// Create registers a new session for a site. Fails with ErrSiteBusy if the
// site already has a live session.
func (r *Registry) Create(id, siteID, customData string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.bySite[siteID]; busy {
		return Session{}, ErrSiteBusy
	}

	session := &Session{
		ID:         id,
		SiteID:     siteID,
		CustomData: customData,
		State:      StateStarting,
		StartedAt:  time.Now(),
	}
	r.bySite[siteID] = session
	r.byID[id] = session
	return *session, nil
}

// Lookup returns a copy of the live session with the given id.
func (r *Registry) Lookup(sessionID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.byID[sessionID]
	if !ok {
		return Session{}, ErrUnknownSession
	}
	return *session, nil
}

// ActiveFor returns a copy of the live session owning a site, if any.
func (r *Registry) ActiveFor(siteID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.bySite[siteID]
	if !ok {
		return Session{}, false
	}
	return *session, true
}

// Remove drops a session from the registry. Later messages referencing its id
// are stale. Returns false if it was already gone.
func (r *Registry) Remove(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byID[sessionID]
	if !ok {
		return false
	}
	if session.timer != nil {
		session.timer.Stop()
	}
	delete(r.byID, session.ID)
	delete(r.bySite, session.SiteID)
	return true
}

// SetCustomData replaces a live session's custom data.
func (r *Registry) SetCustomData(sessionID, customData string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.byID[sessionID]; ok {
		session.CustomData = customData
	}
}

// SetState records a live session's lifecycle phase.
func (r *Registry) SetState(sessionID string, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.byID[sessionID]; ok {
		session.State = state
	}
}

// Arm replaces a session's expiry timer. The previous timer, if any, is
// stopped first.
func (r *Registry) Arm(sessionID string, d time.Duration, expire func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byID[sessionID]
	if !ok {
		return
	}
	if session.timer != nil {
		session.timer.Stop()
	}
	session.timer = time.AfterFunc(d, expire)
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Snapshot returns copies of all live sessions.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]Session, 0, len(r.byID))
	for _, s := range r.byID {
		sessions = append(sessions, *s)
	}
	return sessions
}

// Reset drops every live session and stops their timers. Used at teardown;
// no ended events are emitted.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, session := range r.byID {
		if session.timer != nil {
			session.timer.Stop()
		}
	}
	r.bySite = make(map[string]*Session)
	r.byID = make(map[string]*Session)
}
