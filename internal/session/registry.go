package session

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/signify/internal/classifier"
	"github.com/ayusman/signify/internal/features"
	"github.com/ayusman/signify/internal/stabilizer"
)

// ErrUnknownSession is returned when a session ID is not registered.
var ErrUnknownSession = errors.New("unknown session")

// Limits bound the sessions a Registry keeps. Zero values disable a limit.
type Limits struct {
	// IdleTimeout ends sessions that have not been looked up for this long.
	IdleTimeout time.Duration
	// MaxSessions caps the registry; starting one more ends the least
	// recently used session.
	MaxSessions int
}

type entry struct {
	session *Session
	used    time.Time
}

// Registry tracks the active sessions of a host.
type Registry struct {
	extractor *features.Extractor
	engine    *classifier.Engine
	config    stabilizer.Config

	// now is replaced in tests.
	now func() time.Time

	mu       sync.Mutex
	limits   Limits
	sessions map[string]*entry
}

// NewRegistry creates a registry whose sessions share the extractor and engine
// but each get their own window.
func NewRegistry(extractor *features.Extractor, engine *classifier.Engine, config stabilizer.Config) (*Registry, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Registry{
		extractor: extractor,
		engine:    engine,
		config:    config,
		now:       time.Now,
		sessions:  make(map[string]*entry),
	}, nil
}

// SetLimits changes the registry limits. Sessions beyond the new limits are
// ended on the next Start, Get or Len.
func (r *Registry) SetLimits(l Limits) {
	r.mu.Lock()
	r.limits = l
	r.mu.Unlock()
}

// Limits returns the current registry limits.
func (r *Registry) Limits() Limits {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limits
}

// Start creates, starts and registers a new session.
func (r *Registry) Start() *Session {
	s, _ := New(uuid.NewString(), r.extractor, r.engine, r.config)
	s.Start()

	r.mu.Lock()
	now := r.now()
	evicted := r.expireLocked(now)
	if limit := r.limits.MaxSessions; limit > 0 {
		for len(r.sessions) >= limit {
			evicted = append(evicted, r.evictOldestLocked())
		}
	}
	r.sessions[s.ID()] = &entry{session: s, used: now}
	r.mu.Unlock()

	endAll(evicted)
	return s
}

// Get returns the session with the given ID and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	now := r.now()
	evicted := r.expireLocked(now)
	e, ok := r.sessions[id]
	if ok {
		e.used = now
	}
	r.mu.Unlock()

	endAll(evicted)
	if !ok {
		return nil, ErrUnknownSession
	}
	return e.session, nil
}

// End stops a session and removes it from the registry.
func (r *Registry) End(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrUnknownSession
	}
	e.session.End()
	return nil
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	evicted := r.expireLocked(r.now())
	n := len(r.sessions)
	r.mu.Unlock()

	endAll(evicted)
	return n
}

// EndAll stops every registered session.
func (r *Registry) EndAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		sessions = append(sessions, e.session)
	}
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	endAll(sessions)
}

// expireLocked unregisters sessions idle past the limit and returns them.
func (r *Registry) expireLocked(now time.Time) []*Session {
	if r.limits.IdleTimeout <= 0 {
		return nil
	}
	var expired []*Session
	for id, e := range r.sessions {
		if now.Sub(e.used) >= r.limits.IdleTimeout {
			delete(r.sessions, id)
			expired = append(expired, e.session)
		}
	}
	if len(expired) > 0 {
		log.Printf("Expired %d idle sessions", len(expired))
	}
	return expired
}

// evictOldestLocked unregisters the least recently used session. The
// registry must not be empty.
func (r *Registry) evictOldestLocked() *Session {
	var oldest *entry
	for _, e := range r.sessions {
		if oldest == nil || e.used.Before(oldest.used) {
			oldest = e
		}
	}
	delete(r.sessions, oldest.session.ID())
	log.Printf("Session limit reached, ending %s", oldest.session.ID())
	return oldest.session
}

func endAll(sessions []*Session) {
	for _, s := range sessions {
		s.End()
	}
}
