package studio

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultClientID is used when a caller does not identify itself.
const DefaultClientID = "default"

// ErrInvalidClientID is returned for client ids outside [A-Za-z0-9._-]{1,64}
// and for ids made only of dots.
var ErrInvalidClientID = errors.New("invalid client id")

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// DefaultSessionTTL is how long an idle session is kept in memory.
const DefaultSessionTTL = 30 * time.Minute

// Factory builds the Studio for a client the first time it is seen.
type Factory func(clientID string) *Studio

type session struct {
	studio   *Studio
	lastSeen time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSessionTTL sets how long an idle session survives; ttl <= 0 keeps the default.
func WithSessionTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRegistryClock overrides the clock used for idle tracking.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry holds one Studio per client id. Sessions idle for longer than the
// TTL and not generating are dropped on a later Get; their history stays in
// the store and is reloaded when the client returns.
type Registry struct {
	factory Factory
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	sessions  map[string]*session
	lastSweep time.Time
}

func NewRegistry(factory Factory, opts ...RegistryOption) *Registry {
	r := &Registry{
		factory:  factory,
		ttl:      DefaultSessionTTL,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lastSweep = r.now()
	return r
}

// NormalizeClientID trims id, substitutes DefaultClientID for an empty value
// and validates the result.
func NormalizeClientID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultClientID, nil
	}
	if !clientIDPattern.MatchString(id) || strings.Trim(id, ".") == "" {
		return "", ErrInvalidClientID
	}
	return id, nil
}

// Get returns the client's Studio, creating it on first use.
func (r *Registry) Get(clientID string) (*Studio, error) {
	id, err := NormalizeClientID(clientID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if now.Sub(r.lastSweep) > r.ttl {
		r.sweepLocked(now)
	}
	if sess, ok := r.sessions[id]; ok {
		sess.lastSeen = now
		return sess.studio, nil
	}
	s := r.factory(id)
	r.sessions[id] = &session{studio: s, lastSeen: now}
	return s, nil
}

func (r *Registry) sweepLocked(now time.Time) {
	for id, sess := range r.sessions {
		if now.Sub(sess.lastSeen) > r.ttl && !sess.studio.Busy() {
			delete(r.sessions, id)
		}
	}
	r.lastSweep = now
}

// Clients lists the known client ids in sorted order.
func (r *Registry) Clients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AbortAll aborts every in-flight generation and returns how many were running.
func (r *Registry) AbortAll() int {
	r.mu.Lock()
	sessions := make([]*Studio, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess.studio)
	}
	r.mu.Unlock()

	n := 0
	for _, s := range sessions {
		if s.Abort() {
			n++
		}
	}
	return n
}
