package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timoknapp/contest-dashboard/pkg/favorites"
	"github.com/timoknapp/contest-dashboard/pkg/logger"
	"github.com/timoknapp/contest-dashboard/pkg/search"
	"github.com/timoknapp/contest-dashboard/pkg/view"
)

// CookieName carries the client ID between requests.
const CookieName = "cfd_client"

// Session is the state the dashboard keeps per client.
type Session struct {
	ID        string
	Favorites *favorites.Set
	Search    *search.Box

	mu       sync.Mutex
	listing  view.FilterState
	lastSeen time.Time
}

// WithListing runs fn with exclusive access to the listing filter state.
func (s *Session) WithListing(fn func(state *view.FilterState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.listing)
}

// Listing returns a copy of the listing filter state
func (s *Session) Listing() view.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listing
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Registry tracks live sessions by client ID.
type Registry struct {
	newBox func() *search.Box
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. newBox builds the search box of each
// new session.
func NewRegistry(newBox func() *search.Box) *Registry {
	return &Registry{
		newBox:   newBox,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Resolve returns the session for id, creating one when id is unknown. An
// empty or malformed id gets a freshly generated one.
func (r *Registry) Resolve(id string) (*Session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if s, ok := r.sessions[id]; ok {
		s.touch(now)
		return s, false
	}

	s := &Session{
		ID:        id,
		Favorites: favorites.New(),
		Search:    r.newBox(),
		listing:   view.NewFilterState(),
		lastSeen:  now,
	}
	r.sessions[id] = s
	logger.Debug("Created session %s", id)
	return s, true
}

// WithClock replaces the time source, used by tests
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for at least maxIdle and returns how many went.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, s := range r.sessions {
		if s.idleSince(now) >= maxIdle {
			s.Search.Stop()
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Info("Session sweep removed %d idle sessions, %d remaining", removed, len(r.sessions))
	}
	return removed
}
