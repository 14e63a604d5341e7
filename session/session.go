package session

import (
	"errors"
	"sync"
	"time"
)

// Status is the lifecycle state of one generation session. Transitions are
// monotonic: pending -> streaming -> completed | failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition may occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrSessionExists is returned by Registry.Start when a session for the plan
// id is already live, guaranteeing at most one orchestrator per plan.
var ErrSessionExists = errors.New("generation session already exists for plan")

// subscriberBuffer bounds an individual subscriber channel. A subscriber
// that falls this far behind is dropped rather than reordering or blocking
// delivery to everyone else.
const subscriberBuffer = 256

// Session is the live, in-memory record of one plan's generation progress.
// It is mutated only by the orchestrator running for its plan id; readers go
// through the accessor methods.
type Session struct {
	PlanID    string
	CreatedAt time.Time

	mu          sync.Mutex
	status      Status
	progress    []string
	result      interface{}
	subscribers []chan string
	closed      bool
	expiresAt   time.Time
}

func newSession(planID string) *Session {
	return &Session{
		PlanID:    planID,
		CreatedAt: time.Now(),
		status:    StatusPending,
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus advances the lifecycle state. Transitions out of a terminal
// state are ignored.
func (s *Session) SetStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = st
}

// AppendProgress records one progress line and delivers it to live
// subscribers in append order.
func (s *Session) AppendProgress(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.progress = append(s.progress, line)

	kept := s.subscribers[:0]
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
			kept = append(kept, ch)
		default:
			// Lagging subscriber: closing here keeps every delivered
			// sequence strictly ordered for everyone else.
			close(ch)
		}
	}
	s.subscribers = kept
}

// Progress returns a copy of the buffered progress log.
func (s *Session) Progress() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.progress))
	copy(out, s.progress)
	return out
}

// SetResult stashes the final generation outcome so late readers can fetch it
// without a round trip to the store.
func (s *Session) SetResult(v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = v
}

func (s *Session) Result() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Subscribe returns a channel that replays the buffered progress entries in
// order, then receives live entries. The channel is closed when the session
// finishes or the returned cancel function is called.
func (s *Session) Subscribe() (<-chan string, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan string, subscriberBuffer+len(s.progress))
	for _, line := range s.progress {
		ch <- line
	}
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subscribers = append(s.subscribers, ch)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subscribers {
			if sub == ch {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// Close marks the session finished and closes all subscriber channels. It is
// called by the registry once the terminal transition is recorded.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
}

func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.expiresAt.IsZero() && now.After(s.expiresAt)
}

// Registry is the concurrency-safe lookup table of live generation
// sessions, keyed by plan id. Terminal sessions linger for a grace period so
// late subscribers can replay, then a background sweeper removes them; after
// that only the persisted store answers queries.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	successGrace time.Duration
	failureGrace time.Duration

	stop chan struct{}
	once sync.Once
}

// NewRegistry creates a registry with the given post-terminal grace periods
// and starts its sweeper.
func NewRegistry(successGrace, failureGrace time.Duration) *Registry {
	if successGrace <= 0 {
		successGrace = 5 * time.Minute
	}
	if failureGrace <= 0 {
		failureGrace = time.Minute
	}
	r := &Registry{
		sessions:     make(map[string]*Session),
		successGrace: successGrace,
		failureGrace: failureGrace,
		stop:         make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Start registers a new session for the plan id. It fails fast when one is
// already present so two orchestrators can never run for the same plan.
func (r *Registry) Start(planID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[planID]; ok {
		return nil, ErrSessionExists
	}
	s := newSession(planID)
	r.sessions[planID] = s
	return s, nil
}

// Get returns the session for the plan id, or nil once it has been purged.
func (r *Registry) Get(planID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[planID]
}

// Finish records the terminal transition for a session: subscribers are
// drained and the session is scheduled for removal after its grace period.
func (r *Registry) Finish(s *Session) {
	grace := r.successGrace
	if s.Status() == StatusFailed {
		grace = r.failureGrace
	}
	s.mu.Lock()
	s.expiresAt = time.Now().Add(grace)
	s.mu.Unlock()
	s.close()
}

// Shutdown stops the sweeper.
func (r *Registry) Shutdown() {
	r.once.Do(func() { close(r.stop) })
}

func (r *Registry) sweep() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.mu.Lock()
			for id, s := range r.sessions {
				if s.expired(now) {
					delete(r.sessions, id)
				}
			}
			r.mu.Unlock()
		}
	}
}
