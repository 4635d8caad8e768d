package account

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/joelkehle/contract-analyzer/internal/apperr"
)

const (
	DefaultSessionTTL  = 24 * time.Hour
	DefaultMaxSessions = 10000
)

type Session struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type record struct {
	user User
	hash []byte
}

// Registry holds accounts keyed by lower-cased email and sessions keyed by token. Sessions
// expire after a TTL; once the cap is reached the oldest session is dropped.
type Registry struct {
	mu          sync.RWMutex
	cost        int
	ttl         time.Duration
	maxSessions int
	now         func() time.Time
	accounts    map[string]*record
	sessions    map[string]*Session
	order       []string
}

// NewRegistry returns an empty registry. cost is the bcrypt cost; zero means
// bcrypt.DefaultCost.
func NewRegistry(cost int) *Registry {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Registry{
		cost:        cost,
		ttl:         DefaultSessionTTL,
		maxSessions: DefaultMaxSessions,
		now:         time.Now,
		accounts:    make(map[string]*record),
		sessions:    make(map[string]*Session),
	}
}

// LimitSessions sets the session lifetime and the number of live sessions kept. Zero values
// keep the current setting.
func (r *Registry) LimitSessions(ttl time.Duration, max int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ttl > 0 {
		r.ttl = ttl
	}
	if max > 0 {
		r.maxSessions = max
	}
	r.pruneLocked(r.now())
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Signup validates the form, stores the account and opens a session for it.
func (r *Registry) Signup(req SignupRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), r.cost)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, "Password could not be used", err)
	}
	user := User{
		Name:  strings.TrimSpace(req.Name),
		Email: normalizeEmail(req.Email),
		Role:  req.Role,
	}
	if req.Role == RoleLawyer {
		user.FirmName = strings.TrimSpace(req.FirmName)
		user.Country = strings.TrimSpace(req.Country)
		user.BarNumber = strings.TrimSpace(req.BarNumber)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[user.Email]; exists {
		return nil, apperr.New(apperr.CodeConflict, "An account with this email already exists")
	}
	r.accounts[user.Email] = &record{user: user, hash: hash}
	return r.openLocked(user), nil
}

// Login checks credentials and opens a new session.
func (r *Registry) Login(req LoginRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	rec, ok := r.accounts[normalizeEmail(req.Email)]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.CodeUnauthorized, "Invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword(rec.hash, []byte(req.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, apperr.New(apperr.CodeUnauthorized, "Invalid email or password")
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "credential check failed", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openLocked(rec.user), nil
}

func (r *Registry) openLocked(user User) *Session {
	now := r.now()
	r.pruneLocked(now)
	for len(r.sessions) >= r.maxSessions && len(r.order) > 0 {
		r.dropLocked(r.order[0])
	}
	s := &Session{Token: uuid.NewString(), User: user, CreatedAt: now.UTC(), ExpiresAt: now.Add(r.ttl).UTC()}
	r.sessions[s.Token] = s
	r.order = append(r.order, s.Token)
	return s
}

// pruneLocked drops expired sessions. order is oldest first and every session shares the
// same TTL, so expired entries sit at the front. Lookup checks expiry on its own.
func (r *Registry) pruneLocked(now time.Time) {
	for len(r.order) > 0 {
		s, ok := r.sessions[r.order[0]]
		if ok && now.Before(s.ExpiresAt) {
			return
		}
		r.dropLocked(r.order[0])
	}
}

func (r *Registry) dropLocked(token string) {
	delete(r.sessions, token)
	for i, v := range r.order {
		if v == token {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Logout revokes a session. Unknown tokens are ignored.
func (r *Registry) Logout(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLocked(token)
}

func (r *Registry) Lookup(token string) (*Session, bool) {
	if token == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[token]
	if !ok || !r.now().Before(s.ExpiresAt) {
		return nil, false
	}
	return s, true
}

// Current returns the session's user, or the demo user when the token is unknown.
func (r *Registry) Current(token string) User {
	if s, ok := r.Lookup(token); ok {
		return s.User
	}
	return DemoUser()
}
