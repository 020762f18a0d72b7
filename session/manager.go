package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Options configure a Manager.
type Options struct {
	Store         Store
	IdleTTL       time.Duration
	MaxLifetime   time.Duration
	SweepInterval time.Duration
	Logger        zerolog.Logger
	OnDestroy     func(id string)
}

// Option mutates Options.
type Option func(o *Options)

// WithStore overrides the backing store.
func WithStore(store Store) Option {
	return func(o *Options) {
		o.Store = store
	}
}

// WithIdleTTL bounds how long an inactive session survives.
func WithIdleTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.IdleTTL = ttl
	}
}

// WithMaxLifetime bounds a session's total lifetime regardless of activity.
// Zero disables the bound.
func WithMaxLifetime(max time.Duration) Option {
	return func(o *Options) {
		o.MaxLifetime = max
	}
}

// WithSweepInterval sets how often expired sessions are collected. Zero
// disables the sweeper.
func WithSweepInterval(interval time.Duration) Option {
	return func(o *Options) {
		o.SweepInterval = interval
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithOnDestroy registers a hook invoked after a session is removed, with the
// session id. Used to release per-session resources such as stream buffers.
func WithOnDestroy(hook func(id string)) Option {
	return func(o *Options) {
		o.OnDestroy = hook
	}
}

// Manager creates, resolves and expires sessions.
type Manager struct {
	options Options
	done    chan struct{}
}

// NewManager creates a Manager with an in-memory store, a 30 minute idle TTL
// and a one minute sweep interval unless overridden.
func NewManager(options ...Option) *Manager {
	opts := Options{
		Store:         NewMemoryStore(),
		IdleTTL:       30 * time.Minute,
		SweepInterval: time.Minute,
		Logger:        zerolog.Nop(),
	}
	for _, option := range options {
		option(&opts)
	}
	ret := &Manager{options: opts, done: make(chan struct{})}
	if opts.SweepInterval > 0 {
		go ret.sweepLoop()
	}
	return ret
}

// Create allocates and stores a new session.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	session := New()
	if err := m.options.Store.Put(ctx, session); err != nil {
		return nil, err
	}
	m.options.Logger.Debug().Str("session", session.ID()).Msg("session created")
	return session, nil
}

// Get resolves an id to a live session, enforcing expiry on access.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	session, err := m.options.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.expired(session, time.Now()) {
		m.destroy(ctx, session.ID())
		return nil, ErrNotFound
	}
	return session, nil
}

// Touch refreshes a session's activity timestamp and persists it.
func (m *Manager) Touch(ctx context.Context, session *Session) error {
	session.Touch()
	return m.options.Store.Put(ctx, session)
}

// Update persists the session's current state.
func (m *Manager) Update(ctx context.Context, session *Session) error {
	return m.options.Store.Put(ctx, session)
}

// Destroy removes a session explicitly.
func (m *Manager) Destroy(ctx context.Context, id string) {
	m.destroy(ctx, id)
}

// Count returns the number of live sessions.
func (m *Manager) Count(ctx context.Context) int {
	count := 0
	_ = m.options.Store.Range(ctx, func(*Session) bool {
		count++
		return true
	})
	return count
}

// Close stops the sweeper.
func (m *Manager) Close() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

func (m *Manager) destroy(ctx context.Context, id string) {
	if err := m.options.Store.Delete(ctx, id); err != nil {
		m.options.Logger.Warn().Err(err).Str("session", id).Msg("failed to delete session")
		return
	}
	if m.options.OnDestroy != nil {
		m.options.OnDestroy(id)
	}
	m.options.Logger.Debug().Str("session", id).Msg("session destroyed")
}

func (m *Manager) expired(session *Session, now time.Time) bool {
	if m.options.IdleTTL > 0 && now.Sub(session.LastActive()) > m.options.IdleTTL {
		return true
	}
	if m.options.MaxLifetime > 0 && now.Sub(session.CreatedAt()) > m.options.MaxLifetime {
		return true
	}
	return false
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.options.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.Sweep(context.Background())
		}
	}
}

// Sweep removes all expired sessions and returns how many were collected.
func (m *Manager) Sweep(ctx context.Context) int {
	now := time.Now()
	var expired []string
	_ = m.options.Store.Range(ctx, func(session *Session) bool {
		if m.expired(session, now) {
			expired = append(expired, session.ID())
		}
		return true
	})
	for _, id := range expired {
		m.destroy(ctx, id)
	}
	if len(expired) > 0 {
		m.options.Logger.Info().Int("count", len(expired)).Msg("swept expired sessions")
	}
	return len(expired)
}
