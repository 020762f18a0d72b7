package authserver

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// CodeEntry is a pending authorization code grant.
type CodeEntry struct {
	Code                string
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Subject             string
	Scope               string
	State               string
	CreatedAt           time.Time
	TTL                 time.Duration
}

func (e *CodeEntry) expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(e.TTL))
}

// RefreshEntry is a stored refresh token grant.
type RefreshEntry struct {
	Token     string
	ClientID  string
	Subject   string
	Scope     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (e *RefreshEntry) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Stats summarizes live store contents.
type Stats struct {
	Codes         int
	RefreshTokens int
}

// DefaultCodeTTL bounds how long an unconsumed authorization code survives.
const DefaultCodeTTL = 60 * time.Second

// GrantStore persists authorization codes and refresh tokens. Codes are
// single-use; refresh tokens are multi-read until revoked or expired.
type GrantStore interface {
	StoreCode(entry CodeEntry) string
	ConsumeCode(code string) *CodeEntry
	StoreRefresh(entry RefreshEntry, ttl time.Duration) string
	GetRefresh(token string) *RefreshEntry
	RevokeRefresh(token string) bool
	Stats() Stats
	Clear()
	Close()
}

// NewToken returns a 256-bit random token encoded as unpadded base64url.
func NewToken() string {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("authserver: failed to read random bytes: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

// Store holds authorization codes and refresh tokens in memory. Codes are
// strictly single-use; refresh tokens are multi-read until revoked or expired.
type Store struct {
	mux      sync.Mutex
	codes    map[string]*CodeEntry
	refresh  map[string]*RefreshEntry
	done     chan struct{}
	stopOnce sync.Once
}

// NewStore creates a Store. A positive sweep interval starts a pruning
// goroutine; zero disables it, leaving expiry enforcement to access time.
func NewStore(sweepInterval time.Duration) *Store {
	ret := &Store{
		codes:   map[string]*CodeEntry{},
		refresh: map[string]*RefreshEntry{},
		done:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go ret.sweepLoop(sweepInterval)
	}
	return ret
}

// StoreCode records the entry under a freshly generated code and returns it.
func (s *Store) StoreCode(entry CodeEntry) string {
	if entry.TTL <= 0 {
		entry.TTL = DefaultCodeTTL
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.Code = NewToken()
	s.mux.Lock()
	defer s.mux.Unlock()
	s.codes[entry.Code] = &entry
	return entry.Code
}

// ConsumeCode atomically removes and returns the entry for a code. A second
// call with the same code returns nil even inside the TTL window.
func (s *Store) ConsumeCode(code string) *CodeEntry {
	s.mux.Lock()
	defer s.mux.Unlock()
	entry, ok := s.codes[code]
	if !ok {
		return nil
	}
	delete(s.codes, code)
	if entry.expired(time.Now()) {
		return nil
	}
	return entry
}

// StoreRefresh records the entry under a freshly generated token.
func (s *Store) StoreRefresh(entry RefreshEntry, ttl time.Duration) string {
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.ExpiresAt.IsZero() {
		entry.ExpiresAt = now.Add(ttl)
	}
	entry.Token = NewToken()
	s.mux.Lock()
	defer s.mux.Unlock()
	s.refresh[entry.Token] = &entry
	return entry.Token
}

// GetRefresh returns a live refresh entry, or nil when unknown or expired.
func (s *Store) GetRefresh(token string) *RefreshEntry {
	s.mux.Lock()
	defer s.mux.Unlock()
	entry, ok := s.refresh[token]
	if !ok {
		return nil
	}
	if entry.expired(time.Now()) {
		delete(s.refresh, token)
		return nil
	}
	return entry
}

// RevokeRefresh removes a refresh token and reports whether it existed.
func (s *Store) RevokeRefresh(token string) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	_, ok := s.refresh[token]
	delete(s.refresh, token)
	return ok
}

// Stats returns live entry counts.
func (s *Store) Stats() Stats {
	s.mux.Lock()
	defer s.mux.Unlock()
	return Stats{Codes: len(s.codes), RefreshTokens: len(s.refresh)}
}

// Clear drops all entries.
func (s *Store) Clear() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.codes = map[string]*CodeEntry{}
	s.refresh = map[string]*RefreshEntry{}
}

// Close stops the sweeper.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// Sweep prunes expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	now := time.Now()
	s.mux.Lock()
	defer s.mux.Unlock()
	removed := 0
	for code, entry := range s.codes {
		if entry.expired(now) {
			delete(s.codes, code)
			removed++
		}
	}
	for token, entry := range s.refresh {
		if entry.expired(now) {
			delete(s.refresh, token)
			removed++
		}
	}
	return removed
}

func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
