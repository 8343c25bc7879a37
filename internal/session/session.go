// Package session holds the desk's single authoritative session. Every reader
// (route guard, websocket status push, payment completion) observes it through
// Get or Subscribe; only this package writes the persisted tokens.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/dukerupert/clinicdesk/internal/api"
	"github.com/dukerupert/clinicdesk/internal/model"
)

// ErrNotLoggedIn is returned by operations that need a session when there is none.
var ErrNotLoggedIn = errors.New("not logged in")

// IdentityAPI is the part of the clinic API the store needs.
type IdentityAPI interface {
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	Me(ctx context.Context, token string) (model.Identity, error)
}

// TokenPersister is the client-local token storage.
type TokenPersister interface {
	Tokens() (access, refresh string, err error)
	SaveTokens(access, refresh string) error
	ClearTokens() error
}

// Store is the session store.
type Store struct {
	mu      sync.RWMutex
	api     IdentityAPI
	tokens  TokenPersister
	logger  zerolog.Logger
	now     func() time.Time
	session *model.Session

	// writeMu orders persisted token writes with the session swap that
	// accompanies them.
	writeMu sync.Mutex

	once    sync.Once
	ready   chan struct{}
	initErr error

	subs    map[int]func(*model.Session)
	nextSub int
}

// New creates a store. Call Initialize once before serving readers.
func New(identity IdentityAPI, tokens TokenPersister, logger zerolog.Logger) *Store {
	return &Store{
		api:    identity,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
		ready:  make(chan struct{}),
		subs:   make(map[int]func(*model.Session)),
	}
}

// Initialize restores the session from the persisted access token. It runs
// once; later and concurrent calls wait for the first and return its result.
// A failed identity lookup is not an error: the tokens are cleared and the
// store ends up logged out. The returned error reports local storage failures.
func (s *Store) Initialize(ctx context.Context) error {
	s.once.Do(func() {
		s.initErr = s.initialize(ctx)
		close(s.ready)
	})
	return s.initErr
}

func (s *Store) initialize(ctx context.Context) error {
	access, refresh, err := s.tokens.Tokens()
	if err != nil {
		s.logger.Warn().Err(err).Msg("read persisted tokens")
		return s.discard()
	}
	if access == "" {
		return nil
	}

	if tokenExpired(access, s.now()) {
		s.logger.Info().Msg("persisted access token expired")
		return s.discard()
	}

	id, err := s.api.Me(ctx, access)
	if err != nil {
		s.logger.Info().Err(err).Msg("identity lookup failed, session cleared")
		return s.discard()
	}

	sess := model.Session{AccessToken: access, RefreshToken: refresh}.WithIdentity(id)
	s.writeMu.Lock()
	if s.Get() != nil {
		// a login completed while the lookup was in flight
		s.writeMu.Unlock()
		return nil
	}
	subs, _ := s.swap(&sess)
	s.writeMu.Unlock()

	s.notify(subs, &sess)
	s.logger.Info().Str("role", string(sess.Role)).Msg("session restored")
	return nil
}

// discard drops persisted tokens that could not be restored, unless a login
// has installed new ones meanwhile.
func (s *Store) discard() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.Get() != nil {
		return nil
	}
	if err := s.tokens.ClearTokens(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// tokenExpired reports whether token is a JWT whose exp claim has passed.
// Opaque tokens and tokens without exp are left for the server to judge.
func tokenExpired(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}

// Loading reports whether Initialize has not completed yet.
func (s *Store) Loading() bool {
	select {
	case <-s.ready:
		return false
	default:
		return true
	}
}

// Wait blocks until Initialize has completed or ctx is done.
func (s *Store) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns a copy of the current session, or nil when logged out.
func (s *Store) Get() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// AccessToken implements api.TokenSource.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.AccessToken
}

// Set replaces the session. A non-nil session must carry an access token,
// which is persisted together with the refresh token. Set(nil) is Clear.
func (s *Store) Set(sess *model.Session) error {
	if sess == nil {
		return s.Clear()
	}
	if sess.AccessToken == "" {
		return fmt.Errorf("set session: empty access token")
	}
	cp := *sess

	s.writeMu.Lock()
	if err := s.tokens.SaveTokens(cp.AccessToken, cp.RefreshToken); err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("set session: %w", err)
	}
	subs, _ := s.swap(&cp)
	s.writeMu.Unlock()

	s.notify(subs, &cp)
	return nil
}

// Clear removes both persisted tokens and drops the session. Clearing an
// already absent session is a no-op.
func (s *Store) Clear() error {
	s.writeMu.Lock()
	err := s.tokens.ClearTokens()
	subs, changed := s.swap(nil)
	s.writeMu.Unlock()

	if changed {
		s.notify(subs, nil)
	}
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// ClearIf clears the session only while token is its access token, so a
// rejection of an earlier token cannot end a newer session. It reports
// whether the session was cleared.
func (s *Store) ClearIf(token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	s.writeMu.Lock()
	if s.AccessToken() != token {
		s.writeMu.Unlock()
		return false, nil
	}
	err := s.tokens.ClearTokens()
	subs, _ := s.swap(nil)
	s.writeMu.Unlock()

	s.notify(subs, nil)
	if err != nil {
		return true, fmt.Errorf("clear session: %w", err)
	}
	return true, nil
}

// Login authenticates and installs the resulting session. The identity
// lookup that follows fills the fields the login response lacks; its failure
// keeps the login session.
func (s *Store) Login(ctx context.Context, email, password string) (*model.Session, error) {
	res, err := s.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	sess := res.Session()
	if err := s.Set(&sess); err != nil {
		return nil, err
	}
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("identity lookup after login")
	}
	return s.Get(), nil
}

// Logout clears the session.
func (s *Store) Logout() error {
	return s.Clear()
}

// Refresh re-fetches the identity of the current session and replaces its
// display fields. A 401 clears the session.
func (s *Store) Refresh(ctx context.Context) error {
	cur := s.Get()
	if cur == nil {
		return ErrNotLoggedIn
	}

	id, err := s.api.Me(ctx, cur.AccessToken)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			if _, cerr := s.ClearIf(cur.AccessToken); cerr != nil {
				s.logger.Error().Err(cerr).Msg("clear session")
			}
		}
		return fmt.Errorf("refresh session: %w", err)
	}

	s.mu.Lock()
	if s.session == nil || s.session.AccessToken != cur.AccessToken {
		// logged out or replaced while the lookup was in flight
		s.mu.Unlock()
		return nil
	}
	next := s.session.WithIdentity(id)
	s.session = &next
	subs := s.subscribersLocked()
	s.mu.Unlock()

	s.notify(subs, &next)
	return nil
}

// ApplyProfile replaces the display fields after a profile update, keeping
// the tokens.
func (s *Store) ApplyProfile(id model.Identity) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ErrNotLoggedIn
	}
	next := s.session.WithIdentity(id)
	s.session = &next
	subs := s.subscribersLocked()
	s.mu.Unlock()

	s.notify(subs, &next)
	return nil
}

// Subscribe registers fn to be called after every session change with the new
// session (nil when logged out). The returned func unsubscribes.
func (s *Store) Subscribe(fn func(*model.Session)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// swap installs sess and returns the subscribers to notify. It reports false
// when both the old and the new session are absent.
func (s *Store) swap(sess *model.Session) ([]func(*model.Session), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil && sess == nil {
		return nil, false
	}
	s.session = sess
	return s.subscribersLocked(), true
}

func (s *Store) subscribersLocked() []func(*model.Session) {
	subs := make([]func(*model.Session), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

func (s *Store) notify(subs []func(*model.Session), sess *model.Session) {
	for _, fn := range subs {
		if sess == nil {
			fn(nil)
			continue
		}
		cp := *sess
		fn(&cp)
	}
}
