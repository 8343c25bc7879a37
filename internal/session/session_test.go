package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/dukerupert/clinicdesk/internal/api"
	"github.com/dukerupert/clinicdesk/internal/database"
	"github.com/dukerupert/clinicdesk/internal/model"
	"github.com/dukerupert/clinicdesk/internal/store"
)

type fakeIdentityAPI struct {
	mu       sync.Mutex
	login    api.LoginResult
	loginErr error
	identity model.Identity
	meErr    error
	meCalls  int
	meTokens []string
}

func (f *fakeIdentityAPI) Login(ctx context.Context, email, password string) (api.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.login, f.loginErr
}

func (f *fakeIdentityAPI) Me(ctx context.Context, token string) (model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meCalls++
	f.meTokens = append(f.meTokens, token)
	return f.identity, f.meErr
}

func (f *fakeIdentityAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meCalls
}

func setupTokenStore(t *testing.T) *store.TokenStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ts, err := store.NewTokenStore(store.NewSettingsStore(db), "")
	if err != nil {
		t.Fatalf("new token store: %v", err)
	}
	return ts
}

func counterIdentity() model.Identity {
	return model.Identity{ID: "u1", Email: "counter@clinic.test", Role: model.RoleCounter, Name: "Nimal"}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestInitializeWithoutToken(t *testing.T) {
	fake := &fakeIdentityAPI{}
	s := New(fake, setupTokenStore(t), zerolog.Nop())

	if !s.Loading() {
		t.Error("expected Loading before Initialize")
	}
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if s.Loading() {
		t.Error("expected Loading false after Initialize")
	}
	if s.Get() != nil {
		t.Error("expected no session")
	}
	if fake.calls() != 0 {
		t.Errorf("identity lookup called %d times without a token", fake.calls())
	}
}

func TestInitializeRestoresSession(t *testing.T) {
	ts := setupTokenStore(t)
	ts.SaveTokens("opaque-access", "opaque-refresh")
	fake := &fakeIdentityAPI{identity: counterIdentity()}
	s := New(fake, ts, zerolog.Nop())

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	sess := s.Get()
	if sess == nil {
		t.Fatal("expected session")
	}
	if sess.Role != model.RoleCounter || sess.Email != "counter@clinic.test" {
		t.Errorf("session = %+v", sess)
	}
	if sess.AccessToken != "opaque-access" || sess.RefreshToken != "opaque-refresh" {
		t.Errorf("tokens = (%q, %q)", sess.AccessToken, sess.RefreshToken)
	}
	if fake.meTokens[0] != "opaque-access" {
		t.Errorf("lookup token = %q", fake.meTokens[0])
	}
}

func TestInitializeFailureClearsTokens(t *testing.T) {
	ts := setupTokenStore(t)
	ts.SaveTokens("revoked", "refresh")
	fake := &fakeIdentityAPI{meErr: &api.Error{Status: 401, Kind: api.ErrUnauthorized}}
	s := New(fake, ts, zerolog.Nop())

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if s.Get() != nil {
		t.Error("expected no session after failed lookup")
	}
	access, refresh, _ := ts.Tokens()
	if access != "" || refresh != "" {
		t.Errorf("tokens left in storage: (%q, %q)", access, refresh)
	}
}

func TestInitializeNetworkFailureTreatedAsLoggedOut(t *testing.T) {
	ts := setupTokenStore(t)
	ts.SaveTokens("valid-but-offline", "")
	fake := &fakeIdentityAPI{meErr: &api.Error{Kind: api.ErrTransient}}
	s := New(fake, ts, zerolog.Nop())

	s.Initialize(context.Background())
	if s.Get() != nil {
		t.Error("expected no session after transient failure")
	}
	if access, _, _ := ts.Tokens(); access != "" {
		t.Error("expected token cleared")
	}
}

func TestInitializeExpiredJWTSkipsLookup(t *testing.T) {
	ts := setupTokenStore(t)
	ts.SaveTokens(signedToken(t, time.Now().Add(-time.Hour)), "refresh")
	fake := &fakeIdentityAPI{identity: counterIdentity()}
	s := New(fake, ts, zerolog.Nop())

	s.Initialize(context.Background())
	if s.Get() != nil {
		t.Error("expected no session for expired token")
	}
	if fake.calls() != 0 {
		t.Errorf("identity lookup called %d times for expired token", fake.calls())
	}
	if access, refresh, _ := ts.Tokens(); access != "" || refresh != "" {
		t.Error("expected tokens cleared")
	}
}

func TestInitializeLiveJWTIsLookedUp(t *testing.T) {
	ts := setupTokenStore(t)
	ts.SaveTokens(signedToken(t, time.Now().Add(time.Hour)), "")
	fake := &fakeIdentityAPI{identity: counterIdentity()}
	s := New(fake, ts, zerolog.Nop())

	s.Initialize(context.Background())
	if s.Get() == nil {
		t.Fatal("expected session for live token")
	}
	if fake.calls() != 1 {
		t.Errorf("identity lookup called %d times, want 1", fake.calls())
	}
}

func TestInitializeRunsOnce(t *testing.T) {
	ts := setupTokenStore(t)
	ts.SaveTokens("tok", "")
	fake := &fakeIdentityAPI{identity: counterIdentity()}
	s := New(fake, ts, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Initialize(context.Background())
		}()
	}
	wg.Wait()
	s.Initialize(context.Background())

	if fake.calls() != 1 {
		t.Errorf("identity lookup called %d times, want 1", fake.calls())
	}
}

func TestWaitBlocksUntilInitialized(t *testing.T) {
	s := New(&fakeIdentityAPI{}, setupTokenStore(t), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait before init = %v, want deadline exceeded", err)
	}

	s.Initialize(context.Background())
	if err := s.Wait(context.Background()); err != nil {
		t.Errorf("Wait after init = %v", err)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	ts := setupTokenStore(t)
	s := New(&fakeIdentityAPI{}, ts, zerolog.Nop())

	want := model.Session{
		ID:            "u9",
		Email:         "doc@clinic.test",
		Name:          "Dr. Perera",
		Role:          model.RoleDoctor,
		PaymentStatus: model.PaymentPaid,
		AccessToken:   "acc",
		RefreshToken:  "ref",
	}
	if err := s.Set(&want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got := s.Get()
	if got == nil || *got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}

	access, refresh, _ := ts.Tokens()
	if access != "acc" || refresh != "ref" {
		t.Errorf("persisted tokens = (%q, %q)", access, refresh)
	}

	// mutating the returned copy must not leak into the store
	got.Name = "changed"
	if s.Get().Name != "Dr. Perera" {
		t.Error("Get returned shared state")
	}
}

func TestSetRejectsEmptyToken(t *testing.T) {
	s := New(&fakeIdentityAPI{}, setupTokenStore(t), zerolog.Nop())
	if err := s.Set(&model.Session{Role: model.RoleDoctor}); err == nil {
		t.Error("expected error for session without access token")
	}
	if s.Get() != nil {
		t.Error("session installed despite error")
	}
}

func TestClearTwice(t *testing.T) {
	ts := setupTokenStore(t)
	s := New(&fakeIdentityAPI{}, ts, zerolog.Nop())
	s.Set(&model.Session{Role: model.RoleCounter, AccessToken: "acc", RefreshToken: "ref"})

	for i := 0; i < 2; i++ {
		if err := s.Clear(); err != nil {
			t.Fatalf("clear %d: %v", i+1, err)
		}
		if s.Get() != nil {
			t.Errorf("clear %d: session still present", i+1)
		}
	}
	if access, refresh, _ := ts.Tokens(); access != "" || refresh != "" {
		t.Error("tokens left in storage")
	}
}

func TestSetNilClears(t *testing.T) {
	ts := setupTokenStore(t)
	s := New(&fakeIdentityAPI{}, ts, zerolog.Nop())
	s.Set(&model.Session{Role: model.RoleCounter, AccessToken: "acc"})

	if err := s.Set(nil); err != nil {
		t.Fatalf("set nil: %v", err)
	}
	if s.Get() != nil || s.AccessToken() != "" {
		t.Error("expected logged out")
	}
	if access, _, _ := ts.Tokens(); access != "" {
		t.Error("token left in storage")
	}
}

func TestLogin(t *testing.T) {
	ts := setupTokenStore(t)
	fake := &fakeIdentityAPI{
		login: api.LoginResult{AccessToken: "acc", RefreshToken: "ref", ID: "u1", Email: "counter@clinic.test", Role: model.RoleCounter},
		identity: model.Identity{
			ID: "u1", Email: "counter@clinic.test", Role: model.RoleCounter,
			Name: "Nimal", ClinicName: "Harbour Clinic", PaymentStatus: model.PaymentPaid,
		},
	}
	s := New(fake, ts, zerolog.Nop())

	sess, err := s.Login(context.Background(), "counter@clinic.test", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.Role != model.RoleCounter || sess.ClinicName != "Harbour Clinic" || !sess.Paid() {
		t.Errorf("session = %+v", sess)
	}
	if sess.AccessToken != "acc" {
		t.Errorf("access token = %q", sess.AccessToken)
	}
	if access, _, _ := ts.Tokens(); access != "acc" {
		t.Errorf("persisted access = %q", access)
	}
}

func TestLoginFailureLeavesLoggedOut(t *testing.T) {
	fake := &fakeIdentityAPI{loginErr: &api.Error{Status: 401, Kind: api.ErrUnauthorized, Message: "Invalid credentials"}}
	s := New(fake, setupTokenStore(t), zerolog.Nop())

	_, err := s.Login(context.Background(), "x@y.z", "bad")
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if s.Get() != nil {
		t.Error("expected no session")
	}
}

func TestLoginKeepsSessionWhenLookupFails(t *testing.T) {
	fake := &fakeIdentityAPI{
		login: api.LoginResult{AccessToken: "acc", ID: "u1", Role: model.RoleDoctor},
		meErr: &api.Error{Kind: api.ErrTransient},
	}
	s := New(fake, setupTokenStore(t), zerolog.Nop())

	sess, err := s.Login(context.Background(), "doc@clinic.test", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess == nil || sess.Role != model.RoleDoctor {
		t.Errorf("session = %+v", sess)
	}
}

func TestRefreshUnauthorizedClears(t *testing.T) {
	ts := setupTokenStore(t)
	fake := &fakeIdentityAPI{meErr: &api.Error{Status: 401, Kind: api.ErrUnauthorized}}
	s := New(fake, ts, zerolog.Nop())
	s.Set(&model.Session{Role: model.RoleDoctor, AccessToken: "acc"})

	if err := s.Refresh(context.Background()); !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("refresh err = %v", err)
	}
	if s.Get() != nil {
		t.Error("expected session cleared on 401")
	}
}

func TestClearIfMatchesToken(t *testing.T) {
	ts := setupTokenStore(t)
	s := New(&fakeIdentityAPI{}, ts, zerolog.Nop())
	s.Set(&model.Session{Role: model.RoleCounter, AccessToken: "new", RefreshToken: "new-ref"})

	tests := []struct {
		token       string
		wantCleared bool
	}{
		{"", false},
		{"old", false},
		{"new", true},
		{"new", false},
	}
	for _, tt := range tests {
		cleared, err := s.ClearIf(tt.token)
		if err != nil {
			t.Fatalf("ClearIf(%q): %v", tt.token, err)
		}
		if cleared != tt.wantCleared {
			t.Errorf("ClearIf(%q) = %v, want %v", tt.token, cleared, tt.wantCleared)
		}
		if !cleared && tt.token == "old" {
			if access, _, _ := ts.Tokens(); access != "new" {
				t.Errorf("persisted access = %q after a stale clear, want new", access)
			}
		}
	}
	if s.Get() != nil {
		t.Error("session survived ClearIf with its own token")
	}
	if access, refresh, _ := ts.Tokens(); access != "" || refresh != "" {
		t.Errorf("persisted tokens = %q, %q, want empty", access, refresh)
	}
}

func TestRefreshUnauthorizedKeepsReplacedSession(t *testing.T) {
	ts := setupTokenStore(t)
	fake := &fakeIdentityAPI{meErr: &api.Error{Status: 401, Kind: api.ErrUnauthorized}}
	s := New(fake, ts, zerolog.Nop())
	s.Set(&model.Session{Role: model.RoleDoctor, AccessToken: "first"})

	// a login lands while the identity lookup for "first" is in flight
	s.api = &replacingIdentityAPI{fakeIdentityAPI: fake, during: func() {
		s.Set(&model.Session{Role: model.RoleDoctor, AccessToken: "second"})
	}}

	if err := s.Refresh(context.Background()); !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("refresh err = %v", err)
	}
	if got := s.AccessToken(); got != "second" {
		t.Errorf("access token = %q, want second", got)
	}
}

type replacingIdentityAPI struct {
	*fakeIdentityAPI
	during func()
}

func (r *replacingIdentityAPI) Me(ctx context.Context, token string) (model.Identity, error) {
	r.during()
	return r.fakeIdentityAPI.Me(ctx, token)
}

func TestRefreshWithoutSession(t *testing.T) {
	s := New(&fakeIdentityAPI{}, setupTokenStore(t), zerolog.Nop())
	if err := s.Refresh(context.Background()); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("err = %v, want ErrNotLoggedIn", err)
	}
}

func TestApplyProfilePreservesTokens(t *testing.T) {
	s := New(&fakeIdentityAPI{}, setupTokenStore(t), zerolog.Nop())
	s.Set(&model.Session{ID: "u1", Role: model.RoleDoctor, Name: "Old", AccessToken: "acc", RefreshToken: "ref"})

	err := s.ApplyProfile(model.Identity{ID: "u1", Role: model.RoleDoctor, Name: "Dr. New", ClinicAddress: "12 Galle Rd"})
	if err != nil {
		t.Fatalf("apply profile: %v", err)
	}
	got := s.Get()
	if got.Name != "Dr. New" || got.ClinicAddress != "12 Galle Rd" {
		t.Errorf("display fields = %+v", got)
	}
	if got.AccessToken != "acc" || got.RefreshToken != "ref" {
		t.Errorf("tokens changed: (%q, %q)", got.AccessToken, got.RefreshToken)
	}
}

func TestSubscribersObserveChanges(t *testing.T) {
	s := New(&fakeIdentityAPI{}, setupTokenStore(t), zerolog.Nop())

	var seen []*model.Session
	unsubscribe := s.Subscribe(func(sess *model.Session) {
		seen = append(seen, sess)
	})

	s.Set(&model.Session{Role: model.RoleCounter, AccessToken: "acc"})
	s.Clear()
	s.Clear() // no change, no notification

	if len(seen) != 2 {
		t.Fatalf("notifications = %d, want 2", len(seen))
	}
	if seen[0] == nil || seen[0].Role != model.RoleCounter {
		t.Errorf("first notification = %+v", seen[0])
	}
	if seen[1] != nil {
		t.Errorf("second notification = %+v, want nil", seen[1])
	}

	unsubscribe()
	s.Set(&model.Session{Role: model.RoleCounter, AccessToken: "acc"})
	if len(seen) != 2 {
		t.Error("notified after unsubscribe")
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"opaque", "not-a-jwt", false},
		{"expired", signedToken(t, now.Add(-time.Minute)), true},
		{"live", signedToken(t, now.Add(time.Minute)), false},
	}
	for _, tt := range tests {
		if got := tokenExpired(tt.token, now); got != tt.want {
			t.Errorf("%s: tokenExpired = %v, want %v", tt.name, got, tt.want)
		}
	}
}
