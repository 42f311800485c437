package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fynity/fynity/internal/shared"
	"github.com/fynity/fynity/internal/users/userstest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memRegistry mirrors PGRegistry semantics in memory.
type memRegistry struct {
	mu   sync.Mutex
	rows map[uuid.UUID]RefreshRecord
}

func newMemRegistry() *memRegistry {
	return &memRegistry{rows: make(map[uuid.UUID]RefreshRecord)}
}

func (m *memRegistry) Record(_ context.Context, rec RefreshRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[rec.JTI] = rec
	return nil
}

func (m *memRegistry) Lookup(_ context.Context, jti uuid.UUID) (RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[jti]
	if !ok {
		return RefreshRecord{}, shared.ErrNotFound
	}
	return rec, nil
}

func (m *memRegistry) Revoke(_ context.Context, rec RefreshRecord, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rows[rec.JTI]; ok {
		if existing.RevokedAt == nil {
			existing.RevokedAt = &at
			m.rows[rec.JTI] = existing
		}
		return nil
	}
	rec.RevokedAt = &at
	m.rows[rec.JTI] = rec
	return nil
}

func (m *memRegistry) Rotate(_ context.Context, oldJTI uuid.UUID, next RefreshRecord, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.rows[oldJTI]
	if !ok || old.RevokedAt != nil {
		return ErrRevoked
	}
	old.RevokedAt = &at
	m.rows[oldJTI] = old
	m.rows[next.JTI] = next
	return nil
}

func (m *memRegistry) RevokeFamily(_ context.Context, family uuid.UUID, at time.Time) ([]RefreshRecord, error) {
	return m.revokeWhere(func(r RefreshRecord) bool { return r.FamilyID == family }, at), nil
}

func (m *memRegistry) RevokeAccount(_ context.Context, accountID int64, at time.Time) ([]RefreshRecord, error) {
	return m.revokeWhere(func(r RefreshRecord) bool { return r.AccountID == accountID }, at), nil
}

func (m *memRegistry) revokeWhere(match func(RefreshRecord) bool, at time.Time) []RefreshRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RefreshRecord
	for jti, rec := range m.rows {
		if rec.RevokedAt == nil && match(rec) {
			rec.RevokedAt = &at
			m.rows[jti] = rec
			out = append(out, rec)
		}
	}
	return out
}

func (m *memRegistry) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for jti, rec := range m.rows {
		if rec.ExpiresAt.Before(before) {
			delete(m.rows, jti)
			n++
		}
	}
	return n, nil
}

func (m *memRegistry) live(accountID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.rows {
		if rec.AccountID == accountID && rec.RevokedAt == nil {
			n++
		}
	}
	return n
}

var testTokenConfig = TokenConfig{
	Secret:     []byte("test-secret-test-secret-test-secret"),
	Issuer:     "fynity-test",
	AccessTTL:  15 * time.Minute,
	RefreshTTL: 7 * 24 * time.Hour,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokens(t *testing.T, reg Registry, bl *Blacklist, clock *fakeClock) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testTokenConfig, reg, bl, discardLogger())
	require.NoError(t, err)
	return svc.WithClock(clock.Now)
}

func newTestHasher(t *testing.T) *PasswordHasher {
	t.Helper()
	h, err := NewPasswordHasher(SchemeBcrypt, bcrypt.MinCost, Argon2Params{})
	require.NoError(t, err)
	return h
}

type recorderSpy struct {
	mu       sync.Mutex
	events   []string
	rejected []string
}

func (r *recorderSpy) AuthEvent(event, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event+":"+outcome)
}

func (r *recorderSpy) TokenRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, reason)
}

type testEnv struct {
	svc     *Service
	tokens  *TokenService
	reg     *memRegistry
	repo    *userstest.Repository
	hasher  *PasswordHasher
	clock   *fakeClock
	metrics *recorderSpy
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		reg:     newMemRegistry(),
		repo:    userstest.New(),
		hasher:  newTestHasher(t),
		clock:   newFakeClock(),
		metrics: &recorderSpy{},
	}
	env.tokens = newTestTokens(t, env.reg, nil, env.clock)
	svc, err := NewService(env.repo, env.hasher, env.tokens, nil, env.metrics, discardLogger())
	require.NoError(t, err)
	env.svc = svc
	return env
}
