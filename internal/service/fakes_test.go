package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"

	"github.com/and161185/goph-auth/internal/crypto"
	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/repository"
	"github.com/and161185/goph-auth/internal/token"
)

type fakeAccounts struct {
	mu         sync.Mutex
	byIdentity map[string]*model.Account

	findErr   error
	insertErr error
	// hideOnFind makes FindByIdentity miss, simulating a concurrent registration race.
	hideOnFind bool

	insertCalls int
	updateCalls int
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func newFakeAccounts() *fakeAccounts { return &fakeAccounts{byIdentity: map[string]*model.Account{}} }

func (f *fakeAccounts) FindByIdentity(_ context.Context, identity string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	a, ok := f.byIdentity[identity]
	if !ok || f.hideOnFind {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byIdentity {
		if a.ID == id {
			c := *a
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeAccounts) Insert(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, exists := f.byIdentity[a.Identity]; exists {
		return errs.ErrAlreadyExists
	}
	for _, other := range f.byIdentity {
		if a.Profile.Username != "" && other.Profile.Username == a.Profile.Username {
			return errs.ErrUsernameTaken
		}
	}
	c := *a
	c.CreatedAt = time.Now()
	f.byIdentity[a.Identity] = &c
	return nil
}

func (f *fakeAccounts) UpdateCredential(_ context.Context, id uuid.UUID, c crypto.HashedCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	for _, a := range f.byIdentity {
		if a.ID == id {
			a.Credential = c
			return nil
		}
	}
	return errs.ErrNotFound
}

// put stores a row as if written by an earlier system.
func (f *fakeAccounts) put(identity, stored string) *model.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := &model.Account{ID: uuid.Must(uuid.NewV4()), Identity: identity, Credential: crypto.Parse(stored)}
	f.byIdentity[identity] = a
	return a
}

func (f *fakeAccounts) stored(identity string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byIdentity[identity].Credential.Stored()
}

type countingHasher struct {
	inner *crypto.Bounded

	mu          sync.Mutex
	hashCalls   int
	verifyCalls int
}

func (c *countingHasher) Hash(ctx context.Context, p string) (crypto.HashedCredential, error) {
	c.mu.Lock()
	c.hashCalls++
	c.mu.Unlock()
	return c.inner.Hash(ctx, p)
}

func (c *countingHasher) Verify(ctx context.Context, p string, stored crypto.HashedCredential) (bool, error) {
	c.mu.Lock()
	c.verifyCalls++
	c.mu.Unlock()
	return c.inner.Verify(ctx, p, stored)
}

func (c *countingHasher) hashes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hashCalls
}

type fakeRefresh struct {
	mu   sync.Mutex
	live map[string]uuid.UUID

	saveErr error
}

var _ repository.RefreshTokenRepository = (*fakeRefresh)(nil)

func newFakeRefresh() *fakeRefresh { return &fakeRefresh{live: map[string]uuid.UUID{}} }

func (f *fakeRefresh) Save(_ context.Context, jti string, id uuid.UUID, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.live[jti] = id
	return nil
}

func (f *fakeRefresh) Consume(_ context.Context, jti string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.live[jti]
	if !ok {
		return uuid.Nil, errs.ErrNotFound
	}
	delete(f.live, jti)
	return id, nil
}

func (f *fakeRefresh) Revoke(ctx context.Context, jti string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, jti)
	return nil
}

func (f *fakeRefresh) RevokeAll(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range f.live {
		if v == id {
			delete(f.live, k)
		}
	}
	return nil
}

func (f *fakeRefresh) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

type fixture struct {
	repo     *fakeAccounts
	hasher   *countingHasher
	refresh  *fakeRefresh
	accounts *Accounts
	auth     *AuthServiceImpl
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h, err := crypto.NewHasher(bcrypt.MinCost, crypto.DjangoVerifier{})
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)

	f := &fixture{
		repo:    newFakeAccounts(),
		hasher:  &countingHasher{inner: crypto.NewBounded(h, 4)},
		refresh: newFakeRefresh(),
		logs:    logs,
	}
	f.accounts, err = NewAccounts(context.Background(), f.repo, f.hasher, log)
	require.NoError(t, err)

	issuer, err := token.NewIssuer([]byte("test-secret"), time.Minute, time.Hour)
	require.NoError(t, err)
	f.auth = NewAuthService(f.accounts, issuer, f.refresh, log)

	// Ignore the dummy credential computed by NewAccounts.
	f.hasher.hashCalls = 0
	return f
}

// requireNoSecrets fails if any logged field or message carries a secret.
func (f *fixture) requireNoSecrets(t *testing.T, secrets ...string) {
	t.Helper()
	for _, e := range f.logs.All() {
		line := fmt.Sprintf("%s %v", e.Message, e.ContextMap())
		for _, s := range secrets {
			require.NotContains(t, line, s)
		}
	}
}

func pbkdf2Stored(pw, salt string, iter int) string {
	dk := pbkdf2.Key([]byte(pw), []byte(salt), iter, sha256.Size, sha256.New)
	return fmt.Sprintf("pbkdf2_sha256$%d$%s$%s", iter, salt, base64.StdEncoding.EncodeToString(dk))
}
