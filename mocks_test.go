package identity_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"

	identity "github.com/goliatone/go-identity"
)

// fakeTransactor runs f directly and records how each call ended.
type fakeTransactor struct {
	mu        sync.Mutex
	committed int
	rolled    int
}

func (f *fakeTransactor) RunInTx(ctx context.Context, _ *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	err := fn(ctx, bun.Tx{})
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.rolled++
		return err
	}
	f.committed++
	return nil
}

type accountUpdate struct {
	AccountID string
	Columns   []string
	Snapshot  identity.Account
}

// memAccounts is an in-memory AccountStore.
type memAccounts struct {
	mu      sync.Mutex
	rows    map[string]*identity.Account
	updates []accountUpdate
	failOn  string
}

func newMemAccounts(accounts ...*identity.Account) *memAccounts {
	m := &memAccounts{rows: map[string]*identity.Account{}}
	for _, a := range accounts {
		m.rows[a.ID] = a
	}
	return m
}

func (m *memAccounts) find(match func(*identity.Account) bool) (*identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.DeletedAt == nil && match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, identity.NewError(identity.ErrNotFound, identity.CodeNotFound, identity.MsgAccountNotFound)
}

func (m *memAccounts) FindByNormalizedEmail(_ context.Context, _ bun.IDB, email string) (*identity.Account, error) {
	if m.failOn == "find" {
		return nil, sql.ErrConnDone
	}
	return m.find(func(a *identity.Account) bool { return a.NormalizedEmail == email })
}

func (m *memAccounts) FindByNormalizedUsername(_ context.Context, _ bun.IDB, username string) (*identity.Account, error) {
	if m.failOn == "find" {
		return nil, sql.ErrConnDone
	}
	return m.find(func(a *identity.Account) bool { return a.NormalizedUsername == username })
}

func (m *memAccounts) FindByID(_ context.Context, _ bun.IDB, id string) (*identity.Account, error) {
	return m.find(func(a *identity.Account) bool { return a.ID == id })
}

func (m *memAccounts) Create(_ context.Context, _ bun.IDB, account *identity.Account) (*identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *account
	m.rows[account.ID] = &cp
	return account, nil
}

func (m *memAccounts) Update(_ context.Context, _ bun.IDB, account *identity.Account, columns ...string) error {
	if m.failOn == "update" {
		return sql.ErrConnDone
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *account
	m.rows[account.ID] = &cp
	m.updates = append(m.updates, accountUpdate{AccountID: account.ID, Columns: columns, Snapshot: cp})
	return nil
}

func (m *memAccounts) get(id string) identity.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

// MockRoleClaimStore implements identity.RoleClaimStore.
type MockRoleClaimStore struct {
	mock.Mock
}

func (m *MockRoleClaimStore) RolesForAccount(ctx context.Context, tx bun.IDB, accountID string) ([]*identity.Role, error) {
	args := m.Called(ctx, tx, accountID)
	roles, _ := args.Get(0).([]*identity.Role)
	return roles, args.Error(1)
}

func (m *MockRoleClaimStore) ClaimsForRole(ctx context.Context, tx bun.IDB, roleID string) ([]identity.Claim, error) {
	args := m.Called(ctx, tx, roleID)
	claims, _ := args.Get(0).([]identity.Claim)
	return claims, args.Error(1)
}

func (m *MockRoleClaimStore) ClaimsForAccount(ctx context.Context, tx bun.IDB, accountID string) ([]identity.Claim, error) {
	args := m.Called(ctx, tx, accountID)
	claims, _ := args.Get(0).([]identity.Claim)
	return claims, args.Error(1)
}

// memTokenValues is an in-memory TokenValueStore.
type memTokenValues struct {
	mu     sync.Mutex
	values map[identity.UserTokenKey]string
	ttls   map[identity.UserTokenKey]time.Duration
}

func newMemTokenValues() *memTokenValues {
	return &memTokenValues{
		values: map[identity.UserTokenKey]string{},
		ttls:   map[identity.UserTokenKey]time.Duration{},
	}
}

func (m *memTokenValues) Get(_ context.Context, key identity.UserTokenKey) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", identity.NewError(identity.ErrNotFound, identity.CodeNotFound, identity.MsgUserTokenInvalid)
	}
	return v, nil
}

func (m *memTokenValues) Set(_ context.Context, key identity.UserTokenKey, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memTokenValues) Delete(_ context.Context, key identity.UserTokenKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.ttls, key)
	return nil
}

// recordingSink keeps every event it receives.
type recordingSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
	err    error
}

func (r *recordingSink) Record(_ context.Context, event identity.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingSink) types() []identity.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]identity.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// plainHasher avoids bcrypt cost in service tests.
type plainHasher struct{}

func (plainHasher) Hash(plaintext string) (string, error) {
	return "hashed:" + plaintext, nil
}

func (plainHasher) Compare(plaintext, hash string) bool {
	return hash != "" && hash == "hashed:"+plaintext
}
