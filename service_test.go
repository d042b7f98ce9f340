package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	identity "github.com/goliatone/go-identity"
)

type serviceFixture struct {
	svc      *identity.Service
	tx       *fakeTransactor
	accounts *memAccounts
	roles    *MockRoleClaimStore
	tokens   *memTokenValues
	sink     *recordingSink
	codec    *identity.TokenCodec
	now      time.Time
}

func newServiceFixture(t *testing.T, accounts ...*identity.Account) *serviceFixture {
	t.Helper()

	pub, priv := newKeyPair(t)
	cfg := identity.DefaultConfig()

	f := &serviceFixture{
		tx:       &fakeTransactor{},
		accounts: newMemAccounts(accounts...),
		roles:    &MockRoleClaimStore{},
		tokens:   newMemTokenValues(),
		sink:     &recordingSink{},
		now:      time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	codec, err := identity.NewTokenCodecFromKeys(priv, pub, cfg.Token, identity.WithCodecClock(func() time.Time { return f.now }))
	require.NoError(t, err)
	f.codec = codec

	f.roles.On("RolesForAccount", mock.Anything, mock.Anything, mock.Anything).Return([]*identity.Role{{ID: "r1", Name: "admin"}}, nil).Maybe()
	f.roles.On("ClaimsForRole", mock.Anything, mock.Anything, "r1").Return([]identity.Claim{{Type: "policy", Value: "read:x"}}, nil).Maybe()
	f.roles.On("ClaimsForAccount", mock.Anything, mock.Anything, mock.Anything).Return([]identity.Claim{{Type: "policy", Value: "read:x"}}, nil).Maybe()

	svc, err := identity.NewService(cfg, identity.Dependencies{
		Transactor:  f.tx,
		Accounts:    f.accounts,
		RoleClaims:  f.roles,
		TokenValues: f.tokens,
		Hasher:      plainHasher{},
		Codec:       codec,
		Events:      f.sink,
	}, identity.WithClock(func() time.Time { return f.now }))
	require.NoError(t, err)
	f.svc = svc
	return f
}

func passwordAccount(id, email, password string) *identity.Account {
	return &identity.Account{
		ID:              id,
		Email:           email,
		NormalizedEmail: identity.Normalize(email),
		PasswordHash:    "hashed:" + password,
		LockoutEnabled:  true,
	}
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := identity.NewService(identity.DefaultConfig(), identity.Dependencies{})
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	pub, priv := newKeyPair(t)
	codec, err := identity.NewTokenCodecFromKeys(priv, pub, identity.TokenConfig{})
	require.NoError(t, err)

	accounts := newMemAccounts()
	sink := &recordingSink{}
	svc, err := identity.NewService(identity.DefaultConfig(), identity.Dependencies{
		Transactor: &fakeTransactor{},
		Accounts:   accounts,
		RoleClaims: &MockRoleClaimStore{},
		Hasher:     identity.NewBcryptHasher(4),
		Codec:      codec,
		Events:     sink,
	})
	require.NoError(t, err)

	ctx := context.Background()
	account, err := svc.Register(ctx, identity.RegisterInput{Email: "a@x.com", Password: "Secret123"})
	require.NoError(t, err)

	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "A@X.COM", account.NormalizedEmail)
	assert.NotEqual(t, "Secret123", account.PasswordHash)
	assert.True(t, identity.NewBcryptHasher(4).Compare("Secret123", account.PasswordHash))
	assert.NotEmpty(t, account.SecurityStamp)
	assert.NotEmpty(t, account.ConcurrencyStamp)
	assert.True(t, account.LockoutEnabled)
	assert.Equal(t, []identity.ActivityEventType{identity.ActivityAccountCreated}, sink.types())

	_, err = svc.Register(ctx, identity.RegisterInput{Email: "A@x.com ", Password: "Other123"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, identity.ErrConflict))
	assert.Equal(t, identity.MsgUserAlreadyExists, identity.PublicMessage(err))
	assert.Equal(t, 409, identity.HTTPStatus(err))
}

func TestRegister_Validation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input identity.RegisterInput
		msg   string
	}{
		{name: "no identifier", input: identity.RegisterInput{Password: "x"}, msg: identity.MsgEmailOrUsernameRequired},
		{name: "blank identifier", input: identity.RegisterInput{Email: "  ", Password: "x"}, msg: identity.MsgEmailOrUsernameRequired},
		{name: "no password", input: identity.RegisterInput{Username: "bob"}, msg: identity.MsgPasswordRequired},
		{name: "bad email", input: identity.RegisterInput{Email: "not-an-email", Password: "x"}, msg: identity.MsgInvalidEmail},
		{name: "bad phone", input: identity.RegisterInput{Username: "bob", Password: "x", PhoneNumber: "12"}, msg: identity.MsgInvalidPhone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, identity.ErrValidation))
			assert.Equal(t, tt.msg, identity.PublicMessage(err))
		})
	}
}

func TestRegisterInput_EmailFormat(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{email: "first.last+tag@example.com", valid: true},
		{email: "ops@unresolvable.invalid", valid: true},
		{email: "not-an-email", valid: false},
		{email: "a@", valid: false},
		{email: "@x.com", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := identity.RegisterInput{Email: tt.email, Password: "x"}.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, identity.MsgInvalidEmail, identity.PublicMessage(err))
		})
	}
}

func TestRegister_UsernameConflict(t *testing.T) {
	existing := &identity.Account{ID: "acc-1", Username: "bob", NormalizedUsername: "BOB"}
	f := newServiceFixture(t, existing)

	_, err := f.svc.Register(context.Background(), identity.RegisterInput{Email: "new@x.com", Username: "Bob", Password: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, identity.ErrConflict))
}

func TestRegister_NormalizesPhone(t *testing.T) {
	f := newServiceFixture(t)

	account, err := f.svc.Register(context.Background(), identity.RegisterInput{
		Username:    "bob",
		Password:    "x",
		PhoneNumber: "+1 650-253-0000",
	})
	require.NoError(t, err)
	assert.Equal(t, "+16502530000", account.PhoneNumber)
}

func TestRegister_IgnoresSoftDeletedConflicts(t *testing.T) {
	deletedAt := time.Now()
	gone := passwordAccount("acc-old", "a@x.com", "x")
	gone.DeletedAt = &deletedAt
	f := newServiceFixture(t, gone)

	_, err := f.svc.Register(context.Background(), identity.RegisterInput{Email: "a@x.com", Password: "x"})
	require.NoError(t, err)
}

func TestLogin_Success(t *testing.T) {
	f := newServiceFixture(t, passwordAccount("acc-1", "a@x.com", "Secret123"))

	result, err := f.svc.Login(context.Background(), identity.LoginInput{Identifier: "A@X.com", Password: "Secret123"})
	require.NoError(t, err)
	assert.Equal(t, "acc-1", result.Account.ID)
	assert.Equal(t, []string{"admin"}, result.Claims.Roles)
	assert.Equal(t, []string{"read:x"}, result.Claims.Policies)

	principal, err := f.svc.VerifyRequestToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", principal.Subject)
	assert.Equal(t, "a@x.com", principal.Email)
	assert.Equal(t, []string{"read:x"}, principal.Policies)

	assert.Empty(t, f.accounts.updates)
	assert.Equal(t, []identity.ActivityEventType{identity.ActivityLoginSuccess}, f.sink.types())
}

func TestLogin_ByUsername(t *testing.T) {
	account := passwordAccount("acc-1", "", "pw")
	account.Username = "bob"
	account.NormalizedUsername = "BOB"
	f := newServiceFixture(t, account)

	result, err := f.svc.Login(context.Background(), identity.LoginInput{Identifier: "bob", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "acc-1", result.Account.ID)
}

func TestLogin_UnknownAccount(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Login(context.Background(), identity.LoginInput{Identifier: "nobody@x.com", Password: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, identity.ErrUnauthenticated))
	assert.Equal(t, identity.MsgInvalidCredentials, identity.PublicMessage(err))
	assert.Empty(t, f.sink.types())
}

func TestLogin_LockoutAfterThreshold(t *testing.T) {
	f := newServiceFixture(t, passwordAccount("acc-1", "a@x.com", "right"))
	ctx := context.Background()
	bad := identity.LoginInput{Identifier: "a@x.com", Password: "wrong"}

	for i := 1; i <= 4; i++ {
		_, err := f.svc.Login(ctx, bad)
		require.Error(t, err)
		assert.True(t, errors.Is(err, identity.ErrUnauthenticated))

		stored := f.accounts.get("acc-1")
		assert.Equal(t, i, stored.AccessFailedCount)
		assert.Nil(t, stored.LockoutEnd)
	}
	assert.Equal(t, 4, f.tx.committed, "failure updates must commit")

	_, err := f.svc.Login(ctx, bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, identity.ErrUnauthenticated))

	stored := f.accounts.get("acc-1")
	assert.Equal(t, 5, stored.AccessFailedCount)
	require.NotNil(t, stored.LockoutEnd)
	assert.Equal(t, f.now.Add(15*time.Minute), *stored.LockoutEnd)

	last := f.accounts.updates[len(f.accounts.updates)-1]
	assert.ElementsMatch(t, []string{"access_failed_count", "lockout_end"}, last.Columns)
	assert.Contains(t, f.sink.types(), identity.ActivityAccountLocked)

	// even the right password is rejected while locked
	_, err = f.svc.Login(ctx, identity.LoginInput{Identifier: "a@x.com", Password: "right"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, identity.ErrLockedOut))
	assert.Equal(t, "Account is locked. Try again in 15 minute(s)", identity.PublicMessage(err))
	assert.Equal(t, 423, identity.HTTPStatus(err))

	f.now = f.now.Add(6 * time.Minute)
	_, err = f.svc.Login(ctx, bad)
	assert.Equal(t, "Account is locked. Try again in 9 minute(s)", identity.PublicMessage(err))
	assert.Equal(t, 5, f.accounts.get("acc-1").AccessFailedCount, "attempts while locked do not count")

	f.now = f.now.Add(10 * time.Minute)
	result, err := f.svc.Login(ctx, identity.LoginInput{Identifier: "a@x.com", Password: "right"})
	require.NoError(t, err)
	assert.Equal(t, "acc-1", result.Account.ID)

	stored = f.accounts.get("acc-1")
	assert.Equal(t, 0, stored.AccessFailedCount)
	assert.Nil(t, stored.LockoutEnd)

	reset := f.accounts.updates[len(f.accounts.updates)-1]
	assert.Equal(t, []string{"access_failed_count", "lockout_end"}, reset.Columns)
	assert.Equal(t, 0, reset.Snapshot.AccessFailedCount)
	assert.Nil(t, reset.Snapshot.LockoutEnd)
}

func TestLogin_SuccessResetsCounterInOneUpdate(t *testing.T) {
	account := passwordAccount("acc-1", "a@x.com", "pw")
	account.AccessFailedCount = 3
	f := newServiceFixture(t, account)

	_, err := f.svc.Login(context.Background(), identity.LoginInput{Identifier: "a@x.com", Password: "pw"})
	require.NoError(t, err)

	require.Len(t, f.accounts.updates, 1)
	assert.Equal(t, 0, f.accounts.updates[0].Snapshot.AccessFailedCount)
}

func TestLogin_LockoutDisabled(t *testing.T) {
	account := passwordAccount("acc-1", "a@x.com", "pw")
	account.LockoutEnabled = false
	f := newServiceFixture(t, account)

	for i := 0; i < 6; i++ {
		_, err := f.svc.Login(context.Background(), identity.LoginInput{Identifier: "a@x.com", Password: "bad"})
		assert.True(t, errors.Is(err, identity.ErrUnauthenticated))
	}
	assert.Empty(t, f.accounts.updates)
}

func TestLogin_OAuthOnlyAccountRejectsPassword(t *testing.T) {
	account := passwordAccount("acc-1", "a@x.com", "")
	account.PasswordHash = ""
	f := newServiceFixture(t, account)

	_, err := f.svc.Login(context.Background(), identity.LoginInput{Identifier: "a@x.com", Password: "anything"})
	assert.True(t, errors.Is(err, identity.ErrUnauthenticated))
}

func TestLogin_StorageFailureIsInternal(t *testing.T) {
	f := newServiceFixture(t, passwordAccount("acc-1", "a@x.com", "pw"))
	f.accounts.failOn = "update"

	_, err := f.svc.Login(context.Background(), identity.LoginInput{Identifier: "a@x.com", Password: "bad"})
	require.Error(t, err)
	assert.Equal(t, identity.ErrInternal, identity.KindOf(err))
	assert.Equal(t, 1, f.tx.rolled)
}

func TestLogin_SinkFailureDoesNotFailLogin(t *testing.T) {
	f := newServiceFixture(t, passwordAccount("acc-1", "a@x.com", "pw"))
	f.sink.err = errors.New("broker down")

	_, err := f.svc.Login(context.Background(), identity.LoginInput{Identifier: "a@x.com", Password: "pw"})
	require.NoError(t, err)
}

func TestAuthorizeLive(t *testing.T) {
	f := newServiceFixture(t)
	principal := &identity.Principal{Subject: "acc-1"}

	err := f.svc.AuthorizeLive(context.Background(), principal, identity.RequirePolicies(identity.MatchAll, "read:x"))
	require.NoError(t, err)

	err = f.svc.Authorize(principal, identity.RequirePolicies(identity.MatchAll, "read:x"))
	assert.True(t, errors.Is(err, identity.ErrForbidden))
}

func TestResolveClaims(t *testing.T) {
	f := newServiceFixture(t)

	resolved, err := f.svc.ResolveClaims(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"read:x"}, resolved.Policies)
}
