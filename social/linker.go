package social

import (
	"context"
	"errors"
	"strings"

	"github.com/uptrace/bun"

	identity "github.com/goliatone/go-identity"
)

// Result describes the outcome of LoginOrCreate.
type Result struct {
	Token   string                  `json:"token"`
	Account *identity.Account       `json:"account"`
	Claims  identity.ResolvedClaims `json:"-"`
	Created bool                    `json:"created"`
	Linked  bool                    `json:"linked"`
}

// Options tune how LoginOrCreate reconciles an unknown provider identity.
type Options struct {
	// AllowSignup creates a new account when nothing matches the profile.
	AllowSignup bool
	// AllowEmailLinking links the provider to an account with the same
	// normalized email.
	AllowEmailLinking bool
	// RequireVerifiedEmail refuses email linking when the provider did not
	// verify the address.
	RequireVerifiedEmail bool
}

// DefaultOptions links by email and signs up unknown users.
func DefaultOptions() Options {
	return Options{
		AllowSignup:       true,
		AllowEmailLinking: true,
	}
}

// Option customizes a Linker.
type Option func(*Linker)

// WithOptions replaces the reconciliation options.
func WithOptions(opts Options) Option {
	return func(l *Linker) {
		l.opts = opts
	}
}

// Linker attaches external identities to accounts.
type Linker struct {
	svc    *identity.Service
	logins identity.ExternalLoginStore
	opts   Options
}

// NewLinker builds a Linker sharing the service's transaction boundary and
// account store.
func NewLinker(svc *identity.Service, logins identity.ExternalLoginStore, opts ...Option) (*Linker, error) {
	if svc == nil {
		return nil, errors.New("social: identity service is required")
	}
	if logins == nil {
		return nil, errors.New("social: external login store is required")
	}

	l := &Linker{
		svc:    svc,
		logins: logins,
		opts:   DefaultOptions(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// LinkProvider attaches the profile's provider identity to accountID.
func (l *Linker) LinkProvider(ctx context.Context, accountID string, profile Profile) (*identity.ExternalLogin, error) {
	profile = profile.Normalized()
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	var (
		linked  *identity.ExternalLogin
		account *identity.Account
	)
	err := l.svc.Transactor().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = l.loadAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		linked, err = l.link(ctx, tx, account, profile)
		return err
	})
	if err != nil {
		return nil, err
	}

	identity.RecordActivity(ctx, l.svc.Events(), l.svc.Logger(), identity.ActivityEvent{
		Type:      identity.ActivityProviderLinked,
		AccountID: account.ID,
		Email:     account.Email,
		Provider:  profile.Provider,
	})
	return linked, nil
}

// UnlinkProvider removes the provider login from accountID. The account must
// keep at least one way to authenticate.
func (l *Linker) UnlinkProvider(ctx context.Context, accountID, provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))

	var account *identity.Account
	err := l.svc.Transactor().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = l.loadAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		logins, err := l.logins.FindByAccountID(ctx, tx, account.ID)
		if err != nil {
			return l.internal(err, "find_logins", "account_id", account.ID)
		}

		if !hasProvider(logins, provider) {
			return errProviderNotLinked(account.ID, provider)
		}

		if !account.HasPassword() && len(logins) <= 1 {
			return errLastAuthMethod(account.ID, provider)
		}

		if err := l.logins.Delete(ctx, tx, account.ID, provider); err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return errProviderNotLinked(account.ID, provider)
			}
			return l.internal(err, "delete_login", "account_id", account.ID, "provider", provider)
		}
		return nil
	})
	if err != nil {
		return err
	}

	identity.RecordActivity(ctx, l.svc.Events(), l.svc.Logger(), identity.ActivityEvent{
		Type:      identity.ActivityProviderUnlinked,
		AccountID: account.ID,
		Email:     account.Email,
		Provider:  provider,
	})
	return nil
}

// Logins lists the provider logins attached to accountID.
func (l *Linker) Logins(ctx context.Context, accountID string) ([]*identity.ExternalLogin, error) {
	logins, err := l.logins.FindByAccountID(ctx, nil, accountID)
	if err != nil {
		return nil, l.internal(err, "find_logins", "account_id", accountID)
	}
	return logins, nil
}

// LoginOrCreate resolves the account behind an OAuth profile, linking or
// creating one when needed, and issues a bearer token for it. Lookup, create,
// link and claim resolution share one transaction.
func (l *Linker) LoginOrCreate(ctx context.Context, profile Profile) (*Result, error) {
	profile = profile.Normalized()
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	result := &Result{}
	err := l.svc.Transactor().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := l.resolve(ctx, tx, profile, result)
		if err != nil {
			return err
		}

		token, claims, err := l.svc.IssueForAccount(ctx, tx, account)
		if err != nil {
			return err
		}

		result.Account = account
		result.Token = token
		result.Claims = claims
		return nil
	})
	if err != nil {
		return nil, err
	}

	account := result.Account
	switch {
	case result.Created:
		identity.RecordActivity(ctx, l.svc.Events(), l.svc.Logger(), identity.ActivityEvent{
			Type:      identity.ActivityOAuthUserCreated,
			AccountID: account.ID,
			Email:     account.Email,
			Provider:  profile.Provider,
		})
	case result.Linked:
		identity.RecordActivity(ctx, l.svc.Events(), l.svc.Logger(), identity.ActivityEvent{
			Type:      identity.ActivityOAuthLinkedExisting,
			AccountID: account.ID,
			Email:     account.Email,
			Provider:  profile.Provider,
		})
	}

	identity.RecordActivity(ctx, l.svc.Events(), l.svc.Logger(), identity.ActivityEvent{
		Type:      identity.ActivityLoginSuccess,
		AccountID: account.ID,
		Email:     account.Email,
		Provider:  profile.Provider,
	})
	return result, nil
}

func (l *Linker) resolve(ctx context.Context, tx bun.IDB, profile Profile, result *Result) (*identity.Account, error) {
	login, err := l.logins.FindByProviderAndKey(ctx, tx, profile.Provider, profile.ProviderKey)
	switch {
	case err == nil:
		account, err := l.svc.Accounts().FindByID(ctx, tx, login.AccountID)
		if err != nil {
			// a login row without a live owner is a data fault
			if errors.Is(err, identity.ErrNotFound) {
				l.svc.Logger().Error("external login owner missing", "account_id", login.AccountID, "provider", profile.Provider)
				return nil, identity.Internal(err, "find_login_owner", "account_id", login.AccountID)
			}
			return nil, l.internal(err, "find_login_owner", "account_id", login.AccountID, "provider", profile.Provider)
		}
		return account, nil
	case !errors.Is(err, identity.ErrNotFound):
		return nil, l.internal(err, "find_login", "provider", profile.Provider)
	}

	if profile.Email != "" && l.opts.AllowEmailLinking {
		account, err := l.svc.Accounts().FindByNormalizedEmail(ctx, tx, identity.Normalize(profile.Email))
		switch {
		case err == nil:
			if l.opts.RequireVerifiedEmail && !profile.EmailVerified {
				return nil, identity.NewError(identity.ErrForbidden, TextCodeEmailNotVerified, MsgEmailNotVerified,
					"provider", profile.Provider)
			}
			if _, err := l.link(ctx, tx, account, profile); err != nil {
				return nil, err
			}
			result.Linked = true
			return account, nil
		case !errors.Is(err, identity.ErrNotFound):
			return nil, l.internal(err, "find_by_email", "provider", profile.Provider)
		}
	}

	if !l.opts.AllowSignup {
		return nil, identity.NewError(identity.ErrForbidden, TextCodeSignupDisabled, MsgSignupDisabled,
			"provider", profile.Provider)
	}

	account := &identity.Account{
		ID:               identity.NewID(),
		Email:            profile.Email,
		NormalizedEmail:  identity.Normalize(profile.Email),
		EmailConfirmed:   profile.EmailVerified,
		LockoutEnabled:   true,
		TwoFactorEnabled: false,
	}
	account.RotateStamps()

	created, err := l.svc.Accounts().Create(ctx, tx, account)
	if err != nil {
		return nil, l.internal(err, "create_account", "provider", profile.Provider)
	}

	if _, err := l.link(ctx, tx, created, profile); err != nil {
		return nil, err
	}
	result.Created = true
	return created, nil
}

// link applies the one provider per account rule and inserts the login.
func (l *Linker) link(ctx context.Context, tx bun.IDB, account *identity.Account, profile Profile) (*identity.ExternalLogin, error) {
	existing, err := l.logins.FindByProviderAndKey(ctx, tx, profile.Provider, profile.ProviderKey)
	switch {
	case err == nil:
		if existing.AccountID == account.ID {
			return nil, errAlreadyLinked(account.ID, profile.Provider)
		}
		return nil, errLinkedElsewhere(account.ID, profile.Provider)
	case !errors.Is(err, identity.ErrNotFound):
		return nil, l.internal(err, "find_login", "provider", profile.Provider)
	}

	logins, err := l.logins.FindByAccountID(ctx, tx, account.ID)
	if err != nil {
		return nil, l.internal(err, "find_logins", "account_id", account.ID)
	}
	if hasProvider(logins, profile.Provider) {
		return nil, errProviderInUse(account.ID, profile.Provider)
	}

	login := &identity.ExternalLogin{
		AccountID:   account.ID,
		Provider:    profile.Provider,
		ProviderKey: profile.ProviderKey,
		DisplayName: profile.DisplayName,
	}
	if err := l.logins.Insert(ctx, tx, login); err != nil {
		return nil, l.internal(err, "insert_login", "account_id", account.ID, "provider", profile.Provider)
	}
	return login, nil
}

func (l *Linker) loadAccount(ctx context.Context, tx bun.IDB, accountID string) (*identity.Account, error) {
	account, err := l.svc.Accounts().FindByID(ctx, tx, accountID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, identity.NewError(identity.ErrNotFound, identity.CodeNotFound, identity.MsgAccountNotFound,
				"account_id", accountID)
		}
		return nil, l.internal(err, "find_account", "account_id", accountID)
	}
	return account, nil
}

func (l *Linker) internal(err error, operation string, kv ...any) error {
	if identity.IsKind(err) || errors.Is(err, identity.ErrInternal) {
		return err
	}
	l.svc.Logger().Error("social operation failed", append([]any{"operation", operation, "error", err}, kv...)...)
	return identity.Internal(err, operation, kv...)
}

func hasProvider(logins []*identity.ExternalLogin, provider string) bool {
	for _, login := range logins {
		if login != nil && strings.EqualFold(login.Provider, provider) {
			return true
		}
	}
	return false
}
