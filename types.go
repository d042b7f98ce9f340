package identity

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
)

// Logger is the structured logger used across the module. Arguments after
// the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Transactor runs f inside a single database transaction: commit when f
// returns nil, roll back and return the original error otherwise.
type Transactor interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
}

// AccountStore persists accounts. Lookups never return soft deleted rows and
// report a missing row with an error wrapping ErrNotFound.
type AccountStore interface {
	FindByNormalizedEmail(ctx context.Context, tx bun.IDB, normalizedEmail string) (*Account, error)
	FindByNormalizedUsername(ctx context.Context, tx bun.IDB, normalizedUsername string) (*Account, error)
	FindByID(ctx context.Context, tx bun.IDB, id string) (*Account, error)
	Create(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	// Update writes only the named columns of account in one statement.
	Update(ctx context.Context, tx bun.IDB, account *Account, columns ...string) error
}

// RoleClaimStore resolves roles and claims.
type RoleClaimStore interface {
	// RolesForAccount returns roles in assignment order.
	RolesForAccount(ctx context.Context, tx bun.IDB, accountID string) ([]*Role, error)
	ClaimsForRole(ctx context.Context, tx bun.IDB, roleID string) ([]Claim, error)
	ClaimsForAccount(ctx context.Context, tx bun.IDB, accountID string) ([]Claim, error)
}

// ExternalLoginStore persists provider identities.
type ExternalLoginStore interface {
	FindByProviderAndKey(ctx context.Context, tx bun.IDB, provider, providerKey string) (*ExternalLogin, error)
	FindByAccountID(ctx context.Context, tx bun.IDB, accountID string) ([]*ExternalLogin, error)
	Insert(ctx context.Context, tx bun.IDB, login *ExternalLogin) error
	Delete(ctx context.Context, tx bun.IDB, accountID, provider string) error
}

// UserTokenKey identifies a single purpose value stored for an account.
type UserTokenKey struct {
	AccountID string
	Provider  string
	Name      string
}

// TokenValueStore keeps short lived confirmation, reset and two factor codes.
// Set overwrites any live value for the same key. Get reports a missing or
// expired value with an error wrapping ErrNotFound.
type TokenValueStore interface {
	Get(ctx context.Context, key UserTokenKey) (string, error)
	Set(ctx context.Context, key UserTokenKey, value string, ttl time.Duration) error
	Delete(ctx context.Context, key UserTokenKey) error
}

// PasswordHasher hashes and compares credentials.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(plaintext, hash string) bool
}
