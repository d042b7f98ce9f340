package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
)

// Manager exposes all repositories and the transaction boundary.
type Manager struct {
	db         *bun.DB
	accounts   *AccountRepository
	roles      *RoleRepository
	logins     *ExternalLoginRepository
	userTokens *UserTokenRepository
}

// NewManager builds every repository over db.
func NewManager(db *bun.DB) *Manager {
	return &Manager{
		db:         db,
		accounts:   NewAccountRepository(db),
		roles:      NewRoleRepository(db),
		logins:     NewExternalLoginRepository(db),
		userTokens: NewUserTokenRepository(db),
	}
}

// Validate reports the first repository left unset.
func (m *Manager) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	if m.logins == nil {
		return errors.New("repository external logins should be initialized")
	}

	if m.userTokens == nil {
		return errors.New("repository user tokens should be initialized")
	}

	return nil
}

// RunInTx implements identity.Transactor. f's error is returned unchanged
// after rollback.
func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m *Manager) DB() *bun.DB {
	return m.db
}

func (m *Manager) Accounts() *AccountRepository {
	return m.accounts
}

func (m *Manager) Roles() *RoleRepository {
	return m.roles
}

func (m *Manager) ExternalLogins() *ExternalLoginRepository {
	return m.logins
}

func (m *Manager) UserTokens() *UserTokenRepository {
	return m.userTokens
}
