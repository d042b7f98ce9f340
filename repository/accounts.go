package repository

import (
	"context"
	"database/sql"
	"time"

	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"

	identity "github.com/goliatone/go-identity"
)

// AccountRepository implements identity.AccountStore on top of the generic
// bun repository. Every query filters out soft deleted rows.
type AccountRepository struct {
	bunrepo.Repository[*identity.Account]
	db *bun.DB
}

// NewAccountRepository creates a new repository.
func NewAccountRepository(db *bun.DB) *AccountRepository {
	repo := bunrepo.NewRepository[*identity.Account](db, bunrepo.ModelHandlers[*identity.Account]{
		NewRecord: func() *identity.Account { return &identity.Account{} },
		GetID: func(a *identity.Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return accountUUID(a.ID)
		},
		SetID: func(a *identity.Account, id uuid.UUID) {
			if a != nil {
				a.ID = ulid.ULID(id).String()
			}
		},
		GetIdentifier: func() string {
			return "normalized_email"
		},
	})

	return &AccountRepository{
		Repository: repo,
		db:         db,
	}
}

// Account ids are ULIDs, which share the 16 byte layout of a UUID.
func accountUUID(id string) uuid.UUID {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return uuid.Nil
	}
	return uuid.UUID(parsed)
}

func (r *AccountRepository) conn(tx bun.IDB) bun.IDB {
	if tx == nil {
		return r.db
	}
	return tx
}

// FindByNormalizedEmail implements identity.AccountStore.
func (r *AccountRepository) FindByNormalizedEmail(ctx context.Context, tx bun.IDB, normalizedEmail string) (*identity.Account, error) {
	return r.findOne(ctx, tx, "normalized_email", normalizedEmail)
}

// FindByNormalizedUsername implements identity.AccountStore.
func (r *AccountRepository) FindByNormalizedUsername(ctx context.Context, tx bun.IDB, normalizedUsername string) (*identity.Account, error) {
	return r.findOne(ctx, tx, "normalized_username", normalizedUsername)
}

// FindByID implements identity.AccountStore.
func (r *AccountRepository) FindByID(ctx context.Context, tx bun.IDB, id string) (*identity.Account, error) {
	return r.findOne(ctx, tx, "id", id)
}

func (r *AccountRepository) findOne(ctx context.Context, tx bun.IDB, column, value string) (*identity.Account, error) {
	if value == "" {
		return nil, notFound("accounts", column, value)
	}

	account := new(identity.Account)
	err := r.conn(tx).NewSelect().
		Model(account).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Where("?TableAlias.deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if bunrepo.IsRecordNotFound(err) {
			return nil, notFound("accounts", column, value)
		}
		return nil, err
	}
	return account, nil
}

// Create implements identity.AccountStore. A clash with an active account's
// normalized email or username is reported as ErrConflict.
func (r *AccountRepository) Create(ctx context.Context, tx bun.IDB, account *identity.Account) (*identity.Account, error) {
	if account.ID == "" {
		account.ID = identity.NewID()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	created, err := r.Repository.CreateTx(ctx, r.conn(tx), account)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, identity.NewError(identity.ErrConflict, identity.CodeUserExists, identity.MsgUserAlreadyExists,
				"email", account.Email, "username", account.Username)
		}
		return nil, err
	}
	return created, nil
}

// Update implements identity.AccountStore. updated_at is always written.
// With no columns every mutable column is written.
func (r *AccountRepository) Update(ctx context.Context, tx bun.IDB, account *identity.Account, columns ...string) error {
	account.UpdatedAt = time.Now().UTC()

	q := r.conn(tx).NewUpdate().
		Model(account).
		WherePK().
		Where("deleted_at IS NULL")
	if len(columns) > 0 {
		cols := make([]string, 0, len(columns)+1)
		cols = append(cols, columns...)
		q = q.Column(append(cols, "updated_at")...)
	} else {
		q = q.ExcludeColumn("id", "created_at", "deleted_at")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.NewError(identity.ErrConflict, identity.CodeUserExists, identity.MsgUserAlreadyExists, "id", account.ID)
		}
		return err
	}
	return expectAffected(res, "accounts", "id", account.ID)
}

// SoftDelete stamps deleted_at. The account then disappears from every
// lookup and its email and username can be registered again.
func (r *AccountRepository) SoftDelete(ctx context.Context, tx bun.IDB, id string) error {
	now := time.Now().UTC()
	res, err := r.conn(tx).NewUpdate().
		Model((*identity.Account)(nil)).
		Set("deleted_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "accounts", "id", id)
}

func notFound(table string, kv ...any) error {
	return identity.NewError(identity.ErrNotFound, identity.CodeNotFound, "Record not found", append([]any{"table", table}, kv...)...)
}

func expectAffected(res sql.Result, table string, kv ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(table, kv...)
	}
	return nil
}
