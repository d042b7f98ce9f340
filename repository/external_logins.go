package repository

import (
	"context"
	"time"

	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	identity "github.com/goliatone/go-identity"
)

// ExternalLoginRepository implements identity.ExternalLoginStore on top of
// the generic bun repository.
type ExternalLoginRepository struct {
	bunrepo.Repository[*identity.ExternalLogin]
	db *bun.DB
}

// NewExternalLoginRepository creates a new repository.
func NewExternalLoginRepository(db *bun.DB) *ExternalLoginRepository {
	repo := bunrepo.NewRepository[*identity.ExternalLogin](db, bunrepo.ModelHandlers[*identity.ExternalLogin]{
		NewRecord: func() *identity.ExternalLogin { return &identity.ExternalLogin{} },
		GetID: func(l *identity.ExternalLogin) uuid.UUID {
			if l == nil {
				return uuid.Nil
			}
			id, err := uuid.Parse(l.ID)
			if err != nil {
				return uuid.Nil
			}
			return id
		},
		SetID: func(l *identity.ExternalLogin, id uuid.UUID) {
			if l != nil {
				l.ID = id.String()
			}
		},
		GetIdentifier: func() string {
			return "provider_key"
		},
	})

	return &ExternalLoginRepository{
		Repository: repo,
		db:         db,
	}
}

func (r *ExternalLoginRepository) conn(tx bun.IDB) bun.IDB {
	if tx == nil {
		return r.db
	}
	return tx
}

// FindByProviderAndKey implements identity.ExternalLoginStore.
func (r *ExternalLoginRepository) FindByProviderAndKey(ctx context.Context, tx bun.IDB, provider, providerKey string) (*identity.ExternalLogin, error) {
	login := new(identity.ExternalLogin)
	err := r.conn(tx).NewSelect().
		Model(login).
		Where("provider = ? AND provider_key = ?", provider, providerKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if bunrepo.IsRecordNotFound(err) {
			return nil, notFound("external_logins", "provider", provider)
		}
		return nil, err
	}
	return login, nil
}

// FindByAccountID implements identity.ExternalLoginStore.
func (r *ExternalLoginRepository) FindByAccountID(ctx context.Context, tx bun.IDB, accountID string) ([]*identity.ExternalLogin, error) {
	var logins []*identity.ExternalLogin
	err := r.conn(tx).NewSelect().
		Model(&logins).
		Where("account_id = ?", accountID).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		if bunrepo.IsRecordNotFound(err) {
			return []*identity.ExternalLogin{}, nil
		}
		return nil, err
	}
	return logins, nil
}

// Insert implements identity.ExternalLoginStore. The ID is derived from the
// (provider, provider key) pair so the same identity always maps to the same
// row id. A login already held by any account is reported as ErrConflict.
func (r *ExternalLoginRepository) Insert(ctx context.Context, tx bun.IDB, login *identity.ExternalLogin) error {
	if login.ID == "" {
		id, err := ExternalLoginID(login.Provider, login.ProviderKey)
		if err != nil {
			return err
		}
		login.ID = id
	}
	if login.CreatedAt.IsZero() {
		login.CreatedAt = time.Now().UTC()
	}

	if _, err := r.Repository.CreateTx(ctx, r.conn(tx), login); err != nil {
		if isUniqueViolation(err) {
			return identity.NewError(identity.ErrConflict, identity.CodeLoginExists, identity.MsgExternalLoginExists,
				"provider", login.Provider)
		}
		return err
	}
	return nil
}

// Delete implements identity.ExternalLoginStore.
func (r *ExternalLoginRepository) Delete(ctx context.Context, tx bun.IDB, accountID, provider string) error {
	res, err := r.conn(tx).NewDelete().
		Model((*identity.ExternalLogin)(nil)).
		Where("account_id = ? AND provider = ?", accountID, provider).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "external_logins", "provider", provider)
}

// ExternalLoginID returns the deterministic row id for a provider identity.
func ExternalLoginID(provider, providerKey string) (string, error) {
	id, err := hashid.NewUUID(provider + ":" + providerKey)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
