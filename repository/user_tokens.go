package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	identity "github.com/goliatone/go-identity"
)

// UserTokenRepository implements identity.TokenValueStore on the
// user_tokens table. Expired rows are treated as missing and removed lazily.
type UserTokenRepository struct {
	db  bun.IDB
	now func() time.Time
}

// NewUserTokenRepository creates a new repository.
func NewUserTokenRepository(db bun.IDB) *UserTokenRepository {
	return &UserTokenRepository{db: db, now: time.Now}
}

// Get implements identity.TokenValueStore.
func (r *UserTokenRepository) Get(ctx context.Context, key identity.UserTokenKey) (string, error) {
	row := new(identity.UserToken)
	err := r.db.NewSelect().
		Model(row).
		Where("account_id = ? AND provider = ? AND name = ?", key.AccountID, key.Provider, key.Name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", notFound("user_tokens")
		}
		return "", err
	}

	if row.ExpiresAt != nil && !row.ExpiresAt.After(r.now()) {
		_ = r.Delete(ctx, key)
		return "", notFound("user_tokens")
	}
	return row.Value, nil
}

// Set implements identity.TokenValueStore. A live value for the same key is
// overwritten.
func (r *UserTokenRepository) Set(ctx context.Context, key identity.UserTokenKey, value string, ttl time.Duration) error {
	row := &identity.UserToken{
		AccountID: key.AccountID,
		Provider:  key.Provider,
		Name:      key.Name,
		Value:     value,
	}
	if ttl > 0 {
		exp := r.now().Add(ttl).UTC()
		row.ExpiresAt = &exp
	}

	_, err := r.db.NewInsert().
		Model(row).
		On("CONFLICT (account_id, provider, name) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	return err
}

// Delete implements identity.TokenValueStore. Deleting a missing key is not
// an error.
func (r *UserTokenRepository) Delete(ctx context.Context, key identity.UserTokenKey) error {
	_, err := r.db.NewDelete().
		Model((*identity.UserToken)(nil)).
		Where("account_id = ? AND provider = ? AND name = ?", key.AccountID, key.Provider, key.Name).
		Exec(ctx)
	return err
}
