package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/goliatone/go-identity"
)

func newTestStore(t *testing.T, opts ...Option) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return New(client, opts...), mr
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	key := identity.UserTokenKey{AccountID: "acc-1", Provider: "Default", Name: "ResetPassword"}

	_, err := store.Get(ctx, key)
	assert.True(t, errors.Is(err, identity.ErrNotFound))

	require.NoError(t, store.Set(ctx, key, "first", time.Hour))
	require.NoError(t, store.Set(ctx, key, "second", time.Hour))

	value, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "second", value)
	assert.True(t, mr.Exists("ut:acc-1:Default:ResetPassword"))

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))

	_, err = store.Get(ctx, key)
	assert.True(t, errors.Is(err, identity.ErrNotFound))
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newTestStore(t, WithPrefix("codes:"))
	ctx := context.Background()
	key := identity.UserTokenKey{AccountID: "acc-1", Provider: "Phone", Name: "TwoFactor"}

	require.NoError(t, store.Set(ctx, key, "123456", 5*time.Minute))
	assert.Equal(t, 5*time.Minute, mr.TTL("codes:acc-1:Phone:TwoFactor"))

	mr.FastForward(6 * time.Minute)

	_, err := store.Get(ctx, key)
	assert.True(t, errors.Is(err, identity.ErrNotFound))
}

func TestRedisStore_StorageFailureIsInternal(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), identity.UserTokenKey{AccountID: "a", Provider: "p", Name: "n"})
	require.Error(t, err)
	assert.Equal(t, identity.ErrInternal, identity.KindOf(err))
}

func TestRedisStore_ZeroTTLPersists(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	key := identity.UserTokenKey{AccountID: "acc-1", Provider: "Default", Name: "EmailConfirmation"}

	require.NoError(t, store.Set(ctx, key, "code", 0))
	value, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "code", value)
	assert.Equal(t, time.Duration(0), mr.TTL("ut:acc-1:Default:EmailConfirmation"))
}
