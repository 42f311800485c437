package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlacklist(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	bl := NewBlacklist(client)

	jti := uuid.New()
	hit, err := bl.Contains(ctx, jti)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, bl.Add(ctx, jti, time.Minute))
	hit, err = bl.Contains(ctx, jti)
	require.NoError(t, err)
	assert.True(t, hit)

	mr.FastForward(time.Minute)
	hit, err = bl.Contains(ctx, jti)
	require.NoError(t, err)
	assert.False(t, hit, "entries expire with the token")

	expired := uuid.New()
	require.NoError(t, bl.Add(ctx, expired, -time.Second))
	assert.False(t, mr.Exists(blacklistPrefix+expired.String()))
}

func TestNilBlacklistIsNoop(t *testing.T) {
	var bl *Blacklist
	assert.Nil(t, NewBlacklist(nil))
	require.NoError(t, bl.Add(context.Background(), uuid.New(), time.Hour))
	hit, err := bl.Contains(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, hit)
}
