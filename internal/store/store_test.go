package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return NewRedisStoreWithClient(client, "test:"), mr
}

// exercise runs the same behaviour checks against any backend
func exercise(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, Key("default", "x"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, Key("default", "x"), []byte(`1`)))
	require.NoError(t, s.Put(ctx, Key("default", "x"), []byte(`2`)))
	require.NoError(t, s.Put(ctx, Key("other", "y"), []byte(`"hi"`)))

	value, err := s.Get(ctx, "default:x")
	require.NoError(t, err)
	assert.Equal(t, []byte(`2`), value)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"default:x": []byte(`2`),
		"other:y":   []byte(`"hi"`),
	}, snap)

	require.NoError(t, s.Delete(ctx, "other:y"))
	_, err = s.Get(ctx, "other:y")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	exercise(t, s)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, "a:b", []byte(`1`)), context.Canceled)
	_, err := s.Snapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisStore(t *testing.T) {
	s, mr := setupTestRedis(t)
	defer mr.Close()
	defer s.Close()

	exercise(t, s)

	// everything lives in one prefixed hash
	assert.True(t, mr.Exists("test:state"))
}

func TestNew(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := DefaultConfig()
	cfg.Backend = "redis"
	cfg.RedisAddr = mr.Addr()
	s, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	defer s.Close()

	_, err = New(Config{Backend: "etcd"})
	assert.Error(t, err)
}

func TestNew_RedisConnectionError(t *testing.T) {
	_, err := New(Config{Backend: "redis", RedisAddr: "localhost:99999"})
	assert.Error(t, err)
}
