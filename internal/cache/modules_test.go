package cache

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleKeys(t *testing.T) {
	assert.Equal(t, "coursehub:module:42:details", moduleKey(42))
	assert.Equal(t, "coursehub:module:42:version", versionKey(42))
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion(nil)
	require.NoError(t, err)
	assert.Zero(t, v)

	v, err = parseVersion("7")
	require.NoError(t, err)
	assert.EqualValues(t, 7, v)

	_, err = parseVersion("seven")
	assert.Error(t, err)
}

func TestNewClientRequiresAddr(t *testing.T) {
	_, err := NewClient(context.Background(), Options{})
	assert.Error(t, err)
}

func TestModulesSurfacesConnectionErrors(t *testing.T) {
	// nothing listens on port 1
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	m := NewModules(rdb, 0, nil)
	ctx := context.Background()

	_, _, ok, err := m.Get(ctx, 1)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, m.Set(ctx, 1, 0, nil))
	assert.Error(t, m.Invalidate(ctx, 1))
	assert.Equal(t, 2*time.Minute, m.ttl)
}
