package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisDisabled(t *testing.T) {
	r := NewRedis("")
	assert.Nil(t, r)
	assert.False(t, r.Healthy(context.Background()))
	assert.NoError(t, r.Close())
}

func TestRedisLockUnreachable(t *testing.T) {
	// port 1 is never a redis server; dialing fails fast
	r := NewRedis("127.0.0.1:1")
	require.NotNil(t, r)
	defer r.Close()

	assert.False(t, r.Healthy(context.Background()))

	lock := NewRedisLock(r.Client, "attendance:ledger:lock", time.Second, 100*time.Millisecond)
	unlock, err := lock.Lock(context.Background())
	assert.Error(t, err)
	assert.Nil(t, unlock)
}
