package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func newTestLocker(wait time.Duration) (*Redis, redismock.ClientMock) {
	rdb, mock := redismock.NewClientMock()
	l := NewRedis(rdb, Config{TTL: time.Minute, Wait: wait, Prefix: "test:"})
	l.newToken = func() string { return "token-1" }
	return l, mock
}

func TestRedisAcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	l, mock := newTestLocker(time.Second)

	mock.ExpectSetNX("test:100-500", "token-1", time.Minute).SetVal(true)
	mock.ExpectEvalSha(releaseScript.Hash(), []string{"test:100-500"}, "token-1").SetVal(int64(1))

	release, err := l.Acquire(ctx, "100-500")
	assert.NoError(t, err)
	assert.NoError(t, release(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisAcquireTimesOut(t *testing.T) {
	l, mock := newTestLocker(-1)

	mock.ExpectSetNX("test:100-500", "token-1", time.Minute).SetVal(false)

	_, err := l.Acquire(context.Background(), "100-500")
	assert.True(t, errors.Is(err, ErrNotAcquired), "expected ErrNotAcquired, got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisAcquireError(t *testing.T) {
	l, mock := newTestLocker(time.Second)

	mock.ExpectSetNX("test:100-500", "token-1", time.Minute).SetErr(errors.New("connection refused"))

	_, err := l.Acquire(context.Background(), "100-500")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNop(t *testing.T) {
	release, err := Nop{}.Acquire(context.Background(), "x")
	assert.NoError(t, err)
	assert.NoError(t, release(context.Background()))
}
