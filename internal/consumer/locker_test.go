package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-ews/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestAlertLockKey(t *testing.T) {
	assert.Equal(t, "ews:lock:t1:p1:high_score", AlertLockKey("t1", "p1", models.AlertKindHighScore))
}

func exerciseMutualExclusion(t *testing.T, locker Locker) {
	t.Helper()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Lock(context.Background(), "k")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestKeyedMutex_MutualExclusion(t *testing.T) {
	m := NewKeyedMutex()
	exerciseMutualExclusion(t, m)
	assert.Empty(t, m.locks, "idle keys are dropped")
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	releaseA, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := m.Lock(ctx, "b")
	require.NoError(t, err)
	releaseB()
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	m := NewKeyedMutex()
	release, err := m.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // idempotent
	assert.Empty(t, m.locks)
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	_, client := setupTestRedis(t)
	exerciseMutualExclusion(t, NewRedisLocker(client, 5*time.Second, zap.NewNop()))
}

func TestRedisLocker_ReleaseOnlyOwnToken(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Second, zap.NewNop())

	release, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, mr.Exists("k"))

	// lock expired and was taken by someone else
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("k", "other-holder"))

	release()
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "other-holder", got)
}

func TestRedisLocker_WaitsThenTimesOut(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewRedisLocker(client, 5*time.Second, zap.NewNop())

	release, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release2, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	release2()
}

type recordingLocker struct {
	mu       sync.Mutex
	acquired []string
	released []string
	failOn   string
}

func (l *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if key == l.failOn {
		return nil, context.Canceled
	}
	l.acquired = append(l.acquired, key)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released = append(l.released, key)
	}, nil
}

func TestLockAll(t *testing.T) {
	l := &recordingLocker{}
	release, err := LockAll(context.Background(), l, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, l.acquired)

	release()
	assert.Equal(t, []string{"c", "b", "a"}, l.released)
}

func TestLockAll_ReleasesOnFailure(t *testing.T) {
	l := &recordingLocker{failOn: "c"}
	_, err := LockAll(context.Background(), l, "a", "b", "c")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"b", "a"}, l.released)
}
