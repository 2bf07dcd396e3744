package provisioning

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const testLockPrefix = "provision:lock:"

func newTestRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := NewRedisLocker(client, testLockPrefix, ttl, zap.NewNop())
	l.retry = time.Millisecond
	return l, mr
}

func TestRedisLocker_Serializes(t *testing.T) {
	l, mr := newTestRedisLocker(t, time.Minute)
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "device:laptop1")
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max holders = %d, want 1", maxInside)
	}
	if mr.Exists(testLockPrefix + "device:laptop1") {
		t.Error("lock key left behind after every holder released")
	}
}

func TestRedisLocker_ContextCancel(t *testing.T) {
	l, _ := newTestRedisLocker(t, time.Minute)
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Lock() error = %v, want DeadlineExceeded", err)
	}

	unlock()
	unlock() // idempotent

	unlock2, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock() after release error = %v", err)
	}
	unlock2()
}

func TestRedisLocker_ExpiredHolderCannotReleaseNewOwner(t *testing.T) {
	l, mr := newTestRedisLocker(t, time.Second)
	key := testLockPrefix + "k"

	unlockA, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock(a) error = %v", err)
	}
	mr.FastForward(2 * time.Second)
	if mr.Exists(key) {
		t.Fatal("lock key survived its ttl")
	}

	unlockB, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock(b) error = %v", err)
	}
	owner, err := mr.Get(key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	unlockA()
	if got, _ := mr.Get(key); got != owner {
		t.Fatalf("stale release changed the lock owner: %q -> %q", owner, got)
	}

	unlockB()
	if mr.Exists(key) {
		t.Error("owner release left the key behind")
	}
}

func TestRedisLocker_BackendDown(t *testing.T) {
	l, mr := newTestRedisLocker(t, time.Minute)
	mr.Close()

	ctx := context.Background()
	_, err := l.Lock(ctx, "k")
	if err == nil {
		t.Fatal("Lock() succeeded against a closed server")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Lock() error = %v, want a backend error", err)
	}
}
