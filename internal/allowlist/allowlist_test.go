package allowlist

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/token_ledger/internal/account"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return NewRedisStore(cache), mr
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	id := account.MustParse("carol.near")

	ok, err := store.Contains(ctx, id)
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if ok {
		t.Fatalf("expected empty allowlist")
	}

	inserted, err := store.MarkAllowed(ctx, id)
	if err != nil {
		t.Fatalf("mark allowed: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first insert to report true")
	}

	inserted, err = store.MarkAllowed(ctx, id)
	if err != nil {
		t.Fatalf("mark allowed again: %v", err)
	}
	if inserted {
		t.Fatalf("expected repeat insert to report false")
	}

	ok, err = store.Contains(ctx, id)
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if !ok {
		t.Fatalf("expected carol.near to be allowed")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestRedisStore(t *testing.T) {
	store, mr := newRedisStore(t)
	exerciseStore(t, store)

	members, err := mr.Members(RedisKey)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0] != "carol.near" {
		t.Fatalf("unexpected set contents %v", members)
	}
}
