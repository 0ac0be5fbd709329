package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryTokenRevokerExpires(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryTokenRevoker()
	base := time.Now()
	r.now = func() time.Time { return base }

	if err := r.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v err=%v", revoked, err)
	}
	if revoked, _ := r.IsRevoked(ctx, "jti-2"); revoked {
		t.Fatalf("unrelated token must not be revoked")
	}

	r.now = func() time.Time { return base.Add(2 * time.Minute) }
	revoked, err = r.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("expected expiry to clear revocation, got %v err=%v", revoked, err)
	}
}

func TestMemoryTokenRevokerSweepsOnRevoke(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryTokenRevoker()
	base := time.Now()
	r.now = func() time.Time { return base }
	_ = r.Revoke(ctx, "old", time.Second)
	_ = r.Revoke(ctx, "zero", 0)

	r.now = func() time.Time { return base.Add(time.Minute) }
	_ = r.Revoke(ctx, "new", time.Minute)
	if len(r.expires) != 1 {
		t.Fatalf("expected only the live entry, got %v", r.expires)
	}
}

func TestRedisTokenRevoker(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	r := NewRedisTokenRevoker(client)

	if err := r.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v err=%v", revoked, err)
	}
	if !mr.Exists(revocationKeyPrefix + "jti-1") {
		t.Fatalf("expected namespaced key in redis")
	}

	mr.FastForward(2 * time.Minute)
	revoked, err = r.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("expected ttl expiry, got %v err=%v", revoked, err)
	}

	mr.Close()
	if _, err := r.IsRevoked(ctx, "jti-1"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}
