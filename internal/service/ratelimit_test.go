package service_test

import (
	"context"
	"testing"

	"github.com/msomdec/microlearn/internal/service"
)

func newBucket(t *testing.T, rate, capacity float64) *service.TokenBucket {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return service.NewTokenBucket(ctx, rate, capacity)
}

func TestTokenBucket_AllowsUpToCapacity(t *testing.T) {
	tb := newBucket(t, 1, 3)

	for i := 0; i < 3; i++ {
		if !tb.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed (bucket not yet empty)", i+1)
		}
	}
	if tb.Allow("10.0.0.1") {
		t.Fatal("4th request should be denied (bucket empty)")
	}
	if tb.RetryAfter("10.0.0.1") <= 0 {
		t.Fatal("expected a positive retry-after once the bucket is empty")
	}
}

func TestTokenBucket_DifferentKeysAreIndependent(t *testing.T) {
	tb := newBucket(t, 1, 1)

	if !tb.Allow("ip-a") {
		t.Fatal("ip-a first request should be allowed")
	}
	if tb.Allow("ip-a") {
		t.Fatal("ip-a second request should be denied")
	}
	if !tb.Allow("ip-b") {
		t.Fatal("ip-b first request should be allowed (independent bucket)")
	}
	if tb.RetryAfter("ip-unknown") != 0 {
		t.Fatal("unknown key should not have to wait")
	}
}

func TestTokenBucket_ZeroRateNeverRefills(t *testing.T) {
	tb := newBucket(t, 0, 2)

	if !tb.Allow("k") || !tb.Allow("k") {
		t.Fatal("first two requests should be allowed")
	}
	if tb.Allow("k") {
		t.Fatal("third request should be denied (no refill)")
	}
}
