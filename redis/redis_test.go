package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/edgeee/community/community"
)

// newTestRedis connects to the server named by COMMUNITY_TEST_REDIS_ADDR.
func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("COMMUNITY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("COMMUNITY_TEST_REDIS_ADDR not set")
	}
	r, err := Connect(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRedis_Profile(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	id := uuid.NewString()
	t.Cleanup(func() { _ = r.DeleteProfile(ctx, id) })

	if _, ok, err := r.GetProfile(ctx, id); err != nil || ok {
		t.Fatalf("GetProfile before set = ok %v, err %v; want miss", ok, err)
	}

	want := community.Profile{ID: id, DisplayName: "Alice", AvatarURL: "https://cdn.test/a.png", Role: community.RoleStudent}
	if err := r.SetProfile(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := r.GetProfile(ctx, id)
	if err != nil || !ok {
		t.Fatalf("GetProfile = ok %v, err %v; want hit", ok, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetProfile mismatch (-want +got):\n%s", diff)
	}

	// A shorter profile replaces every field.
	want.AvatarURL = ""
	if err := r.SetProfile(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, _, _ = r.GetProfile(ctx, id)
	if got.AvatarURL != "" {
		t.Errorf("Got AvatarURL %q after overwrite, want empty", got.AvatarURL)
	}

	ttl, err := r.cli.TTL(ctx, profileKey(id)).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > defaultTTL {
		t.Errorf("Got TTL %v, want within (0, %v]", ttl, defaultTTL)
	}
}

func TestNew_DefaultTTL(t *testing.T) {
	r := New(redis.NewClient(&redis.Options{Addr: "localhost:0"}), 0)
	defer r.Close()
	if r.ttl != defaultTTL {
		t.Errorf("Got ttl %v, want %v", r.ttl, defaultTTL)
	}
	if got := New(r.cli, time.Minute).ttl; got != time.Minute {
		t.Errorf("Got ttl %v, want 1m", got)
	}
}
