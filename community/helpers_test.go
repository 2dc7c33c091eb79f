package community_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edgeee/community/community"
	"github.com/edgeee/community/inmem"
	"github.com/neilotoole/slogt"
)

var (
	alice = community.Principal{ID: "alice", DisplayName: "Alice", Role: community.RoleStudent}
	bob   = community.Principal{ID: "bob", DisplayName: "Bob", Role: community.RoleInstructor}
	carol = community.Principal{ID: "carol", DisplayName: "Carol", Role: community.RoleGuardian}
)

// tickClock returns a clock that advances one second per call.
func tickClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newDB(t *testing.T, users ...community.Principal) *inmem.DB {
	t.Helper()
	db := inmem.New(inmem.WithClock(tickClock()))
	for _, u := range users {
		if err := db.UpsertProfile(context.Background(), u); err != nil {
			t.Fatal(err)
		}
	}
	return db
}

type clientOption func(*community.Config)

func newClient(t *testing.T, db *inmem.DB, viewer community.Principal, opts ...clientOption) *community.Client {
	t.Helper()
	cfg := community.Config{
		Viewer:  viewer,
		DB:      db,
		Feed:    db,
		Content: inmem.NewStore("https://cdn.test/media"),
		Logger:  slogt.New(t),
		Now: func() time.Time {
			return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := community.NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func withContent(s community.ContentStore) clientOption {
	return func(cfg *community.Config) { cfg.Content = s }
}

func withFeed(f community.ChangeFeed) clientOption {
	return func(cfg *community.Config) { cfg.Feed = f }
}

func withCache(c community.Cache) clientOption {
	return func(cfg *community.Config) { cfg.Cache = c }
}

func withOnMessage(fn func(community.ChatMessage)) clientOption {
	return func(cfg *community.Config) { cfg.OnMessage = fn }
}

func mustCreatePost(t *testing.T, c *community.Client, body string) community.Post {
	t.Helper()
	if err := c.Feed.CreatePost(context.Background(), body, nil); err != nil {
		t.Fatalf("CreatePost() error = %v", err)
	}
	for _, p := range c.Feed.Posts() {
		if p.Body == body {
			return p
		}
	}
	t.Fatalf("post %q not in feed", body)
	return community.Post{}
}

func findPost(t *testing.T, posts []community.Post, id string) community.Post {
	t.Helper()
	for _, p := range posts {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("post %s not found", id)
	return community.Post{}
}

func withDB(d community.DB) clientOption {
	return func(cfg *community.Config) { cfg.DB = d }
}
