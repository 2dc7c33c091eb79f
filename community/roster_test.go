package community_test

import (
	"context"
	"errors"
	"testing"

	"github.com/edgeee/community/community"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestChatRoster_StartOrResume(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, alice, bob)
	a := newClient(t, db, alice)

	first, err := a.Roster.StartOrResume(ctx, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Roster.StartOrResume(ctx, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("Got rooms %s and %s, want the same room", first.ID, second.ID)
	}

	ids, err := db.ListParticipantRooms(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Errorf("alice is in %d rooms, want 1", len(ids))
	}
	if sel, _ := a.Roster.Selected(); sel != first.ID {
		t.Errorf("Selected() = %q, want %q", sel, first.ID)
	}
}

func TestChatRoster_StartOrResumeErrors(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, alice)
	a := newClient(t, db, alice)

	if _, err := a.Roster.StartOrResume(ctx, alice.ID); !errors.Is(err, community.ErrSelfChat) {
		t.Errorf("Got error %v, want ErrSelfChat", err)
	}
	if _, err := a.Roster.StartOrResume(ctx, "nobody"); !errors.Is(err, community.ErrNotFound) {
		t.Errorf("Got error %v, want ErrNotFound", err)
	}

	before := db.Calls()
	db.SetError("InsertParticipants", errors.New("something went wrong"))
	if err := db.UpsertProfile(ctx, bob); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Roster.StartOrResume(ctx, bob.ID); err == nil {
		t.Error("StartOrResume() error = nil, want error")
	}
	if db.Calls() == before {
		t.Error("no storage calls made")
	}
}

func TestChatRoster_GroupRoomsNotReused(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, alice, bob, carol)

	group, err := db.InsertRoom(ctx, community.ChatRoom{IsGroup: true, Name: "class 4b"})
	if err != nil {
		t.Fatal(err)
	}
	err = db.InsertParticipants(ctx,
		community.ChatParticipant{RoomID: group.ID, UserID: alice.ID},
		community.ChatParticipant{RoomID: group.ID, UserID: bob.ID},
		community.ChatParticipant{RoomID: group.ID, UserID: carol.ID},
	)
	if err != nil {
		t.Fatal(err)
	}

	a := newClient(t, db, alice)
	room, err := a.Roster.StartOrResume(ctx, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if room.ID == group.ID {
		t.Error("group room reused as direct room")
	}
	if room.IsGroup {
		t.Error("new room is a group room")
	}

	rooms := a.Roster.Rooms()
	if len(rooms) != 2 {
		t.Fatalf("got %d rooms, want 2", len(rooms))
	}
	if rooms[0].ID != group.ID || rooms[0].OtherUser == nil {
		t.Errorf("Got first room %+v, want the group with a member", rooms[0])
	}
}

func TestScenario_DirectChat(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, alice, bob)
	a := newClient(t, db, alice)
	b := newClient(t, db, bob)

	r, err := a.Roster.StartOrResume(ctx, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []community.ChatRoom{{ID: r.ID, OtherUser: &bob}}
	if diff := cmp.Diff(want, a.Roster.Rooms(), cmpopts.IgnoreFields(community.ChatRoom{}, "CreatedAt")); diff != "" {
		t.Errorf("alice Rooms() mismatch (-want +got):\n%s", diff)
	}

	r2, err := b.Roster.StartOrResume(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if r2.ID != r.ID {
		t.Errorf("bob got room %s, want %s", r2.ID, r.ID)
	}
	if err := b.Roster.Load(ctx); err != nil {
		t.Fatal(err)
	}
	want = []community.ChatRoom{{ID: r.ID, OtherUser: &alice}}
	if diff := cmp.Diff(want, b.Roster.Rooms(), cmpopts.IgnoreFields(community.ChatRoom{}, "CreatedAt")); diff != "" {
		t.Errorf("bob Rooms() mismatch (-want +got):\n%s", diff)
	}

	ids, err := db.ListParticipantRooms(ctx, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Errorf("bob is in %d rooms, want 1", len(ids))
	}
}

type mapCache struct {
	profiles map[string]community.Profile
	gets     int
}

func (c *mapCache) GetProfile(_ context.Context, userID string) (community.Profile, bool, error) {
	c.gets++
	p, ok := c.profiles[userID]
	return p, ok, nil
}

func (c *mapCache) SetProfile(_ context.Context, p community.Profile) error {
	c.profiles[p.ID] = p
	return nil
}

func TestChatRoster_ProfileCache(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, alice, bob)
	cache := &mapCache{profiles: map[string]community.Profile{}}
	a := newClient(t, db, alice, withCache(cache))

	if _, err := a.Roster.StartOrResume(ctx, bob.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.profiles[bob.ID]; !ok {
		t.Error("bob's profile not cached")
	}

	db.SetError("GetProfile", errors.New("db down"))
	if err := a.Roster.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v, want profile served from cache", err)
	}
	if rooms := a.Roster.Rooms(); len(rooms) != 1 || rooms[0].OtherUser.DisplayName != "Bob" {
		t.Errorf("Rooms() = %+v", rooms)
	}
}

func TestClient_Register(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	cache := &mapCache{profiles: map[string]community.Profile{}}
	c := newClient(t, db, carol, withCache(cache))

	if err := c.Register(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetProfile(ctx, carol.ID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(carol, got); diff != "" {
		t.Errorf("GetProfile() mismatch (-want +got):\n%s", diff)
	}
	if _, ok := cache.profiles[carol.ID]; !ok {
		t.Error("profile not cached")
	}
}

func TestNewClient_Unauthenticated(t *testing.T) {
	_, err := community.NewClient(community.Config{DB: newDB(t)})
	if !errors.Is(err, community.ErrUnauthenticated) {
		t.Errorf("Got error %v, want ErrUnauthenticated", err)
	}
}

func TestClient_OpenRoom(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, alice, bob, carol)
	ours := startRoom(t, db, alice, bob)
	theirs := startRoom(t, db, bob, carol)
	a := newClient(t, db, alice)

	if err := a.OpenRoom(ctx, ours); err != nil {
		t.Fatal(err)
	}
	if sel, ok := a.Roster.Selected(); !ok || sel != ours {
		t.Errorf("Selected() = %q, %v; want %q", sel, ok, ours)
	}

	if err := a.OpenRoom(ctx, theirs); !errors.Is(err, community.ErrNotParticipant) {
		t.Fatalf("Got error %v, want ErrNotParticipant", err)
	}
	if sel, ok := a.Roster.Selected(); ok {
		t.Errorf("Selected() = %q after a failed open, want none", sel)
	}
	if state, _ := a.Chat.State(); state != community.StateClosed {
		t.Errorf("State() = %v, want closed", state)
	}

	if err := a.OpenRoom(ctx, ours); err != nil {
		t.Fatal(err)
	}
	a.CloseRoom()
	if _, ok := a.Roster.Selected(); ok {
		t.Error("room still selected after CloseRoom")
	}
	if n := db.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}
}
