package community

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ChatRoster lists the rooms the viewer participates in.
type ChatRoster struct {
	viewer   Principal
	db       DB
	profiles *profileResolver
	logger   *slog.Logger

	mu       sync.RWMutex
	rooms    []ChatRoom
	selected string
}

func newChatRoster(cfg Config, profiles *profileResolver) *ChatRoster {
	return &ChatRoster{
		viewer:   cfg.Viewer,
		db:       cfg.DB,
		profiles: profiles,
		logger:   cfg.Logger,
	}
}

// Rooms returns the rooms of the last successful load.
func (r *ChatRoster) Rooms() []ChatRoom {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ChatRoom, len(r.rooms))
	copy(out, r.rooms)
	return out
}

// Selected returns the id of the selected room, if any.
func (r *ChatRoster) Selected() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected, r.selected != ""
}

// Select marks roomID as selected. An empty id clears the selection.
func (r *ChatRoster) Select(roomID string) {
	r.mu.Lock()
	r.selected = roomID
	r.mu.Unlock()
}

// Load fetches the viewer's rooms, each annotated with the profile of
// another participant. Every room appears exactly once.
func (r *ChatRoster) Load(ctx context.Context) error {
	rooms, err := r.viewerRooms(ctx)
	if err != nil {
		r.logger.Error("Could not list rooms", "error", err.Error())
		return err
	}

	for i := range rooms {
		other, err := r.otherUser(ctx, rooms[i].ID)
		if err != nil {
			r.logger.Error("Could not resolve other participant", "room_id", rooms[i].ID, "error", err.Error())
			return err
		}
		rooms[i].OtherUser = other
	}

	r.mu.Lock()
	r.rooms = rooms
	r.mu.Unlock()
	r.logger.Info("Loaded rooms", "count", len(rooms))
	return nil
}

func (r *ChatRoster) viewerRooms(ctx context.Context) ([]ChatRoom, error) {
	ids, err := r.db.ListParticipantRooms(ctx, r.viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("list participant rooms: %w", err)
	}
	if len(ids) == 0 {
		return []ChatRoom{}, nil
	}

	seen := make(map[string]bool, len(ids))
	unique := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	rooms, err := r.db.GetRooms(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("get rooms: %w", err)
	}
	return rooms, nil
}

// otherUser returns the profile of one participant of roomID other than the
// viewer. Group rooms only get one of their members.
func (r *ChatRoster) otherUser(ctx context.Context, roomID string) (*Profile, error) {
	userID, ok, err := r.db.OtherParticipant(ctx, roomID, r.viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("other participant: %w", err)
	}
	if !ok {
		return nil, nil
	}
	p, err := r.profiles.get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return &Profile{ID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// StartOrResume selects the direct room shared by the viewer and
// otherUserID, creating it if none exists. At most one direct room exists
// per pair of users.
func (r *ChatRoster) StartOrResume(ctx context.Context, otherUserID string) (ChatRoom, error) {
	if otherUserID == r.viewer.ID {
		return ChatRoom{}, ErrSelfChat
	}
	other, err := r.profiles.get(ctx, otherUserID)
	if err != nil {
		return ChatRoom{}, err
	}

	rooms, err := r.viewerRooms(ctx)
	if err != nil {
		r.logger.Error("Could not list rooms", "error", err.Error())
		return ChatRoom{}, err
	}
	for _, room := range rooms {
		if room.IsGroup {
			continue
		}
		ok, err := r.db.IsParticipant(ctx, room.ID, otherUserID)
		if err != nil {
			return ChatRoom{}, fmt.Errorf("check participant: %w", err)
		}
		if ok {
			room.OtherUser = &other
			r.Select(room.ID)
			r.logger.Info("Resumed chat", "room_id", room.ID, "other_user_id", otherUserID)
			return room, nil
		}
	}

	room, err := r.db.InsertRoom(ctx, ChatRoom{IsGroup: false})
	if err != nil {
		r.logger.Error("Could not insert room", "error", err.Error())
		return ChatRoom{}, fmt.Errorf("insert room: %w", err)
	}
	err = r.db.InsertParticipants(ctx,
		ChatParticipant{RoomID: room.ID, UserID: r.viewer.ID},
		ChatParticipant{RoomID: room.ID, UserID: otherUserID},
	)
	if err != nil {
		r.logger.Error("Could not insert participants", "room_id", room.ID, "error", err.Error())
		return ChatRoom{}, fmt.Errorf("insert participants: %w", err)
	}
	room.OtherUser = &other
	r.Select(room.ID)
	r.logger.Info("Started chat", "room_id", room.ID, "other_user_id", otherUserID)

	if err := r.Load(ctx); err != nil {
		return room, err
	}
	return room, nil
}
