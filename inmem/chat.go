package inmem

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/edgeee/community/community"
	"github.com/google/uuid"
)

type roomRow struct {
	seq       int64
	ID        string
	IsGroup   bool
	Name      string
	CreatedAt time.Time
}

type participantKey struct {
	RoomID string
	UserID string
}

type messageRow struct {
	seq       int64
	ID        string
	RoomID    string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

func (r messageRow) raw() community.ChatMessage {
	return community.ChatMessage{
		ID:        r.ID,
		RoomID:    r.RoomID,
		AuthorID:  r.AuthorID,
		Body:      r.Body,
		CreatedAt: r.CreatedAt,
	}
}

func (db *DB) communityMessage(r messageRow) community.ChatMessage {
	m := r.raw()
	m.Author = db.author(r.AuthorID)
	return m
}

// ListParticipantRooms returns the ids of the rooms userID belongs to.
func (db *DB) ListParticipantRooms(_ context.Context, userID string) ([]string, error) {
	if err := db.call("ListParticipantRooms"); err != nil {
		return nil, err
	}
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	ids := make([]string, 0)
	for k := range db.participants {
		if k.UserID == userID {
			ids = append(ids, k.RoomID)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return db.rooms[ids[i]].seq < db.rooms[ids[j]].seq
	})
	return ids, nil
}

// GetRooms returns the rooms with the given ids, oldest first. Unknown ids
// are skipped.
func (db *DB) GetRooms(_ context.Context, roomIDs []string) ([]community.ChatRoom, error) {
	if err := db.call("GetRooms"); err != nil {
		return nil, err
	}
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	rows := make([]roomRow, 0, len(roomIDs))
	seen := make(map[string]bool, len(roomIDs))
	for _, id := range roomIDs {
		r, ok := db.rooms[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]community.ChatRoom, len(rows))
	for i, r := range rows {
		out[i] = community.ChatRoom{
			ID:        r.ID,
			IsGroup:   r.IsGroup,
			Name:      r.Name,
			CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}

// OtherParticipant returns one member of roomID other than userID.
func (db *DB) OtherParticipant(_ context.Context, roomID, userID string) (string, bool, error) {
	if err := db.call("OtherParticipant"); err != nil {
		return "", false, err
	}
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	var (
		other  string
		joined time.Time
	)
	for k, at := range db.participants {
		if k.RoomID != roomID || k.UserID == userID {
			continue
		}
		if other == "" || at.Before(joined) || (at.Equal(joined) && k.UserID < other) {
			other, joined = k.UserID, at
		}
	}
	return other, other != "", nil
}

// IsParticipant reports whether userID belongs to roomID.
func (db *DB) IsParticipant(_ context.Context, roomID, userID string) (bool, error) {
	if err := db.call("IsParticipant"); err != nil {
		return false, err
	}
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	_, ok := db.participants[participantKey{RoomID: roomID, UserID: userID}]
	return ok, nil
}

// InsertRoom stores a new room.
func (db *DB) InsertRoom(_ context.Context, room community.ChatRoom) (community.ChatRoom, error) {
	if err := db.call("InsertRoom"); err != nil {
		return community.ChatRoom{}, err
	}
	db.mutex.Lock()
	defer db.mutex.Unlock()

	r := roomRow{
		seq:       db.nextSeq(),
		ID:        uuid.NewString(),
		IsGroup:   room.IsGroup,
		Name:      room.Name,
		CreatedAt: db.now(),
	}
	db.rooms[r.ID] = r
	return community.ChatRoom{ID: r.ID, IsGroup: r.IsGroup, Name: r.Name, CreatedAt: r.CreatedAt}, nil
}

// InsertParticipants adds members to existing rooms. Existing memberships
// are kept as they are.
func (db *DB) InsertParticipants(_ context.Context, participants ...community.ChatParticipant) error {
	if err := db.call("InsertParticipants"); err != nil {
		return err
	}
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for _, p := range participants {
		if _, ok := db.rooms[p.RoomID]; !ok {
			return fmt.Errorf("room %s: %w", p.RoomID, community.ErrNotFound)
		}
	}
	now := db.now()
	for _, p := range participants {
		k := participantKey{RoomID: p.RoomID, UserID: p.UserID}
		if _, ok := db.participants[k]; !ok {
			db.participants[k] = now
		}
	}
	return nil
}

// ListMessages returns the messages of roomID, oldest first.
func (db *DB) ListMessages(_ context.Context, roomID string) ([]community.ChatMessage, error) {
	if err := db.call("ListMessages"); err != nil {
		return nil, err
	}
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	rows := make([]messageRow, 0)
	for _, r := range db.messages {
		if r.RoomID == roomID {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].seq < rows[j].seq
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	out := make([]community.ChatMessage, len(rows))
	for i, r := range rows {
		out[i] = db.communityMessage(r)
	}
	return out, nil
}

// GetMessage returns a message with its author.
func (db *DB) GetMessage(_ context.Context, messageID string) (community.ChatMessage, error) {
	if err := db.call("GetMessage"); err != nil {
		return community.ChatMessage{}, err
	}
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	r, ok := db.messages[messageID]
	if !ok {
		return community.ChatMessage{}, fmt.Errorf("message %s: %w", messageID, community.ErrNotFound)
	}
	return db.communityMessage(r), nil
}

// InsertMessage stores a message and notifies the subscribers of its room.
func (db *DB) InsertMessage(_ context.Context, msg community.ChatMessage) (community.ChatMessage, error) {
	if err := db.call("InsertMessage"); err != nil {
		return community.ChatMessage{}, err
	}
	db.mutex.Lock()
	if _, ok := db.rooms[msg.RoomID]; !ok {
		db.mutex.Unlock()
		return community.ChatMessage{}, fmt.Errorf("room %s: %w", msg.RoomID, community.ErrNotFound)
	}
	r := messageRow{
		seq:       db.nextSeq(),
		ID:        uuid.NewString(),
		RoomID:    msg.RoomID,
		AuthorID:  msg.AuthorID,
		Body:      msg.Body,
		CreatedAt: db.now(),
	}
	db.messages[r.ID] = r
	out := db.communityMessage(r)
	// Publishing under the write lock keeps deliveries in insert order.
	db.publish(r.raw())
	db.mutex.Unlock()
	return out, nil
}
