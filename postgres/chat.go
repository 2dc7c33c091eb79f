package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/edgeee/community/community"
)

// ListParticipantRooms returns the ids of the rooms a user belongs to, in
// the order they joined.
func (pg *Postgres) ListParticipantRooms(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := pg.bun.NewSelect().
		Model((*chatParticipant)(nil)).
		Column("room_id").
		Where("user_id = ?", userID).
		Order("joined_at ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return ids, nil
}

// GetRooms returns the rooms with the given ids, oldest first.
func (pg *Postgres) GetRooms(ctx context.Context, roomIDs []string) ([]community.ChatRoom, error) {
	if len(roomIDs) == 0 {
		return []community.ChatRoom{}, nil
	}
	var rooms []chatRoom
	err := pg.bun.NewSelect().
		Model(&rooms).
		Where("id IN (?)", bun.In(roomIDs)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]community.ChatRoom, len(rooms))
	for i, r := range rooms {
		out[i] = r.CommunityRoom()
	}
	return out, nil
}

// OtherParticipant returns the earliest member of a room other than userID.
func (pg *Postgres) OtherParticipant(ctx context.Context, roomID, userID string) (string, bool, error) {
	var other string
	err := pg.bun.NewSelect().
		Model((*chatParticipant)(nil)).
		Column("user_id").
		Where("room_id = ? AND user_id <> ?", roomID, userID).
		Order("joined_at ASC", "user_id ASC").
		Limit(1).
		Scan(ctx, &other)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("scan: %w", err)
	}
	return other, true, nil
}

// IsParticipant reports whether a user belongs to a room.
func (pg *Postgres) IsParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	ok, err := pg.bun.NewSelect().
		Model((*chatParticipant)(nil)).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return ok, nil
}

// InsertRoom inserts a room.
func (pg *Postgres) InsertRoom(ctx context.Context, in community.ChatRoom) (community.ChatRoom, error) {
	r := &chatRoom{IsGroup: in.IsGroup, Name: in.Name}
	if _, err := pg.bun.NewInsert().Model(r).Returning("*").Exec(ctx); err != nil {
		return community.ChatRoom{}, fmt.Errorf("insert: %w", err)
	}
	return r.CommunityRoom(), nil
}

// InsertParticipants adds members to rooms in a single statement. Existing
// memberships are left untouched.
func (pg *Postgres) InsertParticipants(ctx context.Context, participants ...community.ChatParticipant) error {
	if len(participants) == 0 {
		return nil
	}
	rows := make([]chatParticipant, len(participants))
	for i, p := range participants {
		rows[i] = chatParticipant{RoomID: p.RoomID, UserID: p.UserID}
	}
	_, err := pg.bun.NewInsert().
		Model(&rows).
		On("CONFLICT (room_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return insertErr(err, "room")
	}
	return nil
}

// ListMessages returns the messages of a room with their authors, oldest
// first.
func (pg *Postgres) ListMessages(ctx context.Context, roomID string) ([]community.ChatMessage, error) {
	var msgs []chatMessage
	err := pg.bun.NewSelect().
		Model(&msgs).
		Relation("Author").
		Where("m.room_id = ?", roomID).
		Order("m.created_at ASC", "m.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]community.ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m.CommunityMessage()
	}
	return out, nil
}

// GetMessage returns a message with its author.
func (pg *Postgres) GetMessage(ctx context.Context, messageID string) (community.ChatMessage, error) {
	m := new(chatMessage)
	err := pg.bun.NewSelect().
		Model(m).
		Relation("Author").
		Where("m.id = ?", messageID).
		Scan(ctx)
	if err != nil {
		return community.ChatMessage{}, notFound(err, "message "+messageID)
	}
	return m.CommunityMessage(), nil
}

// InsertMessage inserts a message. The insert trigger notifies listeners.
func (pg *Postgres) InsertMessage(ctx context.Context, in community.ChatMessage) (community.ChatMessage, error) {
	m := &chatMessage{
		RoomID:   in.RoomID,
		AuthorID: in.AuthorID,
		Body:     in.Body,
	}
	if _, err := pg.bun.NewInsert().Model(m).Returning("*").Exec(ctx); err != nil {
		return community.ChatMessage{}, insertErr(err, "room "+in.RoomID)
	}
	return m.CommunityMessage(), nil
}
