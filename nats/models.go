package nats

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/edgeee/community/community"
)

// An event is a chat message insert as published on NATS. Like the database
// notification it carries no body.
type event struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (e event) CommunityMessage() community.ChatMessage {
	return community.ChatMessage{
		ID:        e.ID,
		RoomID:    e.RoomID,
		AuthorID:  e.AuthorID,
		CreatedAt: e.CreatedAt.UTC(),
	}
}

func decode(m *nats.Msg) (community.ChatMessage, error) {
	var e event
	if err := json.Unmarshal(m.Data, &e); err != nil {
		return community.ChatMessage{}, err
	}
	return e.CommunityMessage(), nil
}
