package api

import "github.com/edgeee/community/community"

type feedResponse struct {
	Posts []community.Post `json:"posts"`
}

type commentsResponse struct {
	PostID   string              `json:"post_id"`
	Comments []community.Comment `json:"comments"`
}

type roomsResponse struct {
	Rooms []community.ChatRoom `json:"rooms"`
}

type messagesResponse struct {
	RoomID   string                  `json:"room_id"`
	Messages []community.ChatMessage `json:"messages"`
}

// A command is sent by the client over the websocket. Type is one of
// load_feed, toggle_like, open_comments, close_comments, add_comment,
// load_rooms, start_chat, open_room, close_room and send_message.
type command struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
	PostID string `json:"post_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Body   string `json:"body,omitempty"`
	Liked  bool   `json:"liked,omitempty"`
}

// A frame is sent by the server over the websocket. Type is one of feed,
// comments, rooms, messages, message and notice.
type frame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
	PostID string `json:"post_id,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}
