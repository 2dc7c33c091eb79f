package community

import "time"

// A Role is the platform role of a user.
type Role string

const (
	RoleStudent    Role = "student"
	RoleGuardian   Role = "guardian"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// A Profile is the public view of a user.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Role        Role   `json:"role"`
}

// A Principal is the authenticated user on whose behalf components act.
type Principal = Profile

// A Post represents a persisted feed post. LikesCount, CommentsCount and
// IsLiked are derived at load time and never stored.
type Post struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"author_id"`
	Body          string    `json:"body"`
	ImageURL      string    `json:"image_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Author        *Profile  `json:"author,omitempty"`
	LikesCount    int       `json:"likes_count"`
	CommentsCount int       `json:"comments_count"`
	IsLiked       bool      `json:"is_liked"`
}

// A Like records that a user liked a post. At most one exists per pair.
type Like struct {
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// A Comment belongs to exactly one post.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Author    *Profile  `json:"author,omitempty"`
}

// A ChatRoom is a conversation container. Membership is held in
// ChatParticipant rows only.
type ChatRoom struct {
	ID        string    `json:"id"`
	IsGroup   bool      `json:"is_group"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	OtherUser *Profile  `json:"other_user,omitempty"`
}

// A ChatParticipant links a user to a room.
type ChatParticipant struct {
	RoomID   string    `json:"room_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// A ChatMessage is a message sent to a room. Messages are never edited.
type ChatMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Author    *Profile  `json:"author,omitempty"`
}

// An Image is an attachment uploaded with a post.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}
