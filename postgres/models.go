package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/edgeee/community/community"
)

// A profile is the public profile of a user as stored in the database.
type profile struct {
	bun.BaseModel `bun:"table:profiles,alias:u"`

	ID          string    `bun:",pk"`
	DisplayName string    `bun:",notnull"`
	AvatarURL   string    `bun:",nullzero"`
	Role        string    `bun:",notnull"`
	UpdatedAt   time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

type post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID        string    `bun:",pk,type:uuid,default:gen_random_uuid()"`
	AuthorID  string    `bun:",notnull"`
	Body      string    `bun:",notnull"`
	ImageURL  string    `bun:",nullzero"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	Author    *profile  `bun:"rel:belongs-to,join:author_id=id"`
}

// A like exists once per post and user.
type like struct {
	bun.BaseModel `bun:"table:likes,alias:l"`

	PostID    string    `bun:",pk,type:uuid"`
	UserID    string    `bun:",pk"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

type comment struct {
	bun.BaseModel `bun:"table:comments,alias:c"`

	ID        string    `bun:",pk,type:uuid,default:gen_random_uuid()"`
	PostID    string    `bun:",notnull,type:uuid"`
	AuthorID  string    `bun:",notnull"`
	Body      string    `bun:",notnull"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	Author    *profile  `bun:"rel:belongs-to,join:author_id=id"`
}

type chatRoom struct {
	bun.BaseModel `bun:"table:chat_rooms,alias:r"`

	ID        string    `bun:",pk,type:uuid,default:gen_random_uuid()"`
	IsGroup   bool      `bun:",notnull,default:false"`
	Name      string    `bun:",nullzero"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

type chatParticipant struct {
	bun.BaseModel `bun:"table:chat_participants,alias:cp"`

	RoomID   string    `bun:",pk,type:uuid"`
	UserID   string    `bun:",pk"`
	JoinedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

type chatMessage struct {
	bun.BaseModel `bun:"table:chat_messages,alias:m"`

	ID        string    `bun:",pk,type:uuid,default:gen_random_uuid()"`
	RoomID    string    `bun:",notnull,type:uuid"`
	AuthorID  string    `bun:",notnull"`
	Body      string    `bun:",notnull"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	Author    *profile  `bun:"rel:belongs-to,join:author_id=id"`
}

func (u *profile) CommunityProfile() *community.Profile {
	// A missing profile row is scanned as an empty struct by the left join.
	if u == nil || u.ID == "" {
		return nil
	}
	return &community.Profile{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Role:        community.Role(u.Role),
	}
}

func (p post) CommunityPost() community.Post {
	return community.Post{
		ID:        p.ID,
		AuthorID:  p.AuthorID,
		Body:      p.Body,
		ImageURL:  p.ImageURL,
		CreatedAt: p.CreatedAt.UTC(),
		Author:    p.Author.CommunityProfile(),
	}
}

func (c comment) CommunityComment() community.Comment {
	return community.Comment{
		ID:        c.ID,
		PostID:    c.PostID,
		AuthorID:  c.AuthorID,
		Body:      c.Body,
		CreatedAt: c.CreatedAt.UTC(),
		Author:    c.Author.CommunityProfile(),
	}
}

func (r chatRoom) CommunityRoom() community.ChatRoom {
	return community.ChatRoom{
		ID:        r.ID,
		IsGroup:   r.IsGroup,
		Name:      r.Name,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (m chatMessage) CommunityMessage() community.ChatMessage {
	return community.ChatMessage{
		ID:        m.ID,
		RoomID:    m.RoomID,
		AuthorID:  m.AuthorID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt.UTC(),
		Author:    m.Author.CommunityProfile(),
	}
}
