// Package community implements the per-viewer state of the community feed
// and direct messaging: the feed, the comment panel, the chat roster and the
// live chat session.
package community

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

var (
	// ErrNotFound is returned by a DB when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotParticipant is returned when the viewer opens a room they are
	// not a member of.
	ErrNotParticipant = errors.New("not a participant of the room")
	// ErrSelfChat is returned when a viewer tries to start a chat with
	// themselves.
	ErrSelfChat = errors.New("cannot start a chat with yourself")
	// ErrUnauthenticated is returned when no principal is available.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// A DB provides the storage layer that persists posts, likes, comments and
// chat rows.
type DB interface {
	ListPosts(ctx context.Context) ([]Post, error)
	InsertPost(ctx context.Context, post Post) (Post, error)
	DeletePost(ctx context.Context, postID string) error

	CountLikes(ctx context.Context, postID string) (int, error)
	LikeExists(ctx context.Context, postID, userID string) (bool, error)
	InsertLike(ctx context.Context, like Like) error
	DeleteLike(ctx context.Context, postID, userID string) error

	CountComments(ctx context.Context, postID string) (int, error)
	ListComments(ctx context.Context, postID string) ([]Comment, error)
	InsertComment(ctx context.Context, comment Comment) (Comment, error)

	ListParticipantRooms(ctx context.Context, userID string) ([]string, error)
	GetRooms(ctx context.Context, roomIDs []string) ([]ChatRoom, error)
	OtherParticipant(ctx context.Context, roomID, userID string) (string, bool, error)
	IsParticipant(ctx context.Context, roomID, userID string) (bool, error)
	InsertRoom(ctx context.Context, room ChatRoom) (ChatRoom, error)
	InsertParticipants(ctx context.Context, participants ...ChatParticipant) error
	ListMessages(ctx context.Context, roomID string) ([]ChatMessage, error)
	GetMessage(ctx context.Context, messageID string) (ChatMessage, error)
	InsertMessage(ctx context.Context, msg ChatMessage) (ChatMessage, error)

	GetProfile(ctx context.Context, userID string) (Profile, error)
	UpsertProfile(ctx context.Context, p Profile) error
}

// A Cache provides a storage layer that caches public profiles.
type Cache interface {
	GetProfile(ctx context.Context, userID string) (Profile, bool, error)
	SetProfile(ctx context.Context, p Profile) error
}

// A Subscription is a live registration on a ChangeFeed.
type Subscription interface {
	Unsubscribe() error
}

// A ChangeFeed delivers chat message inserts for one room at a time. The
// delivered message is the raw inserted row, without the author profile.
type ChangeFeed interface {
	SubscribeMessages(ctx context.Context, roomID string, fn func(ChatMessage)) (Subscription, error)
}

// A ContentStore stores uploaded blobs and returns their public URL.
type ContentStore interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.ID != ""
}

// Config holds the collaborators shared by all components of a Client.
type Config struct {
	Viewer  Principal
	DB      DB
	Cache   Cache // optional
	Feed    ChangeFeed
	Content ContentStore
	Logger  *slog.Logger

	// FeedConcurrency bounds the number of posts enriched in parallel.
	// Zero means defaultFeedConcurrency.
	FeedConcurrency int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// OnMessage is invoked for every message appended to the live chat
	// session.
	OnMessage func(ChatMessage)
}

// Client bundles the components a single viewer interacts with.
type Client struct {
	Feed     *FeedStore
	Comments *CommentPanel
	Roster   *ChatRoster
	Chat     *ChatSession

	profiles *profileResolver
	viewer   Principal
}

// NewClient returns the components for cfg.Viewer. It fails with
// ErrUnauthenticated if no viewer is set.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Viewer.ID == "" {
		return nil, ErrUnauthenticated
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("viewer_id", cfg.Viewer.ID)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	profiles := &profileResolver{db: cfg.DB, cache: cfg.Cache, logger: cfg.Logger}
	feed := newFeedStore(cfg)
	return &Client{
		Feed:     feed,
		Comments: newCommentPanel(cfg, feed),
		Roster:   newChatRoster(cfg, profiles),
		Chat:     newChatSession(cfg),
		profiles: profiles,
		viewer:   cfg.Viewer,
	}, nil
}

// Register stores the viewer's public profile so that other users can
// resolve it.
func (c *Client) Register(ctx context.Context) error {
	return c.profiles.remember(ctx, c.viewer)
}

// StartChat finds or creates the direct room with otherUserID and makes it
// the live chat session.
func (c *Client) StartChat(ctx context.Context, otherUserID string) (ChatRoom, error) {
	room, err := c.Roster.StartOrResume(ctx, otherUserID)
	if err != nil {
		return ChatRoom{}, err
	}
	if err := c.Chat.Open(ctx, room.ID); err != nil {
		return room, err
	}
	return room, nil
}

// OpenRoom makes roomID the live chat session and selects it in the roster.
// A failed open leaves the session closed and nothing selected.
func (c *Client) OpenRoom(ctx context.Context, roomID string) error {
	if err := c.Chat.Open(ctx, roomID); err != nil {
		c.Roster.Select("")
		return err
	}
	c.Roster.Select(roomID)
	return nil
}

// CloseRoom closes the live chat session and clears the selection.
func (c *Client) CloseRoom() {
	c.Chat.Close()
	c.Roster.Select("")
}

// Close releases the live chat subscription, if any.
func (c *Client) Close() {
	c.Chat.Close()
}
