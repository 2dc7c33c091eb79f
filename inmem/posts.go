package inmem

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/edgeee/community/community"
	"github.com/google/uuid"
)

type profileRow struct {
	community.Profile
}

type postRow struct {
	seq       int64
	ID        string
	AuthorID  string
	Body      string
	ImageURL  string
	CreatedAt time.Time
}

type likeKey struct {
	PostID string
	UserID string
}

type commentRow struct {
	seq       int64
	ID        string
	PostID    string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// author returns the profile of userID, or nil if unknown. The caller holds
// the read lock.
func (db *DB) author(userID string) *community.Profile {
	p, ok := db.profiles[userID]
	if !ok {
		return nil
	}
	out := p.Profile
	return &out
}

func (db *DB) communityPost(r postRow) community.Post {
	return community.Post{
		ID:        r.ID,
		AuthorID:  r.AuthorID,
		Body:      r.Body,
		ImageURL:  r.ImageURL,
		CreatedAt: r.CreatedAt,
		Author:    db.author(r.AuthorID),
	}
}

func (db *DB) communityComment(r commentRow) community.Comment {
	return community.Comment{
		ID:        r.ID,
		PostID:    r.PostID,
		AuthorID:  r.AuthorID,
		Body:      r.Body,
		CreatedAt: r.CreatedAt,
		Author:    db.author(r.AuthorID),
	}
}

// ListPosts returns all posts, newest first.
func (db *DB) ListPosts(_ context.Context) ([]community.Post, error) {
	if err := db.call("ListPosts"); err != nil {
		return nil, err
	}
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	rows := make([]postRow, 0, len(db.posts))
	for _, r := range db.posts {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].seq > rows[j].seq
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	out := make([]community.Post, len(rows))
	for i, r := range rows {
		out[i] = db.communityPost(r)
	}
	return out, nil
}

// InsertPost stores post and returns it with its generated fields.
func (db *DB) InsertPost(_ context.Context, post community.Post) (community.Post, error) {
	if err := db.call("InsertPost"); err != nil {
		return community.Post{}, err
	}
	db.mutex.Lock()
	defer db.mutex.Unlock()

	r := postRow{
		seq:       db.nextSeq(),
		ID:        uuid.NewString(),
		AuthorID:  post.AuthorID,
		Body:      post.Body,
		ImageURL:  post.ImageURL,
		CreatedAt: db.now(),
	}
	db.posts[r.ID] = r
	return db.communityPost(r), nil
}

// DeletePost removes a post with its likes and comments.
func (db *DB) DeletePost(_ context.Context, postID string) error {
	if err := db.call("DeletePost"); err != nil {
		return err
	}
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if _, ok := db.posts[postID]; !ok {
		return fmt.Errorf("post %s: %w", postID, community.ErrNotFound)
	}
	delete(db.posts, postID)
	for k := range db.likes {
		if k.PostID == postID {
			delete(db.likes, k)
		}
	}
	for id, c := range db.comments {
		if c.PostID == postID {
			delete(db.comments, id)
		}
	}
	return nil
}

// CountLikes returns the number of likes of postID.
func (db *DB) CountLikes(_ context.Context, postID string) (int, error) {
	if err := db.call("CountLikes"); err != nil {
		return 0, err
	}
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	n := 0
	for k := range db.likes {
		if k.PostID == postID {
			n++
		}
	}
	return n, nil
}

// LikeExists reports whether userID liked postID.
func (db *DB) LikeExists(_ context.Context, postID, userID string) (bool, error) {
	if err := db.call("LikeExists"); err != nil {
		return false, err
	}
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	_, ok := db.likes[likeKey{PostID: postID, UserID: userID}]
	return ok, nil
}

// InsertLike records a like. Liking twice keeps a single like.
func (db *DB) InsertLike(_ context.Context, like community.Like) error {
	if err := db.call("InsertLike"); err != nil {
		return err
	}
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if _, ok := db.posts[like.PostID]; !ok {
		return fmt.Errorf("post %s: %w", like.PostID, community.ErrNotFound)
	}
	k := likeKey{PostID: like.PostID, UserID: like.UserID}
	if _, ok := db.likes[k]; !ok {
		db.likes[k] = db.now()
	}
	return nil
}

// DeleteLike removes the like of userID on postID, if any.
func (db *DB) DeleteLike(_ context.Context, postID, userID string) error {
	if err := db.call("DeleteLike"); err != nil {
		return err
	}
	db.mutex.Lock()
	defer db.mutex.Unlock()

	delete(db.likes, likeKey{PostID: postID, UserID: userID})
	return nil
}

// CountComments returns the number of comments on postID.
func (db *DB) CountComments(_ context.Context, postID string) (int, error) {
	if err := db.call("CountComments"); err != nil {
		return 0, err
	}
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	n := 0
	for _, c := range db.comments {
		if c.PostID == postID {
			n++
		}
	}
	return n, nil
}

// ListComments returns the comments of postID, oldest first.
func (db *DB) ListComments(_ context.Context, postID string) ([]community.Comment, error) {
	if err := db.call("ListComments"); err != nil {
		return nil, err
	}
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	rows := make([]commentRow, 0)
	for _, r := range db.comments {
		if r.PostID == postID {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].seq < rows[j].seq
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	out := make([]community.Comment, len(rows))
	for i, r := range rows {
		out[i] = db.communityComment(r)
	}
	return out, nil
}

// InsertComment stores a comment on an existing post.
func (db *DB) InsertComment(_ context.Context, c community.Comment) (community.Comment, error) {
	if err := db.call("InsertComment"); err != nil {
		return community.Comment{}, err
	}
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if _, ok := db.posts[c.PostID]; !ok {
		return community.Comment{}, fmt.Errorf("post %s: %w", c.PostID, community.ErrNotFound)
	}
	r := commentRow{
		seq:       db.nextSeq(),
		ID:        uuid.NewString(),
		PostID:    c.PostID,
		AuthorID:  c.AuthorID,
		Body:      c.Body,
		CreatedAt: db.now(),
	}
	db.comments[r.ID] = r
	return db.communityComment(r), nil
}

// GetProfile returns the profile of userID.
func (db *DB) GetProfile(_ context.Context, userID string) (community.Profile, error) {
	if err := db.call("GetProfile"); err != nil {
		return community.Profile{}, err
	}
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	p, ok := db.profiles[userID]
	if !ok {
		return community.Profile{}, fmt.Errorf("profile %s: %w", userID, community.ErrNotFound)
	}
	return p.Profile, nil
}

// UpsertProfile creates or replaces a profile.
func (db *DB) UpsertProfile(_ context.Context, p community.Profile) error {
	if err := db.call("UpsertProfile"); err != nil {
		return err
	}
	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.profiles[p.ID] = profileRow{Profile: p}
	return nil
}
