package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/edgeee/community/community"
)

// Postgres provides storage in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

var _ community.DB = (*Postgres)(nil)

// Connect connects to the database and ping the DB to ensure the connection is
// working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// Close closes the connection pool.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, community.ErrNotFound)
	}
	return fmt.Errorf("scan: %w", err)
}

// foreignKeyViolation is the SQLSTATE of an insert referencing a missing row.
const foreignKeyViolation = "23503"

// insertErr reports inserts referencing a missing post or room as
// community.ErrNotFound.
func insertErr(err error, what string) error {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == foreignKeyViolation {
		return fmt.Errorf("%s: %w", what, community.ErrNotFound)
	}
	return fmt.Errorf("insert: %w", err)
}

// ListPosts returns all posts with their authors, newest first.
func (pg *Postgres) ListPosts(ctx context.Context) ([]community.Post, error) {
	var posts []post
	err := pg.bun.NewSelect().
		Model(&posts).
		Relation("Author").
		Order("p.created_at DESC", "p.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]community.Post, len(posts))
	for i, p := range posts {
		out[i] = p.CommunityPost()
	}
	return out, nil
}

// InsertPost inserts a post into the database. The returned post holds auto
// generated fields, such as the post id.
func (pg *Postgres) InsertPost(ctx context.Context, in community.Post) (community.Post, error) {
	p := &post{
		AuthorID: in.AuthorID,
		Body:     in.Body,
		ImageURL: in.ImageURL,
	}
	if _, err := pg.bun.NewInsert().Model(p).Returning("*").Exec(ctx); err != nil {
		return community.Post{}, fmt.Errorf("insert: %w", err)
	}
	return p.CommunityPost(), nil
}

// DeletePost deletes a post. Its likes and comments go with it.
func (pg *Postgres) DeletePost(ctx context.Context, postID string) error {
	res, err := pg.bun.NewDelete().
		Model((*post)(nil)).
		Where("id = ?", postID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("post %s: %w", postID, community.ErrNotFound)
	}
	return nil
}

// CountLikes returns the number of likes of a post.
func (pg *Postgres) CountLikes(ctx context.Context, postID string) (int, error) {
	n, err := pg.bun.NewSelect().
		Model((*like)(nil)).
		Where("post_id = ?", postID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// LikeExists reports whether a user liked a post.
func (pg *Postgres) LikeExists(ctx context.Context, postID, userID string) (bool, error) {
	ok, err := pg.bun.NewSelect().
		Model((*like)(nil)).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return ok, nil
}

// InsertLike inserts a like. Liking twice keeps a single row.
func (pg *Postgres) InsertLike(ctx context.Context, l community.Like) error {
	row := &like{PostID: l.PostID, UserID: l.UserID}
	_, err := pg.bun.NewInsert().
		Model(row).
		On("CONFLICT (post_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return insertErr(err, "post "+l.PostID)
	}
	return nil
}

// DeleteLike deletes the like of a user on a post, if any.
func (pg *Postgres) DeleteLike(ctx context.Context, postID, userID string) error {
	_, err := pg.bun.NewDelete().
		Model((*like)(nil)).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// CountComments returns the number of comments on a post.
func (pg *Postgres) CountComments(ctx context.Context, postID string) (int, error) {
	n, err := pg.bun.NewSelect().
		Model((*comment)(nil)).
		Where("post_id = ?", postID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// ListComments returns the comments of a post with their authors, oldest
// first.
func (pg *Postgres) ListComments(ctx context.Context, postID string) ([]community.Comment, error) {
	var comments []comment
	err := pg.bun.NewSelect().
		Model(&comments).
		Relation("Author").
		Where("c.post_id = ?", postID).
		Order("c.created_at ASC", "c.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]community.Comment, len(comments))
	for i, c := range comments {
		out[i] = c.CommunityComment()
	}
	return out, nil
}

// InsertComment inserts a comment into the database.
func (pg *Postgres) InsertComment(ctx context.Context, in community.Comment) (community.Comment, error) {
	c := &comment{
		PostID:   in.PostID,
		AuthorID: in.AuthorID,
		Body:     in.Body,
	}
	if _, err := pg.bun.NewInsert().Model(c).Returning("*").Exec(ctx); err != nil {
		return community.Comment{}, insertErr(err, "post "+in.PostID)
	}
	return c.CommunityComment(), nil
}

// GetProfile returns the profile of a user.
func (pg *Postgres) GetProfile(ctx context.Context, userID string) (community.Profile, error) {
	u := new(profile)
	err := pg.bun.NewSelect().Model(u).Where("id = ?", userID).Scan(ctx)
	if err != nil {
		return community.Profile{}, notFound(err, "profile "+userID)
	}
	return *u.CommunityProfile(), nil
}

// UpsertProfile creates or updates the profile of a user.
func (pg *Postgres) UpsertProfile(ctx context.Context, p community.Profile) error {
	u := &profile{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Role:        string(p.Role),
	}
	_, err := pg.bun.NewInsert().
		Model(u).
		On("CONFLICT (id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("avatar_url = EXCLUDED.avatar_url").
		Set("role = EXCLUDED.role").
		Set("updated_at = current_timestamp").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}
