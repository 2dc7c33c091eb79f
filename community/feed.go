package community

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// defaultFeedConcurrency is the number of posts enriched in parallel when
// Config.FeedConcurrency is not set.
const defaultFeedConcurrency = 8

// FeedStore holds the viewer's feed: every post, newest first, annotated
// with its like and comment counts and whether the viewer liked it.
type FeedStore struct {
	// Draft is the post composer input.
	Draft Draft

	viewer      Principal
	db          DB
	content     ContentStore
	logger      *slog.Logger
	now         func() time.Time
	concurrency int

	mu      sync.RWMutex
	posts   []Post
	loadSeq uint64
	applied uint64
}

func newFeedStore(cfg Config) *FeedStore {
	n := cfg.FeedConcurrency
	if n <= 0 {
		n = defaultFeedConcurrency
	}
	return &FeedStore{
		viewer:      cfg.Viewer,
		db:          cfg.DB,
		content:     cfg.Content,
		logger:      cfg.Logger,
		now:         cfg.Now,
		concurrency: n,
	}
}

// Posts returns a snapshot of the last successfully loaded feed.
func (f *FeedStore) Posts() []Post {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Post, len(f.posts))
	copy(out, f.posts)
	return out
}

// Load fetches all posts and their derived counts. On success the feed is
// replaced wholesale; on failure the previous feed is kept. When loads
// overlap, the most recently started one wins.
func (f *FeedStore) Load(ctx context.Context) error {
	f.mu.Lock()
	f.loadSeq++
	seq := f.loadSeq
	f.mu.Unlock()

	posts, err := f.db.ListPosts(ctx)
	if err != nil {
		f.logger.Error("Could not list posts", "error", err.Error())
		return fmt.Errorf("list posts: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i := range posts {
		post := &posts[i]
		g.Go(func() error {
			return f.enrich(gctx, post)
		})
	}
	if err := g.Wait(); err != nil {
		f.logger.Error("Could not enrich posts", "error", err.Error())
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if seq < f.applied {
		f.logger.Debug("Dropping stale feed load", "seq", seq, "applied", f.applied)
		return nil
	}
	f.applied = seq
	f.posts = posts
	f.logger.Info("Loaded feed", "count", len(posts))
	return nil
}

// enrich fills the derived fields of post. The post is only considered
// enriched once all three lookups have returned.
func (f *FeedStore) enrich(ctx context.Context, post *Post) error {
	likes, err := f.db.CountLikes(ctx, post.ID)
	if err != nil {
		return fmt.Errorf("count likes of %s: %w", post.ID, err)
	}
	comments, err := f.db.CountComments(ctx, post.ID)
	if err != nil {
		return fmt.Errorf("count comments of %s: %w", post.ID, err)
	}
	liked, err := f.db.LikeExists(ctx, post.ID, f.viewer.ID)
	if err != nil {
		return fmt.Errorf("check like of %s: %w", post.ID, err)
	}

	post.LikesCount = likes
	post.CommentsCount = comments
	post.IsLiked = liked
	return nil
}

// CreatePost publishes a new post with an optional image and reloads the
// feed. A blank body is ignored. The draft is cleared only once the post has
// been inserted.
func (f *FeedStore) CreatePost(ctx context.Context, body string, img *Image) error {
	if Blank(body) {
		return nil
	}

	post := Post{
		AuthorID: f.viewer.ID,
		Body:     strings.TrimSpace(body),
	}

	if img != nil && len(img.Data) > 0 {
		if f.content == nil {
			return errors.New("upload image: no content store configured")
		}
		name := ImageName(f.viewer.ID, f.now(), img.Filename)
		url, err := f.content.Upload(ctx, name, img.ContentType, bytes.NewReader(img.Data))
		if err != nil {
			f.logger.Error("Could not upload image", "name", name, "error", err.Error())
			return fmt.Errorf("upload image: %w", err)
		}
		post.ImageURL = url
	}

	created, err := f.db.InsertPost(ctx, post)
	if err != nil {
		f.logger.Error("Could not insert post", "error", err.Error())
		return fmt.Errorf("insert post: %w", err)
	}
	f.Draft.clear()
	f.logger.Info("Created post", "post_id", created.ID)

	return f.Load(ctx)
}

// ToggleLike removes the viewer's like when currentlyLiked is set and adds
// one otherwise, then reloads the feed. Concurrent toggles are not
// de-duplicated: the last completed write wins.
func (f *FeedStore) ToggleLike(ctx context.Context, postID string, currentlyLiked bool) error {
	if currentlyLiked {
		if err := f.db.DeleteLike(ctx, postID, f.viewer.ID); err != nil {
			f.logger.Error("Could not delete like", "post_id", postID, "error", err.Error())
			return fmt.Errorf("delete like: %w", err)
		}
	} else {
		err := f.db.InsertLike(ctx, Like{PostID: postID, UserID: f.viewer.ID})
		if err != nil {
			f.logger.Error("Could not insert like", "post_id", postID, "error", err.Error())
			return fmt.Errorf("insert like: %w", err)
		}
	}
	return f.Load(ctx)
}

// Liked reports whether the viewer liked postID according to the last load.
func (f *FeedStore) Liked(postID string) (liked bool, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, p := range f.posts {
		if p.ID == postID {
			return p.IsLiked, true
		}
	}
	return false, false
}
