package community

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// CommentPanel shows the comments of at most one open post.
type CommentPanel struct {
	// Draft is the comment input.
	Draft Draft

	viewer Principal
	db     DB
	feed   *FeedStore
	logger *slog.Logger

	mu       sync.RWMutex
	open     string
	comments []Comment
}

func newCommentPanel(cfg Config, feed *FeedStore) *CommentPanel {
	return &CommentPanel{
		viewer: cfg.Viewer,
		db:     cfg.DB,
		feed:   feed,
		logger: cfg.Logger,
	}
}

// OpenPost returns the id of the open post, if any.
func (c *CommentPanel) OpenPost() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open, c.open != ""
}

// Comments returns the comments of the open post, oldest first.
func (c *CommentPanel) Comments() []Comment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Comment, len(c.comments))
	copy(out, c.comments)
	return out
}

// OpenFor opens the panel of postID, closing any other, and loads its
// comments.
func (c *CommentPanel) OpenFor(ctx context.Context, postID string) error {
	c.mu.Lock()
	if c.open != postID {
		c.open = postID
		c.comments = nil
	}
	c.mu.Unlock()
	return c.Load(ctx, postID)
}

// Close closes the open panel.
func (c *CommentPanel) Close() {
	c.mu.Lock()
	c.open = ""
	c.comments = nil
	c.mu.Unlock()
}

// Load fetches the comments of postID and replaces the list. The result is
// dropped if another post was opened in the meantime.
func (c *CommentPanel) Load(ctx context.Context, postID string) error {
	comments, err := c.db.ListComments(ctx, postID)
	if err != nil {
		c.logger.Error("Could not list comments", "post_id", postID, "error", err.Error())
		return fmt.Errorf("list comments: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open != postID {
		return nil
	}
	c.comments = comments
	return nil
}

// AddComment adds a comment to postID, then reloads the comments and the
// feed so the post's comment count follows. A blank body is ignored.
func (c *CommentPanel) AddComment(ctx context.Context, postID, body string) error {
	if Blank(body) {
		return nil
	}

	created, err := c.db.InsertComment(ctx, Comment{
		PostID:   postID,
		AuthorID: c.viewer.ID,
		Body:     strings.TrimSpace(body),
	})
	if err != nil {
		c.logger.Error("Could not insert comment", "post_id", postID, "error", err.Error())
		return fmt.Errorf("insert comment: %w", err)
	}
	c.Draft.clear()
	c.logger.Info("Added comment", "post_id", postID, "comment_id", created.ID)

	if err := c.Load(ctx, postID); err != nil {
		return err
	}
	return c.feed.Load(ctx)
}
