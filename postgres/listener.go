package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/edgeee/community/community"
)

// Listener turns chat message notifications from the database into change
// feed deliveries. One Listener serves every session of the process.
type Listener struct {
	ln     *pgdriver.Listener
	logger *slog.Logger

	mu   sync.Mutex
	subs map[int]*listenerSub
	next int
}

var _ community.ChangeFeed = (*Listener)(nil)

type listenerSub struct {
	l      *Listener
	id     int
	roomID string // empty for every room
	inbox  *community.Inbox
}

func (s *listenerSub) Unsubscribe() error {
	s.l.mu.Lock()
	delete(s.l.subs, s.id)
	s.l.mu.Unlock()
	s.inbox.Stop()
	return nil
}

// notification is the payload of the insert trigger.
type notification struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Listen starts listening for chat message inserts. Call Run to deliver
// them.
func (pg *Postgres) Listen(ctx context.Context, logger *slog.Logger) (*Listener, error) {
	ln := pgdriver.NewListener(pg.bun)
	if err := ln.Listen(ctx, notifyChannel); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}
	return &Listener{
		ln:     ln,
		logger: logger,
		subs:   make(map[int]*listenerSub),
	}, nil
}

// Run delivers notifications until ctx is done or the listener is closed.
func (l *Listener) Run(ctx context.Context) error {
	ch := l.ln.Channel(pgdriver.WithChannelSize(1000))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			l.handle(n.Payload)
		}
	}
}

func (l *Listener) handle(payload string) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		l.logger.Error("Could not decode notification", "payload", payload, "error", err.Error())
		return
	}
	l.Dispatch(community.ChatMessage{
		ID:        n.ID,
		RoomID:    n.RoomID,
		AuthorID:  n.AuthorID,
		CreatedAt: n.CreatedAt.UTC(),
	})
}

// Dispatch queues msg for the subscribers of its room and the subscribers
// of every room. Each subscriber is called on its own goroutine, so Dispatch
// never waits for one.
func (l *Listener) Dispatch(msg community.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.subs {
		if s.roomID == "" || s.roomID == msg.RoomID {
			s.inbox.Push(msg)
		}
	}
}

// Wait blocks until the live subscribers have handled every notification
// dispatched so far.
func (l *Listener) Wait() {
	l.mu.Lock()
	inboxes := make([]*community.Inbox, 0, len(l.subs))
	for _, s := range l.subs {
		inboxes = append(inboxes, s.inbox)
	}
	l.mu.Unlock()
	for _, b := range inboxes {
		b.Wait()
	}
}

// SubscribeMessages registers fn for inserts into roomID. An empty roomID
// subscribes to every room.
func (l *Listener) SubscribeMessages(_ context.Context, roomID string, fn func(community.ChatMessage)) (community.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	s := &listenerSub{l: l, id: l.next, roomID: roomID, inbox: community.NewInbox(fn)}
	l.subs[s.id] = s
	return s, nil
}

// Close stops listening and releases every subscription.
func (l *Listener) Close() error {
	l.mu.Lock()
	for id, s := range l.subs {
		s.inbox.Stop()
		delete(l.subs, id)
	}
	l.mu.Unlock()
	return l.ln.Close()
}
