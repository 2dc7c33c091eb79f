package community

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SessionState is the lifecycle state of a ChatSession.
type SessionState int

const (
	StateClosed SessionState = iota
	StateLoading
	StateLive
)

func (s SessionState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLive:
		return "live"
	default:
		return "closed"
	}
}

// deliveryTimeout bounds the fetch of a notified message.
const deliveryTimeout = 10 * time.Second

// ChatSession shows the history of one room and appends the messages
// delivered by the change feed while it is live.
//
// Every Open starts a new generation. Callbacks and fetches belonging to an
// older generation are dropped, so a message from a room the session moved
// away from is never appended to the current room.
type ChatSession struct {
	// Draft is the message input.
	Draft Draft

	viewer    Principal
	db        DB
	feed      ChangeFeed
	logger    *slog.Logger
	onMessage func(ChatMessage)

	mu       sync.Mutex
	state    SessionState
	roomID   string
	gen      uint64
	sub      Subscription
	cancel   context.CancelFunc
	messages []ChatMessage
	pending  []ChatMessage
}

func newChatSession(cfg Config) *ChatSession {
	return &ChatSession{
		viewer:    cfg.Viewer,
		db:        cfg.DB,
		feed:      cfg.Feed,
		logger:    cfg.Logger,
		onMessage: cfg.OnMessage,
	}
}

// State returns the session state and the room it refers to.
func (s *ChatSession) State() (SessionState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.roomID
}

// Messages returns the messages of the current room, in delivery order.
func (s *ChatSession) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Open makes roomID the live room. The previous subscription, if any, is
// released before the new one is acquired. The subscription is taken before
// history is fetched so that messages inserted in between are not lost.
func (s *ChatSession) Open(ctx context.Context, roomID string) error {
	s.mu.Lock()
	s.teardownLocked()
	s.gen++
	gen := s.gen
	s.state = StateLoading
	s.roomID = roomID
	s.messages = nil
	s.pending = nil
	dctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	logger := s.logger.With("room_id", roomID)

	ok, err := s.db.IsParticipant(ctx, roomID, s.viewer.ID)
	if err != nil {
		logger.Error("Could not check participant", "error", err.Error())
		s.fail(gen)
		return fmt.Errorf("check participant: %w", err)
	}
	if !ok {
		s.fail(gen)
		return ErrNotParticipant
	}

	sub, err := s.feed.SubscribeMessages(ctx, roomID, func(m ChatMessage) {
		s.deliver(dctx, gen, m)
	})
	if err != nil {
		logger.Error("Could not subscribe to messages", "error", err.Error())
		s.fail(gen)
		return fmt.Errorf("subscribe messages: %w", err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.release(logger, sub)
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	history, err := s.db.ListMessages(ctx, roomID)
	if err != nil {
		logger.Error("Could not list messages", "error", err.Error())
		s.fail(gen)
		return fmt.Errorf("list messages: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil
	}
	seen := make(map[string]bool, len(history))
	for _, m := range history {
		seen[m.ID] = true
	}
	for _, m := range s.pending {
		if !seen[m.ID] {
			seen[m.ID] = true
			history = append(history, m)
		}
	}
	s.messages = history
	s.pending = nil
	s.state = StateLive
	logger.Info("Chat session live", "count", len(history))
	return nil
}

// Close releases the subscription and returns the session to Closed.
func (s *ChatSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed && s.sub == nil {
		return
	}
	s.teardownLocked()
	s.gen++
	s.state = StateClosed
	s.roomID = ""
	s.messages = nil
	s.pending = nil
}

// fail returns the session to Closed if gen is still current.
func (s *ChatSession) fail(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.teardownLocked()
	s.gen++
	s.state = StateClosed
	s.roomID = ""
	s.messages = nil
	s.pending = nil
}

func (s *ChatSession) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.sub != nil {
		s.release(s.logger.With("room_id", s.roomID), s.sub)
		s.sub = nil
	}
}

func (s *ChatSession) release(logger *slog.Logger, sub Subscription) {
	if err := sub.Unsubscribe(); err != nil {
		logger.Error("Could not unsubscribe", "error", err.Error())
	}
}

// deliver handles a raw inserted row from the change feed. The full row
// with its author is fetched again; failures are logged and leave a gap
// until the room is opened again.
func (s *ChatSession) deliver(ctx context.Context, gen uint64, raw ChatMessage) {
	s.mu.Lock()
	stale := s.gen != gen || raw.RoomID != s.roomID
	s.mu.Unlock()
	if stale {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()
	msg, err := s.db.GetMessage(ctx, raw.ID)
	if err != nil {
		s.logger.Error("Could not fetch delivered message", "room_id", raw.RoomID, "message_id", raw.ID, "error", err.Error())
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if s.state == StateLoading {
		s.pending = append(s.pending, msg)
		s.mu.Unlock()
		return
	}
	for _, m := range s.messages {
		if m.ID == msg.ID {
			s.mu.Unlock()
			return
		}
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	if s.onMessage != nil {
		s.onMessage(msg)
	}
}

// SendMessage sends body to roomID. A blank body is ignored. The draft is
// cleared right away; the message itself shows up once the change feed
// delivers it.
func (s *ChatSession) SendMessage(ctx context.Context, roomID, body string) error {
	if Blank(body) {
		return nil
	}
	s.Draft.clear()

	ok, err := s.db.IsParticipant(ctx, roomID, s.viewer.ID)
	if err != nil {
		s.logger.Error("Could not check participant", "room_id", roomID, "error", err.Error())
		return fmt.Errorf("check participant: %w", err)
	}
	if !ok {
		return ErrNotParticipant
	}

	msg, err := s.db.InsertMessage(ctx, ChatMessage{
		RoomID:   roomID,
		AuthorID: s.viewer.ID,
		Body:     strings.TrimSpace(body),
	})
	if err != nil {
		s.logger.Error("Could not insert message", "room_id", roomID, "error", err.Error())
		return fmt.Errorf("insert message: %w", err)
	}
	s.logger.Info("Sent message", "room_id", roomID, "message_id", msg.ID)
	return nil
}
