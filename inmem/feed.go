package inmem

import (
	"context"

	"github.com/edgeee/community/community"
)

type subscription struct {
	db     *DB
	id     int
	roomID string
	inbox  *community.Inbox
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *subscription) Unsubscribe() error {
	s.db.subMutex.Lock()
	delete(s.db.subs, s.id)
	s.db.subMutex.Unlock()
	s.inbox.Stop()
	return nil
}

// SubscribeMessages registers fn for message inserts into roomID, or into
// every room when roomID is empty. Each subscription is called on its own
// goroutine, in insert order.
func (db *DB) SubscribeMessages(_ context.Context, roomID string, fn func(community.ChatMessage)) (community.Subscription, error) {
	if err := db.call("SubscribeMessages"); err != nil {
		return nil, err
	}
	db.subMutex.Lock()
	defer db.subMutex.Unlock()

	db.nextSub++
	s := &subscription{db: db, id: db.nextSub, roomID: roomID, inbox: community.NewInbox(fn)}
	db.subs[s.id] = s
	return s, nil
}

// Subscribers returns the number of live subscriptions.
func (db *DB) Subscribers() int {
	db.subMutex.Lock()
	defer db.subMutex.Unlock()
	return len(db.subs)
}

// Wait blocks until the live subscribers have handled every message
// inserted so far.
func (db *DB) Wait() {
	db.subMutex.Lock()
	inboxes := make([]*community.Inbox, 0, len(db.subs))
	for _, s := range db.subs {
		inboxes = append(inboxes, s.inbox)
	}
	db.subMutex.Unlock()
	for _, b := range inboxes {
		b.Wait()
	}
}

func (db *DB) publish(msg community.ChatMessage) {
	db.subMutex.Lock()
	defer db.subMutex.Unlock()
	for _, s := range db.subs {
		if s.roomID == "" || s.roomID == msg.RoomID {
			s.inbox.Push(msg)
		}
	}
}
