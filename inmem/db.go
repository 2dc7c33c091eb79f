// Package inmem provides an in-process implementation of the community
// storage, change feed and content store. It backs the memory store mode and
// the tests.
package inmem

import (
	"sync"
	"sync/atomic"
	"time"
)

// DB is an in-memory community.DB and community.ChangeFeed.
type DB struct {
	mutex sync.RWMutex

	profiles     map[string]profileRow
	posts        map[string]postRow
	likes        map[likeKey]time.Time
	comments     map[string]commentRow
	rooms        map[string]roomRow
	participants map[participantKey]time.Time
	messages     map[string]messageRow
	seq          int64

	subMutex sync.Mutex
	subs     map[int]*subscription
	nextSub  int

	errMutex sync.Mutex
	errs     map[string]error

	calls atomic.Int64
	clock func() time.Time
}

// An Option configures a DB.
type Option func(*DB)

// WithClock sets the clock used to stamp inserted rows.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.clock = now }
}

// New returns an empty DB.
func New(opts ...Option) *DB {
	db := &DB{
		profiles:     make(map[string]profileRow),
		posts:        make(map[string]postRow),
		likes:        make(map[likeKey]time.Time),
		comments:     make(map[string]commentRow),
		rooms:        make(map[string]roomRow),
		participants: make(map[participantKey]time.Time),
		messages:     make(map[string]messageRow),
		subs:         make(map[int]*subscription),
		errs:         make(map[string]error),
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Calls returns the number of storage calls made so far.
func (db *DB) Calls() int64 {
	return db.calls.Load()
}

// SetError makes every following call to the named method fail with err.
// A nil err clears it.
func (db *DB) SetError(method string, err error) {
	db.errMutex.Lock()
	defer db.errMutex.Unlock()
	if err == nil {
		delete(db.errs, method)
		return
	}
	db.errs[method] = err
}

// call counts a storage call and returns the injected error for method.
func (db *DB) call(method string) error {
	db.calls.Add(1)
	db.errMutex.Lock()
	defer db.errMutex.Unlock()
	return db.errs[method]
}

// nextSeq returns the insertion sequence of a new row. The caller holds the
// write lock.
func (db *DB) nextSeq() int64 {
	db.seq++
	return db.seq
}

func (db *DB) now() time.Time {
	return db.clock().UTC()
}
