package community

import "sync"

// An Inbox hands messages to a single subscriber callback on its own
// goroutine, in the order they were pushed. Change feeds give every
// subscription an Inbox so a slow subscriber only delays itself.
type Inbox struct {
	fn func(ChatMessage)

	mu      sync.Mutex
	idle    *sync.Cond
	queue   []ChatMessage
	running bool
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

// NewInbox starts an Inbox delivering to fn. Call Stop to release it.
func NewInbox(fn func(ChatMessage)) *Inbox {
	b := &Inbox{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	b.idle = sync.NewCond(&b.mu)
	go b.run()
	return b
}

// Push queues msg. It never blocks on the subscriber.
func (b *Inbox) Push(msg ChatMessage) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Stop drops queued messages and ends the delivery goroutine. A callback
// already running is not interrupted. Stop is safe to call more than once.
func (b *Inbox) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	b.queue = nil
	close(b.done)
	b.idle.Broadcast()
}

// Wait blocks until every message pushed so far has been handled or the
// Inbox is stopped.
func (b *Inbox) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.stopped && (b.running || len(b.queue) > 0) {
		b.idle.Wait()
	}
}

func (b *Inbox) run() {
	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
		}
		for b.deliverNext() {
		}
	}
}

// deliverNext runs the callback for the oldest queued message. It reports
// false once the queue is empty.
func (b *Inbox) deliverNext() bool {
	b.mu.Lock()
	if b.stopped || len(b.queue) == 0 {
		b.running = false
		b.idle.Broadcast()
		b.mu.Unlock()
		return false
	}
	msg := b.queue[0]
	b.queue[0] = ChatMessage{}
	b.queue = b.queue[1:]
	b.running = true
	b.mu.Unlock()

	b.fn(msg)
	return true
}
