package msg

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrSubscribed is returned when a subscriber registers twice for a topic.
	ErrSubscribed = errors.New("subscriber already registered for topic")
	// ErrClosed is returned by Subscribe after the publisher closed.
	ErrClosed = errors.New("publisher is closed")
)

// PubSub fans out published messages to subscribers. Buffered subscribers
// drop messages rather than stalling the publisher; queued subscribers
// receive every message.
type PubSub struct {
	mux    *sync.Mutex
	pid    uuid.UUID
	size   int
	closed bool
	topics map[Topic]map[uuid.UUID]chan Msg
	queues map[Topic]map[uuid.UUID]*queue
}

// NewPublisher returns a PubSub sending on behalf of pid.
func NewPublisher(pid uuid.UUID) *PubSub {
	return &PubSub{
		mux:    &sync.Mutex{},
		pid:    pid,
		size:   50,
		topics: make(map[Topic]map[uuid.UUID]chan Msg),
		queues: make(map[Topic]map[uuid.UUID]*queue),
	}
}

func (p *PubSub) subscribed(pid uuid.UUID, topic Topic) bool {
	if _, ok := p.topics[topic][pid]; ok {
		return true
	}
	_, ok := p.queues[topic][pid]
	return ok
}

// Subscribe returns a buffered channel receiving messages published on topic.
// Messages published while the buffer is full are dropped.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.subscribed(pid, topic) {
		return nil, ErrSubscribed
	}
	subs, ok := p.topics[topic]
	if !ok {
		subs = make(map[uuid.UUID]chan Msg)
		p.topics[topic] = subs
	}
	ch := make(chan Msg, p.size)
	subs[pid] = ch
	return ch, nil
}

// SubscribeQueue returns a channel receiving every message published on
// topic, in order. Undelivered messages are held without limit and still
// delivered after Close.
func (p *PubSub) SubscribeQueue(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.subscribed(pid, topic) {
		return nil, ErrSubscribed
	}
	subs, ok := p.queues[topic]
	if !ok {
		subs = make(map[uuid.UUID]*queue)
		p.queues[topic] = subs
	}
	q := newQueue()
	subs[pid] = q
	return q.out, nil
}

// Unsubscribe closes every channel held by pid. Queued messages not yet
// received are discarded.
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, subs := range p.topics {
		if ch, ok := subs[pid]; ok {
			delete(subs, pid)
			close(ch)
		}
	}
	for _, subs := range p.queues {
		if q, ok := subs[pid]; ok {
			delete(subs, pid)
			q.cancel()
		}
	}
}

// Publish sends payload to every subscriber of topic without blocking.
// It returns the number of buffered subscribers that missed the message.
func (p *PubSub) Publish(topic Topic, payload interface{}) int {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return 0
	}
	dropped := 0
	m := New(p.pid, topic, payload)
	for _, ch := range p.topics[topic] {
		select {
		case ch <- m:
		default:
			dropped++
		}
	}
	for _, q := range p.queues[topic] {
		q.push(m)
	}
	return dropped
}

// Close ends publishing. Buffered subscribers are closed at once; queued
// subscribers are closed after their backlog is received. Later subscriptions
// fail with ErrClosed.
func (p *PubSub) Close() {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for topic, subs := range p.topics {
		for pid, ch := range subs {
			delete(subs, pid)
			close(ch)
		}
		delete(p.topics, topic)
	}
	for _, subs := range p.queues {
		for _, q := range subs {
			q.finish()
		}
	}
}
