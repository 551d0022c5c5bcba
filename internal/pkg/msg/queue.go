package msg

import "sync"

// queue holds messages for one subscriber that must see every message. The
// publisher only appends; a goroutine delivers in order.
type queue struct {
	mux      sync.Mutex
	pending  []Msg
	finished bool
	wake     chan struct{}
	stop     chan struct{}
	out      chan Msg
}

func newQueue() *queue {
	q := &queue{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		out:  make(chan Msg),
	}
	go q.run()
	return q
}

func (q *queue) push(m Msg) {
	q.mux.Lock()
	q.pending = append(q.pending, m)
	q.mux.Unlock()
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// finish closes the output once every pending message is delivered.
func (q *queue) finish() {
	q.mux.Lock()
	q.finished = true
	q.mux.Unlock()
	q.signal()
}

// cancel drops anything pending and closes the output.
func (q *queue) cancel() {
	close(q.stop)
}

// backlog is the number of undelivered messages.
func (q *queue) backlog() int {
	q.mux.Lock()
	defer q.mux.Unlock()
	return len(q.pending)
}

func (q *queue) run() {
	defer close(q.out)
	for {
		select {
		case <-q.stop:
			return
		default:
		}
		q.mux.Lock()
		if len(q.pending) == 0 {
			finished := q.finished
			q.mux.Unlock()
			if finished {
				return
			}
			select {
			case <-q.wake:
			case <-q.stop:
				return
			}
			continue
		}
		m := q.pending[0]
		q.pending[0] = Msg{}
		q.pending = q.pending[1:]
		q.mux.Unlock()

		select {
		case q.out <- m:
		case <-q.stop:
			return
		}
	}
}
