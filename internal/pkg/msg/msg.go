package msg

import "github.com/google/uuid"

// Topic identifies the kind of payload carried by a Msg.
type Topic int

const (
	// Status carries a completed-step report.Frame.
	Status Topic = iota
	// Accounting carries an Update (or its text form).
	Accounting
	// Register carries a Registration.
	Register
)

func (t Topic) String() string {
	switch t {
	case Status:
		return "status"
	case Accounting:
		return "accounting"
	case Register:
		return "register"
	default:
		return "unknown"
	}
}

// Publisher is an interface for objects that allow subscription to their events
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Receiver accepts messages from other simulation objects.
type Receiver interface {
	Notify(Msg) error
}

// Msg is the envelope passed between simulation objects.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the message topic
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data
func (v Msg) Payload() interface{} {
	return v.payload
}
