package msg

import "github.com/google/uuid"

// Capability tags checked during registration.
const (
	KindIntertie    = "intertie"
	KindControlArea = "controlarea"
)

// Registrant is an object that can join an interconnection.
type Registrant interface {
	PID() uuid.UUID
	Name() string
	IsA(kind string) bool
}

// Registration asks the receiver to add Object to its Kind list.
type Registration struct {
	Kind   string
	Object Registrant
}
