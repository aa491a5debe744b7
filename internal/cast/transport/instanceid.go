package transport

import "github.com/google/uuid"

// newInstanceID returns a short correlation id for one Manager's lifetime,
// attached to its log lines so multiple connections can be told apart. It
// never touches the wire; it is purely a logging convenience.
func newInstanceID() string {
	return uuid.NewString()
}
