package connection

import (
	"errors"

	"github.com/anitogether/relay/pkg/protocol"
)

var (
	ErrAlreadyExists = errors.New("connection already exists")
	ErrNotFound      = errors.New("connection not found")
)

// Conn is the outbound side of a live transport connection.
type Conn interface {
	Id() string
	Send(v any) error
	Close(code int, reason string)
}

type Entry struct {
	Conn     Conn
	Identity protocol.Identity
}
