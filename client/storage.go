package client

import (
	"context"
	"errors"
)

// Keys under which the session is persisted.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// ErrNoSession is returned by Storage.Load when nothing is persisted.
var ErrNoSession = errors.New("no persisted session")

// Storage is durable client-side storage for the token/user pair. Save and
// Clear write both keys together; implementations must never leave one key
// updated without the other.
type Storage interface {
	Load(ctx context.Context) (token, user string, err error)
	Save(ctx context.Context, token, user string) error
	Clear(ctx context.Context) error
}
