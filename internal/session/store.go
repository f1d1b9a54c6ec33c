package session

import "context"

// Store persists at most one session for the running client.
//
// Load returns (nil, nil) when no session exists or when the stored data is
// malformed; malformed data is cleared as a side effect. An error is returned
// only when the underlying storage cannot be read.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context) (*Session, error)
	Clear(ctx context.Context) error
}
