package txcache

import (
	"context"

	"github.com/ValentinKolb/txcache/lib/keys"
)

// Backend is the remote side of a transaction: a read-your-writes view of the
// database that performs the reads the cache cannot answer and buffers the
// writes until commit.
//
// GetKey clamps its result to ["", keys.KeyspaceEnd]. GetRange returns at most
// opts.Limit pairs (all if zero) in read order and sets More when it stopped
// because of the limit.
type Backend interface {
	Get(ctx context.Context, key []byte) (value []byte, exists bool, err error)
	GetKey(ctx context.Context, sel keys.KeySelector) ([]byte, error)
	GetRange(ctx context.Context, begin, end keys.KeySelector, opts keys.RangeOptions) (keys.RangeResult, error)

	Set(ctx context.Context, key, value []byte) error
	Clear(ctx context.Context, key []byte) error
	ClearRange(ctx context.Context, begin, end []byte) error

	AddReadConflictRange(ctx context.Context, begin, end []byte) error
	AddWriteConflictRange(ctx context.Context, begin, end []byte) error
}

// Committer is implemented by backends that can commit the buffered writes.
type Committer interface {
	Commit(ctx context.Context) error
}

// Aborter is implemented by backends that hold resources for an open
// transaction and can release them early.
type Aborter interface {
	Abort(ctx context.Context) error
}
