package txcache

import "errors"

var (
	// ErrInconsistentRead is returned when the backend reports a value for a
	// key that differs from what the same transaction observed before. The
	// backend broke its snapshot guarantee and the transaction must not
	// continue.
	ErrInconsistentRead = errors.New("txcache: backend returned a value inconsistent with an earlier read")

	// ErrTransactionDone is returned by every operation after Commit or Abort.
	ErrTransactionDone = errors.New("txcache: transaction already committed or aborted")
)
