package store

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/txcache/lib/db"
	"github.com/ValentinKolb/txcache/lib/keys"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// IStore is the generic interface for a transactional ordered key–value store.
type IStore interface {
	// NewTransaction starts a transaction that reads the state of the latest
	// commit plus its own writes.
	NewTransaction(ctx context.Context) (tx ITransaction, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
}

// ITransaction is a single store transaction. Reads see the transaction's own
// writes. Writes become visible to other transactions on Commit.
//
// Keys starting with 0xff are outside the legal range: writing them fails
// with RetCIllegalKey. Selectors resolve within ["", "\xff"].
// After Commit or Abort every method fails with ErrTransactionClosed.
type ITransaction interface {
	// Get returns the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(ctx context.Context, key []byte) (value []byte, loaded bool, err error)
	// GetKey resolves a key selector to an absolute key.
	GetKey(ctx context.Context, sel keys.KeySelector) (key []byte, err error)
	// GetRange returns the pairs between two key selectors. If opts.Limit is
	// reached and more pairs follow, More is set.
	GetRange(ctx context.Context, begin, end keys.KeySelector, opts keys.RangeOptions) (result keys.RangeResult, err error)
	// Set inserts or updates a key–value pair.
	Set(ctx context.Context, key, value []byte) (err error)
	// Clear removes a key.
	Clear(ctx context.Context, key []byte) (err error)
	// ClearRange removes every key in [begin, end).
	ClearRange(ctx context.Context, begin, end []byte) (err error)
	// AddReadConflictRange records [begin, end) as read by the transaction.
	AddReadConflictRange(ctx context.Context, begin, end []byte) (err error)
	// AddWriteConflictRange records [begin, end) as written by the transaction.
	AddWriteConflictRange(ctx context.Context, begin, end []byte) (err error)
	// Commit makes the writes visible and closes the transaction.
	Commit(ctx context.Context) (err error)
	// Abort discards the writes and closes the transaction.
	Abort(ctx context.Context) (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("KVStoreError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is a store error with the same code, so
// errors.Is works on errors rebuilt from the wire.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new KVStoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Sentinel errors for errors.Is checks.
var (
	ErrTransactionClosed  = NewError(RetCTransactionClosed, "transaction is closed")
	ErrIllegalKey         = NewError(RetCIllegalKey, "key outside legal range")
	ErrUnknownTransaction = NewError(RetCUnknownTransaction, "unknown transaction")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCIllegalKey                          // 4: Key outside the legal range.
	RetCTransactionClosed                   // 5: The transaction was committed or aborted.
	RetCUnknownTransaction                  // 6: The server holds no transaction with that id.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCIllegalKey:
		return "IllegalKey"
	case RetCTransactionClosed:
		return "TransactionClosed"
	case RetCUnknownTransaction:
		return "UnknownTransaction"
	default:
		return "Unknown"
	}
}
