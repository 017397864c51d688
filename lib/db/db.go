package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplBTree Implementation = "btree"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureSet         Feature = 1 << iota // Support for Set operations
	FeatureGet                             // Support for Get operations
	FeatureDelete                          // Support for Delete operations
	FeatureDeleteRange                     // Support for DeleteRange operations
	FeatureHas                             // Support for Has operations
	FeatureScan                            // Support for Ascend and Descend
	FeatureClone                           // Support for Clone operations
	FeatureSave                            // Support for Save operations
	FeatureLoad                            // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureDeleteRange:
		return "DeleteRange"
	case FeatureHas:
		return "Has"
	case FeatureScan:
		return "Scan"
	case FeatureClone:
		return "Clone"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	Keys              int            `json:"keys"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// Visitor is called for every pair of a scan in scan order. Returning false
// stops the scan. key and value must not be retained or modified.
type Visitor func(key, value []byte) bool

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for ordered key-value database implementations.
// Keys are arbitrary byte strings compared lexicographically. The empty key is
// a valid key.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates the entry for key. The value is copied.
	// The writeIndex parameter is used as a logical timestamp for the entry.
	Set(key, value []byte, writeIndex uint64)

	// Delete removes the entry for key if it exists.
	Delete(key []byte, writeIndex uint64)

	// DeleteRange removes every entry with begin <= key < end.
	// Nothing happens if begin >= end.
	DeleteRange(begin, end []byte, writeIndex uint64)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves a copy of the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	Get(key []byte) (value []byte, loaded bool)

	// Has checks whether a key exists in the database.
	Has(key []byte) (loaded bool)

	// Ascend calls fn for every entry with begin <= key < end in ascending
	// order. A nil end means no upper bound.
	Ascend(begin, end []byte, fn Visitor)

	// Descend calls fn for every entry with begin <= key < end in descending
	// order. A nil end means no upper bound.
	Descend(begin, end []byte, fn Visitor)

	// Len returns the number of entries.
	Len() int

	// Clone returns an independent database with the current content. Writes
	// to either database are not visible in the other one.
	Clone() KVDB

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load replaces the database state with the data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Returns true if the feature is supported, false otherwise.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Write Index Operations
	// --------------------------------------------------------------------------

	// SetWriteIdx sets the current index of the database only if the provided index is greater than the current index.
	SetWriteIdx(index uint64)

	// WriteIdx returns the current index of the database.
	WriteIdx() (index uint64)

	// Close closes the database.
	Close() (err error)
}
