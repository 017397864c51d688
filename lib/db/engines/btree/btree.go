package btree

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/txcache/lib/db"
	"github.com/google/btree"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum      = "TXBTREE\x00" // File format identifier
	formatVersion = 1             // File format version
	defaultDegree = 32            // B-tree node degree
	entryOverhead = 24            // Bytes accounted per entry besides key and value
)

// item is a single entry of the tree. Items are immutable once inserted,
// which lets clones share them.
type item struct {
	key   []byte
	value []byte
	index uint64 // write index of the last Set
}

func less(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// --------------------------------------------------------------------------
// Core database structure
// --------------------------------------------------------------------------

type btreeImpl struct {
	mu        sync.RWMutex
	tree      *btree.BTreeG[item]
	degree    int
	sizeBytes int
	currIndex atomic.Uint64
}

// DBOptions configures the database during initialization
type DBOptions struct {
	Degree int // B-tree node degree (0 = default)
}

// DefaultOptions returns the default options
func DefaultOptions() *DBOptions {
	return &DBOptions{Degree: defaultDegree}
}

// NewBTreeDB creates a new empty database with the specified options (optional).
func NewBTreeDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	degree := opts.Degree
	if degree < 2 {
		degree = defaultDegree
	}
	return &btreeImpl{tree: btree.NewG[item](degree, less), degree: degree}
}

func itemSize(it item) int {
	return len(it.key) + len(it.value) + entryOverhead
}

// --------------------------------------------------------------------------
// KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates the entry for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (b *btreeImpl) Set(key, value []byte, writeIndex uint64) {
	b.SetWriteIdx(writeIndex)

	// copy both to prevent memory corruption by the caller
	it := item{
		key:   append(make([]byte, 0, len(key)), key...),
		value: append(make([]byte, 0, len(value)), value...),
		index: writeIndex,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if old, replaced := b.tree.ReplaceOrInsert(it); replaced {
		b.sizeBytes -= itemSize(old)
	}
	b.sizeBytes += itemSize(it)
}

// Delete removes the entry for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (b *btreeImpl) Delete(key []byte, writeIndex uint64) {
	b.SetWriteIdx(writeIndex)

	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.tree.Delete(item{key: key}); ok {
		b.sizeBytes -= itemSize(old)
	}
}

// DeleteRange removes every entry in [begin, end).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (b *btreeImpl) DeleteRange(begin, end []byte, writeIndex uint64) {
	b.SetWriteIdx(writeIndex)

	if bytes.Compare(begin, end) >= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// the tree must not be modified while it is iterated
	var doomed []item
	b.tree.AscendRange(item{key: begin}, item{key: end}, func(it item) bool {
		doomed = append(doomed, it)
		return true
	})
	for _, it := range doomed {
		b.tree.Delete(it)
		b.sizeBytes -= itemSize(it)
	}
}

// --------------------------------------------------------------------------
// KVDB Interface Methods - Query Operations
// --------------------------------------------------------------------------

// Get returns a copy of the value for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (b *btreeImpl) Get(key []byte) ([]byte, bool) {
	b.mu.RLock()
	it, ok := b.tree.Get(item{key: key})
	b.mu.RUnlock()

	if !ok {
		return nil, false
	}
	return append(make([]byte, 0, len(it.value)), it.value...), true
}

// Has reports whether key exists.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (b *btreeImpl) Has(key []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tree.Has(item{key: key})
}

// Ascend visits [begin, end) in ascending order.
//
// Thread-safety: The read lock is held during the scan, fn must not write
// to the database.
func (b *btreeImpl) Ascend(begin, end []byte, fn db.Visitor) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	visit := func(it item) bool {
		return fn(it.key, it.value)
	}
	if end == nil {
		b.tree.AscendGreaterOrEqual(item{key: begin}, visit)
		return
	}
	if bytes.Compare(begin, end) < 0 {
		b.tree.AscendRange(item{key: begin}, item{key: end}, visit)
	}
}

// Descend visits [begin, end) in descending order.
//
// Thread-safety: The read lock is held during the scan, fn must not write
// to the database.
func (b *btreeImpl) Descend(begin, end []byte, fn db.Visitor) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	visit := func(it item) bool {
		if bytes.Compare(it.key, begin) < 0 {
			return false
		}
		return fn(it.key, it.value)
	}
	if end == nil {
		b.tree.Descend(visit)
		return
	}
	if bytes.Compare(begin, end) >= 0 {
		return
	}
	b.tree.DescendLessOrEqual(item{key: end}, func(it item) bool {
		if bytes.Equal(it.key, end) {
			return true
		}
		return visit(it)
	})
}

// Len returns the number of entries.
func (b *btreeImpl) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tree.Len()
}

// Clone returns a copy-on-write clone. Nodes are shared until one of the
// two trees writes to them.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (b *btreeImpl) Clone() db.KVDB {
	// Clone modifies the copy-on-write state of the receiver
	b.mu.Lock()
	defer b.mu.Unlock()

	clone := &btreeImpl{
		tree:      b.tree.Clone(),
		degree:    b.degree,
		sizeBytes: b.sizeBytes,
	}
	clone.currIndex.Store(b.currIndex.Load())
	return clone
}

// --------------------------------------------------------------------------
// KVDB Interface Methods - Persistence
// --------------------------------------------------------------------------

// Save writes all entries in key order to w.
//
// Thread-safety: Save works on a clone and does not block writers.
func (b *btreeImpl) Save(w io.Writer) error {
	snap := b.Clone().(*btreeImpl)
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(formatVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, snap.currIndex.Load()); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(snap.tree.Len())); err != nil {
		return err
	}

	var err error
	snap.tree.Ascend(func(it item) bool {
		err = writeItem(bw, it)
		return err == nil
	})
	if err != nil {
		return err
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

func writeItem(w io.Writer, it item) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(it.key))); err != nil {
		return err
	}
	if _, err := w.Write(it.key); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, it.index); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(it.value))); err != nil {
		return err
	}
	_, err := w.Write(it.value)
	return err
}

// Load replaces the database content with the entries read from r. On error
// the database is left unchanged.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (b *btreeImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != formatVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, formatVersion)
	}

	var writeIndex, count uint64
	if err := binary.Read(br, binary.LittleEndian, &writeIndex); err != nil {
		return err
	}
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	tree := btree.NewG[item](b.degree, less)
	size := 0
	for i := uint64(0); i < count; i++ {
		it, err := readItem(br)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		tree.ReplaceOrInsert(it)
		size += itemSize(it)
	}

	b.mu.Lock()
	b.tree, b.sizeBytes = tree, size
	b.mu.Unlock()
	b.SetWriteIdx(writeIndex)

	return nil
}

func readItem(r io.Reader) (item, error) {
	var it item

	var keyLen uint32
	if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return it, err
	}
	it.key = make([]byte, keyLen)
	if _, err := io.ReadFull(r, it.key); err != nil {
		return it, err
	}
	if err := binary.Read(r, binary.LittleEndian, &it.index); err != nil {
		return it, err
	}
	var valueLen uint32
	if err := binary.Read(r, binary.LittleEndian, &valueLen); err != nil {
		return it, err
	}
	it.value = make([]byte, valueLen)
	_, err := io.ReadFull(r, it.value)
	return it, err
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (b *btreeImpl) GetInfo() db.DatabaseInfo {
	b.mu.RLock()
	size, count := b.sizeBytes, b.tree.Len()
	var first, last []byte
	if it, ok := b.tree.Min(); ok {
		first = it.key
	}
	if it, ok := b.tree.Max(); ok {
		last = it.key
	}
	b.mu.RUnlock()

	meta := &struct {
		CurrentWriteIndex uint64 `json:"current_write_index"`
		FirstKey          []byte `json:"first_key"`
		LastKey           []byte `json:"last_key"`
	}{
		CurrentWriteIndex: b.currIndex.Load(),
		FirstKey:          first,
		LastKey:           last,
	}

	supportedFeatures := []db.Feature{
		db.FeatureSet, db.FeatureGet, db.FeatureHas,
		db.FeatureDelete, db.FeatureDeleteRange,
		db.FeatureScan, db.FeatureClone,
		db.FeatureSave, db.FeatureLoad,
	}

	return db.DatabaseInfo{
		SizeBytes:         size,
		Keys:              count,
		DbType:            db.ImplBTree,
		SupportedFeatures: supportedFeatures,
		Metadata:          meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (b *btreeImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureGet |
		db.FeatureHas |
		db.FeatureDelete |
		db.FeatureDeleteRange |
		db.FeatureScan |
		db.FeatureClone |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// Close releases the tree.
func (b *btreeImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Index and Timestamp Management
// --------------------------------------------------------------------------

// SetWriteIdx updates the current index if newIdx is greater.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (b *btreeImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := b.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if b.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (b *btreeImpl) WriteIdx() uint64 {
	return b.currIndex.Load()
}
