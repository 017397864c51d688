package lstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/txcache/lib/db"
	"github.com/ValentinKolb/txcache/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/afero"
)

// Logger is the package logger.
var Logger = logger.GetLogger("store")

// LocalStore is a store.IStore whose content can be saved to and loaded from
// a snapshot file.
type LocalStore interface {
	store.IStore

	// Save writes the committed state to path. The file is replaced
	// atomically by writing a temporary file first.
	Save(fs afero.Fs, path string) (err error)

	// Load replaces the committed state with the content of path.
	Load(fs afero.Fs, path string) (err error)
}

// Metadata is the DatabaseInfo.Metadata reported by a local store.
type Metadata struct {
	Engine           interface{} `json:"engine"`
	CommittedVersion uint64      `json:"committed_version"`
	OpenTransactions int64       `json:"open_transactions"`
}

type storeImpl struct {
	db db.KVDB

	// commitMu serializes commits and the clones taken by new transactions,
	// so a transaction never sees half of a commit
	commitMu sync.Mutex
	version  atomic.Uint64
	open     atomic.Int64
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
func NewLocalStore(factory store.DBFactory) LocalStore {
	s := &storeImpl{db: factory()}
	s.version.Store(s.db.WriteIdx())
	return s
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) NewTransaction(ctx context.Context) (store.ITransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.db.SupportsFeature(db.FeatureClone | db.FeatureScan) {
		return nil, store.NewError(store.RetCUnsupportedOperation, "transactions need Clone and Scan support")
	}

	s.commitMu.Lock()
	view := s.db.Clone()
	readVersion := s.version.Load()
	s.commitMu.Unlock()

	s.open.Add(1)
	Logger.Debugf("transaction opened at version %d", readVersion)

	return &transaction{
		store:       s,
		view:        view,
		readVersion: readVersion,
	}, nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	info := s.db.GetInfo()
	info.Metadata = &Metadata{
		Engine:           info.Metadata,
		CommittedVersion: s.version.Load(),
		OpenTransactions: s.open.Load(),
	}
	return info, nil
}

// commit applies the write log of a transaction as a new version.
func (s *storeImpl) commit(log []mutation) uint64 {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	version := s.version.Add(1)
	for _, m := range log {
		m.apply(s.db, version)
	}
	s.db.SetWriteIdx(version)
	return version
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

func (s *storeImpl) Save(fs afero.Fs, path string) error {
	s.commitMu.Lock()
	clone := s.db.Clone()
	s.commitMu.Unlock()
	defer clone.Close()

	tmp := path + ".tmp"
	f, err := fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := clone.Save(f); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmp)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	Logger.Infof("saved snapshot of version %d to %s", clone.WriteIdx(), path)
	return nil
}

func (s *storeImpl) Load(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if err := s.db.Load(f); err != nil {
		return fmt.Errorf("load snapshot %s: %w", path, err)
	}

	// versions keep increasing across restarts
	if idx := s.db.WriteIdx(); idx > s.version.Load() {
		s.version.Store(idx)
	}

	Logger.Infof("loaded snapshot of version %d from %s (%d keys)", s.db.WriteIdx(), path, s.db.Len())
	return nil
}
