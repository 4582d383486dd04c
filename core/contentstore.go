package core

// contentstore.go – the content-addressed blob interface the core
// consumes: a plain filesystem blockstore, content addressed via a
// CIDv1/raw/sha2-256 multihash. Logging uses zap rather than logrus here,
// keeping logrus for ledger-state mutations and zap for the storage
// boundary.

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"go.uber.org/zap"
)

// Address is an opaque, stable, content-derived identifier. It is the
// string form of a CIDv1/raw/sha2-256 multihash.
type Address string

// ContentStore is the interface the core depends on.
type ContentStore interface {
	Store(blob []byte) (Address, error)
	Retrieve(address Address) ([]byte, bool, error)
	Has(address Address) bool
	Pin(address Address) error
	Unpin(address Address) error
}

// FileContentStore is a filesystem-backed blockstore: one file per address
// under dir, with a pinset tracked in memory.
type FileContentStore struct {
	mu     sync.Mutex
	dir    string
	pins   map[Address]struct{}
	logger *zap.SugaredLogger
}

// NewFileContentStore creates (if needed) dir and wires a FileContentStore
// over it.
func NewFileContentStore(dir string, logger *zap.Logger) (*FileContentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapErr(ErrIoFailure, "create content store directory", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileContentStore{
		dir:    dir,
		pins:   make(map[Address]struct{}),
		logger: logger.Sugar(),
	}, nil
}

// addressOf computes the CIDv1/raw/sha2-256 address of blob, so two
// deployments sharing a hash scheme canonicalize identically.
func addressOf(blob []byte) (Address, error) {
	sum, err := mh.Sum(blob, mh.SHA2_256, -1)
	if err != nil {
		return "", wrapErr(ErrIoFailure, "compute multihash", err)
	}
	c := cid.NewCidV1(cid.Raw, sum)
	return Address(c.String()), nil
}

func (s *FileContentStore) path(addr Address) string {
	return filepath.Join(s.dir, string(addr))
}

// Store hashes blob's canonical serialization and persists it, returning
// its address. Storing the same bytes twice is a no-op past the first
// write (content addressing is naturally idempotent).
func (s *FileContentStore) Store(blob []byte) (Address, error) {
	addr, err := addressOf(blob)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path(addr)); err == nil {
		return addr, nil
	}
	if err := os.WriteFile(s.path(addr), blob, 0o644); err != nil {
		return "", wrapErr(ErrIoFailure, "write blob", err)
	}
	s.logger.Infow("content store: wrote blob", "address", addr, "bytes", len(blob))
	return addr, nil
}

// Retrieve returns the blob for address, or (nil, false, nil) if absent.
func (s *FileContentStore) Retrieve(address Address) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path(address))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr(ErrIoFailure, "read blob", err)
	}
	return data, true, nil
}

// Has reports whether address is present in the store.
func (s *FileContentStore) Has(address Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.path(address))
	return err == nil
}

// Pin marks address as retained; FileContentStore never garbage-collects
// on its own, so Pin/Unpin only track intent for callers that do.
func (s *FileContentStore) Pin(address Address) error {
	if !s.Has(address) {
		return newErr(ErrUnknownCid, string(address))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins[address] = struct{}{}
	return nil
}

func (s *FileContentStore) Unpin(address Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pins, address)
	return nil
}

// IsPinned reports whether address is currently pinned.
func (s *FileContentStore) IsPinned(address Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pins[address]
	return ok
}

func (s *FileContentStore) String() string {
	return fmt.Sprintf("FileContentStore(%s)", s.dir)
}

// Purge removes address's backing file. Callers must have already archived
// the blob elsewhere (see Ledger.Archive) — once purged, Retrieve/Has
// report it absent and any chain walk reaching it fails with
// ErrUnknownCid.
func (s *FileContentStore) Purge(address Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(address)); err != nil && !os.IsNotExist(err) {
		return wrapErr(ErrIoFailure, "purge blob", err)
	}
	delete(s.pins, address)
	return nil
}
