// Package store is the durable journal for the Account sequence and the
// active cursor. It is grounded on the teacher's sdk/auth file-backed
// token store (sync.Mutex-guarded, path-resolved, JSON-encoded) but adds
// the write-temp-then-rename atomicity the spec requires and splits the
// accounts file and the cursor file behind two independent locks.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/acctproxy/internal/model"
)

const (
	accountsFileName = "accounts.json"
	cursorFileName   = "cursor"
)

// Store persists Accounts and the cursor under a directory. Two
// independent serializing mutexes guard the two files; any operation
// that must touch both acquires accountsMu before cursorMu, a fixed
// order chosen once and never reversed, to avoid deadlock.
type Store struct {
	dir string

	accountsMu sync.Mutex
	cursorMu   sync.Mutex

	watcher *fsnotify.Watcher

	snapMu sync.RWMutex
	snap   []*model.Account
}

// New creates a Store rooted at dir. dir is created lazily on first
// write, not here.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) accountsPath() string { return filepath.Join(s.dir, accountsFileName) }
func (s *Store) cursorPath() string   { return filepath.Join(s.dir, cursorFileName) }

// writeFileAtomic writes data to a sibling temp file then renames it
// over path, so a crash between the two leaves the prior content intact.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// ReadAccounts returns the persisted Account sequence. A missing or
// unparsable file degrades to an empty sequence rather than an error,
// per the spec's read-failure semantics.
func (s *Store) ReadAccounts() []*model.Account {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	return s.readAccountsLocked()
}

func (s *Store) readAccountsLocked() []*model.Account {
	data, err := os.ReadFile(s.accountsPath())
	if err != nil {
		return []*model.Account{}
	}
	var seq []*model.Account
	if err := json.Unmarshal(data, &seq); err != nil {
		log.WithError(err).Warn("store: accounts file unparsable, treating as empty")
		return []*model.Account{}
	}
	return seq
}

// WriteAccounts persists seq atomically. I/O errors propagate to the
// caller and leave on-disk state unchanged.
func (s *Store) WriteAccounts(seq []*model.Account) error {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	return s.writeAccountsLocked(seq)
}

func (s *Store) writeAccountsLocked(seq []*model.Account) error {
	if seq == nil {
		seq = []*model.Account{}
	}
	data, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.accountsPath(), data, 0o600); err != nil {
		return err
	}
	s.setSnapshot(seq)
	return nil
}

// ReadCursor returns the persisted cursor, 0 on missing/garbled input.
func (s *Store) ReadCursor() int {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	return s.readCursorLocked()
}

func (s *Store) readCursorLocked() int {
	data, err := os.ReadFile(s.cursorPath())
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// WriteCursor persists i atomically.
func (s *Store) WriteCursor(i int) error {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	return s.writeCursorLocked(i)
}

func (s *Store) writeCursorLocked(i int) error {
	return writeFileAtomic(s.cursorPath(), []byte(strconv.Itoa(i)), 0o600)
}

// Update does a read-modify-write of a single Account by id; a no-op
// if id is absent. mutator may return false to skip the write (e.g. no
// change was made).
func (s *Store) Update(id string, mutator func(a *model.Account) bool) error {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	seq := s.readAccountsLocked()
	for _, a := range seq {
		if a.ID != id {
			continue
		}
		if !mutator(a) {
			return nil
		}
		return s.writeAccountsLocked(seq)
	}
	return nil
}

// Remove deletes the Account with the given id, if present.
func (s *Store) Remove(id string) error {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	seq := s.readAccountsLocked()
	out := seq[:0]
	found := false
	for _, a := range seq {
		if a.ID == id {
			found = true
			continue
		}
		out = append(out, a)
	}
	if !found {
		return nil
	}
	return s.writeAccountsLocked(out)
}

// Append adds a new Account to the end of the sequence (insertion order
// is semantically meaningful for round-robin tie-breaks).
func (s *Store) Append(a *model.Account) error {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	seq := s.readAccountsLocked()
	for _, existing := range seq {
		if existing.ID == a.ID {
			return nil
		}
	}
	seq = append(seq, a)
	return s.writeAccountsLocked(seq)
}

func (s *Store) setSnapshot(seq []*model.Account) {
	s.snapMu.Lock()
	s.snap = model.CloneSeq(seq)
	s.snapMu.Unlock()
}

// Snapshot returns the in-memory cached copy of the accounts file,
// refreshed on every write and (when watching is enabled) on every
// detected out-of-band edit. Falls back to a direct read if no
// snapshot has been populated yet.
func (s *Store) Snapshot() []*model.Account {
	s.snapMu.RLock()
	if s.snap != nil {
		out := model.CloneSeq(s.snap)
		s.snapMu.RUnlock()
		return out
	}
	s.snapMu.RUnlock()
	return s.ReadAccounts()
}

// WatchForExternalEdits starts an fsnotify watch on the accounts file
// so an operator hand-edit is reflected in Snapshot without a restart.
// It does not change the write path's locking contract; it only
// refreshes the read-side cache. Returns a stop function.
func (s *Store) WatchForExternalEdits() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return nil, err
	}
	s.watcher = w
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != accountsFileName {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				s.setSnapshot(s.ReadAccounts())
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WithError(werr).Warn("store: watch error")
			case <-done:
				return
			}
		}
	}()
	return func() { close(done); w.Close() }, nil
}
