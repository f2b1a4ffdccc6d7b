// Package store keeps the boards document in a single yaml file and mirrors it in memory.
// All mutations go through Update, which commits with the reload protocol: the changed document
// is written to disk and read back before the in-memory mirror is replaced.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Document is the root of the data file, board name -> board
type Document map[string]*Board

// Board is the persisted state of a single board
type Board struct {
	Enabled  bool                `yaml:"enabled" json:"enabled"`
	MaxVotes int                 `yaml:"max-votes" json:"max-votes" jsonschema:"minimum=0"`
	Votes    map[string][]string `yaml:"votes" json:"votes" jsonschema:"description=voter id to list of target ids"`
}

// Store owns the data file and its in-memory mirror, thread safe
type Store struct {
	file string

	lock  sync.RWMutex
	doc   Document
	mtime time.Time // modification time of the file at last load or save
	size  int64     // size of the file at last load or save
}

// PersistenceError reports a failed disk access or malformed file content
type PersistenceError struct {
	Op   string
	File string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Open makes Store for the file. Existing file is parsed, missing one is created with an empty document
func Open(file string) (*Store, error) {
	s := &Store{file: file, doc: Document{}}

	_, err := os.Stat(file)
	if err == nil {
		if err = s.Load(); err != nil {
			return nil, err
		}
		log.Printf("[INFO] loaded %d boards from %s", len(s.doc), file)
		return s, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, &PersistenceError{Op: "open", File: file, Err: err}
	}

	if err = os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
		return nil, &PersistenceError{Op: "open", File: file, Err: err}
	}
	if err = s.Save(); err != nil {
		return nil, err
	}
	log.Printf("[INFO] created empty data file %s", file)
	return s, nil
}

// Load re-parses the file, replacing the in-memory document
func (s *Store) Load() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.load()
}

// Save writes the in-memory document to the file
func (s *Store) Save() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.save(s.doc)
}

// Reload saves the document and loads it back
func (s *Store) Reload() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.save(s.doc); err != nil {
		return err
	}
	return s.load()
}

// Update runs fn on a copy of the document. If fn reports a change the copy is committed with
// save-then-load. The in-memory document is left untouched if fn or the commit fails.
func (s *Store) Update(fn func(doc Document) (changed bool, err error)) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	upd := s.doc.Clone()
	changed, err := fn(upd)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := s.save(upd); err != nil {
		return err
	}
	return s.load()
}

// View runs fn with read access to the document. fn must not modify or retain it
func (s *Store) View(fn func(doc Document)) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	fn(s.doc)
}

// File returns the location of the data file
func (s *Store) File() string {
	return s.file
}

func (s *Store) String() string {
	return s.file
}

// Watch checks the file periodically and loads it if it was modified by somebody else.
// Blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, interval time.Duration) error {
	log.Printf("[DEBUG] watch %s every %v", s.file, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			st, err := os.Stat(s.file)
			if err != nil {
				log.Printf("[WARN] can't get info about %s, %v", s.file, err)
				continue
			}
			s.lock.RLock()
			known, knownSize := s.mtime, s.size
			s.lock.RUnlock()
			if st.ModTime().Equal(known) && st.Size() == knownSize { // mtime alone misses edits on coarse clocks
				continue
			}
			log.Printf("[INFO] %s changed externally, loading", s.file)
			if err := s.Load(); err != nil {
				log.Printf("[WARN] can't load changed %s, keep previous state: %v", s.file, err)
				s.lock.Lock()
				s.mtime, s.size = st.ModTime(), st.Size() // don't retry the same broken revision
				s.lock.Unlock()
			}
		}
	}
}

// save writes doc to a temp file next to the data file and renames it over. Caller holds the lock
func (s *Store) save(doc Document) error {
	buf := bytes.Buffer{}
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return &PersistenceError{Op: "save", File: s.file, Err: err}
	}
	if err := enc.Close(); err != nil {
		return &PersistenceError{Op: "save", File: s.file, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.file), filepath.Base(s.file)+".*.tmp")
	if err != nil {
		return &PersistenceError{Op: "save", File: s.file, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err = tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return &PersistenceError{Op: "save", File: s.file, Err: err}
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return &PersistenceError{Op: "save", File: s.file, Err: err}
	}
	if err = tmp.Close(); err != nil {
		return &PersistenceError{Op: "save", File: s.file, Err: err}
	}
	if err = os.Rename(tmpName, s.file); err != nil {
		return &PersistenceError{Op: "save", File: s.file, Err: err}
	}
	if st, err := os.Stat(s.file); err == nil {
		s.mtime, s.size = st.ModTime(), st.Size()
	}
	log.Printf("[DEBUG] saved %d boards to %s", len(doc), s.file)
	return nil
}

// load parses the file and swaps the document. Caller holds the lock
func (s *Store) load() error {
	st, err := os.Stat(s.file)
	if err != nil {
		return &PersistenceError{Op: "load", File: s.file, Err: err}
	}
	data, err := os.ReadFile(s.file)
	if err != nil {
		return &PersistenceError{Op: "load", File: s.file, Err: err}
	}
	doc, err := Parse(data)
	if err != nil {
		return &PersistenceError{Op: "load", File: s.file, Err: err}
	}
	s.doc = doc
	s.mtime, s.size = st.ModTime(), st.Size()
	return nil
}

// Parse decodes and validates document content. Ids are stored in canonical form,
// duplicated targets collapsed, missing votes sections replaced by empty ones.
func Parse(data []byte) (Document, error) {
	doc := Document{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("can't parse document: %w", err)
	}
	if doc == nil { // empty file
		doc = Document{}
	}

	for name, b := range doc {
		if b == nil {
			return nil, fmt.Errorf("board %q has no content", name)
		}
		if b.MaxVotes < 0 {
			return nil, fmt.Errorf("board %q: negative max-votes %d", name, b.MaxVotes)
		}
		if b.Votes == nil {
			b.Votes = map[string][]string{}
		}
		votes, err := canonicalVotes(name, b.Votes)
		if err != nil {
			return nil, err
		}
		b.Votes = votes
	}
	return doc, nil
}

// canonicalVotes rewrites voter and target ids to the canonical uuid form. Voter keys spelled
// differently are merged and duplicated targets dropped
func canonicalVotes(board string, votes map[string][]string) (map[string][]string, error) {
	keys := make([]string, 0, len(votes))
	for voter := range votes {
		keys = append(keys, voter)
	}
	sort.Strings(keys) // merge order of colliding keys must not depend on map iteration

	res := make(map[string][]string, len(votes))
	seen := map[string]map[string]bool{}
	for _, key := range keys {
		vid, err := uuid.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("board %q: invalid voter id %q: %w", board, key, err)
		}
		voter := vid.String()
		if _, ok := res[voter]; ok {
			log.Printf("[WARN] board %q: voter %s spelled as %q merged", board, voter, key)
		} else {
			res[voter] = []string{}
			seen[voter] = map[string]bool{}
		}
		for _, t := range votes[key] {
			tid, err := uuid.Parse(t)
			if err != nil {
				return nil, fmt.Errorf("board %q: invalid target id %q of voter %s: %w", board, t, voter, err)
			}
			target := tid.String()
			if seen[voter][target] {
				log.Printf("[WARN] board %q: duplicated vote %s -> %s dropped", board, voter, target)
				continue
			}
			seen[voter][target] = true
			res[voter] = append(res[voter], target)
		}
	}
	return res, nil
}

// Names returns sorted board names
func (d Document) Names() []string {
	res := make([]string, 0, len(d))
	for name := range d {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// Clone makes a deep copy of the document
func (d Document) Clone() Document {
	res := make(Document, len(d))
	for name, b := range d {
		if b == nil {
			res[name] = nil
			continue
		}
		votes := make(map[string][]string, len(b.Votes))
		for voter, targets := range b.Votes {
			votes[voter] = append([]string{}, targets...)
		}
		res[name] = &Board{Enabled: b.Enabled, MaxVotes: b.MaxVotes, Votes: votes}
	}
	return res
}
