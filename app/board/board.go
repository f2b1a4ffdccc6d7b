// Package board implements vote boards on top of the shared document store.
// Registry is the lookup surface, Board is a light view (name + store) recreated on every lookup,
// so it never carries stale state. Every mutation is committed by store.Update before returning.
package board

import (
	"errors"
	"fmt"
	"sort"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/umputun/voteboard/app/store"
)

// DefaultMaxVotes is the cap of a newly created board
const DefaultMaxVotes = 1

var (
	// ErrNotFound returned by mutations of a board removed in the meantime
	ErrNotFound = errors.New("board not found")
	// ErrEmptyName returned on attempt to create a board without a name
	ErrEmptyName = errors.New("empty board name")
	// ErrNegativeMaxVotes returned by SetMaxVotes for values below zero
	ErrNegativeMaxVotes = errors.New("negative max votes")
	// ErrNoVotesLeft returned by AddVote if the voter has used all votes
	ErrNoVotesLeft = errors.New("no remaining votes")
)

// Registry provides access to all boards of the store
type Registry struct {
	store          *store.Store
	callerCapacity bool
}

// Option func type
type Option func(r *Registry)

// WithCallerCapacity disables capacity check inside AddVote. The caller is responsible for CanVote check
func WithCallerCapacity() Option {
	return func(r *Registry) { r.callerCapacity = true }
}

// NewRegistry makes Registry for the store
func NewRegistry(st *store.Store, opts ...Option) *Registry {
	res := &Registry{store: st}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// Names returns sorted names of all boards
func (r *Registry) Names() (res []string) {
	r.store.View(func(doc store.Document) { res = doc.Names() })
	return res
}

// Default returns the board with lexicographically smallest name, false if no boards
func (r *Registry) Default() (*Board, bool) {
	names := r.Names()
	if len(names) == 0 {
		return nil, false
	}
	return r.Get(names[0])
}

// Get returns board by exact (case-sensitive) name
func (r *Registry) Get(name string) (*Board, bool) {
	found := false
	r.store.View(func(doc store.Document) { _, found = doc[name] })
	if !found {
		return nil, false
	}
	return r.view(name), true
}

// Exists checks if board with given name is present
func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Create adds an enabled board with default cap. Does nothing if the board already exists.
// On error the board should be considered as not created.
func (r *Registry) Create(name string) (*Board, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	err := r.store.Update(func(doc store.Document) (bool, error) {
		if _, ok := doc[name]; ok {
			return false, nil
		}
		doc[name] = &store.Board{Enabled: true, MaxVotes: DefaultMaxVotes, Votes: map[string][]string{}}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("can't create board %q: %w", name, err)
	}
	log.Printf("[INFO] board %q created", name)
	return r.view(name), nil
}

func (r *Registry) view(name string) *Board {
	return &Board{name: name, store: r.store, callerCapacity: r.callerCapacity}
}

// Board is a view of a single board. Reads go to the current document, writes are committed immediately
type Board struct {
	name           string
	store          *store.Store
	callerCapacity bool
}

// Total is a number of votes for a target
type Total struct {
	Target uuid.UUID
	Votes  int
}

// Name of the board
func (b *Board) Name() string {
	return b.name
}

// Enabled returns true if voting on the board is allowed
func (b *Board) Enabled() (res bool) {
	b.read(func(sb *store.Board) { res = sb.Enabled })
	return res
}

// SetEnabled changes enabled state
func (b *Board) SetEnabled(enabled bool) error {
	return b.update("set enabled", func(sb *store.Board) bool {
		if sb.Enabled == enabled {
			return false
		}
		sb.Enabled = enabled
		return true
	})
}

// MaxVotes returns max number of targets a single voter may vote for
func (b *Board) MaxVotes() (res int) {
	b.read(func(sb *store.Board) { res = sb.MaxVotes })
	return res
}

// SetMaxVotes changes the cap. Lowering it below current usage keeps existing votes
// and only blocks new ones.
func (b *Board) SetMaxVotes(maxVotes int) error {
	if maxVotes < 0 {
		return fmt.Errorf("board %q, %d: %w", b.name, maxVotes, ErrNegativeMaxVotes)
	}
	return b.update("set max votes", func(sb *store.Board) bool {
		if sb.MaxVotes == maxVotes {
			return false
		}
		sb.MaxVotes = maxVotes
		return true
	})
}

// Delete removes the board with all votes. Safe to call multiple times
func (b *Board) Delete() error {
	err := b.store.Update(func(doc store.Document) (bool, error) {
		if _, ok := doc[b.name]; !ok {
			return false, nil
		}
		delete(doc, b.name)
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("can't delete board %q: %w", b.name, err)
	}
	log.Printf("[INFO] board %q deleted", b.name)
	return nil
}

// VotesOf returns targets the voter voted for, sorted. Empty if the voter never voted
func (b *Board) VotesOf(voter uuid.UUID) []uuid.UUID {
	res := []uuid.UUID{}
	b.read(func(sb *store.Board) {
		for _, t := range sb.Votes[voter.String()] {
			if id, err := uuid.Parse(t); err == nil {
				res = append(res, id)
			}
		}
	})
	sortIDs(res)
	return res
}

// TotalVotesOf returns number of votes cast by the voter
func (b *Board) TotalVotesOf(voter uuid.UUID) (res int) {
	b.read(func(sb *store.Board) { res = len(sb.Votes[voter.String()]) })
	return res
}

// RemainingVotesOf returns max votes minus used votes. Negative if the cap was lowered below usage
func (b *Board) RemainingVotesOf(voter uuid.UUID) (res int) {
	b.read(func(sb *store.Board) { res = sb.MaxVotes - len(sb.Votes[voter.String()]) })
	return res
}

// CanVote checks if the voter has votes left
func (b *Board) CanVote(voter uuid.UUID) bool {
	return b.RemainingVotesOf(voter) > 0
}

// HasVoted checks if the voter voted for the target
func (b *Board) HasVoted(voter, target uuid.UUID) (res bool) {
	b.read(func(sb *store.Board) { res = contains(sb.Votes[voter.String()], target.String()) })
	return res
}

// AddVote records vote of voter for target. Repeated vote is ignored.
// Returns ErrNoVotesLeft if the voter used all votes, unless the registry made WithCallerCapacity.
func (b *Board) AddVote(voter, target uuid.UUID) error {
	v, t := voter.String(), target.String()
	return b.updateErr("add vote", func(sb *store.Board) (bool, error) {
		votes := sb.Votes[v]
		if contains(votes, t) {
			return false, nil
		}
		if !b.callerCapacity && sb.MaxVotes-len(votes) <= 0 {
			return false, ErrNoVotesLeft
		}
		sb.Votes[v] = append(votes, t)
		return true, nil
	})
}

// RemoveVote removes vote of voter for target, does nothing if there is no such vote
func (b *Board) RemoveVote(voter, target uuid.UUID) error {
	v, t := voter.String(), target.String()
	return b.update("remove vote", func(sb *store.Board) bool {
		votes := sb.Votes[v]
		if !contains(votes, t) {
			return false
		}
		res := make([]string, 0, len(votes)-1)
		for _, vt := range votes {
			if vt != t {
				res = append(res, vt)
			}
		}
		if len(res) == 0 {
			delete(sb.Votes, v)
			return true
		}
		sb.Votes[v] = res
		return true
	})
}

// AllVotes returns a snapshot of voter -> sorted targets
func (b *Board) AllVotes() map[uuid.UUID][]uuid.UUID {
	res := map[uuid.UUID][]uuid.UUID{}
	b.read(func(sb *store.Board) {
		for v, targets := range sb.Votes {
			voter, err := uuid.Parse(v)
			if err != nil || len(targets) == 0 {
				continue
			}
			ids := make([]uuid.UUID, 0, len(targets))
			for _, t := range targets {
				if id, err := uuid.Parse(t); err == nil {
					ids = append(ids, id)
				}
			}
			sortIDs(ids)
			res[voter] = ids
		}
	})
	return res
}

// TargetTotals returns number of distinct voters for every target voted for
func (b *Board) TargetTotals() map[uuid.UUID]int {
	res := map[uuid.UUID]int{}
	for _, targets := range b.AllVotes() {
		for _, t := range targets {
			res[t]++
		}
	}
	return res
}

// VotesFor returns number of voters voted for the target
func (b *Board) VotesFor(target uuid.UUID) int {
	return b.TargetTotals()[target]
}

// TotalVotes returns number of all votes on the board
func (b *Board) TotalVotes() (res int) {
	for _, n := range b.TargetTotals() {
		res += n
	}
	return res
}

// Totals returns per target totals ordered by number of votes (desc), then by target id
func (b *Board) Totals() []Total {
	totals := b.TargetTotals()
	res := make([]Total, 0, len(totals))
	for t, n := range totals {
		res = append(res, Total{Target: t, Votes: n})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Votes != res[j].Votes {
			return res[i].Votes > res[j].Votes
		}
		return res[i].Target.String() < res[j].Target.String()
	})
	return res
}

// read calls fn with the board content, fn not called if the board is gone
func (b *Board) read(fn func(sb *store.Board)) {
	b.store.View(func(doc store.Document) {
		if sb, ok := doc[b.name]; ok {
			fn(sb)
		}
	})
}

func (b *Board) update(op string, fn func(sb *store.Board) bool) error {
	return b.updateErr(op, func(sb *store.Board) (bool, error) { return fn(sb), nil })
}

// updateErr applies fn to the board content and commits it if changed
func (b *Board) updateErr(op string, fn func(sb *store.Board) (bool, error)) error {
	err := b.store.Update(func(doc store.Document) (bool, error) {
		sb, ok := doc[b.name]
		if !ok {
			return false, ErrNotFound
		}
		if sb.Votes == nil {
			sb.Votes = map[string][]string{}
		}
		return fn(sb)
	})
	if err != nil {
		return fmt.Errorf("can't %s on board %q: %w", op, b.name, err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
