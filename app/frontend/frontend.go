// Package frontend implements vote commands on top of boards: it parses arguments, resolves player names,
// checks permissions and formats replies. Board state is never touched directly, only via board.Registry.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/umputun/voteboard/app/access"
	"github.com/umputun/voteboard/app/board"
	"github.com/umputun/voteboard/app/store"
)

//go:generate moq -out mocks/players.go -pkg mocks -skip-ensure -fmt goimports . Players
//go:generate moq -out mocks/access.go -pkg mocks -skip-ensure -fmt goimports . Access
//go:generate moq -out mocks/retryer.go -pkg mocks -skip-ensure -fmt goimports . Retryer

// replies
const (
	msgBoardNotFound  = "Voting board not found!"
	msgPlayerNotFound = "Player not found!"
	msgSelfVote       = "You can't vote for yourself!"
	msgNoVotesLeft    = "You have no remaining votes!"
	msgDisabled       = "This voting board is disabled"
	msgCreated        = "Successfully created new voting board!"
	msgSuccess        = "Success!"
	msgUnknownError   = "An unknown error occurred."
	msgVoteUsage      = "usage: vote <player> [board]"
	msgUnvoteUsage    = "usage: unvote <player> [board]"
	msgVotesUsage     = "usage: votes [board] [enable|disable|remove|config max <value>]"
)

// Commands handles vote, unvote and votes commands for an actor
type Commands struct {
	Boards  Boards
	Players Players
	Access  Access
	Retry   Retryer // repeats commits failed on persistence errors, optional
}

// Boards is the board lookup surface, implemented by board.Registry
type Boards interface {
	Names() []string
	Default() (*board.Board, bool)
	Get(name string) (*board.Board, bool)
	Create(name string) (*board.Board, error)
}

// Players resolves display names to ids and back
type Players interface {
	Resolve(name string) (uuid.UUID, bool, error)
	Name(id uuid.UUID) (string, bool, error)
	Names() ([]string, error)
}

// Access checks permissions of an actor
type Access interface {
	Can(player uuid.UUID, perm access.Permission) bool
}

// Retryer repeats failed function
type Retryer interface {
	Do(ctx context.Context, fun func() error, errors ...error) (err error)
}

// Vote handles "vote <player> [board]"
func (c *Commands) Vote(ctx context.Context, actor uuid.UUID, args []string) (string, error) {
	return c.vote(ctx, actor, args, true)
}

// Unvote handles "unvote <player> [board]"
func (c *Commands) Unvote(ctx context.Context, actor uuid.UUID, args []string) (string, error) {
	return c.vote(ctx, actor, args, false)
}

func (c *Commands) vote(ctx context.Context, actor uuid.UUID, args []string, adding bool) (string, error) {
	if len(args) == 0 {
		if adding {
			return msgVoteUsage, nil
		}
		return msgUnvoteUsage, nil
	}

	target, ok, err := c.Players.Resolve(args[0])
	if err != nil {
		return c.failed("resolve player", err)
	}
	if !ok {
		return msgPlayerNotFound, nil
	}

	b, ok := c.lookup(args[1:])
	if !ok {
		return msgBoardNotFound, nil
	}
	if !b.Enabled() {
		return msgDisabled, nil
	}

	if adding {
		if actor == target {
			return msgSelfVote, nil
		}
		if !b.HasVoted(actor, target) && !b.CanVote(actor) {
			return msgNoVotesLeft, nil
		}
		err = c.commit(ctx, func() error { return b.AddVote(actor, target) })
	} else {
		err = c.commit(ctx, func() error { return b.RemoveVote(actor, target) })
	}
	switch {
	case errors.Is(err, board.ErrNoVotesLeft): // somebody else used the last vote in between
		return msgNoVotesLeft, nil
	case errors.Is(err, board.ErrNotFound):
		return msgBoardNotFound, nil
	case err != nil:
		return c.failed("vote", err)
	}

	action, prep := "added", "to"
	if !adding {
		action, prep = "removed", "from"
	}
	names := []string{}
	for _, id := range b.VotesOf(actor) {
		names = append(names, c.nameOf(id))
	}
	return fmt.Sprintf("Successfully %s vote %s %s!\nYour current (%d) votes are: %s\nYou have %d/%d votes remaining",
		action, prep, b.Name(), len(names), strings.Join(names, ", "), b.RemainingVotesOf(actor), b.MaxVotes()), nil
}

// Votes handles "votes [board] [enable|disable|remove|config max <value>]".
// Without management permission it only shows totals.
func (c *Commands) Votes(ctx context.Context, actor uuid.UUID, args []string) (string, error) {
	manager := c.Access.Can(actor, access.ManageBoards)

	b, ok := c.lookup(args)
	if !ok {
		if len(args) == 0 || !manager {
			return msgBoardNotFound, nil
		}
		if err := c.commit(ctx, func() error { _, e := c.Boards.Create(args[0]); return e }); err != nil {
			return c.failed("create board", err)
		}
		return msgCreated, nil
	}

	if len(args) < 2 || !manager {
		if !b.Enabled() {
			return msgDisabled, nil
		}
		return fmt.Sprintf("%d votes for %s:\n%s", b.TotalVotes(), b.Name(), b.Summary(c.nameOf)), nil
	}

	var err error
	switch {
	case args[1] == "enable":
		err = c.commit(ctx, func() error { return b.SetEnabled(true) })
	case args[1] == "disable":
		err = c.commit(ctx, func() error { return b.SetEnabled(false) })
	case args[1] == "remove":
		err = c.commit(ctx, b.Delete)
	case len(args) > 3 && args[1] == "config" && args[2] == "max":
		maxVotes, e := strconv.Atoi(args[3])
		if e != nil || maxVotes < 0 {
			return fmt.Sprintf("invalid max votes %q, expected a non-negative number", args[3]), nil
		}
		err = c.commit(ctx, func() error { return b.SetMaxVotes(maxVotes) })
	default:
		return msgVotesUsage, nil
	}
	if errors.Is(err, board.ErrNotFound) {
		return msgBoardNotFound, nil
	}
	if err != nil {
		return c.failed("manage board", err)
	}
	return msgSuccess, nil
}

// Complete returns completion candidates for the last argument of the command
func (c *Commands) Complete(actor uuid.UUID, command string, args []string) []string {
	prefix := ""
	if len(args) > 0 {
		prefix = args[len(args)-1]
	}

	var candidates []string
	switch command {
	case "vote", "unvote":
		switch {
		case len(args) < 2:
			names, err := c.Players.Names()
			if err != nil {
				log.Printf("[WARN] can't list players, %v", err)
				return nil
			}
			candidates = names
		case len(args) == 2:
			candidates = c.Boards.Names()
		}
	case "votes":
		switch {
		case len(args) < 2:
			candidates = c.Boards.Names()
		case !c.Access.Can(actor, access.ManageBoards):
			return nil
		case len(args) == 2:
			candidates = []string{"<option>", "enable", "disable", "remove", "config"}
		case len(args) == 3:
			candidates = []string{"<key>", "max"}
		case len(args) == 4:
			candidates = []string{"<value>"}
		}
	}
	return filterPrefix(candidates, prefix)
}

// lookup returns board named by the first arg or the default one if no args
func (c *Commands) lookup(args []string) (*board.Board, bool) {
	if len(args) == 0 {
		return c.Boards.Default()
	}
	return c.Boards.Get(args[0])
}

// commit runs fn, repeating it with Retry on persistence errors only
func (c *Commands) commit(ctx context.Context, fn func() error) error {
	if c.Retry == nil {
		return fn()
	}
	var res error
	err := c.Retry.Do(ctx, func() error {
		res = fn()
		var perr *store.PersistenceError
		if errors.As(res, &perr) {
			return res
		}
		return nil
	})
	if err != nil {
		return err
	}
	return res
}

func (c *Commands) nameOf(id uuid.UUID) string {
	name, ok, err := c.Players.Name(id)
	if err != nil {
		log.Printf("[WARN] can't get name of %s, %v", id, err)
	}
	if !ok || err != nil {
		return id.String()
	}
	return name
}

func (c *Commands) failed(op string, err error) (string, error) {
	log.Printf("[WARN] %s failed, %v", op, err)
	return msgUnknownError, fmt.Errorf("%s: %w", op, err)
}

func filterPrefix(candidates []string, prefix string) []string {
	if prefix == "" {
		return candidates
	}
	res := []string{}
	for _, c := range candidates {
		if strings.HasPrefix(strings.ToLower(c), strings.ToLower(prefix)) {
			res = append(res, c)
		}
	}
	return res
}
