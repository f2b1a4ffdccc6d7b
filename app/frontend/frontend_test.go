package frontend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/voteboard/app/access"
	"github.com/umputun/voteboard/app/board"
	"github.com/umputun/voteboard/app/frontend/mocks"
	"github.com/umputun/voteboard/app/store"
)

var (
	alice = uuid.MustParse("0b4e7a0e-5b4a-4c36-9a4b-1c3d2e5f6a01")
	bob   = uuid.MustParse("0b4e7a0e-5b4a-4c36-9a4b-1c3d2e5f6a02")
	carol = uuid.MustParse("0b4e7a0e-5b4a-4c36-9a4b-1c3d2e5f6a03")
	admin = uuid.MustParse("0b4e7a0e-5b4a-4c36-9a4b-1c3d2e5f6a04")
)

func playersMock() *mocks.PlayersMock {
	byName := map[string]uuid.UUID{"alice": alice, "bob": bob, "carol": carol, "admin": admin}
	byID := map[uuid.UUID]string{}
	for n, id := range byName {
		byID[id] = n
	}
	return &mocks.PlayersMock{
		ResolveFunc: func(name string) (uuid.UUID, bool, error) {
			id, ok := byName[strings.ToLower(name)]
			return id, ok, nil
		},
		NameFunc: func(id uuid.UUID) (string, bool, error) {
			n, ok := byID[id]
			return n, ok, nil
		},
		NamesFunc: func() ([]string, error) { return []string{"admin", "alice", "bob", "carol"}, nil },
	}
}

func accessMock() *mocks.AccessMock {
	return &mocks.AccessMock{CanFunc: func(player uuid.UUID, perm access.Permission) bool {
		return player == admin && perm == access.ManageBoards
	}}
}

func prepCommands(t *testing.T) (*Commands, *board.Registry) {
	t.Helper()
	c, reg, _ := prepCommandsWithFile(t)
	return c, reg
}

func prepCommandsWithFile(t *testing.T) (*Commands, *board.Registry, string) {
	t.Helper()
	file := filepath.Join(t.TempDir(), "data", "data.yml")
	st, err := store.Open(file)
	require.NoError(t, err)
	reg := board.NewRegistry(st)
	return &Commands{Boards: reg, Players: playersMock(), Access: accessMock()}, reg, file
}

func TestCommands_Vote(t *testing.T) {
	c, reg := prepCommands(t)
	ctx := context.Background()

	resp, err := c.Vote(ctx, alice, []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, msgBoardNotFound, resp)

	b, err := reg.Create("survivor")
	require.NoError(t, err)
	require.NoError(t, b.SetMaxVotes(2))

	tbl := []struct {
		name  string
		actor uuid.UUID
		args  []string
		resp  string
	}{
		{"no args", alice, nil, msgVoteUsage},
		{"unknown player", alice, []string{"dave"}, msgPlayerNotFound},
		{"unknown board", alice, []string{"bob", "other"}, msgBoardNotFound},
		{"self vote", alice, []string{"Alice"}, msgSelfVote},
		{"default board", alice, []string{"bob"},
			"Successfully added vote to survivor!\nYour current (1) votes are: bob\nYou have 1/2 votes remaining"},
		{"named board", alice, []string{"carol", "survivor"},
			"Successfully added vote to survivor!\nYour current (2) votes are: bob, carol\nYou have 0/2 votes remaining"},
		{"no votes left", alice, []string{"admin"}, msgNoVotesLeft},
		{"repeated vote allowed at cap", alice, []string{"bob"},
			"Successfully added vote to survivor!\nYour current (2) votes are: bob, carol\nYou have 0/2 votes remaining"},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.Vote(ctx, tt.actor, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.resp, resp)
		})
	}

	assert.Equal(t, map[uuid.UUID]int{bob: 1, carol: 1}, b.TargetTotals())
}

func TestCommands_VoteDisabled(t *testing.T) {
	c, reg := prepCommands(t)
	b, err := reg.Create("survivor")
	require.NoError(t, err)
	require.NoError(t, b.SetEnabled(false))

	resp, err := c.Vote(context.Background(), alice, []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, msgDisabled, resp)
	resp, err = c.Unvote(context.Background(), alice, []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, msgDisabled, resp)
	assert.Empty(t, b.AllVotes())
}

func TestCommands_Unvote(t *testing.T) {
	c, reg := prepCommands(t)
	ctx := context.Background()
	b, err := reg.Create("survivor")
	require.NoError(t, err)
	require.NoError(t, b.AddVote(alice, bob))

	resp, err := c.Unvote(ctx, alice, nil)
	require.NoError(t, err)
	assert.Equal(t, msgUnvoteUsage, resp)

	resp, err = c.Unvote(ctx, alice, []string{"carol"})
	require.NoError(t, err)
	assert.Equal(t, "Successfully removed vote from survivor!\nYour current (1) votes are: bob\nYou have 0/1 votes remaining", resp)

	resp, err = c.Unvote(ctx, alice, []string{"bob", "survivor"})
	require.NoError(t, err)
	assert.Equal(t, "Successfully removed vote from survivor!\nYour current (0) votes are: \nYou have 1/1 votes remaining", resp)
	assert.Empty(t, b.VotesOf(alice))
}

func TestCommands_VotesShow(t *testing.T) {
	c, reg := prepCommands(t)
	ctx := context.Background()

	resp, err := c.Votes(ctx, alice, nil)
	require.NoError(t, err)
	assert.Equal(t, msgBoardNotFound, resp)

	b, err := reg.Create("survivor")
	require.NoError(t, err)
	require.NoError(t, b.SetMaxVotes(2))
	require.NoError(t, b.AddVote(alice, bob))
	require.NoError(t, b.AddVote(alice, carol))
	require.NoError(t, b.AddVote(carol, bob))

	for _, args := range [][]string{nil, {"survivor"}, {"survivor", "remove"}} {
		resp, err = c.Votes(ctx, alice, args)
		require.NoError(t, err)
		assert.Equal(t, "3 votes for survivor:\nbob: 2\ncarol: 1", resp, "non-manager only sees totals, %v", args)
	}
	assert.True(t, reg.Exists("survivor"))

	resp, err = c.Votes(ctx, alice, []string{"other"})
	require.NoError(t, err)
	assert.Equal(t, msgBoardNotFound, resp, "non-manager can't create boards")
	assert.False(t, reg.Exists("other"))

	require.NoError(t, b.SetEnabled(false))
	resp, err = c.Votes(ctx, alice, nil)
	require.NoError(t, err)
	assert.Equal(t, msgDisabled, resp)
}

func TestCommands_VotesManage(t *testing.T) {
	c, reg := prepCommands(t)
	ctx := context.Background()

	resp, err := c.Votes(ctx, admin, []string{"survivor"})
	require.NoError(t, err)
	assert.Equal(t, msgCreated, resp)
	b, ok := reg.Get("survivor")
	require.True(t, ok)

	resp, err = c.Votes(ctx, admin, []string{"survivor", "disable"})
	require.NoError(t, err)
	assert.Equal(t, msgSuccess, resp)
	assert.False(t, b.Enabled())

	resp, err = c.Votes(ctx, admin, []string{"survivor", "enable"})
	require.NoError(t, err)
	assert.Equal(t, msgSuccess, resp)
	assert.True(t, b.Enabled())

	resp, err = c.Votes(ctx, admin, []string{"survivor", "config", "max", "5"})
	require.NoError(t, err)
	assert.Equal(t, msgSuccess, resp)
	assert.Equal(t, 5, b.MaxVotes())

	for _, v := range []string{"five", "-1", ""} {
		resp, err = c.Votes(ctx, admin, []string{"survivor", "config", "max", v})
		require.NoError(t, err)
		assert.Contains(t, resp, "invalid max votes")
		assert.Equal(t, 5, b.MaxVotes())
	}

	for _, args := range [][]string{{"survivor", "blah"}, {"survivor", "config", "max"}, {"survivor", "config", "min", "1"}} {
		resp, err = c.Votes(ctx, admin, args)
		require.NoError(t, err)
		assert.Equal(t, msgVotesUsage, resp, args)
	}

	resp, err = c.Votes(ctx, admin, []string{"survivor", "remove"})
	require.NoError(t, err)
	assert.Equal(t, msgSuccess, resp)
	assert.False(t, reg.Exists("survivor"))
}

func TestCommands_PersistenceFailure(t *testing.T) {
	c, reg, file := prepCommandsWithFile(t)
	b, err := reg.Create("survivor")
	require.NoError(t, err)

	dataDir := filepath.Dir(file)
	require.NoError(t, os.RemoveAll(dataDir))

	resp, err := c.Vote(context.Background(), alice, []string{"bob"})
	require.Error(t, err)
	assert.Equal(t, msgUnknownError, resp)
	var perr *store.PersistenceError
	assert.ErrorAs(t, err, &perr)
	assert.Empty(t, b.VotesOf(alice), "failed commit leaves no trace")

	t.Run("retry gives up", func(t *testing.T) {
		c.Retry = repeater.New(&strategy.FixedDelay{Repeats: 3, Delay: time.Millisecond})
		resp, err := c.Votes(context.Background(), admin, []string{"survivor", "disable"})
		require.Error(t, err)
		assert.Equal(t, msgUnknownError, resp)
		assert.True(t, b.Enabled())
	})

	t.Run("retry recovers", func(t *testing.T) {
		attempts := 0
		retry := &mocks.RetryerMock{DoFunc: func(ctx context.Context, fun func() error, errs ...error) error {
			for {
				attempts++
				err := fun()
				if err == nil || attempts > 2 {
					return err
				}
				require.NoError(t, os.MkdirAll(dataDir, 0o700)) // fix the problem before the next attempt
			}
		}}
		c.Retry = retry
		resp, err := c.Vote(context.Background(), alice, []string{"bob"})
		require.NoError(t, err)
		assert.Contains(t, resp, "Successfully added vote to survivor!")
		assert.Equal(t, 2, attempts)
		assert.Len(t, retry.DoCalls(), 1)
		assert.Equal(t, []uuid.UUID{bob}, b.VotesOf(alice))
	})

	t.Run("domain errors not retried", func(t *testing.T) {
		calls := 0
		c.Retry = &mocks.RetryerMock{DoFunc: func(ctx context.Context, fun func() error, errs ...error) error {
			calls++
			return fun()
		}}
		resp, err := c.Vote(context.Background(), alice, []string{"carol"})
		require.NoError(t, err)
		assert.Equal(t, msgNoVotesLeft, resp)
		assert.Equal(t, 0, calls, "rejected before commit")
	})
}

func TestCommands_Complete(t *testing.T) {
	c, reg := prepCommands(t)
	for _, name := range []string{"survivor", "season2"} {
		_, err := reg.Create(name)
		require.NoError(t, err)
	}

	tbl := []struct {
		actor   uuid.UUID
		command string
		args    []string
		res     []string
	}{
		{alice, "vote", nil, []string{"admin", "alice", "bob", "carol"}},
		{alice, "vote", []string{"a"}, []string{"admin", "alice"}},
		{alice, "unvote", []string{"bob", ""}, []string{"season2", "survivor"}},
		{alice, "vote", []string{"bob", "su"}, []string{"survivor"}},
		{alice, "vote", []string{"bob", "survivor", ""}, nil},
		{alice, "votes", []string{""}, []string{"season2", "survivor"}},
		{alice, "votes", []string{"survivor", ""}, nil},
		{admin, "votes", []string{"survivor", ""}, []string{"<option>", "enable", "disable", "remove", "config"}},
		{admin, "votes", []string{"survivor", "e"}, []string{"enable"}},
		{admin, "votes", []string{"survivor", "config", ""}, []string{"<key>", "max"}},
		{admin, "votes", []string{"survivor", "config", "max", ""}, []string{"<value>"}},
		{admin, "other", []string{""}, nil},
	}
	for _, tt := range tbl {
		assert.Equal(t, tt.res, c.Complete(tt.actor, tt.command, tt.args), "%s %v", tt.command, tt.args)
	}
}
