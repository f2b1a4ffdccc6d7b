package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/google/uuid"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/voteboard/app/access"
	"github.com/umputun/voteboard/app/board"
	"github.com/umputun/voteboard/app/frontend"
	"github.com/umputun/voteboard/app/identity"
	"github.com/umputun/voteboard/app/store"
)

var opts struct {
	Data           string        `short:"d" long:"data" env:"VOTEBOARD_DATA" default:"var/data.yml" description:"boards data file"`
	PlayersDB      string        `short:"p" long:"players" env:"VOTEBOARD_PLAYERS" default:"var/players.db" description:"players registry database"`
	As             string        `long:"as" env:"VOTEBOARD_AS" description:"name of the player running the command"`
	Managers       []string      `short:"m" long:"manager" env:"VOTEBOARD_MANAGERS" env-delim:"," description:"players allowed to manage boards"`
	CallerCapacity bool          `long:"caller-capacity" env:"VOTEBOARD_CALLER_CAPACITY" description:"don't enforce max votes on storage level"`
	WatchInterval  time.Duration `long:"watch" env:"VOTEBOARD_WATCH" default:"5s" description:"data file check interval in shell mode, 0 to disable"`
	Dbg            bool          `long:"dbg" env:"VOTEBOARD_DEBUG" description:"debug mode"`

	Retry struct {
		Attempts int           `long:"attempts" env:"ATTEMPTS" default:"1" description:"how many times to try a failed save"`
		Duration time.Duration `long:"duration" env:"DURATION" default:"100ms" description:"initial duration"`
		Factor   float64       `long:"factor" env:"FACTOR" default:"2" description:"backoff factor"`
		Jitter   bool          `long:"jitter" env:"JITTER" description:"jitter"`
	} `group:"retry" namespace:"retry" env-namespace:"VOTEBOARD_RETRY"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable logging"`
		Filename        string `long:"filename" env:"FILENAME" description:"file to write logs to, stderr if not set"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"maximum size in megabytes of the log file before rotation"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"maximum number of old log files to retain"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"maximum number of days to retain old log files"`
		EnabledCompress bool   `long:"enabled-compress" env:"ENABLED_COMPRESS" description:"compress rotated log files"`
	} `group:"log" namespace:"log" env-namespace:"VOTEBOARD_LOG"`

	Vote     struct{} `command:"vote" description:"vote for a player: vote <player> [board]"`
	Unvote   struct{} `command:"unvote" description:"remove vote: unvote <player> [board]"`
	Votes    struct{} `command:"votes" description:"show or manage a board: votes [board] [enable|disable|remove|config max <value>]"`
	Table    struct{} `command:"table" description:"show board totals as a table: table [board]"`
	Complete struct{} `command:"complete" description:"completion candidates: complete <command> [args...]"`
	Players  struct{} `command:"players" description:"player registry: players add <name> | rename <old> <new> | list"`
	Shell    struct{} `command:"shell" description:"read '<player> <command> [args...]' lines from stdin"`
	Schema   struct{} `command:"schema" description:"print JSON schema of the data file"`
}

var revision = "unknown"

func main() {
	fmt.Fprintf(os.Stderr, "voteboard %s\n", revision)

	p := flags.NewParser(&opts, flags.Default)
	args, err := p.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals(cancel) // handle SIGQUIT and SIGTERM

	if err := run(ctx, p.Active.Name, args, os.Stdin, os.Stdout); err != nil {
		log.Printf("[ERROR] %v", err)
		cancel()
		os.Exit(1)
	}
}

// run executes the command. Store and registry are opened here and shared by all handlers
func run(ctx context.Context, command string, args []string, in io.Reader, out io.Writer) error {
	if command == "schema" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(store.Schema())
	}

	st, err := store.Open(opts.Data)
	if err != nil {
		return fmt.Errorf("can't open data file: %w", err)
	}

	players, err := identity.NewSQLite(opts.PlayersDB)
	if err != nil {
		return fmt.Errorf("can't open players registry: %w", err)
	}
	defer func() {
		if err := players.Close(); err != nil {
			log.Printf("[WARN] can't close players registry, %v", err)
		}
	}()

	var regOpts []board.Option
	if opts.CallerCapacity {
		regOpts = append(regOpts, board.WithCallerCapacity())
	}
	registry := board.NewRegistry(st, regOpts...)

	cmds := &frontend.Commands{
		Boards:  registry,
		Players: players,
		Access:  makeAccess(players),
		Retry:   makeRetry(),
	}

	switch command {
	case "players":
		return playersCmd(players, args, out)
	case "shell":
		if opts.WatchInterval > 0 {
			go func() {
				if err := st.Watch(ctx, opts.WatchInterval); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("[WARN] data file watcher stopped, %v", err)
				}
			}()
		}
		return shell(ctx, cmds, players, in, out)
	case "table":
		return tableCmd(registry, players, args, out)
	}

	actor, err := resolveActor(players, opts.As)
	if err != nil {
		return err
	}
	reply, err := dispatch(ctx, cmds, actor, command, args)
	fmt.Fprintln(out, reply)
	return err
}

// dispatch calls the command handler for the actor
func dispatch(ctx context.Context, cmds *frontend.Commands, actor uuid.UUID, command string, args []string) (string, error) {
	switch command {
	case "vote":
		return cmds.Vote(ctx, actor, args)
	case "unvote":
		return cmds.Unvote(ctx, actor, args)
	case "votes":
		return cmds.Votes(ctx, actor, args)
	case "complete":
		if len(args) == 0 {
			return "usage: complete <command> [args...]", nil
		}
		return strings.Join(cmds.Complete(actor, args[0], args[1:]), "\n"), nil
	}
	return fmt.Sprintf("unknown command %q", command), nil
}

// shell reads "<player> <command> [args...]" lines and runs them until EOF, "quit" or ctx is done
func shell(ctx context.Context, cmds *frontend.Commands, players *identity.SQLite, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if fields[0] == "quit" {
			return nil
		}
		if len(fields) < 2 {
			fmt.Fprintln(out, "usage: <player> <command> [args...]")
			continue
		}
		actor, err := resolveActor(players, fields[0])
		if err != nil {
			fmt.Fprintln(out, err.Error())
			continue
		}
		reply, err := dispatch(ctx, cmds, actor, fields[1], fields[2:])
		if err != nil {
			log.Printf("[WARN] %s %s failed, %v", fields[0], fields[1], err)
		}
		fmt.Fprintln(out, reply)
	}
	return scanner.Err()
}

func playersCmd(players *identity.SQLite, args []string, out io.Writer) error {
	const usage = "usage: players add <name> | rename <old> <new> | list"
	if len(args) == 0 {
		fmt.Fprintln(out, usage)
		return nil
	}
	switch {
	case args[0] == "add" && len(args) == 2:
		id, err := players.Register(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", id, args[1])
	case args[0] == "rename" && len(args) == 3:
		id, ok, err := players.Resolve(args[1])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Player not found!")
			return nil
		}
		if err := players.Rename(id, args[2]); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", id, args[2])
	case args[0] == "list":
		list, err := players.List()
		if err != nil {
			return err
		}
		for _, p := range list {
			fmt.Fprintf(out, "%s %s\n", p.ID, p.Name)
		}
	default:
		fmt.Fprintln(out, usage)
	}
	return nil
}

func tableCmd(registry *board.Registry, players *identity.SQLite, args []string, out io.Writer) error {
	b, ok := registry.Default()
	if len(args) > 0 {
		b, ok = registry.Get(args[0])
	}
	if !ok {
		fmt.Fprintln(out, "Voting board not found!")
		return nil
	}
	status := "enabled"
	if !b.Enabled() {
		status = "disabled"
	}
	fmt.Fprintf(out, "%s (%s, max votes %d)\n\n", b.Name(), status, b.MaxVotes())
	b.WriteTable(out, func(id uuid.UUID) string {
		name, _, err := players.Name(id)
		if err != nil {
			log.Printf("[WARN] can't get name of %s, %v", id, err)
		}
		return name
	})
	return nil
}

func resolveActor(players *identity.SQLite, name string) (uuid.UUID, error) {
	if name == "" {
		return uuid.Nil, errors.New("player name is required, use --as")
	}
	id, ok, err := players.Resolve(name)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, fmt.Errorf("player %q is not registered", name)
	}
	return id, nil
}

func makeAccess(players *identity.SQLite) *access.Static {
	res := access.NewStatic()
	for _, name := range opts.Managers {
		id, ok, err := players.Resolve(name)
		if err != nil || !ok {
			log.Printf("[WARN] manager %q is not a registered player, ignored (%v)", name, err)
			continue
		}
		res.Grant(id, access.ManageBoards)
	}
	return res
}

func makeRetry() *repeater.Repeater {
	attempts := opts.Retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return repeater.New(&strategy.Backoff{Repeats: attempts, Duration: opts.Retry.Duration,
		Factor: opts.Retry.Factor, Jitter: opts.Retry.Jitter})
}

// setupLogs configures lgr and returns the writer logs go to
func setupLogs() io.Writer {
	if !opts.Log.Enabled {
		log.Setup(log.Out(io.Discard), log.Err(io.Discard))
		return io.Discard
	}

	var out io.Writer = os.Stderr
	if opts.Log.Filename != "" {
		out = &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxBackups: opts.Log.MaxBackups,
			MaxAge:     opts.Log.MaxAge,
			Compress:   opts.Log.EnabledCompress,
		}
	}

	if opts.Dbg {
		log.Setup(log.Out(out), log.Err(out), log.Debug, log.Msec, log.CallerFunc, log.CallerPkg, log.CallerFile)
		return out
	}
	log.Setup(log.Out(out), log.Err(out), log.Msec)
	return out
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			cancel() // terminate on SIGTERM
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM)
}
