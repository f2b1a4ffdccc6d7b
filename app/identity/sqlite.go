package identity

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// ErrNameTaken returned if the name belongs to another player
var ErrNameTaken = errors.New("name already taken")

// Player is a registered identity with its current display name
type Player struct {
	ID   uuid.UUID `db:"id"`
	Name string    `db:"name"`
}

// SQLite implements the player registry on SQLite
type SQLite struct {
	db *sqlx.DB
}

// NewSQLite opens (creating if needed) the registry database
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer, avoids SQLITE_BUSY on concurrent registrations

	// enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to set WAL mode: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	res := &SQLite{db: db}
	if err := res.initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return res, nil
}

func (s *SQLite) initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			name_key TEXT NOT NULL UNIQUE
		)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Register returns id of the player with given name, making a new player if not registered yet
func (s *SQLite) Register(name string) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return uuid.Nil, errors.New("empty player name")
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var idStr string
	err = tx.Get(&idStr, `SELECT id FROM players WHERE name_key = ?`, nameKey(name))
	switch {
	case err == nil:
		return uuid.Parse(idStr)
	case !errors.Is(err, sql.ErrNoRows):
		return uuid.Nil, fmt.Errorf("failed to query player %q: %w", name, err)
	}

	id := uuid.New()
	if _, err = tx.Exec(`INSERT INTO players (id, name, name_key) VALUES (?, ?, ?)`, id.String(), name, nameKey(name)); err != nil {
		return uuid.Nil, fmt.Errorf("failed to register player %q: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	log.Printf("[INFO] player %q registered as %s", name, id)
	return id, nil
}

// Resolve returns id for the display name, case-insensitive. False if no such player
func (s *SQLite) Resolve(name string) (uuid.UUID, bool, error) {
	var idStr string
	err := s.db.Get(&idStr, `SELECT id FROM players WHERE name_key = ?`, nameKey(name))
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to resolve player %q: %w", name, err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("invalid id %q of player %q: %w", idStr, name, err)
	}
	return id, true, nil
}

// Name returns the current display name of the player. False if no such player
func (s *SQLite) Name(id uuid.UUID) (string, bool, error) {
	var name string
	err := s.db.Get(&name, `SELECT name FROM players WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get name of %s: %w", id, err)
	}
	return name, true, nil
}

// Rename changes the display name, the id stays the same
func (s *SQLite) Rename(id uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("empty player name")
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var owner string
	err = tx.Get(&owner, `SELECT id FROM players WHERE name_key = ?`, nameKey(name))
	if err == nil && owner != id.String() {
		return fmt.Errorf("can't rename %s to %q: %w", id, name, ErrNameTaken)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to query player %q: %w", name, err)
	}

	res, err := tx.Exec(`UPDATE players SET name = ?, name_key = ? WHERE id = ?`, name, nameKey(name), id.String())
	if err != nil {
		return fmt.Errorf("failed to rename %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("player %s not found", id)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	log.Printf("[INFO] player %s renamed to %q", id, name)
	return nil
}

// Names returns display names of all players, sorted case-insensitively
func (s *SQLite) Names() ([]string, error) {
	names := []string{}
	if err := s.db.Select(&names, `SELECT name FROM players ORDER BY name_key`); err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return names, nil
}

// List returns all players sorted by name
func (s *SQLite) List() ([]Player, error) {
	res := []Player{}
	if err := s.db.Select(&res, `SELECT id, name FROM players ORDER BY name_key`); err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return res, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
