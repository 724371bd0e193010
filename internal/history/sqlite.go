package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/erg0nix/docchat/internal/conversation"
	"github.com/erg0nix/docchat/internal/core"
)

// SQLiteStore keeps sessions and turns in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs migrations. A file that is not
// a usable database is moved aside to <path>.corrupt and replaced by an empty one.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == ":memory:" {
		return openSQLite(path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	store, err := openSQLite(path)
	if err == nil {
		return store, nil
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, err
	}

	quarantine := path + ".corrupt"
	slog.Warn("sqlite history unreadable, starting fresh", "path", path, "moved_to", quarantine, "error", err)
	if renameErr := os.Rename(path, quarantine); renameErr != nil {
		return nil, fmt.Errorf("move aside corrupt history: %w", renameErr)
	}
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		os.Remove(path + suffix)
	}
	return openSQLite(path)
}

func openSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Backend() string { return BackendSQLite }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		name TEXT PRIMARY KEY,
		active INTEGER NOT NULL DEFAULT 0,
		last_artifact_hash TEXT NOT NULL DEFAULT '',
		modified_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		session_name TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		PRIMARY KEY (session_name, seq),
		FOREIGN KEY (session_name) REFERENCES sessions(name) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context) (conversation.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, active, last_artifact_hash, modified_at FROM sessions ORDER BY modified_at`)
	if err != nil {
		return conversation.Snapshot{}, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var snap conversation.Snapshot
	index := make(map[string]int)

	for rows.Next() {
		var (
			record     conversation.SessionRecord
			active     bool
			modifiedAt string
		)
		if err := rows.Scan(&record.Name, &active, &record.LastArtifactHash, &modifiedAt); err != nil {
			return conversation.Snapshot{}, fmt.Errorf("scan session: %w", err)
		}
		record.ModifiedAt, _ = time.Parse(time.RFC3339Nano, modifiedAt)
		if active {
			snap.Active = record.Name
		}
		index[record.Name] = len(snap.Sessions)
		snap.Sessions = append(snap.Sessions, record)
	}
	if err := rows.Err(); err != nil {
		return conversation.Snapshot{}, err
	}

	turnRows, err := s.db.QueryContext(ctx,
		`SELECT session_name, role, content FROM turns ORDER BY session_name, seq`)
	if err != nil {
		return conversation.Snapshot{}, fmt.Errorf("query turns: %w", err)
	}
	defer turnRows.Close()

	for turnRows.Next() {
		var name, role, content string
		if err := turnRows.Scan(&name, &role, &content); err != nil {
			return conversation.Snapshot{}, fmt.Errorf("scan turn: %w", err)
		}
		i, ok := index[name]
		if !ok {
			continue
		}
		snap.Sessions[i].Turns = append(snap.Sessions[i].Turns, core.Turn{Role: core.Role(role), Content: content})
	}

	return snap, turnRows.Err()
}

// Save replaces the stored snapshot inside a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap conversation.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns`); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}

	for _, record := range snap.Sessions {
		modifiedAt := record.ModifiedAt
		if modifiedAt.IsZero() {
			modifiedAt = time.Now().UTC()
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (name, active, last_artifact_hash, modified_at) VALUES (?, ?, ?, ?)`,
			record.Name, record.Name == snap.Active, record.LastArtifactHash, modifiedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert session %s: %w", record.Name, err)
		}

		for seq, turn := range record.Turns {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO turns (session_name, seq, role, content) VALUES (?, ?, ?, ?)`,
				record.Name, seq, string(turn.Role), turn.Content,
			); err != nil {
				return fmt.Errorf("insert turn: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
