// Package history persists conversation snapshots to durable storage and loads them back.
package history

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/erg0nix/docchat/internal/conversation"
)

const (
	BackendJSON   = "json"
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Store is a durable home for a conversation snapshot. Load treats absent or unreadable
// content as empty history; only environment failures surface as errors.
type Store interface {
	Load(ctx context.Context) (conversation.Snapshot, error)
	Save(ctx context.Context, snap conversation.Snapshot) error
	Backend() string
	Close() error
}

// Open returns the store for backend rooted at dataDir.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case "", BackendJSON:
		return &JSONFileStore{Path: filepath.Join(dataDir, "history.json")}, nil
	case BackendJSONL:
		return &JSONLStore{BaseDir: dataDir}, nil
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dataDir, "history.db"))
	default:
		return nil, fmt.Errorf("unknown history backend %q", backend)
	}
}
