// Package cache persists per-file transform results in a SQLite database so
// unchanged files can skip the whole transform on later runs. Entries are
// keyed by file path and content hash and carry the tree format version that
// produced them; entries from another major version family are ignored, the
// same compatibility rule the in-memory AST guard applies.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"cmod/asset"
	"cmod/modules"
)

const schema = `
CREATE TABLE IF NOT EXISTS transforms (
	file_path    TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	version      TEXT NOT NULL,
	tokens       TEXT NOT NULL,
	css          BLOB NOT NULL,
	companion    BLOB,
	PRIMARY KEY (file_path, content_hash)
);
`

// Entry is one cached transform result.
type Entry struct {
	FilePath    string
	ContentHash string
	Version     string
	Tokens      modules.Tokens
	CSS         []byte
	Companion   []byte // nil when the file produced no companion asset
}

// Cache is a transform result store. Safe for concurrent use; SQLite access
// is serialized over a single connection.
type Cache struct {
	mu   sync.Mutex
	conn *sqlite.Conn
	log  *zap.Logger
}

// Open opens (and if needed creates) the cache database at path. Use
// ":memory:" for an ephemeral cache.
func Open(path string, log *zap.Logger) (*Cache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("unable to open transform cache %s: %w", path, err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to prepare transform cache schema: %w", err)
	}
	return &Cache{conn: conn, log: log.Named("cache")}, nil
}

// Close releases the underlying connection.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// Get returns the cached entry for (filePath, contentHash) when one exists
// and was produced by a compatible tree format version.
func (c *Cache) Get(_ context.Context, filePath, contentHash string) (*Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var entry *Entry
	err := sqlitex.Execute(c.conn,
		`SELECT version, tokens, css, companion FROM transforms WHERE file_path = ? AND content_hash = ?`,
		&sqlitex.ExecOptions{
			Args: []any{filePath, contentHash},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				e := &Entry{
					FilePath:    filePath,
					ContentHash: contentHash,
					Version:     stmt.ColumnText(0),
				}
				if err := json.Unmarshal([]byte(stmt.ColumnText(1)), &e.Tokens); err != nil {
					return fmt.Errorf("corrupt cached tokens for %s: %w", filePath, err)
				}
				e.CSS = columnBytes(stmt, 2)
				if stmt.ColumnType(3) != sqlite.TypeNull {
					e.Companion = columnBytes(stmt, 3)
				}
				entry = e
				return nil
			},
		})
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}
	if !compatibleVersion(entry.Version) {
		c.log.Debug("Ignoring cache entry from incompatible version",
			zap.String("file", filePath), zap.String("version", entry.Version))
		return nil, false, nil
	}
	return entry, true, nil
}

// Put stores (or replaces) the entry.
func (c *Cache) Put(_ context.Context, e Entry) error {
	tokens, err := json.Marshal(e.Tokens)
	if err != nil {
		return fmt.Errorf("unable to encode tokens for %s: %w", e.FilePath, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var companion any
	if e.Companion != nil {
		companion = e.Companion
	}
	return sqlitex.Execute(c.conn,
		`INSERT OR REPLACE INTO transforms (file_path, content_hash, version, tokens, css, companion)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{e.FilePath, e.ContentHash, e.Version, string(tokens), e.CSS, companion},
		})
}

func columnBytes(stmt *sqlite.Stmt, col int) []byte {
	buf := make([]byte, stmt.ColumnLen(col))
	stmt.ColumnBytes(col, buf)
	return buf
}

// compatibleVersion applies the AST guard's rule to cached entries: only
// results from the same major version family may be reused.
func compatibleVersion(version string) bool {
	return semver.Major("v"+version) == semver.Major("v"+asset.ASTVersion)
}
