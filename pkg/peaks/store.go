// ABOUTME: SQLite-backed persistence for tier blocks
// ABOUTME: Rows are keyed by file version so edited files never serve stale peaks
package peaks

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	_ "modernc.org/sqlite"

	"github.com/Sendspin/peakd/pkg/audio"
	"github.com/Sendspin/peakd/pkg/source"
)

const storeSchema = `
	CREATE TABLE IF NOT EXISTS peak_blocks (
		path    TEXT    NOT NULL,
		channel INTEGER NOT NULL,
		tier    INTEGER NOT NULL,
		block   INTEGER NOT NULL,
		size    INTEGER NOT NULL,
		mtime   INTEGER NOT NULL,
		peaks   BLOB    NOT NULL,
		PRIMARY KEY (path, channel, tier, block)
	);
`

// BlockKey identifies one block of tier peaks
type BlockKey struct {
	Path    string
	Channel int
	Tier    int64
	Block   int64
}

func (k BlockKey) String() string {
	return fmt.Sprintf("tier|%s|%d|%d|%d", k.Path, k.Channel, k.Tier, k.Block)
}

// Store persists tier blocks in a SQLite database
type Store struct {
	db *sql.DB
}

// DefaultStorePath returns ~/.peakd/peaks.sqlite
func DefaultStorePath() string {
	path, err := homedir.Expand("~/.peakd/peaks.sqlite")
	if err != nil {
		return "peaks.sqlite"
	}
	return path
}

// OpenStore opens or creates the database at path. ":memory:" gives a
// private in-memory store.
func OpenStore(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("expand store path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", expanded)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// one connection keeps ":memory:" a single database and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create store schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Load returns the block for key if it was saved for the same file version
func (s *Store) Load(ctx context.Context, key BlockKey, stamp source.Stamp) (Sequence, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT size, mtime, peaks
		FROM peak_blocks
		WHERE path = ? AND channel = ? AND tier = ? AND block = ?
	`, key.Path, key.Channel, key.Tier, key.Block)

	var size, mtime int64
	var blob []byte
	if err := row.Scan(&size, &mtime, &blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load block %s: %w", key, err)
	}

	if size != stamp.Size || mtime != stamp.ModTime.UnixNano() {
		return nil, false, nil
	}

	peaks, err := audio.DecodePeaks(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decode block %s: %w", key, err)
	}
	return Sequence(peaks), true, nil
}

// Save writes a block, replacing any older version
func (s *Store) Save(ctx context.Context, key BlockKey, stamp source.Stamp, seq Sequence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO peak_blocks (path, channel, tier, block, size, mtime, peaks)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, key.Path, key.Channel, key.Tier, key.Block,
		stamp.Size, stamp.ModTime.UnixNano(), audio.AppendPeaks(make([]byte, 0, len(seq)*audio.PeakSize), seq))
	if err != nil {
		return fmt.Errorf("save block %s: %w", key, err)
	}
	return nil
}

// DeletePath removes every block stored for path
func (s *Store) DeletePath(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM peak_blocks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete blocks for %s: %w", path, err)
	}
	return nil
}

// Blocks returns the number of stored blocks
func (s *Store) Blocks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM peak_blocks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count blocks: %w", err)
	}
	return n, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
