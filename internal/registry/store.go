package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"framesel/internal/config"
	"framesel/internal/kra"
)

// Frame is one registered timeline position.
type Frame struct {
	Document     string
	Layer        string
	LayerName    string
	Time         int
	Ref          kra.ContentRef
	RegisteredAt time.Time
}

// LayerSummary counts the registered frames of one layer.
type LayerSummary struct {
	Document  string `json:"document"`
	Layer     string `json:"layer"`
	LayerName string `json:"layer_name"`
	Frames    int    `json:"frames"`
}

// Store manages registered frames backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the registry at cfg.Paths.RegistryPath, creating it if needed.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	return OpenPath(cfg.Paths.RegistryPath)
}

// OpenPath opens or creates the registry database at path.
func OpenPath(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("registry path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const frameColumns = `document, layer, layer_name, time, content_ref, registered_at`

// Add registers a frame. It reports false when the position was already
// registered; the existing row is left untouched.
func (s *Store) Add(ctx context.Context, f Frame) (bool, error) {
	if f.Time < 0 {
		return false, fmt.Errorf("register frame: negative time %d", f.Time)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO registered_frames (`+frameColumns+`)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(document, layer, time) DO NOTHING`,
		f.Document, f.Layer, f.LayerName, f.Time, string(f.Ref), timestamp(f.RegisteredAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert frame: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Remove unregisters one frame, reporting whether it existed.
func (s *Store) Remove(ctx context.Context, doc, layer string, t int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM registered_frames WHERE document = ? AND layer = ? AND time = ?`,
		doc, layer, t,
	)
	if err != nil {
		return false, fmt.Errorf("delete frame: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ClearLayer removes every frame registered for a layer.
func (s *Store) ClearLayer(ctx context.Context, doc, layer string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM registered_frames WHERE document = ? AND layer = ?`, doc, layer)
	if err != nil {
		return 0, fmt.Errorf("clear layer: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every registered frame.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM registered_frames`)
	if err != nil {
		return 0, fmt.Errorf("clear registry: %w", err)
	}
	return res.RowsAffected()
}

// Has reports whether a frame is registered at the position.
func (s *Store) Has(ctx context.Context, doc, layer string, t int) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM registered_frames WHERE document = ? AND layer = ? AND time = ?`,
		doc, layer, t,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has frame: %w", err)
	}
	return count > 0, nil
}

// Lookup returns the frame at the position, or nil when none is registered.
func (s *Store) Lookup(ctx context.Context, doc, layer string, t int) (*Frame, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+frameColumns+` FROM registered_frames WHERE document = ? AND layer = ? AND time = ?`,
		doc, layer, t,
	)
	f, err := scanFrame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup frame: %w", err)
	}
	return &f, nil
}

// Frames lists a layer's registered frames ordered by time.
func (s *Store) Frames(ctx context.Context, doc, layer string) ([]Frame, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+frameColumns+` FROM registered_frames WHERE document = ? AND layer = ? ORDER BY time`,
		doc, layer,
	)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Layers summarizes every layer with registered frames, ordered by document
// then layer name.
func (s *Store) Layers(ctx context.Context) ([]LayerSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document, layer, MAX(layer_name), COUNT(1)
         FROM registered_frames
         GROUP BY document, layer
         ORDER BY document, MAX(layer_name), layer`,
	)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close()

	var out []LayerSummary
	for rows.Next() {
		var summary LayerSummary
		if err := rows.Scan(&summary.Document, &summary.Layer, &summary.LayerName, &summary.Frames); err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// ReplaceLayer atomically swaps a layer's registered frames for one frame per
// group, placed at the group's representative time.
func (s *Store) ReplaceLayer(ctx context.Context, doc, layer, layerName string, groups []kra.KeyframeGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM registered_frames WHERE document = ? AND layer = ?`, doc, layer); err != nil {
		return fmt.Errorf("clear layer: %w", err)
	}

	now := timestamp(time.Time{})
	for _, g := range groups {
		if g.Empty || g.Representative < 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO registered_frames (`+frameColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			doc, layer, layerName, g.Representative, string(g.Ref), now,
		); err != nil {
			return fmt.Errorf("insert frame %d: %w", g.Representative, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFrame(row rowScanner) (Frame, error) {
	var (
		f   Frame
		ref string
		at  string
	)
	if err := row.Scan(&f.Document, &f.Layer, &f.LayerName, &f.Time, &ref, &at); err != nil {
		return Frame{}, err
	}
	f.Ref = kra.ContentRef(ref)
	if parsed, err := time.Parse(time.RFC3339Nano, at); err == nil {
		f.RegisteredAt = parsed
	}
	return f, nil
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}
