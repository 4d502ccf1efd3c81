package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "habitbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const itemColumns = `id, owner_id, title, is_done, created_at, kind, reminder_interval_s, deadline_at`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log.With(logx.String("comp", "storage")), now: time.Now}

	// Basic pragmas.
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	st.log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Create(ctx context.Context, in NewItem) (int64, error) {
	if !in.Kind.Valid() {
		return 0, fmt.Errorf("unknown item kind %q", in.Kind)
	}
	in = normalizeNew(in)

	var deadline sql.NullString
	if in.Kind == KindDeadline {
		deadline = sql.NullString{String: in.DeadlineAt.Format(time.RFC3339Nano), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO items(owner_id, title, is_done, created_at, kind, reminder_interval_s, deadline_at)
		 VALUES(?,?,0,?,?,?,?)`,
		in.OwnerID, in.Title, s.now().UTC().Format(time.RFC3339Nano), string(in.Kind),
		intervalSeconds(in.ReminderInterval), deadline,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) Get(ctx context.Context, id int64) (Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

func (s *sqliteStore) ListByOwner(ctx context.Context, ownerID int64) ([]Item, error) {
	return s.query(ctx, `SELECT `+itemColumns+` FROM items WHERE owner_id = ? ORDER BY id`, ownerID)
}

func (s *sqliteStore) ListActive(ctx context.Context) ([]Item, error) {
	return s.query(ctx, `SELECT `+itemColumns+` FROM items WHERE is_done = 0 ORDER BY id`)
}

func (s *sqliteStore) SetDone(ctx context.Context, id int64, done bool) error {
	v := 0
	if done {
		v = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE items SET is_done = ? WHERE id = ?`, v, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) SetInterval(ctx context.Context, id int64, every time.Duration) error {
	res, err := s.db.ExecContext(ctx, `UPDATE items SET reminder_interval_s = ? WHERE id = ?`, intervalSeconds(every), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) query(ctx context.Context, q string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (Item, error) {
	var (
		it        Item
		done      int
		createdAt string
		kind      string
		interval  int64
		deadline  sql.NullString
	)
	if err := r.Scan(&it.ID, &it.OwnerID, &it.Title, &done, &createdAt, &kind, &interval, &deadline); err != nil {
		return Item{}, err
	}
	it.Done = done != 0
	it.Kind = Kind(kind)
	it.ReminderInterval = time.Duration(interval) * time.Second
	it = presented(it)

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Item{}, fmt.Errorf("item %d: bad created_at %q: %w", it.ID, createdAt, err)
	}
	it.CreatedAt = t.UTC()
	if deadline.Valid {
		t, err := time.Parse(time.RFC3339Nano, deadline.String)
		if err != nil {
			return Item{}, fmt.Errorf("item %d: bad deadline_at %q: %w", it.ID, deadline.String, err)
		}
		it.DeadlineAt = t.UTC()
	}
	return it, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// intervalSeconds keeps the column whole-second; anything positive stores as at least 1s.
func intervalSeconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if s < 1 && d > 0 {
		s = 1
	}
	return s
}
