package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/mailroom/internal/domain"
	"github.com/phrazzld/mailroom/internal/redact"
	"github.com/phrazzld/mailroom/internal/source"
	"github.com/pressly/goose/v3"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// Driver selects the SQL backend.
type Driver string

// Supported drivers
const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

func (d Driver) driverName() string {
	if d == DriverPostgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Driver) dialect() goose.Dialect {
	if d == DriverPostgres {
		return goose.DialectPostgres
	}
	return goose.DialectSQLite3
}

// SQLStore keeps mailbox items in a SQL database.
type SQLStore struct {
	db     *sql.DB
	driver Driver
	logger *slog.Logger
}

// Open connects to the database, applies migrations and returns the store.
// For SQLite, dsn may be a plain file path.
func Open(ctx context.Context, driver Driver, dsn string, logger *slog.Logger) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	if driver == DriverSQLite && !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn + "?mode=rwc&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open(driver.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	logger = logger.With("component", "sql_store", "driver", string(driver))
	if err := Migrate(ctx, db, driver, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLStore{db: db, driver: driver, logger: logger}, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Insert normalizes and stores items. Items whose id already exists are left
// untouched. It returns how many rows were inserted.
func (s *SQLStore) Insert(ctx context.Context, items ...domain.Item) (int, error) {
	normalized := make([]domain.Item, 0, len(items))
	for _, item := range items {
		n, err := source.Normalize(item)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidEntity, err)
		}
		normalized = append(normalized, n)
	}

	inserted := 0
	err := RunInTransaction(ctx, s.db, s.logger, func(ctx context.Context, tx *sql.Tx) error {
		now := time.Now().UTC()
		for _, item := range normalized {
			n, err := s.insertItem(ctx, tx, item, now)
			if err != nil {
				return err
			}
			inserted += n
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to insert items", "error", redact.Error(err))
		return 0, fmt.Errorf("insert items: %w", err)
	}
	s.logger.Debug("inserted items", "requested", len(items), "inserted", inserted)
	return inserted, nil
}

// insertItem writes one row through q, which may be the pool or a transaction.
func (s *SQLStore) insertItem(ctx context.Context, q DBTX, item domain.Item, now time.Time) (int, error) {
	res, err := q.ExecContext(ctx, s.rebind(`
		INSERT INTO items (id, sender, subject, received_at, body, needs_reply, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, FALSE, ?)
		ON CONFLICT (id) DO NOTHING
	`),
		item.ID,
		item.From,
		item.Subject,
		item.Date.UTC(),
		item.Body,
		item.NeedsReply,
		now,
	)
	if err != nil {
		return 0, MapError(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

const itemColumns = `id, sender, subject, received_at, body, needs_reply`

// ListUnprocessed implements source.Source.
func (s *SQLStore) ListUnprocessed(ctx context.Context) ([]domain.Item, error) {
	return s.query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE is_read = FALSE
		ORDER BY received_at, id
	`)
}

// MarkRead implements source.Source.
func (s *SQLStore) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := s.rebind(`UPDATE items SET is_read = TRUE WHERE id IN (` + placeholders + `)`)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("failed to mark items read", "error", redact.Error(err))
		return fmt.Errorf("mark read: %w", MapError(err))
	}
	n, _ := res.RowsAffected()
	s.logger.Debug("marked items read", "requested", len(ids), "updated", n)
	return nil
}

// Search implements source.Source.
func (s *SQLStore) Search(ctx context.Context, query string) ([]domain.Item, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	return s.query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE LOWER(sender) LIKE ? ESCAPE '\'
		   OR LOWER(subject) LIKE ? ESCAPE '\'
		   OR LOWER(body) LIKE ? ESCAPE '\'
		ORDER BY received_at, id
	`, pattern, pattern, pattern)
}

// Get returns the item with the given id.
func (s *SQLStore) Get(ctx context.Context, id string) (domain.Item, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+itemColumns+` FROM items WHERE id = ?`), id)
	item, err := scanItem(row)
	if err != nil {
		return domain.Item{}, MapError(err)
	}
	return item, nil
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		s.logger.Error("failed to query items", "error", redact.Error(err))
		return nil, fmt.Errorf("query items: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (domain.Item, error) {
	var item domain.Item
	err := sc.Scan(&item.ID, &item.From, &item.Subject, &item.Date, &item.Body, &item.NeedsReply)
	if err != nil {
		return domain.Item{}, err
	}
	item.Date = item.Date.UTC()
	return item, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var _ source.Source = (*SQLStore)(nil)
