package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/sheriff-sales/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS listings (
	auction_number TEXT PRIMARY KEY,
	auction_id     TEXT NOT NULL DEFAULT '',
	docket_number  TEXT NOT NULL DEFAULT '',
	is_pp          INTEGER NOT NULL DEFAULT 0,
	data           TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS auction_config (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_listings_auction_id ON listings(auction_id);
CREATE INDEX IF NOT EXISTS idx_listings_docket_number ON listings(docket_number);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	for _, key := range seedConfigKeys {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO auction_config (key, value, updated_at) VALUES (?, '', ?) ON CONFLICT (key) DO NOTHING`,
			key, time.Now().UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: seed config %s", key)
		}
	}
	return nil
}

// DB exposes the underlying handle for maintenance commands and tests.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertListing(ctx context.Context, l *model.Listing) error {
	if l == nil || l.AuctionNumber == "" {
		return eris.New("sqlite: upsert listing: auction number is required")
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	data, err := marshalListing(l)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO listings (auction_number, auction_id, docket_number, is_pp, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (auction_number) DO UPDATE SET
			auction_id = excluded.auction_id,
			docket_number = excluded.docket_number,
			is_pp = excluded.is_pp,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		l.AuctionNumber, l.AuctionID, l.DocketNumber, l.IsPP, string(data), l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert listing %s", l.AuctionNumber)
	}

	var createdAt time.Time
	if err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM listings WHERE auction_number = ?`, l.AuctionNumber,
	).Scan(&createdAt); err != nil {
		return eris.Wrapf(err, "sqlite: read back listing %s", l.AuctionNumber)
	}
	l.CreatedAt = createdAt.UTC()
	return nil
}

func (s *SQLiteStore) GetListing(ctx context.Context, auctionNumber string) (*model.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data, created_at, updated_at FROM listings WHERE auction_number = ?`,
		auctionNumber,
	)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get listing %s", auctionNumber)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get listing %s", auctionNumber)
	}
	return l, nil
}

func (s *SQLiteStore) ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error) {
	query := `SELECT data, created_at, updated_at FROM listings WHERE 1=1`
	var args []any

	if filter.AuctionID != "" {
		query += ` AND auction_id = ?`
		args = append(args, filter.AuctionID)
	}
	if len(filter.DocketNumbers) > 0 {
		query += ` AND docket_number IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(filter.DocketNumbers)), ", ") + `)`
		for _, d := range filter.DocketNumbers {
			args = append(args, d)
		}
	}
	if filter.PPOnly {
		query += ` AND is_pp = 1`
	}
	query += ` ORDER BY created_at, auction_number`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list listings")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list listings iterate")
}

func (s *SQLiteStore) DeleteListing(ctx context.Context, auctionNumber string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM listings WHERE auction_number = ?`, auctionNumber)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete listing %s", auctionNumber)
	}
	return checkRowsAffected(res, "listing", auctionNumber)
}

func (s *SQLiteStore) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM auction_config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", eris.Wrapf(ErrNotFound, "sqlite: get config %s", key)
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: get config %s", key)
	}
	return value, nil
}

func (s *SQLiteStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auction_config (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: set config %s", key)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanListing(row scannable) (*model.Listing, error) {
	var data string
	var createdAt, updatedAt time.Time
	if err := row.Scan(&data, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return decodeListing([]byte(data), createdAt, updatedAt)
}
