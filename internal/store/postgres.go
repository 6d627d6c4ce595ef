package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sheriff-sales/internal/db"
	"github.com/sells-group/sheriff-sales/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var listingUpsertSQL = mustUpsertSQL(db.UpsertConfig{
	Table:        "listings",
	Columns:      []string{"auction_number", "auction_id", "docket_number", "is_pp", "data", "created_at", "updated_at"},
	ConflictKeys: []string{"auction_number"},
	UpdateCols:   []string{"auction_id", "docket_number", "is_pp", "data", "updated_at"},
}) + " RETURNING created_at"

var configUpsertSQL = mustUpsertSQL(db.UpsertConfig{
	Table:        "auction_config",
	Columns:      []string{"key", "value", "updated_at"},
	ConflictKeys: []string{"key"},
})

func mustUpsertSQL(cfg db.UpsertConfig) string {
	sql, err := db.UpsertSQL(cfg)
	if err != nil {
		panic(err)
	}
	return sql
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS listings (
	auction_number TEXT PRIMARY KEY,
	auction_id     TEXT NOT NULL DEFAULT '',
	docket_number  TEXT NOT NULL DEFAULT '',
	is_pp          BOOLEAN NOT NULL DEFAULT false,
	data           JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS auction_config (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_listings_auction_id ON listings(auction_id);
CREATE INDEX IF NOT EXISTS idx_listings_docket_number ON listings(docket_number);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	for _, key := range seedConfigKeys {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO auction_config (key, value, updated_at) VALUES ($1, '', $2) ON CONFLICT (key) DO NOTHING`,
			key, time.Now().UTC(),
		); err != nil {
			return eris.Wrapf(err, "postgres: seed config %s", key)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertListing(ctx context.Context, l *model.Listing) error {
	if l == nil || l.AuctionNumber == "" {
		return eris.New("postgres: upsert listing: auction number is required")
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

	var createdAt time.Time
	if err := s.pool.QueryRow(ctx, listingUpsertSQL,
		l.AuctionNumber, l.AuctionID, l.DocketNumber, l.IsPP, data, l.CreatedAt, l.UpdatedAt,
	).Scan(&createdAt); err != nil {
		return eris.Wrapf(err, "postgres: upsert listing %s", l.AuctionNumber)
	}
	l.CreatedAt = createdAt.UTC()
	return nil
}

func (s *PostgresStore) GetListing(ctx context.Context, auctionNumber string) (*model.Listing, error) {
	var data []byte
	var createdAt, updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT data, created_at, updated_at FROM listings WHERE auction_number = $1`,
		auctionNumber,
	).Scan(&data, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get listing %s", auctionNumber)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get listing %s", auctionNumber)
	}
	return decodeListing(data, createdAt, updatedAt)
}

func (s *PostgresStore) ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error) {
	var where []string
	var args []any

	if filter.AuctionID != "" {
		args = append(args, filter.AuctionID)
		where = append(where, fmt.Sprintf("auction_id = $%d", len(args)))
	}
	if len(filter.DocketNumbers) > 0 {
		args = append(args, filter.DocketNumbers)
		where = append(where, fmt.Sprintf("docket_number = ANY($%d)", len(args)))
	}
	if filter.PPOnly {
		where = append(where, "is_pp")
	}

	query := `SELECT data, created_at, updated_at FROM listings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, auction_number`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list listings")
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		var data []byte
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&data, &createdAt, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		l, err := decodeListing(data, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list listings iterate")
}

func (s *PostgresStore) DeleteListing(ctx context.Context, auctionNumber string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE auction_number = $1`, auctionNumber)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete listing %s", auctionNumber)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "listing %s", auctionNumber)
	}
	return nil
}

func (s *PostgresStore) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM auction_config WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", eris.Wrapf(ErrNotFound, "postgres: get config %s", key)
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: get config %s", key)
	}
	return value, nil
}

func (s *PostgresStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, configUpsertSQL, key, value, time.Now().UTC())
	return eris.Wrapf(err, "postgres: set config %s", key)
}
