package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sheriff-sales/internal/config"
	"github.com/sells-group/sheriff-sales/internal/model"
)

// ErrNotFound is returned when a listing or config key does not exist.
var ErrNotFound = eris.New("store: not found")

// ListingFilter specifies criteria for listing queries. Zero values match all.
type ListingFilter struct {
	AuctionID     string   `json:"auction_id,omitempty"`
	DocketNumbers []string `json:"docket_numbers,omitempty"`
	PPOnly        bool     `json:"pp_only,omitempty"`
}

// Store defines the persistence interface for listings and auction config.
// Writes are last-write-wins per key; there are no multi-key transactions.
type Store interface {
	// Listings
	UpsertListing(ctx context.Context, l *model.Listing) error
	GetListing(ctx context.Context, auctionNumber string) (*model.Listing, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error)
	DeleteListing(ctx context.Context, auctionNumber string) error

	// Config
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		s, err := NewPostgres(ctx, cfg.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "":
		s, err := NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// seedConfigKeys are created empty by Migrate so readers can tell an unset
// value from a missing config row.
var seedConfigKeys = []string{model.ConfigCurrentAuctionID, model.ConfigGlobalPPDate}

func marshalListing(l *model.Listing) ([]byte, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal listing %s", l.AuctionNumber)
	}
	return data, nil
}

func decodeListing(data []byte, createdAt, updatedAt time.Time) (*model.Listing, error) {
	var l model.Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal listing")
	}
	l.CreatedAt = createdAt.UTC()
	l.UpdatedAt = updatedAt.UTC()
	if l.Address == nil {
		l.Address = []string{}
	}
	return &l, nil
}
