package sideinput

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	"github.com/drblury/procflow/internal/runtime/jsoncodec"
)

// DefaultTable is the table SQLStore uses unless configured otherwise.
const DefaultTable = "procflow_side_inputs"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Decoder turns the stored JSON of tag into the value handed to processors.
type Decoder func(tag string, raw []byte) (any, error)

// JSONDecoder decodes every stored value into a T.
func JSONDecoder[T any]() Decoder {
	return func(tag string, raw []byte) (any, error) {
		var v T
		if err := jsoncodec.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode side input %s: %w", tag, err)
		}
		return v, nil
	}
}

// SQLConfig configures an SQLStore.
type SQLConfig struct {
	// Table holds one row per tag. Defaults to DefaultTable.
	Table string
	// DollarPlaceholders selects $1-style bind parameters (PostgreSQL)
	// instead of ?.
	DollarPlaceholders bool
	// Decoder defaults to decoding into a generic JSON value.
	Decoder Decoder
}

// SQLStore reads side inputs from a table of (tag, JSON value) rows through
// database/sql. Each Lookup is one query; processors that read a side input
// per element should cache it in StartBundle.
type SQLStore struct {
	db      *sql.DB
	table   string
	dollar  bool
	decoder Decoder
}

// NewSQLStore validates cfg and returns a store on db.
func NewSQLStore(db *sql.DB, cfg SQLConfig) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("procflow: side input database is required")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("procflow: invalid side input table name %q", cfg.Table)
	}
	if cfg.Decoder == nil {
		cfg.Decoder = JSONDecoder[any]()
	}
	return &SQLStore{db: db, table: cfg.Table, dollar: cfg.DollarPlaceholders, decoder: cfg.Decoder}, nil
}

func (s *SQLStore) bind(n int) string {
	if s.dollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Migrate creates the side input table when it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		tag TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create side input table: %w", err)
	}
	return nil
}

// Put stores value under tag, replacing any previous value.
func (s *SQLStore) Put(ctx context.Context, tag string, value any) error {
	raw, err := jsoncodec.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode side input %s: %w", tag, err)
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (tag, value) VALUES (%s, %s) ON CONFLICT (tag) DO UPDATE SET value = excluded.value`,
		s.table, s.bind(1), s.bind(2),
	)
	if _, err := s.db.ExecContext(ctx, query, tag, string(raw)); err != nil {
		return fmt.Errorf("failed to store side input %s: %w", tag, err)
	}
	return nil
}

// Delete removes tag.
func (s *SQLStore) Delete(ctx context.Context, tag string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE tag = %s`, s.table, s.bind(1))
	if _, err := s.db.ExecContext(ctx, query, tag); err != nil {
		return fmt.Errorf("failed to delete side input %s: %w", tag, err)
	}
	return nil
}

// Lookup returns the decoded value of tag, or an error wrapping
// ErrSideInputNotFound when no row exists.
func (s *SQLStore) Lookup(ctx context.Context, tag string) (any, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE tag = %s`, s.table, s.bind(1))

	var raw string
	err := s.db.QueryRowContext(ctx, query, tag).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", errspkg.ErrSideInputNotFound, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read side input %s: %w", tag, err)
	}
	return s.decoder(tag, []byte(raw))
}
