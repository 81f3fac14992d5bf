package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"

	_ "github.com/glebarez/go-sqlite"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"bookreplay/pkg/conn"
	"bookreplay/pkg/exception"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Catalog lists the markets a replay is allowed to use.
type Catalog interface {
	MarketIDs(ctx context.Context) ([]string, error)
}

// Table names the table and column holding market ids.
type Table struct {
	Name   string `yaml:"table"`
	Column string `yaml:"column"`
}

func (t Table) withDefaults() Table {
	if t.Name == "" {
		t.Name = "markets"
	}
	if t.Column == "" {
		t.Column = "market_id"
	}
	return t
}

func (t Table) validate() error {
	if !identifier.MatchString(t.Name) || !identifier.MatchString(t.Column) {
		return errors.Wrapf(exception.ErrInvalidArgument, "catalog table %q column %q", t.Name, t.Column)
	}
	return nil
}

// SQLCatalog reads market ids from a SQLite database.
type SQLCatalog struct {
	db    *sql.DB
	query string
}

// OpenSQLite opens the catalog database at path.
func OpenSQLite(path string, table Table) (*SQLCatalog, error) {
	table = table.withDefaults()
	if err := table.validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	return &SQLCatalog{
		db:    db,
		query: fmt.Sprintf("SELECT DISTINCT %s FROM %s ORDER BY %s", table.Column, table.Name, table.Column),
	}, nil
}

// DB exposes the connection, used to seed catalogs in tools and tests.
func (c *SQLCatalog) DB() *sql.DB { return c.db }

func (c *SQLCatalog) MarketIDs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, c.query)
	if err != nil {
		return nil, errors.Wrap(err, "query catalog")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan catalog")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *SQLCatalog) Close() error { return c.db.Close() }

// GormCatalog reads market ids from a Postgres table.
type GormCatalog struct {
	client *conn.Client
	table  Table
}

// OpenPostgres connects to the catalog database.
func OpenPostgres(opt conn.Option, table Table) (*GormCatalog, error) {
	table = table.withDefaults()
	if err := table.validate(); err != nil {
		return nil, err
	}
	client, err := conn.New(opt)
	if err != nil {
		return nil, err
	}
	return &GormCatalog{client: client, table: table}, nil
}

func (c *GormCatalog) MarketIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.client.DB().WithContext(ctx).
		Table(c.table.Name).
		Distinct(c.table.Column).
		Order(c.table.Column).
		Pluck(c.table.Column, &ids).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "query catalog")
	}
	return ids, nil
}

func (c *GormCatalog) Close() error { return c.client.Close() }

// Restrict keeps the ids found in allowed, preserving the order of ids.
// A nil allowed list keeps everything.
func Restrict(ids []string, allowed []string) []string {
	if allowed == nil {
		return ids
	}
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Sorted returns a sorted copy of ids without duplicates.
func Sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}
