package water

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lidarqa/density-cli/internal/geo"
)

// Cache keeps resolved water sets in a local SQLite file so repeated runs
// over the same project areas skip the database.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (and migrates) the cache at path.
func OpenCache(ctx context.Context, path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "water cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "water cache: exec %s", pragma)
		}
	}
	c := &Cache{db: db}
	if err := c.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

const cacheMigration = `
CREATE TABLE IF NOT EXISTS water_sets (
	id         TEXT PRIMARY KEY,
	cache_key  TEXT NOT NULL UNIQUE,
	polygons   INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS water_polygons (
	set_id TEXT NOT NULL REFERENCES water_sets(id) ON DELETE CASCADE,
	seq    INTEGER NOT NULL,
	wkt    TEXT NOT NULL,
	PRIMARY KEY (set_id, seq)
);
`

func (c *Cache) migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, cacheMigration)
	return eris.Wrap(err, "water cache: migrate")
}

// Get returns the polygons stored under key, tagged with crs.
func (c *Cache) Get(ctx context.Context, key string, crs *geo.CRS) ([]geo.Polygon, bool, error) {
	var id string
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT id, polygons FROM water_sets WHERE cache_key = ?`, key,
	).Scan(&id, &n)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "water cache: lookup")
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT wkt FROM water_polygons WHERE set_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, false, eris.Wrap(err, "water cache: query polygons")
	}
	defer rows.Close()

	out := make([]geo.Polygon, 0, n)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, false, eris.Wrap(err, "water cache: scan polygon")
		}
		polys, err := geo.FromWKT(s, crs)
		if err != nil {
			return nil, false, eris.Wrap(err, "water cache: decode polygon")
		}
		out = append(out, polys...)
	}
	if err := rows.Err(); err != nil {
		return nil, false, eris.Wrap(err, "water cache: iterate polygons")
	}
	if len(out) != n {
		return nil, false, eris.Errorf("water cache: set %s has %d polygons, want %d", id, len(out), n)
	}
	return out, true, nil
}

// Put replaces the set stored under key.
func (c *Cache) Put(ctx context.Context, key string, polys []geo.Polygon) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "water cache: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM water_polygons WHERE set_id IN (SELECT id FROM water_sets WHERE cache_key = ?)`, key); err != nil {
		return eris.Wrap(err, "water cache: clear polygons")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM water_sets WHERE cache_key = ?`, key); err != nil {
		return eris.Wrap(err, "water cache: clear set")
	}

	id := uuid.New().String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO water_sets (id, cache_key, polygons) VALUES (?, ?, ?)`, id, key, len(polys)); err != nil {
		return eris.Wrap(err, "water cache: insert set")
	}
	for i, p := range polys {
		s, err := geo.ToWKT(p)
		if err != nil {
			return eris.Wrapf(err, "water cache: encode polygon %d", i)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO water_polygons (set_id, seq, wkt) VALUES (?, ?, ?)`, id, i, s); err != nil {
			return eris.Wrapf(err, "water cache: insert polygon %d", i)
		}
	}
	return eris.Wrap(tx.Commit(), "water cache: commit")
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// CacheKey identifies a water set by the project polygons, the layers
// queried and the ocean file.
func CacheKey(project []geo.Polygon, layers []string, oceanFile string) (string, error) {
	h := sha256.New()
	for i, p := range project {
		s, err := geo.ToWKT(p)
		if err != nil {
			return "", eris.Wrapf(err, "water cache: key polygon %d", i)
		}
		h.Write([]byte(p.CRS.String()))
		h.Write([]byte{0})
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	h.Write([]byte(strings.Join(layers, ",")))
	h.Write([]byte{0})
	h.Write([]byte(oceanFile))
	return hex.EncodeToString(h.Sum(nil)), nil
}
