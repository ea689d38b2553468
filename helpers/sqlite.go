package helpers

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spektr-org/insight/engine"
)

// ============================================================================
// SQLITE HELPER — Runs a query against a SQLite file
// ============================================================================
// Each result row becomes a Record keyed by column name. TEXT and BLOB
// columns arrive as strings, NULL columns are left out, and aliases with
// dots ("region AS \"geo.region\"") produce nested records.
// ============================================================================

// ReadSQLite opens the database at path read-only and runs query.
func ReadSQLite(ctx context.Context, path, query string) ([]engine.Record, error) {
	db, err := sqlx.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	rows, err := db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var records []engine.Record
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(records)+1, err)
		}
		rec := make(engine.Record, len(row))
		for col, v := range row {
			switch x := v.(type) {
			case nil:
				continue
			case []byte:
				v = string(x)
			}
			setPath(rec, splitPath(col), v)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return records, nil
}

// TableQuery returns a query selecting every row of table.
func TableQuery(table string) string {
	return `SELECT * FROM "` + strings.ReplaceAll(table, `"`, `""`) + `"`
}
