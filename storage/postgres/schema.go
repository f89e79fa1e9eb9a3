package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	scope       TEXT   NOT NULL,
	record_type TEXT   NOT NULL,
	record_id   TEXT   NOT NULL,
	ver         INT    NOT NULL,
	data        JSONB  NOT NULL,
	version     BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (scope, record_type, record_id)
);

CREATE INDEX IF NOT EXISTS idx_records_scope_type ON records (scope, record_type);
`

// EnsureSchema creates the records table if it does not already exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
