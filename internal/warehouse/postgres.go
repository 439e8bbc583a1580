package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/sheetingest/internal/db"
	"github.com/rpattn/sheetingest/internal/domain"
)

// Postgres appends batches to PostgreSQL tables created by the embedded
// migrations. Each batch is one transaction.
type Postgres struct {
	conn *db.Connection
}

// NewPostgres uses an open connection pool.
func NewPostgres(conn *db.Connection) *Postgres {
	return &Postgres{conn: conn}
}

// EnsureTables applies the migrations and checks that every table exists.
func (p *Postgres) EnsureTables(ctx context.Context, tables []Table) error {
	if err := p.conn.RunMigrations(); err != nil {
		return err
	}
	for _, table := range tables {
		var found *string
		err := p.conn.Pool.QueryRow(ctx, "SELECT to_regclass($1)::text", table.Name).Scan(&found)
		if err != nil {
			return classifyPostgresError(fmt.Errorf("failed to look up table %s: %w", table.Name, err))
		}
		if found == nil {
			return fmt.Errorf("%w: %s", ErrTableNotFound, table.Name)
		}
	}
	return nil
}

// Append copies batch inside a transaction holding an advisory lock on the
// table, so the batch key check and the copy are not interleaved with another
// writer. A replace batch deletes the current rows in the same transaction.
func (p *Postgres) Append(ctx context.Context, batch Batch) (bool, error) {
	applied := false
	ident := pgx.Identifier{batch.Table.Name}

	err := p.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", batch.Table.Name); err != nil {
			return fmt.Errorf("failed to lock %s: %w", batch.Table.Name, err)
		}

		if batch.Key != "" {
			var exists bool
			query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE batch_key = $1)", ident.Sanitize())
			if err := tx.QueryRow(ctx, query, batch.Key).Scan(&exists); err != nil {
				return fmt.Errorf("failed to look up batch in %s: %w", batch.Table.Name, err)
			}
			if exists {
				return nil
			}
		}

		if batch.Replace {
			tag, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", ident.Sanitize()))
			if err != nil {
				return fmt.Errorf("failed to clear %s: %w", batch.Table.Name, err)
			}
			if len(batch.Rows) == 0 {
				applied = tag.RowsAffected() > 0
				return nil
			}
		}

		rows := make([][]any, len(batch.Rows))
		for i, row := range batch.Rows {
			rows[i] = postgresRow(batch.Table, row)
		}
		copied, err := tx.CopyFrom(ctx, ident, batch.Table.ColumnNames(), pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy into %s: %w", batch.Table.Name, err)
		}
		if copied != int64(len(rows)) {
			return fmt.Errorf("copied %d of %d rows into %s", copied, len(rows), batch.Table.Name)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, classifyPostgresError(err)
	}
	return applied, nil
}

// PrimaryKeys reads the distinct primary keys of kind's raw table.
func (p *Postgres) PrimaryKeys(ctx context.Context, kind domain.Kind) ([]int64, error) {
	pk := pgx.Identifier{kind.PrimaryKey()}.Sanitize()
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s ORDER BY %s", pk, pgx.Identifier{kind.RawTable()}.Sanitize(), pk)

	rows, err := p.conn.Pool.Query(ctx, query)
	if err != nil {
		return nil, classifyPostgresError(fmt.Errorf("failed to read keys of %s: %w", kind.RawTable(), err))
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, classifyPostgresError(fmt.Errorf("failed to scan keys of %s: %w", kind.RawTable(), err))
	}
	if keys == nil {
		keys = []int64{}
	}
	return keys, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.conn.Close()
	return nil
}

// postgresRow maps empty strings in non-string columns to NULL.
func postgresRow(table Table, row []any) []any {
	out := make([]any, len(row))
	for i, value := range row {
		if s, ok := value.(string); ok && s == "" && i < len(table.Columns) && table.Columns[i].Type != domain.FieldTypeString {
			out[i] = nil
			continue
		}
		out[i] = value
	}
	return out
}

// classifyPostgresError marks data, schema and permission failures as
// permanent. Connection and serialization failures stay retryable.
func classifyPostgresError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == "42P01":
		return fmt.Errorf("%w: %w", ErrTableNotFound, err)
	case strings.HasPrefix(pgErr.Code, "22"), // data exception
		strings.HasPrefix(pgErr.Code, "23"), // integrity constraint violation
		strings.HasPrefix(pgErr.Code, "42"): // syntax error or access rule violation
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	return err
}
