package schema

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

// SchemaError wraps a DDL failure. It is always fatal to a pipeline run.
type SchemaError struct {
	Statement string
	Err       error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: %s: %v", firstLine(e.Statement), e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// TxBeginner is satisfied by *pgxpool.Pool and pgx.Conn.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Manager struct {
	db  TxBeginner
	log logrus.FieldLogger
}

func NewManager(db TxBeginner, log logrus.FieldLogger) *Manager {
	return &Manager{db: db, log: log.WithField("component", "schema")}
}

// Ensure creates the namespaces, tables, indexes and views in a single
// transaction. Running it again is a no-op.
func (m *Manager) Ensure(ctx context.Context) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return &SchemaError{Statement: "BEGIN", Err: err}
	}
	defer tx.Rollback(ctx)

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return &SchemaError{Statement: stmt, Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &SchemaError{Statement: "COMMIT", Err: err}
	}
	m.log.WithField("statements", len(statements)).Info("schema ensured")
	return nil
}

// Script renders the DDL as a standalone SQL file.
func Script(generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString("-- ========================================\n")
	b.WriteString("-- COINGECKO ETL DATABASE SCHEMA\n")
	b.WriteString("-- Generated " + generatedAt.UTC().Format("2006-01-02 15:04:05") + " UTC\n")
	b.WriteString("-- ========================================\n\n")
	for _, stmt := range statements {
		b.WriteString(stmt)
		b.WriteString(";\n\n")
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
