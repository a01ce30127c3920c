package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jhoicas/fiscal-validator/internal/domain"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/ratematrix"
)

const (
	codeUndefinedTable  = "42P01"
	codeUndefinedColumn = "42703"
)

// pgErrorCode devuelve el SQLSTATE del error o "" si no viene del servidor.
func pgErrorCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.Message
	}
	return "", ""
}

// classify tabla inexistente → fuente ausente; columna inexistente → tabla corrupta.
func classify(err error, t ratematrix.Table) error {
	switch code, msg := pgErrorCode(err); code {
	case codeUndefinedTable:
		return ratematrix.ErrTableMissing
	case codeUndefinedColumn:
		return fmt.Errorf("%w: %s: %s", domain.ErrCorruptRateTable, t.SQLTable, msg)
	}
	return fmt.Errorf("query %s: %w", t.SQLTable, err)
}
