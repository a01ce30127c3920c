package ratematrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/jhoicas/fiscal-validator/internal/domain"
)

// SQLiteSource lee las tablas de un archivo SQLite (abierto en sólo lectura por consulta).
type SQLiteSource struct {
	path string
}

var _ Source = (*SQLiteSource)(nil)

// NewSQLiteSource crea la fuente; un path vacío o inexistente equivale a fuente sin tablas.
func NewSQLiteSource(path string) *SQLiteSource {
	return &SQLiteSource{path: path}
}

// Name identifica la fuente.
func (s *SQLiteSource) Name() string { return "sqlite" }

// Rows consulta la tabla.
func (s *SQLiteSource) Rows(ctx context.Context, t Table) ([]RawRow, error) {
	if s.path == "" {
		return nil, ErrTableMissing
	}
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil, ErrTableMissing
	}
	db, err := sql.Open("sqlite", "file:"+s.path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, selectQuery(t))
	if err != nil {
		return nil, classifySQLiteError(err, t)
	}
	defer rows.Close()

	var out []RawRow
	for rows.Next() {
		var primary, secondary, rate sql.NullString
		dest := []any{&primary, &rate}
		if t.Secondary != "" {
			dest = []any{&primary, &secondary, &rate}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.SQLTable, err)
		}
		out = append(out, RawRow{Primary: primary.String, Secondary: secondary.String, Rate: rate.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leer %s: %w", t.SQLTable, err)
	}
	return out, nil
}

// selectQuery SELECT de las columnas de la tabla. Los alícuotas se leen como texto para aceptar
// tanto REAL como "18%".
func selectQuery(t Table) string {
	cols := t.Columns()
	for i := range cols {
		cols[i] = "CAST(" + cols[i] + " AS TEXT)"
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), t.SQLTable)
}

func classifySQLiteError(err error, t Table) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"):
		return ErrTableMissing
	case strings.Contains(msg, "no such column"):
		return fmt.Errorf("%w: %s: %v", domain.ErrCorruptRateTable, t.SQLTable, err)
	default:
		return fmt.Errorf("consultar %s: %w", t.SQLTable, err)
	}
}

// ── Seed ──

// WriteSQLite crea (o reemplaza) las tablas en el archivo SQLite e inserta las filas indicadas.
// Las alícuotas se guardan ya normalizadas.
func WriteSQLite(ctx context.Context, path string, data map[string][]RawRow) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range Tables {
		rows, ok := data[t.SQLTable]
		if !ok {
			continue
		}
		for _, stmt := range CreateStatements(t) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("crear %s: %w", t.SQLTable, err)
			}
		}
		ins, err := tx.PrepareContext(ctx, insertQuery(t))
		if err != nil {
			return fmt.Errorf("preparar %s: %w", t.SQLTable, err)
		}
		for _, r := range rows {
			args := []any{r.Primary, r.Rate}
			if t.Secondary != "" {
				args = []any{r.Primary, r.Secondary, r.Rate}
			}
			if _, err := ins.ExecContext(ctx, args...); err != nil {
				ins.Close()
				return fmt.Errorf("insertar %s: %w", t.SQLTable, err)
			}
		}
		ins.Close()
	}
	return tx.Commit()
}

// CreateStatements DROP + CREATE de la tabla (sintaxis común a SQLite y PostgreSQL).
func CreateStatements(t Table) []string {
	cols := make([]string, 0, 3)
	cols = append(cols, t.Primary+" TEXT NOT NULL")
	if t.Secondary != "" {
		cols = append(cols, t.Secondary+" TEXT NOT NULL")
	}
	cols = append(cols, t.Rate+" NUMERIC NOT NULL")
	return []string{
		"DROP TABLE IF EXISTS " + t.SQLTable,
		fmt.Sprintf("CREATE TABLE %s (%s)", t.SQLTable, strings.Join(cols, ", ")),
	}
}

func insertQuery(t Table) string {
	cols := t.Columns()
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.SQLTable, strings.Join(cols, ", "), ph)
}
