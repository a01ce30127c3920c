package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/fiscal-validator/internal/infrastructure/ratematrix"
)

// Querier abstrae pool o transacción.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ ratematrix.Source = (*RateSource)(nil)

// RateSource fuente de la matriz de alícuotas sobre PostgreSQL (tablas con las mismas columnas
// que los CSVs; la alícuota es NUMERIC).
type RateSource struct {
	q Querier
}

// NewRateSource construye la fuente. Pasar pool o tx (Querier).
func NewRateSource(q Querier) *RateSource {
	return &RateSource{q: q}
}

// Name identifica la fuente.
func (s *RateSource) Name() string { return "postgres" }

// Rows consulta la tabla indicada.
func (s *RateSource) Rows(ctx context.Context, t ratematrix.Table) ([]ratematrix.RawRow, error) {
	keys := []string{t.Primary + "::text"}
	if t.Secondary != "" {
		keys = append(keys, t.Secondary+"::text")
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s", strings.Join(keys, ", "), t.Rate, t.SQLTable)

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, classify(err, t)
	}
	defer rows.Close()

	var out []ratematrix.RawRow
	for rows.Next() {
		var (
			r    ratematrix.RawRow
			rate decimal.NullDecimal
			err  error
		)
		if t.Secondary != "" {
			err = rows.Scan(&r.Primary, &r.Secondary, &rate)
		} else {
			err = rows.Scan(&r.Primary, &rate)
		}
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.SQLTable, err)
		}
		if rate.Valid {
			r.Rate = rate.Decimal.String()
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, t)
	}
	return out, nil
}
