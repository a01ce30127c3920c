package ratematrix

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
)

// ReadAll lee de la fuente todas las tablas presentes con las alícuotas ya normalizadas.
// Filas con alícuota inválida se descartan; rejected cuenta las descartadas por tabla.
func ReadAll(ctx context.Context, src Source) (data map[string][]RawRow, rejected map[string]int, err error) {
	data = map[string][]RawRow{}
	rejected = map[string]int{}
	for _, t := range Tables {
		rows, err := src.Rows(ctx, t)
		if errors.Is(err, ErrTableMissing) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		clean := make([]RawRow, 0, len(rows))
		for _, r := range rows {
			rate, ok := fiscal.NormalizeRate(r.Rate)
			if !ok || strings.TrimSpace(r.Primary) == "" {
				rejected[t.SQLTable]++
				continue
			}
			r.Rate = rate.String()
			clean = append(clean, r)
		}
		data[t.SQLTable] = clean
	}
	return data, rejected, nil
}

// WriteSQLScript genera un script SQL (DROP/CREATE/INSERT) válido para SQLite y PostgreSQL.
func WriteSQLScript(w io.Writer, data map[string][]RawRow) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "-- Matriz de alícuotas")
	fmt.Fprintln(bw, "BEGIN;")
	for _, t := range Tables {
		rows, ok := data[t.SQLTable]
		if !ok {
			continue
		}
		fmt.Fprintf(bw, "\n-- %s (%d filas)\n", t.SQLTable, len(rows))
		for _, stmt := range CreateStatements(t) {
			fmt.Fprintf(bw, "%s;\n", stmt)
		}
		for _, r := range rows {
			vals := []string{quote(r.Primary)}
			if t.Secondary != "" {
				vals = append(vals, quote(r.Secondary))
			}
			vals = append(vals, r.Rate)
			fmt.Fprintf(bw, "INSERT INTO %s (%s) VALUES (%s);\n", t.SQLTable, strings.Join(t.Columns(), ", "), strings.Join(vals, ", "))
		}
	}
	fmt.Fprintln(bw, "\nCOMMIT;")
	return bw.Flush()
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
