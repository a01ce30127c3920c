package ratematrix

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/jhoicas/fiscal-validator/internal/domain"
)

// CSVSource lee las tablas de un directorio de CSVs (un archivo por tabla).
// Acepta UTF-8 o Latin-1 y separador "," o ";".
type CSVSource struct {
	dir string
}

var _ Source = (*CSVSource)(nil)

// NewCSVSource crea la fuente sobre el directorio indicado.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

// Name identifica la fuente en los logs y en la matriz.
func (s *CSVSource) Name() string { return "csv" }

// Rows lee el archivo de la tabla.
func (s *CSVSource) Rows(_ context.Context, t Table) ([]RawRow, error) {
	path := filepath.Join(s.dir, t.File)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrTableMissing
	}
	if err != nil {
		return nil, fmt.Errorf("csv %s: %w", path, err)
	}
	records, err := ReadCSV(raw)
	if err != nil {
		return nil, fmt.Errorf("csv %s: %w", path, err)
	}
	return pick(records, t, path)
}

// ReadCSV decodifica (UTF-8 con o sin BOM, o Latin-1) y separa el contenido.
func ReadCSV(raw []byte) ([][]string, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(raw) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("decodificar latin-1: %w", err)
		}
		raw = decoded
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	header := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		header = raw[:i]
	}
	r := csv.NewReader(bytes.NewReader(raw))
	if bytes.Count(header, []byte(";")) > bytes.Count(header, []byte(",")) {
		r.Comma = ';'
	}
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

// pick extrae las columnas de la tabla por nombre de encabezado (sin distinguir mayúsculas).
func pick(records [][]string, t Table, where string) ([]RawRow, error) {
	if len(records) == 0 {
		return nil, nil
	}
	idx := map[string]int{}
	for i, h := range records[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := make([]int, 0, 3)
	for _, c := range t.Columns() {
		i, ok := idx[c]
		if !ok {
			return nil, fmt.Errorf("%w: columna %q ausente en %s", domain.ErrCorruptRateTable, c, where)
		}
		cols = append(cols, i)
	}

	field := func(rec []string, i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	rows := make([]RawRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := RawRow{Primary: field(rec, cols[0])}
		if t.Secondary != "" {
			row.Secondary = field(rec, cols[1])
		}
		row.Rate = field(rec, cols[len(cols)-1])
		if row.Primary == "" && row.Rate == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
