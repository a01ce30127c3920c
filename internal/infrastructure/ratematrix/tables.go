// Package ratematrix carga la matriz de alícuotas desde una lista ordenada de fuentes
// (PostgreSQL, SQLite, directorio de CSVs). Por cada tabla gana la primera fuente con filas.
package ratematrix

import (
	"context"
	"errors"

	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
)

// ErrTableMissing la fuente no tiene la tabla (o el archivo); se intenta la siguiente fuente.
var ErrTableMissing = errors.New("tabla de alícuotas ausente")

// Table describe una tabla de la matriz: nombre en SQL, archivo CSV y columnas.
type Table struct {
	Category  fiscal.Category
	SQLTable  string
	File      string
	Primary   string
	Secondary string // vacío para tablas de clave simple
	Rate      string
}

// Columns columnas obligatorias en orden clave primaria, secundaria, alícuota.
func (t Table) Columns() []string {
	if t.Secondary == "" {
		return []string{t.Primary, t.Rate}
	}
	return []string{t.Primary, t.Secondary, t.Rate}
}

// Tables tablas conocidas, con los mismos nombres de columna en SQL y en CSV.
var Tables = []Table{
	{Category: fiscal.CategoryFederal, SQLTable: "federais", File: "Federais.csv", Primary: "tributo", Rate: "aliquota"},
	{Category: fiscal.CategoryICMSState, SQLTable: "icms_uf", File: "ICMS_uf.csv", Primary: "uf", Rate: "aliquota"},
	{Category: fiscal.CategoryICMSInterstate, SQLTable: "icms_interestadual", File: "ICMS_interestadual.csv", Primary: "uf_origem", Secondary: "uf_destino", Rate: "aliquota"},
	{Category: fiscal.CategoryService, SQLTable: "iss_full", File: "ISS_full_schema.csv", Primary: "subitem_lc116", Rate: "aliquota_iss"},
	{Category: fiscal.CategoryMarkup, SQLTable: "st_mva", File: "ST_MVA.csv", Primary: "uf", Secondary: "ncm", Rate: "mva"},
	{Category: fiscal.CategoryDifferential, SQLTable: "difal", File: "DIFAL.csv", Primary: "uf_origem", Secondary: "uf_destino", Rate: "difal"},
}

// RawRow fila tal como viene de la fuente, antes de normalizar la alícuota.
type RawRow struct {
	Primary   string
	Secondary string
	Rate      string
}

// Source fuente de filas de la matriz.
// Rows devuelve ErrTableMissing si la tabla no existe y domain.ErrCorruptRateTable si existe
// pero le falta una columna obligatoria.
type Source interface {
	Name() string
	Rows(ctx context.Context, t Table) ([]RawRow, error)
}
