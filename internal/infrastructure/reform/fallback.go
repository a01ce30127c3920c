package reform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
	"github.com/jhoicas/fiscal-validator/internal/infrastructure/ratematrix"
)

// PlaceholderObservation texto del valor de respaldo mientras la reforma no esté reglamentada.
const PlaceholderObservation = "Reforma tributária ainda não regulamentada - valores indicativos"

// FallbackTable cuarto nivel: tabla local opcional por clave "<ncm>_<cfop>" o sólo por NCM.
// Sin entrada devuelve el marcador 0.0/0.0/0.0 con fuente "fallback".
type FallbackTable struct {
	byKey map[string]entity.ReformRate
	byNCM map[string]entity.ReformRate
}

// NewFallbackTable tabla vacía (siempre responde el marcador).
func NewFallbackTable() *FallbackTable {
	return &FallbackTable{byKey: map[string]entity.ReformRate{}, byNCM: map[string]entity.ReformRate{}}
}

// Placeholder valor documentado de respaldo.
func Placeholder() entity.ReformRate {
	return entity.ReformRate{
		CBS:         decimal.Zero,
		IBS:         decimal.Zero,
		IS:          decimal.Zero,
		Source:      entity.ReformSourceFallback,
		Observation: PlaceholderObservation,
	}
}

// Set registra alícuotas locales; cfop vacío o "*" aplica a cualquier CFOP del NCM.
func (f *FallbackTable) Set(ncm, cfop string, cbs, ibs, is decimal.Decimal) {
	r := entity.ReformRate{CBS: cbs, IBS: ibs, IS: is, Source: entity.ReformSourceFallback, Observation: "matriz local"}
	c := strings.TrimSpace(cfop)
	if c == "" || c == "*" {
		f.byNCM[fiscal.NormalizeNCM(ncm)] = r
		return
	}
	f.byKey[fiscal.ReformKey(ncm, cfop)] = r
}

// Lookup resuelve en la tabla local o devuelve el marcador.
func (f *FallbackTable) Lookup(ncm, cfop string) entity.ReformRate {
	if f != nil {
		if r, ok := f.byKey[fiscal.ReformKey(ncm, cfop)]; ok {
			return r
		}
		if r, ok := f.byNCM[fiscal.NormalizeNCM(ncm)]; ok {
			return r
		}
	}
	return Placeholder()
}

// Len entradas locales.
func (f *FallbackTable) Len() int {
	if f == nil {
		return 0
	}
	return len(f.byKey) + len(f.byNCM)
}

// LoadFallbackCSV lee una tabla local con columnas ncm, cfop, cbs, ibs, is, con el mismo lector
// que la matriz (UTF-8 o Latin-1, separador "," o ";", filas de largo variable).
// Un path vacío o inexistente devuelve la tabla vacía.
func LoadFallbackCSV(path string) (*FallbackTable, error) {
	t := NewFallbackTable()
	if path == "" {
		return t, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fallback reforma: abrir %s: %w", path, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("fallback reforma: leer %s: %w", path, err)
	}
	records, err := ratematrix.ReadCSV(raw)
	if err != nil {
		return nil, fmt.Errorf("fallback reforma: csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return t, nil
	}

	col := map[string]int{}
	for i, h := range records[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{"ncm", "cbs", "ibs", "is"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("fallback reforma: columna %q ausente en %s", req, path)
		}
	}
	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}
	rate := func(rec []string, name string) decimal.Decimal {
		v, ok := fiscal.NormalizeRate(get(rec, name))
		if !ok {
			return decimal.Zero
		}
		return v
	}
	for _, rec := range records[1:] {
		ncm := get(rec, "ncm")
		if fiscal.NormalizeNCM(ncm) == "" {
			continue
		}
		t.Set(ncm, get(rec, "cfop"), rate(rec, "cbs"), rate(rec, "ibs"), rate(rec, "is"))
	}
	return t, nil
}
