package ratematrix

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jhoicas/fiscal-validator/internal/domain"
	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
)

// TableLoad resultado de carga de una tabla.
type TableLoad struct {
	Category fiscal.Category `json:"category"`
	Source   string          `json:"source,omitempty"`
	Rows     int             `json:"rows"`
	Rejected int             `json:"rejected"`
}

// Report resumen de la carga por tabla.
type Report struct {
	Tables []TableLoad `json:"tables"`
}

// Loaded cantidad de tablas con al menos una fila.
func (r Report) Loaded() int {
	n := 0
	for _, t := range r.Tables {
		if t.Rows > 0 {
			n++
		}
	}
	return n
}

// Loader recorre las fuentes en orden para cada tabla.
type Loader struct {
	sources []Source
	log     zerolog.Logger
}

// NewLoader crea el loader; el orden de sources es el orden de prioridad.
func NewLoader(log zerolog.Logger, sources ...Source) *Loader {
	var ss []Source
	for _, s := range sources {
		if s != nil {
			ss = append(ss, s)
		}
	}
	return &Loader{sources: ss, log: log}
}

// Sources nombres de las fuentes en orden de consulta.
func (l *Loader) Sources() []string {
	names := make([]string, 0, len(l.sources))
	for _, s := range l.sources {
		names = append(names, s.Name())
	}
	return names
}

// Load construye la matriz. Sin ninguna tabla cargada devuelve la matriz vacía junto con
// domain.ErrDataUnavailable (no fatal: aplican los valores por defecto). Una tabla corrupta
// devuelve domain.ErrCorruptRateTable.
func (l *Loader) Load(ctx context.Context) (*fiscal.RateMatrix, error) {
	m, _, err := l.LoadWithReport(ctx)
	return m, err
}

// LoadWithReport como Load, con el detalle de qué fuente respondió cada tabla.
func (l *Loader) LoadWithReport(ctx context.Context) (*fiscal.RateMatrix, Report, error) {
	b := fiscal.NewRateMatrixBuilder()
	var rep Report

	for _, t := range Tables {
		load := TableLoad{Category: t.Category}
		for _, src := range l.sources {
			if err := ctx.Err(); err != nil {
				return fiscal.EmptyRateMatrix(), rep, err
			}
			rows, err := src.Rows(ctx, t)
			if errors.Is(err, domain.ErrCorruptRateTable) {
				return fiscal.EmptyRateMatrix(), rep, fmt.Errorf("%s/%s: %w", src.Name(), t.SQLTable, err)
			}
			if err != nil {
				if !errors.Is(err, ErrTableMissing) {
					l.log.Warn().Err(err).Str("source", src.Name()).Str("table", t.SQLTable).Msg("fuente de alícuotas no disponible")
				}
				continue
			}
			if len(rows) == 0 {
				continue
			}
			for _, raw := range rows {
				rate, ok := fiscal.NormalizeRate(raw.Rate)
				if !ok || !b.Add(t.Category, fiscal.RateRow{Primary: raw.Primary, Secondary: raw.Secondary, Rate: rate}, src.Name()) {
					load.Rejected++
					continue
				}
				load.Rows++
			}
			load.Source = src.Name()
			break
		}
		if load.Rejected > 0 {
			l.log.Warn().Str("table", t.SQLTable).Int("rejected", load.Rejected).Msg("filas de alícuota descartadas")
		}
		rep.Tables = append(rep.Tables, load)
	}

	m := b.Build()
	if m.IsEmpty() {
		l.log.Warn().Msg("ninguna fuente de alícuotas disponible, se usan los valores por defecto")
		return m, rep, domain.ErrDataUnavailable
	}
	l.log.Info().Int("tables", rep.Loaded()).Msg("matriz de alícuotas cargada")
	return m, rep, nil
}
