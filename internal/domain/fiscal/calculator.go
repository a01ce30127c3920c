package fiscal

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/fiscal-validator/internal/domain"
	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
)

// Valores por defecto del pool de cálculo.
const (
	DefaultWorkerCount = 4
	DefaultChunkSize   = 10000
)

// CalculatorConfig tamaño del pool y de los lotes.
type CalculatorConfig struct {
	WorkerCount int
	ChunkSize   int
}

// ProgressFunc recibe ítems procesados sobre el total. Se invoca sólo desde la goroutine de reducción.
type ProgressFunc func(done, total int)

// ComputeStats contadores de una ejecución del calculador.
type ComputeStats struct {
	Items     int `json:"items"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Malformed int `json:"malformed"`
	Chunks    int `json:"chunks"`
}

// Calculator aplica la matriz de alícuotas a los ítems de una nota (nueve tributos legados).
type Calculator struct {
	workers int
	chunk   int
	log     zerolog.Logger
}

// NewCalculator crea el calculador; valores no positivos usan los defaults (4 workers, lotes de 10000).
func NewCalculator(cfg CalculatorConfig, log zerolog.Logger) *Calculator {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Calculator{workers: cfg.WorkerCount, chunk: cfg.ChunkSize, log: log}
}

// invoiceFlags datos de cabecera evaluados una sola vez por nota.
type invoiceFlags struct {
	issuer         string
	recipient      string
	nonContributor bool
	mixed          bool
	icms           entity.RateEntry
	federal        map[entity.TaxType]entity.RateEntry
}

type partial struct {
	chunk  int
	lines  []entity.ComputedTaxLine
	totals *entity.AggregateTotals
	stats  ComputeStats
}

// ComputeLegacyTaxes calcula ICMS, ST, DIFAL, IPI, PIS, COFINS, ISS, IRPJ y CSLL por ítem.
// Los lotes se procesan en paralelo con acumuladores propios; la suma se hace en una única
// reducción y las líneas quedan en el orden original de los ítems.
// Sólo devuelve error si un lote entra en pánico (domain.ErrStageFailure).
func (c *Calculator) ComputeLegacyTaxes(inv *entity.Invoice, m *RateMatrix, progress ProgressFunc) ([]entity.ComputedTaxLine, *entity.AggregateTotals, ComputeStats, error) {
	totals := entity.NewAggregateTotals(entity.LegacyTaxes...)
	stats := ComputeStats{Items: len(inv.Items)}
	if len(inv.Items) == 0 {
		return nil, totals, stats, nil
	}

	flags := c.flags(inv, m)
	nChunks := (len(inv.Items) + c.chunk - 1) / c.chunk
	stats.Chunks = nChunks

	results := make(chan partial, nChunks)
	done := make(chan error, 1)

	var g errgroup.Group
	g.SetLimit(c.workers)
	go func() {
		for ci := 0; ci < nChunks; ci++ {
			ci := ci
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("%w: lote %d: %v\n%s", domain.ErrStageFailure, ci, r, debug.Stack())
					}
				}()
				start := ci * c.chunk
				end := min(start+c.chunk, len(inv.Items))
				results <- c.computeChunk(ci, start, inv.Items[start:end], flags, m)
				return nil
			})
		}
		done <- g.Wait()
		close(results)
	}()

	// Reducción: única goroutine que toca los totales compartidos.
	byChunk := make([][]entity.ComputedTaxLine, nChunks)
	processed := 0
	for p := range results {
		totals.Merge(p.totals)
		byChunk[p.chunk] = p.lines
		stats.Processed += p.stats.Processed
		stats.Skipped += p.stats.Skipped
		stats.Malformed += p.stats.Malformed
		processed += p.stats.Processed + p.stats.Skipped
		if progress != nil {
			progress(processed, len(inv.Items))
		}
	}
	if err := <-done; err != nil {
		return nil, nil, stats, err
	}

	n := 0
	for _, ls := range byChunk {
		n += len(ls)
	}
	lines := make([]entity.ComputedTaxLine, 0, n)
	for _, ls := range byChunk {
		lines = append(lines, ls...)
	}

	c.log.Debug().
		Int("items", stats.Items).
		Int("processed", stats.Processed).
		Int("skipped", stats.Skipped).
		Int("chunks", stats.Chunks).
		Msg("tributos legados calculados")
	return lines, totals, stats, nil
}

func (c *Calculator) flags(inv *entity.Invoice, m *RateMatrix) invoiceFlags {
	f := invoiceFlags{
		issuer:         NormalizeState(inv.IssuerState),
		recipient:      NormalizeState(inv.RecipientState),
		nonContributor: inv.NonContributor(),
		mixed:          inv.HasServiceItems(),
		icms:           m.ICMSEntry(inv.IssuerState),
		federal:        make(map[entity.TaxType]entity.RateEntry, 5),
	}
	for _, tt := range []entity.TaxType{entity.TaxIPI, entity.TaxPIS, entity.TaxCOFINS, entity.TaxIRPJ, entity.TaxCSLL} {
		e, ok := m.FederalEntry(tt.Upper())
		if !ok {
			e = entity.RateEntry{Rate: decimal.Zero, Source: SourceDefault}
		}
		f.federal[tt] = e
	}
	return f
}

func (c *Calculator) computeChunk(ci, offset int, items []entity.LineItem, f invoiceFlags, m *RateMatrix) partial {
	p := partial{
		chunk:  ci,
		lines:  make([]entity.ComputedTaxLine, 0, len(items)*len(entity.LegacyTaxes)),
		totals: entity.NewAggregateTotals(entity.LegacyTaxes...),
	}
	for i := range items {
		it := &items[i]
		if it.Malformed {
			p.stats.Malformed++
		}
		if !it.TotalValue.IsPositive() {
			p.stats.Skipped++
			continue
		}
		p.stats.Processed++
		for _, l := range computeItem(offset+i, it, f, m) {
			p.totals.Add(l.TaxType, l.Value)
			p.lines = append(p.lines, l)
		}
	}
	return p
}

// computeItem devuelve las nueve líneas de un ítem en el orden canónico.
func computeItem(idx int, it *entity.LineItem, f invoiceFlags, m *RateMatrix) []entity.ComputedTaxLine {
	v := it.TotalValue
	line := func(tt entity.TaxType, base, rate decimal.Decimal, src string) entity.ComputedTaxLine {
		return entity.ComputedTaxLine{ItemIndex: idx, TaxType: tt, Base: base, Rate: rate, Value: Round2(base.Mul(rate)), Source: src}
	}
	zero := func(tt entity.TaxType, src string) entity.ComputedTaxLine {
		return entity.ComputedTaxLine{ItemIndex: idx, TaxType: tt, Base: v, Rate: decimal.Zero, Value: decimal.Zero, Source: src}
	}

	// ICMS
	icms := line(entity.TaxICMS, v, f.icms.Rate, f.icms.Source)
	if f.nonContributor {
		icms.Value = decimal.Zero
		icms.Source = SourceNonContributor
	}

	// ST: sólo con MVA registrada para (UF emisor, NCM); nunca negativo.
	st := zero(entity.TaxST, SourceMatrix)
	if mva, ok := m.SubstitutionEntry(f.issuer, it.ProductCode); ok {
		base := v.Mul(one.Add(mva.Rate))
		value := Round2(base.Mul(f.icms.Rate).Sub(icms.Value))
		if value.IsNegative() {
			value = decimal.Zero
		}
		st = entity.ComputedTaxLine{ItemIndex: idx, TaxType: entity.TaxST, Base: base, Rate: mva.Rate, Value: value, Source: mva.Source}
	}

	// DIFAL: sólo entre UFs distintas con entrada registrada.
	difal := zero(entity.TaxDIFAL, SourceMatrix)
	if e, ok := m.DifferentialEntry(f.issuer, f.recipient); ok {
		difal = line(entity.TaxDIFAL, v, e.Rate, e.Source)
	}

	// IPI: una nota con servicios anula el IPI de todos sus ítems.
	ipi := line(entity.TaxIPI, v, f.federal[entity.TaxIPI].Rate, f.federal[entity.TaxIPI].Source)
	if f.mixed {
		ipi = zero(entity.TaxIPI, SourceMixedInvoice)
	}

	iss := zero(entity.TaxISS, SourceDefault)
	if e, ok := m.ServiceEntry(it.ServiceCode); ok {
		iss = line(entity.TaxISS, v, e.Rate, e.Source)
	}

	fed := func(tt entity.TaxType) entity.ComputedTaxLine {
		e := f.federal[tt]
		return line(tt, v, e.Rate, e.Source)
	}

	return []entity.ComputedTaxLine{
		icms, st, difal, ipi,
		fed(entity.TaxPIS), fed(entity.TaxCOFINS),
		iss,
		fed(entity.TaxIRPJ), fed(entity.TaxCSLL),
	}
}
