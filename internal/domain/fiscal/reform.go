package fiscal

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/fiscal-validator/internal/domain"
	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
)

// ReformRateResolver resuelve las alícuotas CBS/IBS/IS de un par (NCM, CFOP). Nunca falla:
// ante cualquier problema devuelve el valor de respaldo.
type ReformRateResolver interface {
	Resolve(ctx context.Context, productCode, operationCode string) entity.ReformRate
}

// ReformOutcome resultado de aplicar las alícuotas de la reforma a los ítems.
type ReformOutcome struct {
	Lines     []entity.ComputedTaxLine
	Totals    *entity.AggregateTotals
	Rates     map[string]entity.ReformRate // por clave "<ncm>_<cfop>"
	Fallbacks int                          // claves resueltas con el valor de respaldo
}

// ComputeReformTaxes resuelve una vez cada par (NCM, CFOP) distinto de los ítems positivos, con
// hasta concurrency resoluciones simultáneas, y calcula CBS, IBS e IS por ítem redondeando a dos decimales.
// progress recibe claves resueltas sobre el total.
func ComputeReformTaxes(ctx context.Context, items []entity.LineItem, resolver ReformRateResolver, concurrency int, progress ProgressFunc) (ReformOutcome, error) {
	out := ReformOutcome{
		Totals: entity.NewAggregateTotals(entity.ReformTaxes...),
		Rates:  map[string]entity.ReformRate{},
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	type pair struct{ ncm, cfop string }
	var keys []string
	pairs := map[string]pair{}
	for i := range items {
		it := &items[i]
		if !it.TotalValue.IsPositive() {
			continue
		}
		k := ReformKey(it.ProductCode, it.OperationCode)
		if _, seen := pairs[k]; !seen {
			pairs[k] = pair{it.ProductCode, it.OperationCode}
			keys = append(keys, k)
		}
	}

	var (
		mu       sync.Mutex
		resolved int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, k := range keys {
		k := k
		p := pairs[k]
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: resolución %s: %v\n%s", domain.ErrStageFailure, k, r, debug.Stack())
				}
			}()
			rate := resolver.Resolve(gctx, p.ncm, p.cfop)
			mu.Lock()
			out.Rates[k] = rate
			resolved++
			n := resolved
			mu.Unlock()
			if progress != nil {
				progress(n, len(keys))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ReformOutcome{}, err
	}

	for _, r := range out.Rates {
		if r.Source == entity.ReformSourceFallback {
			out.Fallbacks++
		}
	}

	for i := range items {
		it := &items[i]
		if !it.TotalValue.IsPositive() {
			continue
		}
		rate := out.Rates[ReformKey(it.ProductCode, it.OperationCode)]
		for _, tt := range entity.ReformTaxes {
			r := rate.RateFor(tt)
			l := entity.ComputedTaxLine{
				ItemIndex: i,
				TaxType:   tt,
				Base:      it.TotalValue,
				Rate:      r,
				Value:     Round2(it.TotalValue.Mul(r)),
				Source:    rate.Source,
			}
			out.Totals.Add(tt, l.Value)
			out.Lines = append(out.Lines, l)
		}
	}
	return out, nil
}

// ZeroReformTotals totales de la reforma en cero (etapa deshabilitada).
func ZeroReformTotals() *entity.AggregateTotals {
	return entity.NewAggregateTotals(entity.ReformTaxes...)
}
