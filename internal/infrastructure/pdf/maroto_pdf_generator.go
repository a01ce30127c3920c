// Package pdf genera el reporte de auditoría fiscal en PDF.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Emitente + CNPJ     │  Nota + Run ID + Data        │
//	│  ─────────────────────────────────────────────────────────  │
//	│  RESUMO EXECUTIVO: totais, divergência, nível de risco      │
//	│  ─────────────────────────────────────────────────────────  │
//	│  COMPARATIVO: Tributo | Calculado | Declarado | Diferença   │
//	│  ALERTAS / SUGESTÕES                                        │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER: QR com o Run ID + legenda                          │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/fiscal-validator/internal/application/audit"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorRed     = &props.Color{Red: 180, Green: 30, Blue: 30}
	colorOrange  = &props.Color{Red: 200, Green: 120, Blue: 0}
	colorGreen   = &props.Color{Red: 20, Green: 120, Blue: 60}
)

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoReportGenerator renderiza el resultado de una auditoría usando Maroto v2.
type MarotoReportGenerator struct{}

// NewMarotoReportGenerator construye el generador.
func NewMarotoReportGenerator() *MarotoReportGenerator { return &MarotoReportGenerator{} }

// GenerateReportPDF genera el PDF y devuelve sus bytes. Un resultado FAILED produce una
// página con el diagnóstico.
func (g *MarotoReportGenerator) GenerateReportPDF(_ context.Context, res *audit.Result) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Relatório de Validação Fiscal", true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(res))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))

	if res.Report == nil {
		for _, r := range failureRows(res) {
			m.AddRows(r)
		}
	} else {
		m.AddRows(summaryRows(res.Report.Summary)...)
		m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
		m.AddRows(tableHeaderRow())
		m.AddRows(comparisonRows(res.Report.Comparison)...)
		m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
		m.AddRows(alertRows(res.Report.Alerts, res.Report.Suggestions)...)
	}

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(footerRow(res))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Writer ────────────────────────────────────────────────────────────────────

// FileWriter guarda <dir>/<run_id>.pdf; implementa audit.ResultWriter.
type FileWriter struct {
	dir string
	gen *MarotoReportGenerator
}

func NewFileWriter(dir string) *FileWriter {
	return &FileWriter{dir: dir, gen: NewMarotoReportGenerator()}
}

// Path ruta del PDF de una ejecución.
func (w *FileWriter) Path(runID string) string {
	return filepath.Join(w.dir, runID+".pdf")
}

func (w *FileWriter) Write(ctx context.Context, res *audit.Result) error {
	b, err := w.gen.GenerateReportPDF(ctx, res)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("pdf: crear directorio: %w", err)
	}
	return os.WriteFile(w.Path(res.RunID), b, 0o644)
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func headerRow(res *audit.Result) core.Row {
	inv := res.Invoice
	issuer := nonEmpty(inv.IssuerTaxID, "—")
	number := nonEmpty(inv.Number, nonEmpty(inv.ID, "—"))

	return row.New(18).Add(
		col.New(7).Add(
			text.New("VALIDAÇÃO FISCAL DE NOTA", props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("CNPJ emitente: %s   |   %s → %s", issuer,
				nonEmpty(inv.IssuerState, "—"), nonEmpty(inv.RecipientState, "—")), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New("Nota "+number, props.Text{
				Style: fontstyle.Bold, Size: 11, Align: align.Right, Top: 1,
			}),
			text.New("Execução: "+res.RunID, props.Text{
				Size: 7, Align: align.Right, Top: 7, Color: colorGray,
			}),
			text.New("Data: "+res.FinishedAt.Format("02/01/2006 15:04"), props.Text{
				Size: 8, Align: align.Right, Top: 12, Color: colorGray,
			}),
		),
	)
}

func summaryRows(s audit.ExecutiveSummary) []core.Row {
	label := func(l, v string) core.Col {
		return col.New(3).Add(
			text.New(l, props.Text{Size: 7, Color: colorGray, Top: 1}),
			text.New(v, props.Text{Style: fontstyle.Bold, Size: 10, Top: 5}),
		)
	}
	return []core.Row{
		row.New(6).Add(col.New(12).Add(text.New("RESUMO EXECUTIVO", props.Text{
			Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
		}))),
		row.New(12).Add(
			label("Itens", fmt.Sprintf("%d", s.Items)),
			label("Total calculado", formatMoney(s.TotalComputed)),
			label("Total declarado", formatMoney(s.TotalDeclared)),
			label("Divergência", formatMoney(s.Divergence)+" ("+s.DivergencePercent.StringFixed(2)+"%)"),
		),
		row.New(10).Add(col.New(12).Add(text.New("Nível de risco: "+string(s.Risk), props.Text{
			Style: fontstyle.Bold, Size: 11, Color: riskColor(s.Risk), Top: 2,
		}))),
	}
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Tributo", 2, align.Left),
		h("Calculado", 3, align.Right),
		h("Declarado", 3, align.Right),
		h("Diferença", 2, align.Right),
		h("%", 2, align.Right),
	)
}

func comparisonRows(cmp []audit.TaxComparison) []core.Row {
	result := make([]core.Row, 0, len(cmp))
	for _, c := range cmp {
		declared := "—"
		if c.Declared != nil {
			declared = formatMoney(*c.Declared)
		}
		result = append(result, row.New(6).Add(
			col.New(2).Add(text.New(c.TaxType.Upper(), props.Text{Size: 8, Top: 1, Left: 1})),
			col.New(3).Add(text.New(formatMoney(c.Computed), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
			col.New(3).Add(text.New(declared, props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
			col.New(2).Add(text.New(formatMoney(c.Difference), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
			col.New(2).Add(text.New(c.DifferencePercent.StringFixed(2), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
		))
	}
	return result
}

func alertRows(alerts []audit.Alert, suggestions []string) []core.Row {
	rows := []core.Row{}
	if len(alerts) > 0 {
		rows = append(rows, row.New(6).Add(col.New(12).Add(text.New("ALERTAS", props.Text{
			Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
		}))))
		for _, a := range alerts {
			c := colorOrange
			if a.Level == audit.AlertCritical {
				c = colorRed
			}
			rows = append(rows, row.New(5).Add(col.New(12).Add(
				text.New(fmt.Sprintf("[%s] %s", a.Level, a.Message), props.Text{Size: 8, Color: c, Top: 0.5, Left: 2}),
			)))
		}
	}
	if len(suggestions) > 0 {
		rows = append(rows, row.New(6).Add(col.New(12).Add(text.New("SUGESTÕES", props.Text{
			Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
		}))))
		for _, s := range suggestions {
			rows = append(rows, row.New(5).Add(col.New(12).Add(
				text.New("• "+s, props.Text{Size: 8, Top: 0.5, Left: 2}),
			)))
		}
	}
	return rows
}

func failureRows(res *audit.Result) []core.Row {
	rows := []core.Row{
		row.New(8).Add(col.New(12).Add(text.New("EXECUÇÃO FALHOU", props.Text{
			Style: fontstyle.Bold, Size: 11, Color: colorRed, Top: 2,
		}))),
	}
	if res.Failure != nil {
		rows = append(rows, row.New(6).Add(col.New(12).Add(
			text.New("Etapa: "+string(res.Failure.Stage), props.Text{Size: 9, Top: 1}),
		)))
		for _, chunk := range splitEvery(res.Failure.Error, 100) {
			rows = append(rows, row.New(4).Add(col.New(12).Add(
				text.New(chunk, props.Text{Size: 7, Color: colorGray, Top: 0.5, Left: 2}),
			)))
		}
	}
	return rows
}

// footerRow: QR con el run ID para rastrear el reporte.
func footerRow(res *audit.Result) core.Row {
	return row.New(30).Add(
		col.New(3).Add(code.NewQr(res.RunID, props.Rect{
			Percent: 95,
			Center:  true,
		})),
		col.New(9).Add(
			text.New(strings.Join(res.Warnings, "\n"), props.Text{
				Size: 7, Top: 2, Left: 3, Color: colorGray,
			}),
			text.New("Valores de CBS/IBS/IS são indicativos até a regulamentação da reforma tributária.", props.Text{
				Size: 7, Top: 22, Left: 3, Color: colorGray,
			}),
		),
	)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func riskColor(r audit.RiskLevel) *props.Color {
	switch r {
	case audit.RiskHigh:
		return colorRed
	case audit.RiskMedium:
		return colorOrange
	default:
		return colorGreen
	}
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// formatMoney formato brasileño con separador de miles.
// Ej: 1234567.8 → "R$ 1.234.567,80", -25 → "-R$ 25,00"
func formatMoney(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	s := d.StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-2:]
	n := len(intPart)
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(intPart) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, '.')
		}
		buf = append(buf, c)
	}
	return sign + "R$ " + string(buf) + "," + frac
}

// splitEvery divide s en trozos de max n caracteres.
func splitEvery(s string, n int) []string {
	var parts []string
	for len(s) > n {
		parts = append(parts, s[:n])
		s = s[n:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
