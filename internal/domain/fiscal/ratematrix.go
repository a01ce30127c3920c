package fiscal

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
)

// DefaultICMSRate alícuota usada cuando la UF del emisor no figura en la tabla.
var DefaultICMSRate = decimal.NewFromFloat(0.18)

// Fuentes informadas en cada línea calculada.
const (
	SourceMatrix         = "matriz"
	SourceDefault        = "padrao"
	SourceNonContributor = "nao_contribuinte"
	SourceMixedInvoice   = "nota_mista"
)

// Category categoría de tabla de la matriz de alícuotas.
type Category string

const (
	CategoryFederal        Category = "federal"
	CategoryICMSState      Category = "icms_uf"
	CategoryICMSInterstate Category = "icms_interestadual"
	CategoryService        Category = "iss"
	CategoryMarkup         Category = "st_mva"
	CategoryDifferential   Category = "difal"
)

// Categories todas las categorías en el orden de carga.
var Categories = []Category{
	CategoryFederal, CategoryICMSState, CategoryICMSInterstate,
	CategoryService, CategoryMarkup, CategoryDifferential,
}

// RateRow fila ya normalizada de una fuente. Secondary sólo aplica a tablas de clave compuesta
// (UF destino, NCM).
type RateRow struct {
	Primary   string
	Secondary string
	Rate      decimal.Decimal
}

type pairKey struct{ a, b string }

// RateMatrix tablas de alícuotas de sólo lectura, cargadas una vez por ejecución.
// El valor cero (o nil) equivale a una matriz vacía: todas las consultas devuelven su valor por defecto.
type RateMatrix struct {
	federal      map[string]entity.RateEntry
	icmsState    map[string]entity.RateEntry
	interstate   map[pairKey]entity.RateEntry
	service      map[string]entity.RateEntry
	markup       map[pairKey]entity.RateEntry
	differential map[pairKey]entity.RateEntry
}

// EmptyRateMatrix matriz sin tablas.
func EmptyRateMatrix() *RateMatrix {
	return NewRateMatrixBuilder().Build()
}

// ── Consultas ──

// FederalRate alícuota federal por nombre de tributo (sin distinguir mayúsculas); 0 si no existe.
func (m *RateMatrix) FederalRate(tax string) decimal.Decimal {
	e, _ := m.FederalEntry(tax)
	return e.Rate
}

// FederalEntry devuelve la entrada federal y si existe.
func (m *RateMatrix) FederalEntry(tax string) (entity.RateEntry, bool) {
	if m == nil {
		return entity.RateEntry{}, false
	}
	e, ok := m.federal[strings.ToUpper(strings.TrimSpace(tax))]
	return e, ok
}

// ICMSRate alícuota interna de la UF; 0.18 si la tabla está vacía o la UF no figura.
func (m *RateMatrix) ICMSRate(state string) decimal.Decimal {
	return m.ICMSEntry(state).Rate
}

// ICMSEntry como ICMSRate pero con la fuente ("padrao" cuando aplica el valor por defecto).
func (m *RateMatrix) ICMSEntry(state string) entity.RateEntry {
	if m != nil {
		if e, ok := m.icmsState[NormalizeState(state)]; ok {
			return e
		}
	}
	return entity.RateEntry{Rate: DefaultICMSRate, Source: SourceDefault}
}

// InterstateICMSRate alícuota interestatal origen→destino; 0 si el par no figura.
func (m *RateMatrix) InterstateICMSRate(origin, dest string) decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	return m.interstate[pairKey{NormalizeState(origin), NormalizeState(dest)}].Rate
}

// ServiceTaxRate alícuota ISS por subitem LC 116; 0 si no existe.
func (m *RateMatrix) ServiceTaxRate(serviceCode string) decimal.Decimal {
	e, _ := m.ServiceEntry(serviceCode)
	return e.Rate
}

// ServiceEntry devuelve la entrada ISS y si existe.
func (m *RateMatrix) ServiceEntry(serviceCode string) (entity.RateEntry, bool) {
	code := strings.TrimSpace(serviceCode)
	if m == nil || code == "" {
		return entity.RateEntry{}, false
	}
	e, ok := m.service[code]
	return e, ok
}

// SubstitutionMarkup MVA para (UF, NCM); 0 si no existe.
func (m *RateMatrix) SubstitutionMarkup(state, productCode string) decimal.Decimal {
	e, _ := m.SubstitutionEntry(state, productCode)
	return e.Rate
}

// SubstitutionEntry devuelve la MVA y si existe una entrada para (UF, NCM).
func (m *RateMatrix) SubstitutionEntry(state, productCode string) (entity.RateEntry, bool) {
	if m == nil {
		return entity.RateEntry{}, false
	}
	e, ok := m.markup[pairKey{NormalizeState(state), NormalizeNCM(productCode)}]
	return e, ok
}

// DifferentialRate DIFAL origen→destino; 0 si no existe o si origen y destino coinciden.
func (m *RateMatrix) DifferentialRate(origin, dest string) decimal.Decimal {
	e, _ := m.DifferentialEntry(origin, dest)
	return e.Rate
}

// DifferentialEntry devuelve la entrada DIFAL y si aplica.
func (m *RateMatrix) DifferentialEntry(origin, dest string) (entity.RateEntry, bool) {
	o, d := NormalizeState(origin), NormalizeState(dest)
	if m == nil || o == d {
		return entity.RateEntry{}, false
	}
	e, ok := m.differential[pairKey{o, d}]
	return e, ok
}

// ── Introspección ──

// Counts cantidad de entradas por categoría.
func (m *RateMatrix) Counts() map[Category]int {
	if m == nil {
		return map[Category]int{}
	}
	return map[Category]int{
		CategoryFederal:        len(m.federal),
		CategoryICMSState:      len(m.icmsState),
		CategoryICMSInterstate: len(m.interstate),
		CategoryService:        len(m.service),
		CategoryMarkup:         len(m.markup),
		CategoryDifferential:   len(m.differential),
	}
}

// IsEmpty indica que ninguna categoría tiene entradas.
func (m *RateMatrix) IsEmpty() bool {
	for _, n := range m.Counts() {
		if n > 0 {
			return false
		}
	}
	return true
}

// ── Builder ──

// RateMatrixBuilder acumula filas por categoría; Build publica una matriz inmutable.
type RateMatrixBuilder struct {
	m RateMatrix
}

// NewRateMatrixBuilder crea un builder vacío.
func NewRateMatrixBuilder() *RateMatrixBuilder {
	return &RateMatrixBuilder{m: RateMatrix{
		federal:      map[string]entity.RateEntry{},
		icmsState:    map[string]entity.RateEntry{},
		interstate:   map[pairKey]entity.RateEntry{},
		service:      map[string]entity.RateEntry{},
		markup:       map[pairKey]entity.RateEntry{},
		differential: map[pairKey]entity.RateEntry{},
	}}
}

// Add registra una fila. Ante claves repetidas gana la primera (orden de la fuente).
// Devuelve false si la fila no tiene clave.
func (b *RateMatrixBuilder) Add(cat Category, row RateRow, source string) bool {
	e := entity.RateEntry{Rate: row.Rate, Source: source}
	switch cat {
	case CategoryFederal:
		return putFirst(b.m.federal, strings.ToUpper(strings.TrimSpace(row.Primary)), e)
	case CategoryICMSState:
		return putFirst(b.m.icmsState, NormalizeState(row.Primary), e)
	case CategoryICMSInterstate:
		return putPair(b.m.interstate, NormalizeState(row.Primary), NormalizeState(row.Secondary), e)
	case CategoryService:
		return putFirst(b.m.service, strings.TrimSpace(row.Primary), e)
	case CategoryMarkup:
		return putPair(b.m.markup, NormalizeState(row.Primary), NormalizeNCM(row.Secondary), e)
	case CategoryDifferential:
		return putPair(b.m.differential, NormalizeState(row.Primary), NormalizeState(row.Secondary), e)
	default:
		return false
	}
}

// Len entradas acumuladas para la categoría.
func (b *RateMatrixBuilder) Len(cat Category) int {
	return b.m.Counts()[cat]
}

// Build copia las tablas acumuladas a una matriz nueva.
func (b *RateMatrixBuilder) Build() *RateMatrix {
	return &RateMatrix{
		federal:      cloneMap(b.m.federal),
		icmsState:    cloneMap(b.m.icmsState),
		interstate:   cloneMap(b.m.interstate),
		service:      cloneMap(b.m.service),
		markup:       cloneMap(b.m.markup),
		differential: cloneMap(b.m.differential),
	}
}

func putFirst(dst map[string]entity.RateEntry, key string, e entity.RateEntry) bool {
	if key == "" {
		return false
	}
	if _, exists := dst[key]; !exists {
		dst[key] = e
	}
	return true
}

func putPair(dst map[pairKey]entity.RateEntry, a, b string, e entity.RateEntry) bool {
	if a == "" || b == "" {
		return false
	}
	k := pairKey{a, b}
	if _, exists := dst[k]; !exists {
		dst[k] = e
	}
	return true
}

func cloneMap[K comparable](src map[K]entity.RateEntry) map[K]entity.RateEntry {
	out := make(map[K]entity.RateEntry, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
