package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
)

// Record registro con claves arbitrarias (fila CSV, objeto JSON).
type Record map[string]any

// Payload nota en forma de registros: cabecera, ítems y valores declarados opcionales.
// Las claves de declared pueden ser nombres de tributo ("icms", "is") o sinónimos ("vICMS").
type Payload struct {
	Header   Record   `json:"header"`
	Items    []Record `json:"items"`
	Declared Record   `json:"declared,omitempty"`
}

// Stats contadores de la normalización.
type Stats struct {
	Items     int `json:"items"`
	Malformed int `json:"malformed"`
}

// resolved registro con claves en minúsculas, construido una vez.
type resolved map[string]any

func resolve(r Record) resolved {
	out := make(resolved, len(r))
	for k, v := range r {
		key := strings.ToLower(strings.TrimSpace(k))
		if _, dup := out[key]; !dup {
			out[key] = v
		}
	}
	return out
}

// lookup devuelve el primer sinónimo presente y no vacío.
func (r resolved) lookup(synonyms []string) (any, bool) {
	for _, s := range synonyms {
		if v, ok := r[s]; ok && v != nil && text(v) != "" {
			return v, true
		}
	}
	return nil, false
}

func (r resolved) str(synonyms []string) string {
	v, ok := r.lookup(synonyms)
	if !ok {
		return ""
	}
	return text(v)
}

// num interpreta un número; present=false si no existe, ok=false si existe pero no es numérico.
func (r resolved) num(synonyms []string) (d decimal.Decimal, present, ok bool) {
	v, found := r.lookup(synonyms)
	if !found {
		return decimal.Zero, false, false
	}
	d, ok = number(v)
	return d, true, ok
}

// ── Ítems ──

// NormalizeItem construye el ítem canónico. Un valor total ausente o no numérico se
// coerciona a cero y marca el ítem como Malformed; nunca devuelve error.
func NormalizeItem(rec Record) entity.LineItem {
	r := resolve(rec)
	it := entity.LineItem{
		Code:           r.str(itemCode),
		Description:    r.str(itemDescription),
		ProductCode:    r.str(itemNCM),
		OperationCode:  r.str(itemCFOP),
		ServiceCode:    r.str(itemService),
		NonContributor: nonContributor(r),
		Quantity:       decimal.NewFromInt(1),
	}

	if q, present, ok := r.num(itemQuantity); present {
		if ok {
			it.Quantity = q
		} else {
			it.Malformed = true
		}
	}
	if u, present, ok := r.num(itemUnitValue); present {
		if ok {
			it.UnitValue = u
		} else {
			it.Malformed = true
		}
	}
	total, present, ok := r.num(itemTotalValue)
	if !present || !ok {
		it.Malformed = true
		total = decimal.Zero
	}
	it.TotalValue = total
	return it
}

func nonContributor(r resolved) bool {
	if v, ok := r.lookup(itemIndicator); ok {
		return text(v) == "9"
	}
	v, ok := r.lookup(itemNonContributor)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(text(v))
	if err == nil {
		return b
	}
	switch strings.ToLower(text(v)) {
	case "s", "sim", "y", "yes":
		return true
	}
	return false
}

// ── Nota ──

// BuildInvoice construye la nota canónica. Los declarados se buscan en Declared, luego en la
// cabecera y por último en la primera fila de ítems; un tributo no encontrado queda ausente.
func BuildInvoice(p Payload) (*entity.Invoice, Stats) {
	h := resolve(p.Header)
	inv := &entity.Invoice{
		ID:             h.str(headerID),
		Number:         h.str(headerNumber),
		Series:         h.str(headerSeries),
		IssuerTaxID:    h.str(headerIssuerTaxID),
		IssuerName:     h.str(headerIssuerName),
		IssuerState:    fiscal.NormalizeState(h.str(headerIssuerState)),
		RecipientTaxID: h.str(headerRecipientTaxID),
		RecipientName:  h.str(headerRecipientName),
		RecipientState: fiscal.NormalizeState(h.str(headerRecipientState)),
		IssueDate:      h.str(headerIssueDate),
		Items:          make([]entity.LineItem, 0, len(p.Items)),
	}
	if total, present, ok := h.num(headerTotal); present && ok {
		inv.TotalDeclaredValue = total
	}

	var st Stats
	for _, rec := range p.Items {
		it := NormalizeItem(rec)
		if it.Malformed {
			st.Malformed++
		}
		inv.Items = append(inv.Items, it)
	}
	st.Items = len(inv.Items)

	sources := []resolved{resolveDeclared(p.Declared), h}
	if len(p.Items) > 0 {
		sources = append(sources, resolve(p.Items[0]))
	}
	inv.Declared = declared(sources...)
	if inv.TotalDeclaredValue.IsZero() {
		inv.TotalDeclaredValue = inv.ItemsTotal()
	}
	return inv, st
}

// resolveDeclared acepta nombres de tributo como claves ("icms" → "vicms").
func resolveDeclared(r Record) resolved {
	out := resolve(r)
	for k, v := range out {
		if tt, ok := entity.ParseTaxType(k); ok {
			if _, exists := out["v"+string(tt)]; !exists {
				out["v"+string(tt)] = v
			}
		}
	}
	return out
}

// declared extrae los valores declarados de las fuentes en orden de prioridad.
// Valores no numéricos se ignoran (desconocido, no cero).
func declared(sources ...resolved) entity.DeclaredTotals {
	out := entity.DeclaredTotals{}
	for _, f := range declaredFields {
		for _, src := range sources {
			if d, present, ok := src.num(f.synonyms); present && ok {
				out[f.tax] = d
				break
			}
		}
	}
	return out
}

// DeclaredFromRecord atajo para un único registro.
func DeclaredFromRecord(r Record) entity.DeclaredTotals {
	return declared(resolveDeclared(r))
}

// ── Conversión ──

func text(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func number(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case float64:
		return decimal.NewFromFloat(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case decimal.Decimal:
		return x, true
	default:
		return fiscal.ParseAmount(text(v))
	}
}
