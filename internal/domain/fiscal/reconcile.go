package fiscal

import "github.com/jhoicas/fiscal-validator/internal/domain/entity"

// Reconcile compara los totales calculados con los declarados.
// Sólo se comparan tributos presentes en ambos lados: un declarado ausente es desconocido, no cero.
// Ambos valores se redondean a dos decimales y se emite una divergencia si |calculado - declarado| >= 0.01.
// El resultado sigue el orden de inserción de computed.
func Reconcile(computed *entity.AggregateTotals, declared entity.DeclaredTotals) []entity.Divergence {
	var out []entity.Divergence
	for _, tt := range computed.Types() {
		decl, ok := declared.Lookup(tt)
		if !ok {
			continue
		}
		calc := Round2(computed.Get(tt))
		decl = Round2(decl)
		diff := calc.Sub(decl)
		if diff.Abs().LessThan(Materiality) {
			continue
		}
		out = append(out, entity.Divergence{TaxType: tt, Declared: decl, Computed: calc, Difference: diff})
	}
	return out
}
