package audit

import (
	"context"

	"github.com/jhoicas/fiscal-validator/internal/domain/entity"
	"github.com/jhoicas/fiscal-validator/internal/domain/fiscal"
)

// RateMatrixLoader puerto de carga de la matriz de alícuotas.
// Devuelve domain.ErrDataUnavailable (no fatal) junto con la matriz vacía si ninguna fuente respondió.
type RateMatrixLoader interface {
	Load(ctx context.Context) (*fiscal.RateMatrix, error)
}

// ProgressSink recibe cada evento de progreso. Debe ser seguro para uso concurrente.
type ProgressSink interface {
	Emit(ev entity.ProgressEvent)
}

// ResultWriter persiste o publica el resultado de una ejecución (completa o fallida).
type ResultWriter interface {
	Write(ctx context.Context, res *Result) error
}
