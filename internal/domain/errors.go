package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	// ErrDataUnavailable ninguna fuente de alícuotas respondió; se usan los valores por defecto.
	ErrDataUnavailable = errors.New("matriz de alícuotas no disponible")
	// ErrCorruptRateTable una fuente existe pero su estructura es inválida (columna obligatoria ausente).
	ErrCorruptRateTable = errors.New("tabla de alícuotas corrupta")
	// ErrMalformedItem valor numérico inválido en un ítem; se absorbe coercionando a cero y
	// queda como advertencia de la ejecución.
	ErrMalformedItem = errors.New("ítem con valor numérico inválido")
	// ErrRemoteResolutionFailed el servicio de alícuotas de la reforma agotó reintentos o falló sin recuperación.
	ErrRemoteResolutionFailed = errors.New("resolución remota de alícuotas fallida")
	// ErrStageFailure falla estructural de una etapa del pipeline; aborta la ejecución.
	ErrStageFailure = errors.New("falla de etapa del pipeline")
	// ErrCanceled la ejecución fue cancelada entre etapas.
	ErrCanceled = errors.New("ejecución cancelada")
)
