// Package report persiste el resultado de una ejecución como JSON.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jhoicas/fiscal-validator/internal/application/audit"
)

// JSONWriter guarda <dir>/<run_id>.json. Implementa audit.ResultWriter.
type JSONWriter struct {
	dir string
}

func NewJSONWriter(dir string) *JSONWriter { return &JSONWriter{dir: dir} }

// Path ruta del reporte de una ejecución.
func (w *JSONWriter) Path(runID string) string {
	return filepath.Join(w.dir, runID+".json")
}

func (w *JSONWriter) Write(_ context.Context, res *audit.Result) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("report: crear directorio: %w", err)
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("report: serializar: %w", err)
	}
	tmp := w.Path(res.RunID) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("report: escribir: %w", err)
	}
	return os.Rename(tmp, w.Path(res.RunID))
}
