// seed_matrix convierte el directorio de CSVs de la matriz de alícuotas (UTF-8 o Latin-1)
// en un script SQL y en una base SQLite lista para el validador.
//
// Uso: go run ./cmd/seed_matrix [directorio CSV] [ruta SQLite]
// Por defecto lee data/matriz y escribe db/matriz.db.
// Escribe además: db/seed_matriz.sql (aplicable también en PostgreSQL).
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jhoicas/fiscal-validator/internal/infrastructure/ratematrix"
)

func main() {
	csvDir := "data/matriz"
	if len(os.Args) > 1 {
		csvDir = os.Args[1]
	}
	dbPath := filepath.Join("db", "matriz.db")
	if len(os.Args) > 2 {
		dbPath = os.Args[2]
	}

	ctx := context.Background()
	data, rejected, err := ratematrix.ReadAll(ctx, ratematrix.NewCSVSource(csvDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Leer CSVs: %v\n", err)
		os.Exit(1)
	}
	if len(data) == 0 {
		fmt.Fprintf(os.Stderr, "Ninguna tabla encontrada en %s\n", csvDir)
		os.Exit(1)
	}

	// Ruta del script de salida (relativa al módulo)
	moduleRoot := findModuleRoot()
	outPath := filepath.Join(moduleRoot, "db", "seed_matriz.sql")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Crear directorio: %v\n", err)
		os.Exit(1)
	}
	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Crear archivo: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()
	if err := ratematrix.WriteSQLScript(out, data); err != nil {
		fmt.Fprintf(os.Stderr, "Escribir SQL: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Crear directorio: %v\n", err)
		os.Exit(1)
	}
	if err := ratematrix.WriteSQLite(ctx, dbPath, data); err != nil {
		fmt.Fprintf(os.Stderr, "Escribir SQLite: %v\n", err)
		os.Exit(1)
	}

	for _, t := range ratematrix.Tables {
		rows, ok := data[t.SQLTable]
		if !ok {
			fmt.Printf("  %-20s ausente\n", t.SQLTable)
			continue
		}
		fmt.Printf("  %-20s %6d filas  %4d descartadas\n", t.SQLTable, len(rows), rejected[t.SQLTable])
	}
	fmt.Printf("Generado %s y %s\n", outPath, dbPath)
}

func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
