// audit es la CLI del validador fiscal: ejecuta la validación de una nota desde un archivo
// JSON, administra la caché de alícuotas de la reforma y emite tokens para la API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
