package discord

import (
	"log"
	"time"
)

// step loguea cuánto tardó una etapa; se usa con defer step("x")().
func step(label string) func() {
	start := time.Now()
	return func() {
		if d := time.Since(start); d > 2*time.Second {
			log.Printf("[trace] ⚠️ %s lento = %s", label, d)
		} else {
			log.Printf("[trace] %s = %s", label, d)
		}
	}
}
