// migrate applies the embedded audit log migrations; run with go run ./cmd/migrate -direction up.
package main

import (
	"flag"
	"fmt"
	"os"

	"genieacs-portal/internal/config"
	"genieacs-portal/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	showVersion := flag.Bool("version", false, "Print the current schema version and exit")
	flag.Parse()

	cfg, err := config.Read()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
		os.Exit(1)
	}

	if *showVersion {
		version, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		fmt.Printf("version %d (dirty: %v)\n", version, dirty)
		return
	}

	dir, err := migrate.ParseDirection(*direction)
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(2)
	}
	if err := migrate.Run(cfg.DatabaseURL, dir); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
