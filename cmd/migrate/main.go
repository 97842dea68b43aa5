package main

import (
	"flag"
	"fmt"
	"os"

	"academy/internal/config"
	"academy/internal/logger"
	"academy/internal/store"
)

// migrate applies or rolls back the embedded schema: migrate [up|down|version]
func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [up|down|version]")
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty).With().Str("driver", cfg.DatabaseDriver).Logger()

	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	m, err := store.NewMigrator(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("migrator init failed")
	}
	defer m.Close()

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("migration failed")
		os.Exit(1)
	}

	version, dirty, err := m.Version()
	if err != nil {
		log.Error().Err(err).Msg("read version failed")
		os.Exit(1)
	}
	log.Info().Str("command", cmd).Uint("version", version).Bool("dirty", dirty).Msg("schema ready")
}
