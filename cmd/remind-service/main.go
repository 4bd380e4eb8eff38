package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/ryosuke1832/remind/internal/config"
	"github.com/ryosuke1832/remind/remindservice"
)

func main() {
	// Optional build-target flag override (local | cloud)
	buildTarget := flag.String("build-target", "", "Override BUILD_TARGET (local, cloud)")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *buildTarget != "" {
		cfg.BuildTarget = *buildTarget
		cfg.DBDriver, cfg.BlobDriver = "auto", "auto"
		if err := cfg.ResolveDefaults(); err != nil {
			log.Fatal().Err(err).Msg("Invalid build-target override")
		}
	}

	if err := remindservice.Run(cfg); err != nil {
		log.Error().Err(err).Msg("remind-service exited with error")
		os.Exit(1)
	}
}
