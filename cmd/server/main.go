package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/prismgw/prism/internal/config"
	"github.com/prismgw/prism/internal/logger"
	"github.com/prismgw/prism/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := server.Run(cfg, log); err != nil {
		log.Sugar().Fatalf("server exited: %v", err)
	}
}
