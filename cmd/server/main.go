package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"

	"lanhub/internal/config"
	"lanhub/internal/server"
)

func main() {
	// A .env next to the binary is optional; explicit environment wins.
	godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg := config.Load(*configPath)

	s, err := server.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	if err := s.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
