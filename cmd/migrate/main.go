package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"gosurv/internal/config"
	"gosurv/internal/container"
	"gosurv/internal/migration"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if len(os.Args) > 1 {
		cfg.Database.URL = os.Args[1]
	}
	if cfg.Database.URL == "" {
		log.Fatal("Usage: migrate [database_url] (or set DATABASE_URL and DB_DRIVER)")
	}

	ctx := context.Background()
	db, err := container.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	runner := migration.NewRunner()
	log.Printf("Applying schema %s to %s database", runner.Version(), cfg.Database.Driver)
	if err := runner.Run(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Migration complete")
}
