// Command ews-migrate applies the early-warning schema and reports any table still missing.
// It reads the same DB_* variables as wisefido-ews.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	commoncfg "wisefido-ews/common/config"
	"wisefido-ews/common/database"
	"wisefido-ews/internal/repository"

	"go.uber.org/zap"
)

func main() {
	verifyOnly := flag.Bool("verify", false, "only check that the tables exist")
	flag.Parse()

	cfg := &commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "owlrd",
		SSLMode:  "disable",

		ApplicationName: "ews-migrate",
	}
	cfg.LoadFromEnv("DB")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.NewPostgresDB(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Printf("Connected to database: %s@%s\n", cfg.Database, cfg.Host)

	repo := repository.NewPostgresRepository(db, zap.NewNop())
	if !*verifyOnly {
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
		fmt.Println("Schema applied")
	}

	missing, err := repo.MissingTables(ctx)
	if err != nil {
		log.Fatalf("Failed to verify schema: %v", err)
	}
	if len(missing) > 0 {
		fmt.Printf("Missing tables: %v\n", missing)
		os.Exit(1)
	}
	fmt.Printf("All %d tables present\n", len(repository.SchemaTables))
}
