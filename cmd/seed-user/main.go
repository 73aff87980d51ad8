package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/coauthorhq/coauthor-api/internal/config"
	"github.com/coauthorhq/coauthor-api/internal/database"
)

// Seeds an identity mirror row so locks and sessions can be exercised
// against a fresh database without the main application running.
func main() {
	if len(os.Args) != 4 {
		fmt.Println("Usage: seed-user <email> <name> <role>")
		os.Exit(1)
	}

	email, name, role := os.Args[1], os.Args[2], os.Args[3]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var id string
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO users (email, name, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role, updated_at = NOW()
		RETURNING id
	`, email, name, role).Scan(&id)
	if err != nil {
		log.Fatalf("Failed to seed user: %v", err)
	}

	fmt.Printf("Seeded user %s (%s)\n", email, id)
}
