package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"cloudvault/config"
	"cloudvault/internal/domain/conversation"
	"cloudvault/internal/repository"
	"cloudvault/internal/services"
	"cloudvault/pkg/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const usage = `
CloudVault - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Create extensions and auto-migrate all tables
  status      Show database connection and table status
  seed-dev    Create a demo conversation and print access tokens for its members
  reset       Drop all tables and re-run migrations (DANGEROUS)

Flags:
  -members int   Number of members for seed-dev (default 2)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go seed-dev -members 3
`

func main() {
	members := flag.Int("members", 2, "Number of members for seed-dev")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg := config.LoadConfig()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer database.Close(db)

	switch command {
	case "up":
		runMigrationsUp(db)
	case "status":
		showStatus(db)
	case "seed-dev":
		runSeedDevelopment(cfg, db, *members)
	case "reset":
		runReset(db)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(db *gorm.DB) {
	log.Println("🚀 Running migrations UP...")

	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Migrations completed successfully!")
}

func showStatus(db *gorm.DB) {
	log.Println("🔍 Checking database status...")

	if err := database.HealthCheck(context.Background(), db); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	missing := repository.MissingTables(db)
	if len(missing) == 0 {
		log.Printf("✅ All %d tables exist", len(repository.Models()))
		return
	}
	for _, table := range missing {
		log.Printf("❌ Table %-25s does not exist", table)
	}
}

func runSeedDevelopment(cfg *config.Config, db *gorm.DB, members int) {
	log.Println("🌱 Seeding database (development mode)...")
	if members < 2 {
		log.Fatalf("❌ A conversation needs at least 2 members, got %d", members)
	}

	ctx := context.Background()
	repo := repository.NewConversationRepository(db)
	auth := services.NewAuthService(cfg.JWTSecret, 24*time.Hour)
	convID := uuid.New()

	log.Printf("📊 Conversation: %s", convID)
	for i := 0; i < members; i++ {
		userID := uuid.New()
		if err := repo.AddParticipant(ctx, &conversation.Participant{ConversationID: convID, UserID: userID}); err != nil {
			log.Fatalf("❌ Seeding failed: %v", err)
		}
		token, err := auth.IssueAccessToken(userID)
		if err != nil {
			log.Fatalf("❌ Token issue failed: %v", err)
		}
		log.Printf("   - member %s token %s", userID, token)
	}
	log.Println("✅ Development seeding completed!")
}

func runReset(db *gorm.DB) {
	log.Println("⚠️  WARNING: This will DROP all tables and re-run migrations!")

	log.Println("🗑️  Dropping all tables...")
	if err := db.Migrator().DropTable(repository.Models()...); err != nil {
		log.Fatalf("❌ Failed to drop tables: %v", err)
	}

	runMigrationsUp(db)
	log.Println("✅ Database reset completed!")
}
