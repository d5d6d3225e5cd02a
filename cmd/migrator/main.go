package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"jobboard/internal/config"
	"jobboard/internal/storage/mongodb"
	"jobboard/internal/storage/sqlite"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	var configPath string
	var migrationsPath string
	var seedAdmin bool
	var adminEmail string
	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.StringVar(&migrationsPath, "migrations", "migrations", "path to migrations directory")
	flag.BoolVar(&seedAdmin, "seed-admin", false, "seed an admin user (password from ADMIN_PASSWORD env)")
	flag.StringVar(&adminEmail, "admin-email", "admin@jobboard.local", "email for the seeded admin user")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	cfg := config.LoadConfig(configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cfg.Storage.Driver {
	case "mongodb":
		log.Println("Connecting to MongoDB...")
		storage, err := mongodb.New(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
		if err != nil {
			log.Fatalf("failed to connect to mongodb: %v", err)
		}
		defer storage.Close(ctx)
		log.Println("MongoDB connected, indexes created successfully")

		if seedAdmin {
			if err := storage.SeedAdmin(ctx, adminEmail, adminPassHash()); err != nil {
				log.Fatalf("failed to seed admin: %v", err)
			}
			log.Printf("Admin user seeded (%s)", adminEmail)
		}
	default:
		log.Println("Applying sqlite migrations...")
		m, err := migrate.New(
			"file://"+migrationsPath,
			"sqlite3://"+cfg.Storage.Path,
		)
		if err != nil {
			log.Fatalf("failed to init migrator: %v", err)
		}
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				log.Println("no migrations to apply")
			} else {
				log.Fatalf("failed to apply migrations: %v", err)
			}
		}

		if seedAdmin {
			storage, err := sqlite.New(cfg.Storage.Path)
			if err != nil {
				log.Fatalf("failed to open storage: %v", err)
			}
			defer storage.Close()
			if err := storage.SeedAdmin(ctx, adminEmail, adminPassHash()); err != nil {
				log.Fatalf("failed to seed admin: %v", err)
			}
			log.Printf("Admin user seeded (%s)", adminEmail)
		}
	}

	fmt.Println("Database initialization completed successfully")
}

func adminPassHash() []byte {
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		log.Fatal("ADMIN_PASSWORD env variable is required to seed an admin")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash admin password: %v", err)
	}
	return hash
}
