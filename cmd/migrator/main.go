package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"sessionauth/internal/config"
	"sessionauth/internal/migrator"
	"sessionauth/internal/storage/mongodb"
)

func main() {
	var configPath string
	var down bool
	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.BoolVar(&down, "down", false, "roll back all migrations")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	cfg := config.LoadConfig(configPath)

	direction := migrator.Up
	if down {
		direction = migrator.Down
	}

	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		migrate("sqlite", migrator.SQLiteURL(cfg.Storage.SQLitePath), direction)
	case config.DriverPostgres:
		migrate("postgres", migrator.PostgresURL(cfg.Storage.PostgresURL), direction)
	case config.DriverMongo:
		ensureMongo(cfg.Storage.Mongo)
	default:
		log.Fatalf("unknown storage driver: %q", cfg.Storage.Driver)
	}

	fmt.Println("Database initialization completed successfully")
}

func migrate(dir, databaseURL, direction string) {
	log.Printf("Applying %s migrations (%s)...", dir, direction)

	err := migrator.Run(dir, databaseURL, direction)
	if errors.Is(err, migrator.ErrNoChange) {
		log.Println("No migrations to apply")
		return
	}
	if err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	log.Println("Migrations applied")
}

// ensureMongo connects once so that the collection indexes get created.
func ensureMongo(cfg config.MongoConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Println("Connecting to MongoDB...")

	storage, err := mongodb.New(ctx, cfg.URI, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to mongodb: %v", err)
	}
	defer storage.Close(ctx)

	log.Println("MongoDB connected, indexes created successfully")
}
