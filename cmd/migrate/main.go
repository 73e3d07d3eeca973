package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Bwilkie91/camera/internal/logger"
	"github.com/Bwilkie91/camera/internal/repository/sqlite"
)

func main() {
	dbPath := flag.String("db", "data/vigil.db", "Database path")
	action := flag.String("action", "up", "Migration action: up, down or version")
	flag.Parse()

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := sqlite.Open(*dbPath, logger.NewWithWriter(os.Stdout))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	switch *action {
	case "up":
		err = db.MigrateUp()
	case "down":
		err = db.MigrateDown()
	case "version":
	default:
		log.Fatalf("Unknown action %q, expected up, down or version", *action)
	}
	if err != nil {
		log.Fatalf("Migration %s failed: %v", *action, err)
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("✅ Schema version %d (dirty: %t)\n", version, dirty)
}
