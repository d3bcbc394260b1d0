// Package main repairs a dirty migration state. golang-migrate marks a version dirty
// when a migration is interrupted part way; the server then refuses to start with
// "Dirty database version". This tool forces the recorded version, clearing the flag,
// so the next startup can retry cleanly.
//
//	go run ./cmd/fix-migration            # force the current version
//	go run ./cmd/fix-migration 2          # force version 2
package main

import (
	"log"
	"os"
	"strconv"

	"github.com/hookrelay/hookrelay/internal/config"
	"github.com/hookrelay/hookrelay/internal/db"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check migration state: %v", err)
	}
	log.Printf("Current migration state: version=%d, dirty=%v", version, dirty)

	target := int(version)
	if len(os.Args) > 1 {
		target, err = strconv.Atoi(os.Args[1])
		if err != nil {
			log.Fatalf("Invalid version %q: %v", os.Args[1], err)
		}
	} else if !dirty {
		log.Println("Migration state is already clean")
		return
	}

	if err := db.ForceMigrationVersion(database, target); err != nil {
		log.Fatalf("Failed to force version %d: %v", target, err)
	}

	version, dirty, err = db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check final migration state: %v", err)
	}
	log.Printf("Final migration state: version=%d, dirty=%v", version, dirty)
}
