// Package main is a diagnostic tool for database connectivity. It connects with the
// server's configuration, prints the schema version and row counts, and lists the
// newest audit entries. It exits non-zero on any failure so it can gate a deployment.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hookrelay/hookrelay/internal/config"
	"github.com/hookrelay/hookrelay/internal/db"
	"github.com/hookrelay/hookrelay/internal/db/repositories"
	"github.com/jmoiron/sqlx"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)

	users, err := repositories.NewUserRepository(database).CountUsers(ctx)
	if err != nil {
		log.Fatalf("Count users failed: %v", err)
	}
	tokens, err := repositories.NewAccessTokenRepository(database).CountActiveAccessTokens(ctx, time.Now())
	if err != nil {
		log.Fatalf("Count tokens failed: %v", err)
	}
	sx := sqlx.NewDb(database, "postgres")
	hooks, err := repositories.NewWebhookRepository(sx).CountWebhooks(ctx)
	if err != nil {
		log.Fatalf("Count webhooks failed: %v", err)
	}
	logs, err := repositories.NewWebhookLogRepository(sx).CountWebhookLogs(ctx)
	if err != nil {
		log.Fatalf("Count webhook logs failed: %v", err)
	}

	fmt.Println("\n=== COUNTS ===")
	fmt.Printf("Users:          %d\n", users)
	fmt.Printf("Active tokens:  %d\n", tokens)
	fmt.Printf("Webhooks:       %d\n", hooks)
	fmt.Printf("Webhook logs:   %d\n", logs)

	entries, total, err := repositories.NewAuditRepository(sx).ListAuditLogs(ctx, repositories.AuditFilters{}, 10, 0)
	if err != nil {
		log.Fatalf("List audit logs failed: %v", err)
	}

	fmt.Printf("\n=== AUDIT (newest 10 of %d) ===\n", total)
	for _, e := range entries {
		user := "-"
		if e.UserID != nil {
			user = *e.UserID
		}
		resource := "-"
		if e.ResourceType != nil {
			resource = *e.ResourceType
			if e.ResourceID != nil {
				resource += "/" + *e.ResourceID
			}
		}
		fmt.Printf("%s  %-16s user=%s resource=%s\n", e.CreatedAt.Format(time.RFC3339), e.Action, user, resource)
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries found")
	}
}
