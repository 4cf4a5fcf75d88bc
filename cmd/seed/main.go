// seed prepares a local development setup: it writes the default settings document, prints a
// bcrypt hash for the admin password, and (when DATABASE_URL is set) inserts a sample audit entry.
// Idempotent: an existing settings file is left untouched and the audit entry is only inserted
// into an empty table.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	auditdomain "genieacs-portal/internal/audit/domain"
	auditrepo "genieacs-portal/internal/audit/repository"
	"genieacs-portal/internal/config"
	"genieacs-portal/internal/db"
	"genieacs-portal/internal/security"
	"genieacs-portal/internal/settings"
)

const devAdminPassword = "admin123"

func main() {
	password := flag.String("admin-password", devAdminPassword, "Admin password to hash for ADMIN_PASSWORD_HASH")
	flag.Parse()

	cfg, err := config.Read()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store := settings.NewFileStore(cfg.SettingsFile)
	if err := store.EnsureDefaults(); err != nil {
		log.Fatalf("settings: %v", err)
	}
	doc, err := store.Load()
	if err != nil {
		log.Fatalf("settings: %v", err)
	}
	log.Printf("Settings at %s (gateway %s, OTP enabled %v)", store.Path(), doc.WhatsappGateway, doc.OTPEnabled)

	hash, err := security.NewHasher(0).Hash([]byte(*password))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	if cfg.DatabaseURL != "" {
		seedAudit(cfg.DatabaseURL, cfg.AdminUsername)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("ADMIN_USERNAME=%s\n", cfg.AdminUsername)
	fmt.Printf("ADMIN_PASSWORD_HASH=%s\n", hash)
}

func seedAudit(dsn, admin string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := db.Open(ctx, dsn)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	repo := auditrepo.NewPostgresRepository(conn)
	existing, err := repo.ListRecent(ctx, "", 1)
	if err != nil {
		log.Fatalf("audit check: %v", err)
	}
	if len(existing) > 0 {
		log.Println("Audit log already has entries. Skipping sample entry.")
		return
	}
	if err := repo.Create(ctx, &auditdomain.AuditLog{
		ID:        uuid.New().String(),
		Actor:     admin,
		Role:      string(security.RoleAdmin),
		Action:    "seed",
		Outcome:   auditdomain.OutcomeSuccess,
		IP:        "127.0.0.1",
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		log.Fatalf("create audit entry: %v", err)
	}
}
