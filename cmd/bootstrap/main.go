package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"rulegate/internal/auth"
	"rulegate/internal/catalog"
	"rulegate/internal/ledger"
	"rulegate/internal/models"
	"rulegate/internal/store"
)

func main() {
	var dataDir string
	var email string
	var password string
	var role string

	flag.StringVar(&dataDir, "data-dir", "./data", "Path to data directory")
	flag.StringVar(&email, "email", "", "Operator email")
	flag.StringVar(&password, "password", "", "Operator password")
	flag.StringVar(&role, "role", string(models.RoleAdmin), "Operator role: admin or viewer")
	flag.Parse()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		log.Fatalf("email and password are required")
	}
	userRole := models.UserRole(role)
	if userRole != models.RoleAdmin && userRole != models.RoleViewer {
		log.Fatalf("unknown role %q", role)
	}

	st, err := store.New(dataDir)
	if err != nil {
		log.Fatalf("init store: %v", err)
	}

	if err := ensureJWTSecret(dataDir); err != nil {
		log.Fatalf("ensure jwt secret: %v", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	user := models.User{
		Email:     email,
		Role:      userRole,
		Password:  hash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, err := st.FindUserByEmail(email); err == nil {
		user.ID = existing.ID
		user.CreatedAt = existing.CreatedAt
	} else {
		user.ID = uuid.NewString()
	}
	if err := st.UpsertUser(user); err != nil {
		log.Fatalf("upsert user: %v", err)
	}

	seeded, err := catalog.Seed(ledger.New(st))
	if err != nil {
		log.Fatalf("seed catalog: %v", err)
	}
	if seeded > 0 {
		log.Printf("seeded %d builtin templates", seeded)
	}

	fmt.Printf("operator %s (%s) ready\n", email, userRole)
}

// ensureJWTSecret writes a random signing secret when none exists, so a
// fresh data directory is usable without manual setup.
func ensureJWTSecret(dataDir string) error {
	path := filepath.Join(dataDir, "jwt_secret")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(raw)+"\n"), 0o600); err != nil {
		return err
	}
	log.Printf("generated new JWT secret at %s", path)
	return nil
}
