// Package main implements a one-shot seed command that creates a user and
// mints an agent bearer token directly in the relay coordinator's database.
// It lives inside the module so it can access internal/* packages.
//
// Usage:
//
//	go run ./cmd/seed --email admin@test.com --name "Admin User" --label "laptop"
//
// Environment variables:
//
//	RELAYCOORD_DB_DRIVER   Database driver, sqlite or postgres (default: sqlite)
//	RELAYCOORD_DB_DSN      SQLite file path or Postgres DSN (default: ./relaycoord.db)
//	RELAYCOORD_SECRET_KEY  Master encryption key — must match the value used by the server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arkeep-io/relaycoord/internal/auth"
	"github.com/arkeep-io/relaycoord/internal/db"
	"github.com/arkeep-io/relaycoord/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	email := flag.String("email", "", "User email (required)")
	name := flag.String("name", "Admin User", "Display name")
	label := flag.String("label", "default", "Label for the minted agent token")
	flag.Parse()

	if *email == "" {
		return fmt.Errorf("--email is required")
	}

	dsn := envOrDefault("RELAYCOORD_DB_DSN", "./relaycoord.db")

	secretKey := os.Getenv("RELAYCOORD_SECRET_KEY")
	if secretKey == "" {
		return fmt.Errorf(
			"RELAYCOORD_SECRET_KEY is not set\n" +
				"  Set it to the same value used by the server, otherwise\n" +
				"  encrypted settings will be unreadable at runtime.",
		)
	}

	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(secretKey))
	if err := db.InitEncryption(keyBytes); err != nil {
		return fmt.Errorf("init encryption: %w", err)
	}

	logger, _ := zap.NewDevelopment()

	database, err := db.New(db.Config{
		Driver:   envOrDefault("RELAYCOORD_DB_DRIVER", "sqlite"),
		DSN:      dsn,
		Logger:   logger,
		LogLevel: gormlogger.Silent,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	userRepo := repository.NewUserRepository(database)
	agentTokenRepo := repository.NewAgentTokenRepository(database)

	user := &db.User{
		Email:       *email,
		DisplayName: *name,
		IsActive:    true,
	}

	if err := userRepo.Create(context.Background(), user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("a user with email %q already exists", *email)
		}
		return fmt.Errorf("create user: %w", err)
	}

	raw, hash, err := auth.GenerateAgentToken()
	if err != nil {
		return fmt.Errorf("generate agent token: %w", err)
	}

	token := &db.AgentToken{
		UserID:    user.ID,
		TokenHash: hash,
		Label:     *label,
	}
	if err := agentTokenRepo.Create(context.Background(), token); err != nil {
		return fmt.Errorf("create agent token: %w", err)
	}

	fmt.Printf("User created\n")
	fmt.Printf("  ID:    %s\n", user.ID)
	fmt.Printf("  Email: %s\n", user.Email)
	fmt.Printf("  Name:  %s\n", user.DisplayName)
	fmt.Printf("\nAgent token minted (shown once — store it now)\n")
	fmt.Printf("  Label: %s\n", token.Label)
	fmt.Printf("  Token: %s\n", raw)

	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
