package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arkeep-io/relaycoord/internal/adminapi"
	"github.com/arkeep-io/relaycoord/internal/auth"
	"github.com/arkeep-io/relaycoord/internal/chatbus"
	"github.com/arkeep-io/relaycoord/internal/db"
	"github.com/arkeep-io/relaycoord/internal/policy"
	"github.com/arkeep-io/relaycoord/internal/relay"
	"github.com/arkeep-io/relaycoord/internal/repository"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	upgradeAddr       string
	adminAddr         string
	dbDriver          string
	dbDSN             string
	secretKey         string
	logLevel          string
	dataDir           string
	adminSharedSecret string
	devBypassUserID   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "relaycoord",
		Short: "Relay Coordinator — WebSocket routing hub between browsers and agents",
		Long: `relaycoord terminates browser and agent WebSocket connections,
authenticates each side, maintains the in-memory routing tables that map
a user to her live agents and browsers, and routes correlated requests,
responses, streamed partials, and targeted messages between them. A
separate admin HTTP surface exposes health, metrics, and a small set of
operator endpoints.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.upgradeAddr, "upgrade-addr", envOrDefault("RELAYCOORD_UPGRADE_ADDR", ":8080"), "Raw WebSocket upgrade listen address (browsers and agents)")
	root.PersistentFlags().StringVar(&cfg.adminAddr, "admin-addr", envOrDefault("RELAYCOORD_ADMIN_ADDR", ":8081"), "Admin HTTP listen address (health, metrics, operator endpoints)")
	root.PersistentFlags().StringVar(&cfg.dbDriver, "db-driver", envOrDefault("RELAYCOORD_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("RELAYCOORD_DB_DSN", "./relaycoord.db"), "Database DSN or file path for SQLite")
	root.PersistentFlags().StringVar(&cfg.secretKey, "secret-key", envOrDefault("RELAYCOORD_SECRET_KEY", ""), "Master secret key for encrypting settings at rest (required)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("RELAYCOORD_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.dataDir, "data-dir", envOrDefault("RELAYCOORD_DATA_DIR", "./data"), "Directory for server data (RSA keys, etc.)")
	root.PersistentFlags().StringVar(&cfg.adminSharedSecret, "admin-token", envOrDefault("RELAYCOORD_ADMIN_TOKEN", ""), "Shared secret required on the admin surface (empty = disabled, dev only)")
	root.PersistentFlags().StringVar(&cfg.devBypassUserID, "dev-bypass-user", envOrDefault("RELAYCOORD_DEV_BYPASS_USER", ""), "Development-only fixed user id to bypass cookie auth (requires no identity provider configured)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relaycoord %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.secretKey == "" {
		return fmt.Errorf("secret key is required — set --secret-key or RELAYCOORD_SECRET_KEY")
	}

	logger.Info("starting relay coordinator",
		zap.String("version", version),
		zap.String("upgrade_addr", cfg.upgradeAddr),
		zap.String("admin_addr", cfg.adminAddr),
		zap.String("db_driver", cfg.dbDriver),
		zap.String("log_level", cfg.logLevel),
	)

	// --- Signal handling ---
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Encryption ---
	// InitEncryption must be called before opening the database so that
	// EncryptedString fields can encrypt/decrypt transparently on read/write.
	// The secret key is padded or truncated to exactly 32 bytes (AES-256).
	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(cfg.secretKey))
	if err := db.InitEncryption(keyBytes); err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}

	// --- 2. Database ---
	gormDB, err := db.New(db.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	// --- 3. Repositories ---
	userRepo := repository.NewUserRepository(gormDB)
	agentTokenRepo := repository.NewAgentTokenRepository(gormDB)
	settingRepo := repository.NewSettingRepository(gormDB)

	// --- 4. Auth ---
	// In development (no data dir or missing key files), ephemeral keys are
	// generated in memory. In production, persistent PEM files are used so
	// tokens survive server restarts. The same JWTManager verifies both the
	// access and refresh cookie — they differ only in their `typ` claim.
	jwtManager, err := buildJWTManager(cfg.dataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT manager: %w", err)
	}
	agentTokenVerifier := auth.NewAgentTokenVerifier(agentTokenRepo)

	// --- 5. Policy and chat ---
	policyProvider := policy.NewProvider(settingRepo)
	chatBus := chatbus.New()

	// --- 6. Relay Coordinator ---
	metricsRegistry := prometheus.NewRegistry()
	coordinatorCfg := relay.DefaultConfig()
	coordinatorCfg.DevelopmentBypassUserID = cfg.devBypassUserID
	coordinatorCfg.IdentityProviderConfigured = cfg.devBypassUserID == ""

	coordinator, err := relay.New(
		coordinatorCfg,
		relay.Collaborators{
			AccessTokenVerifier:  jwtManager,
			RefreshTokenVerifier: jwtManager,
			Users:                userRepo,
			AgentTokens:          agentTokenVerifier,
			Policy:               policyProvider,
			Chat:                 chatBus,
		},
		metricsRegistry,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to build relay coordinator: %w", err)
	}
	if err := coordinator.Start(); err != nil {
		return fmt.Errorf("failed to start relay coordinator: %w", err)
	}
	defer func() {
		if err := coordinator.Stop(); err != nil {
			logger.Warn("relay coordinator shutdown error", zap.Error(err))
		}
	}()

	// --- 7. Upgrade port (browsers and agents) ---
	upgradeSrv := &http.Server{
		Addr:         cfg.upgradeAddr,
		Handler:      coordinator.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // connections are long-lived; writes are paced by writePump instead.
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("upgrade server listening", zap.String("addr", cfg.upgradeAddr))
		if err := upgradeSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("upgrade server error", zap.Error(err))
			cancel()
		}
	}()

	// --- 8. Admin port (health, metrics, operator endpoints) ---
	adminRouter := adminapi.NewRouter(adminapi.RouterConfig{
		Relay:             coordinator,
		AgentTokens:       agentTokenRepo,
		Chat:              chatBus,
		Logger:            logger,
		AdminSharedSecret: cfg.adminSharedSecret,
		MetricsHandler:    adminapi.NewMetricsHandler(metricsRegistry),
	})

	adminSrv := &http.Server{
		Addr:         cfg.adminAddr,
		Handler:      adminRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("admin server listening", zap.String("addr", cfg.adminAddr))
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server error", zap.Error(err))
			cancel()
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down relay coordinator")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := upgradeSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("upgrade server graceful shutdown error", zap.Error(err))
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin server graceful shutdown error", zap.Error(err))
	}

	logger.Info("relay coordinator stopped")
	return nil
}

// buildJWTManager loads RSA keys from the data directory if available,
// or generates ephemeral in-memory keys for development.
func buildJWTManager(dataDir string, logger *zap.Logger) (*auth.JWTManager, error) {
	privPath := filepath.Join(dataDir, "jwt_private.pem")
	pubPath := filepath.Join(dataDir, "jwt_public.pem")

	if _, err := os.Stat(privPath); err == nil {
		logger.Info("loading JWT keys from disk", zap.String("private", privPath))
		return auth.NewJWTManagerFromFiles(privPath, pubPath, "relaycoord")
	}

	logger.Warn("JWT key files not found — using ephemeral in-memory keys (tokens will be invalidated on restart)",
		zap.String("expected_private", privPath),
	)
	return auth.NewJWTManagerGenerated("relaycoord")
}

// gormLogLevel maps the application log level string to a GORM logger level.
func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
