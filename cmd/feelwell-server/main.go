package main

import (
	"context"
	crypto_rand "crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/feelwell/feelwell/internal/config"
	"github.com/feelwell/feelwell/internal/domain/chat"
	"github.com/feelwell/feelwell/internal/domain/identity"
	"github.com/feelwell/feelwell/internal/domain/messaging"
	"github.com/feelwell/feelwell/internal/domain/scheduling"
	"github.com/feelwell/feelwell/internal/platform/auth"
	"github.com/feelwell/feelwell/internal/platform/db"
	"github.com/feelwell/feelwell/internal/platform/llm"
	"github.com/feelwell/feelwell/internal/platform/middleware"
	"github.com/feelwell/feelwell/internal/platform/websocket"
)

const (
	bodyLimit         = "2M"
	shutdownTimeout   = 15 * time.Second
	revocationCleanup = 10 * time.Minute
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "feelwell-server",
		Short:         "FeelWell telehealth API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(repairCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, newLogger(os.Getenv("ENV")), err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		return nil, logger, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run PostgreSQL migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status, appliedAt := "pending", "-"
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format(time.RFC3339)
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
		cmd.AddCommand(c)
	}
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrations")
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := cmd.Context()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, dir))
}

func repairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Repair stored data",
	}

	rolesCmd := &cobra.Command{
		Use:   "roles",
		Short: "Assign roles to conversation messages that lack a valid one",
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			repos, err := openRepositories(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer repos.close()

			svc := chat.NewService(repos.conversations, nil, nil, nil, chat.ThinkingConfig{}, nil, logger)
			report, err := svc.RepairRoles(ctx, dryRun)
			if err != nil {
				return fmt.Errorf("repair roles: %w", err)
			}
			logger.Info().
				Bool("dry_run", dryRun).
				Int("scanned", report.Scanned).
				Int("updated", report.Updated).
				Int("messages_fixed", report.MessagesFixed).
				Msg("role repair finished")
			return nil
		},
	}
	rolesCmd.Flags().Bool("dry-run", false, "Report what would change without writing")
	cmd.AddCommand(rolesCmd)
	return cmd
}

// signingKey returns JWT_SECRET, or a random key in development so tokens
// work until the process restarts.
func signingKey(cfg *config.Config) ([]byte, bool, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), false, nil
	}
	if !cfg.IsDev() {
		return nil, false, errors.New("JWT_SECRET is required outside development")
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random signing key: %w", err)
	}
	return key, true, nil
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

func authMiddleware(cfg *config.Config, jwtCfg auth.JWTConfig) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == "development" {
		return auth.DevAuthMiddleware(jwtCfg)
	}
	return auth.JWTMiddleware(jwtCfg)
}

func runServer() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to store")
		return err
	}
	defer repos.close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	key, generated, err := signingKey(cfg)
	if err != nil {
		return err
	}
	if generated {
		logger.Warn().Msg("JWT_SECRET not set, using a random signing key for this process")
	}
	tokens := auth.NewTokenIssuer(key, cfg.JWTTTL)
	revocations := auth.NewTokenRevocationStore(revocationCleanup)
	defer revocations.Close()

	thinking, err := chat.LoadThinkingConfig(cfg.ChatConfigFile)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load chat config")
		return err
	}

	// Events
	hub := websocket.NewHub(logger)
	var publisher websocket.EventPublisher = hub
	var bridge *websocket.RedisBridge
	if cfg.RedisURL != "" {
		bridge, err = websocket.NewRedisBridge(ctx, cfg.RedisURL, cfg.RedisChannel, hub, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to redis")
			return err
		}
		defer bridge.Close()
		publisher = bridge
	}
	events := websocket.NewNotifier(publisher, logger)

	// Services
	gateway := llm.NewOpenAIGateway(llm.Config{
		APIKey:        cfg.OpenAIAPIKey,
		BaseURL:       cfg.OpenAIBaseURL,
		Model:         cfg.LLMModel,
		FallbackModel: cfg.LLMFallback,
		Timeout:       cfg.LLMTimeout,
		SystemPrompt:  llm.DefaultSystemPrompt,
	}, logger)
	responder := llm.NewResponder(gateway, logger)

	identitySvc := identity.NewService(repos.users, tokens, revocations)
	schedulingSvc := scheduling.NewService(repos.appointments, identitySvc, loc, events)
	messagingSvc := messaging.NewService(repos.messages, identitySvc, events)
	chatSvc := chat.NewService(repos.conversations, identitySvc, schedulingSvc, responder, thinking, events, logger)
	hub.AuthorizeConversations(chatSvc)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(echomw.BodyLimit(bodyLimit))
	e.Use(middleware.RateLimit(rateLimitConfig(cfg)))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(authMiddleware(cfg, auth.JWTConfig{
		Tokens:      tokens,
		Revocations: revocations,
		Skipper:     auth.AuthSkipper,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(repos.checker))

	root := e.Group("")
	identity.NewHandler(identitySvc).RegisterRoutes(root)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(root)
	messaging.NewHandler(messagingSvc).RegisterRoutes(root)
	chat.NewHandler(chatSvc).RegisterRoutes(root)
	llm.NewHandler(responder, thinking.CanView).RegisterRoutes(e)
	websocket.NewHandler(hub, cfg.CORSOrigins, logger).RegisterRoutes(e)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreDriver).Str("auth", cfg.ResolvedAuthMode()).Msg("starting FeelWell server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if bridge != nil {
		g.Go(func() error { return bridge.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
