package cmd

import (
	"time"

	"listing-harvester/core/loader"
	"listing-harvester/core/middleware/auth"
	"listing-harvester/core/middleware/rayid"
	"listing-harvester/core/middleware/requestlog"
	"listing-harvester/feature/status"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status API",
	Long: `Starts the HTTP server exposing harvest progress, run reports,
destination tables and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	// 1. Configuration, logger and stores
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	logg := a.log
	cfg := a.cfg

	// 2. Connect to Database (Optional)
	var db *gorm.DB
	if conn, err := a.database(); err != nil {
		logg.Warn("Optional database connection failed", zap.Error(err))
	} else {
		db = conn
		logg.Info("Connected to destination database", zap.String("driver", cfg.Database.Driver))
	}

	// 3. Initialize Fiber App
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true, // We will log our own startup message
	})

	// 4. Initialize Feature Loader
	mgr := loader.NewManager(logg)
	mgr.Register(status.NewFeature(status.Deps{
		Checkpoint: a.checkpoint,
		Artifacts:  a.artifacts,
		DB:         db,
		Metrics:    a.metrics,
	}, status.Options{
		Tables:   []string{cfg.Sync.ParentsTable, cfg.Sync.ChildrenTable, cfg.Sync.UnifiedTable},
		CacheTTL: time.Duration(cfg.Server.CacheSeconds) * time.Second,
	}, logg))

	// Middleware Registration
	// 1. RayID (Must be first to trace everything)
	app.Use(rayid.New())

	// 2. Request logging and metrics
	app.Use(requestlog.New(logg, a.metrics))

	// 3. Auth (health stays public for probes)
	app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey, Public: []string{"/health"}}))
	if !cfg.Server.Protected() {
		logg.Warn("No API key configured, status API is open")
	}

	// 5. Load Features
	if err := mgr.LoadAll(app); err != nil {
		return err
	}

	// 6. Start Server
	errCh := make(chan error, 1)
	go func() {
		logg.Info("Starting server", zap.String("addr", cfg.Server.Addr()))
		errCh <- app.Listen(cfg.Server.Addr())
	}()

	// 7. Graceful Shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logg.Info("Shutting down server...")
	return app.ShutdownWithTimeout(10 * time.Second)
}
