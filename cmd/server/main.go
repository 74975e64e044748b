package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/ict-report/backend/internal/api"
	"github.com/ict-report/backend/internal/config"
	"github.com/ict-report/backend/internal/logging"
	"github.com/ict-report/backend/internal/parser"
	"github.com/ict-report/backend/internal/report"
	"github.com/ict-report/backend/internal/session"
	"github.com/ict-report/backend/internal/storage"
	"github.com/ict-report/backend/internal/watch"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	configPath := os.Getenv("ICT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join(filepath.Dir(exePath), "ICTReportConverter.config")
	}

	// Load XML configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Advanced.LogLevel, false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	args, err := cfg.ConverterArguments()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	registry := parser.NewRegistry(args,
		parser.WithLogger(logger.Named("converter")),
		parser.WithLocation(loc))

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	reportStore, err := report.NewDuckStore(cfg.Storage.ReportDatabase, report.StoreConfig{
		Threads:     cfg.Advanced.DuckDBThreads,
		MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
	}, logger.Named("reports"))
	if err != nil {
		return fmt.Errorf("failed to open report database: %w", err)
	}
	defer reportStore.Close()

	feed := api.NewReportFeed(logger.Named("feed"), cfg.Advanced.WebSocketMaxMessageSize)
	defer feed.Close()

	sink := report.Multi{reportStore, feed}

	// Initialize session manager
	importMgr := session.NewManager(registry, sink, logger.Named("import"))
	importMgr.TrackFiles(fileStore)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background session cleanup
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				importMgr.CleanupOldSessions(cfg.SessionTimeout())
			case <-ctx.Done():
				return
			}
		}
	}()

	if cfg.Watch.Enabled {
		w := watch.New(cfg.Watch.Directory, registry, sink, logger.Named("watch"))
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("drop-folder watcher stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true

	origins := strings.Split(cfg.Server.AllowOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
		origins = []string{"*"}
	}
	api.SetupMiddleware(e, logger.Named("http"), cfg.Server.EnableCORS, origins,
		cfg.Server.BodyLimit, cfg.Advanced.EnableRequestLogging)

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:       fileStore,
		ImportMgr:   importMgr,
		Reports:     reportStore,
		Feed:        feed,
		StoreHealth: reportStore,
		Version:     Version,
	}))

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           ICT Report Converter Server                     ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Part No.:   %-45s║\n", args.PartNumber())
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Reports:   %-46s║\n", cfg.Storage.ReportDatabase)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
