package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/rpattn/yoda/internal/config"
	"github.com/rpattn/yoda/internal/db"
	"github.com/rpattn/yoda/internal/httpapi"
	"github.com/rpattn/yoda/internal/ingestion"
	"github.com/rpattn/yoda/internal/middleware"
	"github.com/rpattn/yoda/internal/registry"
	"github.com/rpattn/yoda/internal/repository"
	"github.com/rpattn/yoda/internal/service"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Migrate bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Start the HTTP API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, opts.Migrate)
		},
	}

	cmd.Flags().BoolVar(&opts.Migrate, "migrate", true, "apply pending migrations before serving (postgres driver only)")

	return cmd
}

// App is a wired server and the resources it owns.
type App struct {
	Handler http.Handler
	close   func()
}

// Close releases the store.
func (a *App) Close() {
	if a.close != nil {
		a.close()
	}
}

// NewApp wires registry, store, service and HTTP layers from cfg.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	reg, err := loadRegistry(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}

	app := &App{}
	var store repository.EntityStore
	switch cfg.Store.Driver {
	case config.DriverMemory:
		log.Println("[STORE] using in-memory store")
		store = repository.NewMemoryStore()
	default:
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		app.close = conn.Close
		store = repository.NewPostgresStore(conn)
	}

	svc := service.NewService(reg, store,
		service.WithConflictPolicy(cfg.Store.ConflictPolicy),
		service.WithSearchLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
	)
	importer := ingestion.NewHTTPHandler(ingestion.NewService(svc, reg))
	api := httpapi.NewHandler(svc, httpapi.WithImportHandler(importer))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})

	app.Handler = corsHandler.Handler(
		middleware.IdentityMiddleware(
			middleware.LoggingMiddleware(
				middleware.DataLoaderMiddleware(store)(api),
			),
		),
	)
	return app, nil
}

func loadRegistry(path string) (*registry.Registry, error) {
	reg := registry.NewDefault()
	if path == "" {
		return reg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry file: %w", err)
	}
	defer f.Close()

	names, err := reg.LoadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry file %s: %w", path, err)
	}
	log.Printf("Registered entity types from %s: %v", path, names)
	return reg, nil
}

func serve(ctx context.Context, cfg config.Config, migrateFirst bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if migrateFirst && cfg.Store.Driver == config.DriverPostgres {
		if err := db.RunMigrations(cfg.Database); err != nil {
			return err
		}
	}

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Starting entity API on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-quit:
	}
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server exited")
	return nil
}
