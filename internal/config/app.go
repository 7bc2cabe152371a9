package config

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/therickybobbeh/depscan/internal/archive"
	"github.com/therickybobbeh/depscan/internal/cache"
	delivery "github.com/therickybobbeh/depscan/internal/delivery/http"
	"github.com/therickybobbeh/depscan/internal/generator"
	"github.com/therickybobbeh/depscan/internal/osv"
	"github.com/therickybobbeh/depscan/internal/registry"
	"github.com/therickybobbeh/depscan/internal/resolver"
	"github.com/therickybobbeh/depscan/internal/scanner"
)

type AppConfig struct {
	Log    *logrus.Logger
	Config *Configurations
	DB     *gorm.DB
}

// Components are the wired scan-engine pieces shared by the HTTP server
// and the CLI.
type Components struct {
	Store        *cache.Store
	Client       *osv.Client
	Resolver     *resolver.Resolver
	Generators   *generator.Registry
	Registry     *registry.Registry
	Orchestrator *scanner.Orchestrator
	Archiver     *archive.MinioArchive
}

// BuildComponents wires the scan engine from configuration. The cache is
// optional: a nil DB degrades to always-miss lookups.
func BuildComponents(app *AppConfig) (*Components, error) {
	var store *cache.Store
	if app.DB != nil {
		ttl := time.Duration(app.Config.OSV_CACHE_TTL_HOURS) * time.Hour
		s, err := cache.NewStore(app.DB, ttl)
		if err != nil {
			return nil, err
		}
		store = s
	}

	client := osv.NewClient(app.Config.OSV_API_URL, storeOrNil(store))
	client.SetMaxParallel(app.Config.MAX_CONCURRENT_BATCHES)

	reg := registry.New(app.Config.MAX_CONCURRENT_SCANS, app.Log)
	res := resolver.NewResolver(app.Log)
	gens := generator.NewRegistry()
	orch := scanner.New(res, client, gens, reg, app.Log)

	comps := &Components{
		Store:        store,
		Client:       client,
		Resolver:     res,
		Generators:   gens,
		Registry:     reg,
		Orchestrator: orch,
	}

	if app.Config.ARCHIVE_ENABLED {
		arch, err := archive.NewMinioArchive(
			app.Config.STORAGE_ENDPOINT,
			app.Config.STORAGE_ACCESS_KEY,
			app.Config.STORAGE_SECRET_KEY,
			app.Config.BUCKET_NAME,
			app.Config.STORAGE_USE_SSL,
		)
		if err != nil {
			return nil, err
		}
		comps.Archiver = arch
		orch.SetArchiver(arch)
	}
	return comps, nil
}

// storeOrNil keeps a typed-nil *cache.Store out of the osv.Store interface.
func storeOrNil(s *cache.Store) osv.Store {
	if s == nil {
		return nil
	}
	return s
}

// Bootstrap wires the application and serves HTTP until interrupted.
func Bootstrap(app *AppConfig) error {
	comps, err := BuildComponents(app)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	comps.Registry.StartSweeper(ctx)

	server := setupHTTPServer(app, comps)
	startHTTPServer(ctx, server)
	return nil
}

// startHTTPServer starts the HTTP server with graceful shutdown
func startHTTPServer(ctx context.Context, server *http.Server) {
	go func() {
		log.Printf("starting HTTP server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Println("shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}
}

func setupHTTPServer(app *AppConfig, comps *Components) *http.Server {
	if app.Config.MODE == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	limits := delivery.Limits{
		MaxBodyBytes:    app.Config.MAX_BODY_BYTES,
		MaxFilesPerScan: app.Config.MAX_FILES_PER_SCAN,
	}
	scanHandler := delivery.NewScanHandler(comps.Orchestrator, comps.Registry, limits, app.Log)
	if comps.Archiver != nil {
		scanHandler.SetArchiver(comps.Archiver)
	}

	routeConfig := &delivery.RouteConfig{
		Router:         router,
		ScanHandler:    scanHandler,
		CacheHandler:   delivery.NewCacheHandler(comps.Store, app.Log),
		AllowedOrigins: app.Config.ALLOWED_ORIGINS,
		Limits:         limits,
	}
	routeConfig.Setup()

	return &http.Server{
		Addr:    ":" + app.Config.PORT,
		Handler: router,
	}
}
