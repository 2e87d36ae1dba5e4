package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"github.com/caarlos0/env/v11"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"

	objectshandler "github.com/learnstack-io/learnstack/domains/learning-objects/be/handler"
	objectsrepo "github.com/learnstack-io/learnstack/domains/learning-objects/be/repo"
	objectsservice "github.com/learnstack-io/learnstack/domains/learning-objects/be/service"
	tenantshandler "github.com/learnstack-io/learnstack/domains/tenants/be/handler"
	tenantsprov "github.com/learnstack-io/learnstack/domains/tenants/be/provisioning"
	tenantsrepo "github.com/learnstack-io/learnstack/domains/tenants/be/repo"
	tenantsservice "github.com/learnstack-io/learnstack/domains/tenants/be/service"
	usershandler "github.com/learnstack-io/learnstack/domains/users/be/handler"
	usersrepo "github.com/learnstack-io/learnstack/domains/users/be/repo"
	usersservice "github.com/learnstack-io/learnstack/domains/users/be/service"
	platformauth "github.com/learnstack-io/learnstack/platform/go/auth"
	platformlogging "github.com/learnstack-io/learnstack/platform/go/logging"
	platformmiddleware "github.com/learnstack-io/learnstack/platform/go/middleware"
	"github.com/learnstack-io/learnstack/platform/go/persistence"
	"github.com/learnstack-io/learnstack/platform/go/storage"
	"github.com/learnstack-io/learnstack/platform/go/tenant"
	tenantmiddleware "github.com/learnstack-io/learnstack/platform/go/tenant/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	DirectoryDatabaseURL string `env:"DIRECTORY_DATABASE_URL,required"`
	// TenantDatabaseURLTemplate must contain the {DatabaseName} placeholder.
	TenantDatabaseURLTemplate string `env:"TENANT_DATABASE_URL_TEMPLATE,required"`
	// MaintenanceDatabaseURL points at a database on the tenant cluster where
	// CREATE DATABASE can run. Defaults to the directory URL when empty.
	MaintenanceDatabaseURL string `env:"MAINTENANCE_DATABASE_URL"`

	TenantIdentitySecret string        `env:"TENANT_IDENTITY_SECRET,required"`
	ConnectRetryAttempts int           `env:"CONNECT_RETRY_ATTEMPTS" envDefault:"3"`
	ConnectRetryBackoff  time.Duration `env:"CONNECT_RETRY_BACKOFF" envDefault:"200ms"`

	AuthProvider string `env:"AUTH_PROVIDER" envDefault:"firebase"`
	EnvKey       string `env:"ENV_KEY,required"`

	StorageBackend  string `env:"STORAGE_BACKEND" envDefault:"gcs"`               // gcs | local
	StorageBucket   string `env:"STORAGE_BUCKET"`                                 // required when STORAGE_BACKEND=gcs
	StorageLocalDir string `env:"STORAGE_LOCAL_DIR" envDefault:"./.data/storage"` // used when STORAGE_BACKEND=local
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	directoryPool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DirectoryDatabaseURL})
	if err != nil {
		logger.Fatal("init directory pool", zap.Error(err))
	}
	defer persistence.ClosePool(directoryPool)

	directoryStore, err := persistence.NewDirectoryStore(directoryPool)
	if err != nil {
		logger.Fatal("init directory store", zap.Error(err))
	}

	identitySecret := []byte(cfg.TenantIdentitySecret)

	maintenanceURL := cfg.MaintenanceDatabaseURL
	if maintenanceURL == "" {
		maintenanceURL = cfg.DirectoryDatabaseURL
	}
	provisioner, err := tenantsprov.NewDBProvisioner(tenantsprov.Config{
		MaintenanceURL:     maintenanceURL,
		ConnStringTemplate: cfg.TenantDatabaseURLTemplate,
		IdentitySecret:     identitySecret,
	}, logger)
	if err != nil {
		logger.Fatal("init tenant provisioner", zap.Error(err))
	}

	tenantRepo := tenantsrepo.NewPostgres(directoryStore)
	tenantService := tenantsservice.New(tenantRepo, cfg.EnvKey, provisioner)
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)

	resolver, err := tenant.NewResolver(directoryStore, cfg.TenantDatabaseURLTemplate)
	if err != nil {
		logger.Fatal("init tenant resolver", zap.Error(err))
	}

	connector := persistence.NewConnector(persistence.ConnectorConfig{
		MaxAttempts:  cfg.ConnectRetryAttempts,
		RetryBackoff: cfg.ConnectRetryBackoff,
	})
	identityValidator, err := persistence.NewIdentityValidator(identitySecret, connector)
	if err != nil {
		logger.Fatal("init identity validator", zap.Error(err))
	}

	blobStore := buildBlobStore(ctx, cfg, logger)

	userService := usersservice.New(usersrepo.NewPostgres())
	userHTTPHandler := usershandler.New(userService, logger)

	objectService := objectsservice.New(objectsrepo.NewPostgres(), blobStore)
	objectHTTPHandler := objectshandler.New(objectService, logger)

	authMiddleware := buildAuthMiddleware(ctx, cfg, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := directoryPool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(authMiddleware)
	apiRouter.Use(platformmiddleware.RequestTrace)
	apiRouter.Use(tenantmiddleware.WithTenantDB(resolver, identityValidator, tenantmiddleware.Config{
		ExemptPrefixes: []string{"/admin/tenants"},
	}))

	tenantsValidator := mustNewSpecValidator(logger, "contracts/tenants.yaml")
	apiRouter.Group(func(r chi.Router) {
		r.Use(platformauth.RequireAdmin())
		r.Use(tenantsValidator)
		r.Mount("/admin/tenants", tenantHTTPHandler.Routes())
	})

	usersValidator := mustNewSpecValidator(logger, "contracts/users.yaml")
	apiRouter.Group(func(r chi.Router) {
		r.Use(usersValidator)
		r.Mount("/users", userHTTPHandler.Routes())
	})

	objectsValidator := mustNewSpecValidator(logger, "contracts/learning-objects.yaml")
	apiRouter.Group(func(r chi.Router) {
		r.Use(objectsValidator)
		r.Mount("/learning-objects", objectHTTPHandler.Routes())
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildBlobStore(ctx context.Context, cfg config, logger *zap.Logger) storage.BlobStore {
	switch cfg.StorageBackend {
	case "gcs":
		if cfg.StorageBucket == "" {
			logger.Fatal("storage bucket required when STORAGE_BACKEND=gcs")
		}
		gcsClient, err := gcsstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("init gcs client", zap.Error(err))
		}
		return storage.NewGCSStore(gcsClient, cfg.StorageBucket)
	case "local":
		if strings.TrimSpace(cfg.StorageLocalDir) == "" {
			logger.Fatal("storage local dir required when STORAGE_BACKEND=local")
		}
		local, err := storage.NewLocalStore(cfg.StorageLocalDir)
		if err != nil {
			logger.Fatal("init local storage", zap.Error(err))
		}
		return local
	default:
		logger.Fatal("invalid STORAGE_BACKEND (use gcs or local)", zap.String("backend", cfg.StorageBackend))
		return nil
	}
}

// mustNewSpecValidator loads the OpenAPI document and builds the oapi-codegen
// request validator middleware for a contract group.
func mustNewSpecValidator(logger *zap.Logger, path string) func(http.Handler) http.Handler {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	absPath, err := filepath.Abs(path)
	if err != nil {
		logger.Fatal("resolve spec path", zap.String("path", path), zap.Error(err))
	}

	baseDir := filepath.Dir(absPath)
	loader.ReadFromURIFunc = func(loader *openapi3.Loader, ref *url.URL) ([]byte, error) {
		if ref == nil {
			return nil, errors.New("nil reference URI")
		}
		if ref.IsAbs() && ref.Scheme != "file" {
			return nil, fmt.Errorf("unsupported reference scheme %q", ref.String())
		}

		refPath := filepath.Clean(ref.Path)
		if !filepath.IsAbs(refPath) {
			refPath = filepath.Join(baseDir, refPath)
		}
		data, err := os.ReadFile(refPath)
		if err != nil {
			return nil, fmt.Errorf("read reference %q: %w", refPath, err)
		}
		return data, nil
	}

	spec, err := loader.LoadFromFile(absPath)
	if err != nil {
		logger.Fatal("load openapi contract", zap.String("path", path), zap.Error(err))
	}
	if err := spec.Validate(loader.Context); err != nil {
		logger.Fatal("validate openapi contract", zap.String("path", path), zap.Error(err))
	}

	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: platformmiddleware.ValidateAuthenticationViaContract,
		},
	})
}
