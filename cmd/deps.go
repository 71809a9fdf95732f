package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/travel-requests/internal"
	"github.com/frahmantamala/travel-requests/internal/apiclient"
	"github.com/frahmantamala/travel-requests/internal/core/events"
	"github.com/frahmantamala/travel-requests/internal/destination"
	"github.com/frahmantamala/travel-requests/internal/router"
	"github.com/frahmantamala/travel-requests/internal/session"
	"github.com/frahmantamala/travel-requests/internal/storage"
	"github.com/frahmantamala/travel-requests/internal/storage/memory"
	"github.com/frahmantamala/travel-requests/internal/storage/redisstore"
	"github.com/frahmantamala/travel-requests/internal/storage/sqlstore"
	"github.com/frahmantamala/travel-requests/internal/travelrequest"
	"github.com/frahmantamala/travel-requests/pkg/logger"
)

// Dependencies is the application graph every command works against.
type Dependencies struct {
	Config         *internal.Config
	Logger         *slog.Logger
	Storage        storage.Store
	Events         *events.EventBus
	Client         *apiclient.Client
	Session        *session.Store
	Router         *router.Router
	Destinations   *destination.Store
	TravelRequests *travelrequest.Store
}

func initializeDependencies(ctx context.Context, config *internal.Config) (*Dependencies, error) {
	lg := logger.LoggerWrapper()

	store, err := openStorage(ctx, config.Storage, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	bus := events.NewEventBus(lg)
	if traceEvents {
		subscribeEventTrace(bus, lg)
	}

	client := apiclient.NewClient(apiclient.Config{
		BaseURL: config.API.ResolveBaseURL(),
		Timeout: config.API.Timeout,
	}, lg)

	sess := session.NewStore(client, session.NewCookieJar(store, lg), bus, lg, session.Options{
		CookieName: config.Session.CookieName,
		TokenTTL:   config.Session.TokenTTL,
		CookieTTL:  config.Session.CookieTTL,
	})
	nav := router.New(sess, lg)
	client.SetupInterceptors(sess, nav)

	destinations := destination.NewStore(ctx, client, store, bus, lg, destination.Options{
		TTL:        config.Cache.DestinationTTL,
		MaxEntries: config.Cache.MaxEntries,
		Limit:      config.Cache.SearchLimit,
	})

	return &Dependencies{
		Config:         config,
		Logger:         lg,
		Storage:        store,
		Events:         bus,
		Client:         client,
		Session:        sess,
		Router:         nav,
		Destinations:   destinations,
		TravelRequests: travelrequest.NewStore(client, bus, lg),
	}, nil
}

func (d *Dependencies) Close() {
	if err := d.Storage.Close(); err != nil {
		d.Logger.Error("storage close error", "error", err)
	}
}

func openStorage(ctx context.Context, cfg internal.StorageConfig, lg *slog.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
		return sqlstore.Open(ctx, sqlstore.Options{
			Driver:      cfg.Driver,
			Source:      cfg.Source,
			AutoMigrate: cfg.AutoMigrate,
		}, lg)
	case "redis":
		return redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}, lg)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// withDependencies builds the graph, runs fn and closes the graph again.
func withDependencies(ctx context.Context, fn func(ctx context.Context, deps *Dependencies) error) error {
	deps, err := initializeDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	return fn(ctx, deps)
}
