// Package app wires configuration into a running coursesync daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/debemdeboas/coursesync/internal/api"
	"github.com/debemdeboas/coursesync/internal/config"
	"github.com/debemdeboas/coursesync/internal/db"
	"github.com/debemdeboas/coursesync/internal/editor"
	"github.com/debemdeboas/coursesync/internal/events"
	"github.com/debemdeboas/coursesync/internal/fakeapi"
	"github.com/debemdeboas/coursesync/internal/logger"
	"github.com/debemdeboas/coursesync/internal/orchestrator"
	"github.com/debemdeboas/coursesync/internal/render"
	"github.com/debemdeboas/coursesync/internal/repository"
	"github.com/debemdeboas/coursesync/internal/sse"
	"github.com/debemdeboas/coursesync/internal/store"
	"github.com/debemdeboas/coursesync/internal/store/redisstore"
	"github.com/debemdeboas/coursesync/internal/store/sqlstore"
	"github.com/debemdeboas/coursesync/internal/telemetry"
	"github.com/debemdeboas/coursesync/internal/transfer"
	"github.com/debemdeboas/coursesync/internal/transfer/s3backend"
	"github.com/debemdeboas/coursesync/internal/util/compression"
)

var appLogger = zerolog.Nop()

// SetLoggers hands l to every package, tagged with the package name.
func SetLoggers(l zerolog.Logger) {
	component := func(name string) zerolog.Logger {
		return l.With().Str("component", name).Logger()
	}
	appLogger = component("app")
	api.SetLogger(component("api"))
	config.SetLogger(component("config"))
	db.SetLogger(component("db"))
	editor.SetLogger(component("editor"))
	events.SetLogger(component("events"))
	fakeapi.SetLogger(component("fakeapi"))
	orchestrator.SetLogger(component("orchestrator"))
	redisstore.SetLogger(component("redisstore"))
	render.SetLogger(component("render"))
	repository.SetLogger(component("repository"))
	s3backend.SetLogger(component("s3"))
	sqlstore.SetLogger(component("sqlstore"))
	sse.SetLogger(component("sse"))
	store.SetLogger(component("store"))
	transfer.SetLogger(component("transfer"))
}

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

type App struct {
	Config       *config.Config
	Store        *store.Store
	API          *api.Client
	Transfer     *transfer.Client
	Orchestrator *orchestrator.Orchestrator
	Courses      *repository.CourseRepository
	Clients      *sse.Clients
	Handler      *editor.Handler

	pubSub    *gochannel.GoChannel
	forwarder *events.Forwarder
	relay     *sse.Relay
	closers   []func(context.Context) error
}

// New builds every component from cfg and restores persisted drafts. The
// caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	persister, err := a.newPersister(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = store.New(persister)
	if err := a.Store.Load(ctx); err != nil {
		return nil, fmt.Errorf("load drafts: %w", err)
	}

	a.API = api.New(cfg.API.BaseURL,
		api.WithToken(cfg.API.Token),
		api.WithTimeout(cfg.API.Timeout.Std()),
	)

	backend, err := a.newBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.Transfer = transfer.New(backend, transfer.Options{
		MaxRetries:  cfg.Transfer.MaxRetries,
		RetryDelay:  cfg.Transfer.RetryDelay.Std(),
		Pause:       cfg.Transfer.FilePause.Std(),
		MaxFileSize: cfg.Transfer.MaxFileSize,
		CheckTypes:  cfg.Transfer.CheckFileTypes,
	})

	tracer, shutdown, err := telemetry.NewTracer(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	a.Courses = repository.NewCourseRepository(a.API)
	a.Clients = sse.NewClients()
	a.Courses.SetReloadNotifier(func(slug string) {
		a.Clients.Broadcast("", sse.Message{Event: "course_changed", Data: []byte(slug)})
	})

	a.Orchestrator = orchestrator.New(orchestrator.Config{
		Store:    a.Store,
		Transfer: a.Transfer,
		Courses:  a.API,
		Listings: a.Courses,
		Tracer:   tracer,
	})

	a.pubSub = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(cfg.Events.Buffer),
	}, logger.NewWatermill(log.With().Str("component", "watermill").Logger()))
	a.closers = append(a.closers, func(context.Context) error { return a.pubSub.Close() })

	a.relay, err = sse.NewRelay(ctx, a.pubSub, cfg.Events.Topic, a.Clients)
	if err != nil {
		return nil, fmt.Errorf("subscribe to events: %w", err)
	}
	a.forwarder = events.NewForwarder(a.pubSub, cfg.Events.Topic)
	a.forwarder.Attach(a.Orchestrator.Bus())

	a.Handler = editor.NewHandler(a.Store, a.Orchestrator, a.Courses, a.Clients, editor.Options{
		SyntaxTheme: cfg.Preview.SyntaxTheme,
		MaxUpload:   cfg.Transfer.MaxFileSize,
	})
	return a, nil
}

func (a *App) newPersister(ctx context.Context) (store.Persister, error) {
	cfg := a.Config.Storage
	switch cfg.Driver {
	case "memory":
		return store.NewMemoryPersister(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return redisstore.New(client, cfg.Redis.Prefix), nil
	default:
		compressor, err := compression.ByName(cfg.Compression)
		if err != nil {
			return nil, err
		}
		database := db.NewSQLite(cfg.SQLitePath)
		a.closers = append(a.closers, func(context.Context) error { return database.Close() })
		if err := database.InitDB(); err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.SQLitePath, err)
		}
		return sqlstore.New(database, compressor), nil
	}
}

func (a *App) newBackend(ctx context.Context) (transfer.Backend, error) {
	if a.Config.Transfer.Backend != "s3" {
		return a.API, nil
	}
	cfg := a.Config.S3
	client, err := s3backend.NewClient(ctx, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.Endpoint, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return s3backend.New(client, s3backend.Config{
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		PublicURL: cfg.PublicURL,
	}), nil
}

// Start begins processing drafts without serving HTTP.
func (a *App) Start(ctx context.Context) {
	a.Orchestrator.Start(ctx)
}

// Run serves the daemon API until ctx is done, then shuts the server down
// and waits for in-flight runs.
func (a *App) Run(ctx context.Context) error {
	a.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              a.Config.Server.Addr(),
		Handler:           a.Handler.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		// Event streams end with the server.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		return a.relay.Run(gctx)
	})
	if refresh := a.Config.API.ListingRefresh.Std(); refresh > 0 {
		g.Go(func() error {
			a.Courses.Watch(gctx, refresh)
			return nil
		})
	}
	g.Go(func() error {
		appLogger.Info().Str("addr", srv.Addr).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.Orchestrator.Stop()
	return err
}

// Close releases every resource New acquired, in reverse order.
func (a *App) Close(ctx context.Context) error {
	if a.forwarder != nil {
		a.forwarder.Detach()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
