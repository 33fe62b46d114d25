// Package app assembles the client: it builds every manager from the
// configuration and connects their listeners to one another.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hilthontt/codenexus/internal/chat"
	"github.com/hilthontt/codenexus/internal/documents"
	"github.com/hilthontt/codenexus/internal/drawing"
	"github.com/hilthontt/codenexus/internal/importer"
	"github.com/hilthontt/codenexus/internal/infrastructure/configs"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
	"github.com/hilthontt/codenexus/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/codenexus/internal/infrastructure/storage"
	"github.com/hilthontt/codenexus/internal/infrastructure/tracing"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws"
	"github.com/hilthontt/codenexus/internal/navigation"
	"github.com/hilthontt/codenexus/internal/notify"
	"github.com/hilthontt/codenexus/internal/presentation/api"
	"github.com/hilthontt/codenexus/internal/presentation/handler/canvas"
	"github.com/hilthontt/codenexus/internal/presentation/handler/files"
	"github.com/hilthontt/codenexus/internal/presentation/handler/health"
	"github.com/hilthontt/codenexus/internal/presentation/handler/layout"
	"github.com/hilthontt/codenexus/internal/presentation/handler/messages"
	"github.com/hilthontt/codenexus/internal/presentation/handler/preferences"
	"github.com/hilthontt/codenexus/internal/presentation/handler/rooms"
	"github.com/hilthontt/codenexus/internal/session"
	"github.com/hilthontt/codenexus/internal/settings"
	"github.com/hilthontt/codenexus/internal/view"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const noticeLimit = 100

// Container owns every long-lived component of one client instance.
type Container struct {
	Config   configs.Config
	Logger   logging.Logger
	Registry *prometheus.Registry

	Store        storage.Store
	SessionStore storage.Store
	Bus          ws.EventBus
	Limiter      ratelimiter.Limiter

	Notices   *notify.Center
	Router    *navigation.Router
	Session   *session.Machine
	Documents *documents.Manager
	Chat      *chat.Manager
	Drawing   *drawing.Manager
	View      *view.Coordinator
	Settings  *settings.Manager
	Importer  *importer.Importer
}

// Deps overrides the pieces New would otherwise build from the config.
// Tests use it to inject an in-memory bus and store.
type Deps struct {
	Bus   ws.EventBus
	Store storage.Store
}

func New(ctx context.Context, cfg configs.Config, logger logging.Logger, deps Deps) (*Container, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := deps.Store
	if store == nil {
		s, err := storage.Open(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		store = s
	}

	bus := deps.Bus
	if bus == nil {
		opts := ws.OptionsFromConfig(cfg.Channel)
		opts.Registerer = reg
		opts.Logger = logger
		ch, err := ws.NewChannel(opts)
		if err != nil {
			return nil, fmt.Errorf("create channel: %w", err)
		}
		bus = ch
	}

	limiter, err := ratelimiter.New(cfg.RateLimiter)
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config:       cfg,
		Logger:       logger,
		Registry:     reg,
		Store:        store,
		SessionStore: storage.NewMemoryStore(),
		Bus:          bus,
		Limiter:      limiter,
		Notices:      notify.NewCenter(logger, noticeLimit),
		Router:       navigation.NewRouter(),
		Importer:     importer.New(importer.OptionsFromConfig(cfg.Import), logger),
	}

	c.Settings = settings.NewManager(ctx, store, logger)
	c.View = view.NewCoordinator(ctx, store, logger)

	c.Session = session.NewMachine(session.Options{
		Bus:      bus,
		Store:    c.SessionStore,
		Router:   c.Router,
		Notifier: c.Notices,
		Logger:   logger,
		Tracer:   tracing.GetTracer("github.com/hilthontt/codenexus/internal/session"),
	})

	c.Documents = documents.NewManager(documents.Options{
		Bus:         bus,
		Language:    c.Settings,
		Notifier:    c.Notices,
		Logger:      logger,
		Tracer:      tracing.GetTracer("github.com/hilthontt/codenexus/internal/documents"),
		TypingPause: cfg.Editor.TypingPause,
		MaxFileSize: cfg.Import.MaxFileSize,
	})

	c.Chat = chat.NewManager(ctx, chat.Options{
		Bus:        bus,
		Store:      store,
		Identity:   c.Session,
		Visibility: c.View,
		Logger:     logger,
	})

	c.Drawing = drawing.NewManager(bus, logger)

	c.View.Subscribe(c.Chat.OnViewChange)
	c.View.Subscribe(c.Drawing.OnViewChange)

	return c, nil
}

// Start subscribes every manager to the channel and, when configured,
// opens the connection.
func (c *Container) Start(ctx context.Context) {
	c.Session.Attach(ctx)
	c.Documents.Attach(ctx)
	c.Chat.Attach(ctx)
	c.Drawing.Attach()

	c.Logger.Info(logging.General, logging.Startup, "client started", map[logging.ExtraKey]any{
		logging.AppName: tracing.DefaultServiceName,
	})

	if c.Config.Channel.AutoConnect {
		c.Bus.Connect(ctx)
	}
}

// API builds the local control API over the container's managers.
func (c *Container) API() *api.Application {
	handlers := api.Handlers{
		Rooms:       rooms.NewHandler(c.Session, c.Router, c.Notices, c.Logger),
		Health:      health.NewHandler(c.Bus, c.Session),
		Messages:    messages.NewHandler(c.Chat, c.Logger),
		Files:       files.NewHandler(c.Documents, c.Importer, c.Logger),
		Canvas:      canvas.NewHandler(c.Drawing, c.Logger),
		Layout:      layout.NewHandler(c.View),
		Preferences: preferences.NewHandler(c.Settings, c.Logger),
	}
	return api.NewApplication(c.Config.HTTP, handlers, c.Logger, c.Limiter, c.Registry)
}

// Close releases subscriptions, the connection and the store.
func (c *Container) Close() error {
	c.Drawing.Detach()
	c.Chat.Detach()
	c.Documents.Close()
	c.Session.Detach()
	c.Bus.Disconnect()
	c.Limiter.Close()

	var errs []error
	if closer, ok := c.Store.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}

	c.Logger.Info(logging.General, logging.Shutdown, "client stopped", nil)
	return errors.Join(errs...)
}
