package api

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hilthontt/codenexus/internal/infrastructure/configs"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
	"github.com/hilthontt/codenexus/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/codenexus/internal/presentation/handler/canvas"
	"github.com/hilthontt/codenexus/internal/presentation/handler/files"
	healthHandler "github.com/hilthontt/codenexus/internal/presentation/handler/health"
	"github.com/hilthontt/codenexus/internal/presentation/handler/layout"
	messagesHandler "github.com/hilthontt/codenexus/internal/presentation/handler/messages"
	"github.com/hilthontt/codenexus/internal/presentation/handler/preferences"
	roomHandler "github.com/hilthontt/codenexus/internal/presentation/handler/rooms"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	serviceName     = "codenexus-control"
	requestTimeout  = 60 * time.Second
	shutdownTimeout = 5 * time.Second
)

type Handlers struct {
	Rooms       *roomHandler.Handler
	Health      *healthHandler.Handler
	Messages    *messagesHandler.Handler
	Files       *files.Handler
	Canvas      *canvas.Handler
	Layout      *layout.Handler
	Preferences *preferences.Handler
}

type Application struct {
	config         configs.HTTPConfig
	handlers       Handlers
	logger         logging.Logger
	ratelimiter    ratelimiter.Limiter
	registry       *prometheus.Registry
	metrics        *httpMetrics
	allowedOrigins mapset.Set[string]
}

func NewApplication(
	config configs.HTTPConfig,
	handlers Handlers,
	logger logging.Logger,
	ratelimiter ratelimiter.Limiter,
	registry *prometheus.Registry,
) *Application {
	return &Application{
		config:         config,
		handlers:       handlers,
		logger:         logger,
		ratelimiter:    ratelimiter,
		registry:       registry,
		metrics:        newHTTPMetrics(registry),
		allowedOrigins: mapset.NewSet(config.AllowedOrigins...),
	}
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(app.prometheusMiddleware)
	r.Use(app.enableCors)

	r.Get("/healthz", app.handlers.Health.GetHealth)
	r.Method(http.MethodGet, "/debug/vars", expvar.Handler())
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{Registry: app.registry}))

	r.Group(func(r chi.Router) {
		r.Use(app.rateLimiterMiddleware)

		r.Get("/", app.handlers.Rooms.GetEntryHandler)
		r.Post("/", app.handlers.Rooms.JoinRoomHandler)
		r.Post("/rooms", app.handlers.Rooms.CreateRoomHandler)

		r.Route("/connection", func(r chi.Router) {
			r.Post("/retry", app.handlers.Rooms.RetryHandler)
			r.Post("/home", app.handlers.Rooms.HomeHandler)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", app.handlers.Preferences.GetSettingsHandler)
			r.Put("/", app.handlers.Preferences.UpdateSettingsHandler)
			r.Delete("/", app.handlers.Preferences.ResetSettingsHandler)
		})

		r.Get("/editor", app.handlers.Rooms.EditorIndexHandler)
		r.Route("/editor/{"+roomHandler.RoomIDParam+"}", func(r chi.Router) {
			r.Use(app.handlers.Rooms.RequireJoined)

			r.Get("/", app.handlers.Rooms.GetRoomHandler)

			r.Route("/files", func(r chi.Router) {
				r.Get("/", app.handlers.Files.GetTreeHandler)
				r.Post("/", app.handlers.Files.CreateItemHandler)
				r.Get("/{"+files.FileIDParam+"}", app.handlers.Files.GetFileHandler)
				r.Put("/{"+files.FileIDParam+"}", app.handlers.Files.UpdateContentHandler)
				r.Patch("/{"+files.FileIDParam+"}", app.handlers.Files.RenameItemHandler)
				r.Delete("/{"+files.FileIDParam+"}", app.handlers.Files.DeleteItemHandler)
				r.Post("/{"+files.FileIDParam+"}/toggle", app.handlers.Files.ToggleDirectoryHandler)
			})

			r.Post("/tabs/{"+files.FileIDParam+"}", app.handlers.Files.OpenTabHandler)
			r.Delete("/tabs/{"+files.FileIDParam+"}", app.handlers.Files.CloseTabHandler)
			r.Post("/import", app.handlers.Files.ImportHandler)
			r.Get("/download", app.handlers.Files.DownloadHandler)

			r.Route("/chat", func(r chi.Router) {
				r.Get("/", app.handlers.Messages.GetMessagesHandler)
				r.Post("/", app.handlers.Messages.CreateNewMessageHandler)
				r.Delete("/", app.handlers.Messages.ClearMessagesHandler)
				r.Put("/scroll", app.handlers.Messages.RecordScrollHandler)
				r.Post("/seen", app.handlers.Messages.MarkSeenHandler)
			})

			r.Get("/drawing", app.handlers.Canvas.GetDrawingHandler)
			r.Put("/drawing", app.handlers.Canvas.UpdateDrawingHandler)
			r.Post("/drawing/request", app.handlers.Canvas.RequestDrawingHandler)

			r.Get("/view", app.handlers.Layout.GetLayoutHandler)
			r.Put("/view", app.handlers.Layout.UpdateLayoutHandler)
		})
	})

	return otelhttp.NewHandler(r, serviceName)
}

// Run serves mux until ctx is cancelled, then shuts the server down
// gracefully.
func (app *Application) Run(ctx context.Context, mux http.Handler) error {
	srv := &http.Server{
		Addr:         net.JoinHostPort(app.config.Host, strconv.Itoa(int(app.config.Port))),
		Handler:      mux,
		WriteTimeout: app.config.WriteTimeout,
		ReadTimeout:  app.config.ReadTimeout,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error, 1)

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		app.logger.Info(logging.General, logging.Shutdown, "stopping control api", map[logging.ExtraKey]any{
			"addr": srv.Addr,
		})

		shutdown <- srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(logging.General, logging.Startup, "control api has started", map[logging.ExtraKey]any{
		"addr": srv.Addr,
	})

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control api: %w", err)
	}

	if err := <-shutdown; err != nil {
		return err
	}

	app.logger.Info(logging.General, logging.Shutdown, "control api has stopped", map[logging.ExtraKey]any{
		"addr": srv.Addr,
	})
	return nil
}
