// Package app wires a service binary: infrastructure container, business services and lifecycle.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/httpapi"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Application holds all the components and manages the application lifecycle
type Application struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *Container
	service   *Service
	server    *http.Server
}

// NewApplication creates and fully initializes the named service
func NewApplication(ctx context.Context, serviceName string) (*Application, error) {
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	app := &Application{
		ctx:    appCtx,
		cancel: cancel,
	}

	// Initialize container (expensive singletons)
	container, err := NewContainer(app.ctx, serviceName)
	if err != nil {
		cancel()
		return nil, err
	}
	app.container = container

	service, err := NewServiceFactory(container).Create()
	if err != nil {
		app.Shutdown()
		return nil, err
	}
	app.service = service

	cfg := container.Config()
	router := httpapi.NewRouter(container.Logger(), service.Routes...)
	app.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.Instrument(router, cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	container.Logger().Info("Application initialized successfully",
		zap.Int("subscriptions", len(service.Subscriptions)),
		zap.String("http_addr", cfg.HTTPAddr),
	)
	return app, nil
}

// Run starts the consumers and the HTTP server and blocks until the context is cancelled
// or one of them fails.
func (app *Application) Run() error {
	logger := app.container.Logger()
	g, ctx := errgroup.WithContext(app.ctx)

	if len(app.service.Subscriptions) > 0 {
		g.Go(func() error {
			return app.container.Runner().Run(ctx, app.service.Subscriptions...)
		})
	}

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down all application components
func (app *Application) Shutdown() {
	if app.container != nil {
		app.container.Logger().Info("Starting application shutdown...")
	}

	if app.cancel != nil {
		app.cancel()
	}

	if app.container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		app.container.Shutdown(ctx)
	}
}
