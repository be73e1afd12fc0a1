package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"licensedesk/internal/session"
	"licensedesk/pkg/config"
	"licensedesk/pkg/contracts"
	"licensedesk/pkg/middleware"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UploadPrefix is the only path prefix accepting multipart bodies.
const UploadPrefix = "/api/v1/uploads/"

// Worker is a background loop that runs until ctx is cancelled.
type Worker func(ctx context.Context)

type Application struct {
	cfg              *config.Config
	verifier         *session.Verifier
	gatherer         prometheus.Gatherer
	server           *http.Server
	idempotencyStore middleware.IdempotencyStore
	rateLimiter      *middleware.RateLimiter
	healthHandler    http.Handler
	appHttpHandler   http.Handler

	workers []namedWorker
	closers []func() error
	wg      sync.WaitGroup
}

type namedWorker struct {
	name string
	run  Worker
}

func NewApplication(cfg *config.Config, verifier *session.Verifier, gatherer prometheus.Gatherer) *Application {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Application{cfg: cfg, verifier: verifier, gatherer: gatherer}
}

// AddWorker registers a background loop started by Run.
func (a *Application) AddWorker(name string, w Worker) {
	a.workers = append(a.workers, namedWorker{name: name, run: w})
}

// OnShutdown registers fn to run after the workers have stopped.
func (a *Application) OnShutdown(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *Application) SetApp(handlers ...contracts.Handler) {
	a.setHealthHandler()
	a.setAppHandler(handlers)
	a.setAppServer()
}

// Handler is the fully assembled HTTP handler.
func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

func (a *Application) setHealthHandler() {
	healthRouter := httprouter.New()
	NewHealthHandler(a.cfg.Client.Mongo, a.cfg.Client.Redis, a.cfg.Log).RegisterRoutes(healthRouter)
	healthRouter.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery only)")
}

func (a *Application) setAppHandler(handlers []contracts.Handler) {
	appRouter := httprouter.New()
	for _, h := range handlers {
		h.RegisterRoutes(appRouter)
	}

	if a.cfg.Client.Redis != nil {
		a.idempotencyStore = middleware.NewRedisIdempotencyStore(a.cfg.Client.Redis, a.cfg.IdempotencyTTL)
	} else {
		a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	}
	a.rateLimiter = middleware.NewRateLimiter(
		a.cfg.RateLimitRequests,
		a.cfg.RateLimitWindow,
		callerKey,
		a.cfg.Log,
	)

	var appHttpHandler http.Handler = appRouter
	appHttpHandler = middleware.Idempotency(a.idempotencyStore, middleware.DefaultIdempotencyHeader, callerKey, a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.RequestTimeout(a.cfg.RequestTimeout)(appHttpHandler)
	appHttpHandler = middleware.RateLimit(a.rateLimiter)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(a.cfg.Log, UploadPrefix)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize), UploadPrefix)(appHttpHandler)
	appHttpHandler = a.verifier.Middleware(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(a.cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
}

// callerKey counts signed in callers by user and anonymous ones by address.
func callerKey(r *http.Request) string {
	if sess := session.FromContext(r.Context()); sess.Authenticated() {
		return "user:" + sess.UserID
	}
	return "ip:" + middleware.ClientIP(r)
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle("/metrics", a.healthHandler)
	mux.Handle("/", a.appHttpHandler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Serve(ctx); err != nil {
		a.cfg.Log.Fatal("HTTP server failed", "error", err)
	}
}

// Serve starts the workers and the HTTP server and blocks until ctx is done
// or the server fails, then shuts everything down.
func (a *Application) Serve(ctx context.Context) error {
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for _, w := range a.workers {
		a.wg.Add(1)
		go func(w namedWorker) {
			defer a.wg.Done()
			a.cfg.Log.Info("Starting background worker", "worker", w.name)
			w.run(workerCtx)
			a.cfg.Log.Info("Background worker stopped", "worker", w.name)
		}(w)
	}

	serverErrors := make(chan error, 1)
	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		a.cfg.Log.Info("Shutdown signal received")
	}

	cancelWorkers()
	a.gracefulShutdown()
	return serveErr
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.cfg.Log.Warn("Background workers did not stop before the shutdown timeout")
	}
	a.idempotencyStore.Stop()
	a.rateLimiter.Stop()

	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.cfg.Log.Error("Shutdown hook failed", "error", err)
		}
	}
	a.cfg.GracefulShutdown()

	a.cfg.Log.Info("Server stopped gracefully")
}
