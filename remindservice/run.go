package remindservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ryosuke1832/remind/internal/api"
	"github.com/ryosuke1832/remind/internal/config"
	"github.com/ryosuke1832/remind/internal/events"
	"github.com/ryosuke1832/remind/internal/factory"
	"github.com/ryosuke1832/remind/internal/grounding"
	"github.com/ryosuke1832/remind/internal/health"
	"github.com/ryosuke1832/remind/internal/logger"
	"github.com/ryosuke1832/remind/internal/services"
	"github.com/ryosuke1832/remind/internal/store"
	"github.com/ryosuke1832/remind/internal/synchronizer"
	"github.com/ryosuke1832/remind/internal/upload"
)

// sessionTTL bounds how long an untouched grounding session is kept.
const sessionTTL = 2 * time.Hour

// Run starts the reMind service HTTP server and blocks until shutdown or error.
func Run(cfg *config.Config) error {
	log := logger.SetGlobal(logger.New("remind-service"), cfg.LogLevel)

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("blob_driver", cfg.BlobDriver).
		Int("http_port", cfg.HTTPPort).
		Msg("reMind service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	deps, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	svcHealth := startHealthCheckers(ctx, cfg, log, deps)
	router := buildRouter(cfg, deps, svcHealth, log)
	go pruneSessions(ctx, deps.sessions, log)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, api.WithCORS(router, cfg.AllowedOrigins))
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		// Streams hold requests open until their mirrors stop.
		deps.mirrors.Close()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

type dependencies struct {
	store      store.Store
	bus        *events.Bus
	relay      *events.RedisRelay
	mirrors    *synchronizer.Registry
	uploader   *upload.Orchestrator
	sessions   *grounding.Registry
	uploadsDir string
	closers    []func() error
}

func (d *dependencies) close() {
	d.mirrors.Close()
	d.bus.Close()
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

// initDependencies constructs required components and enforces fail-fast on missing deps.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*dependencies, error) {
	d := &dependencies{sessions: grounding.NewRegistry()}

	st, db, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, err
	}
	d.closers = append(d.closers, db.Close)

	d.bus = events.NewBus(64, uuid.NewString())
	d.store = store.WithNotifications(st, d.bus)
	d.mirrors = synchronizer.NewRegistry(d.store, d.bus, log.With().Str("component", "synchronizer").Logger())

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		d.closers = append(d.closers, client.Close)
		d.relay = events.NewRedisRelay(client, cfg.RedisChannel, d.bus, log.With().Str("component", "relay").Logger())
		go func() {
			if err := d.relay.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Stack().Err(err).Msg("change relay stopped")
			}
		}()
	}

	blobs, uploadsDir, err := factory.NewBlobStore(cfg)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Blob store unavailable")
		d.close()
		return nil, err
	}
	d.uploadsDir = uploadsDir
	d.uploader = upload.New(upload.Config{
		Folder:       cfg.UploadFolder,
		MaxImages:    cfg.MaxImages,
		MaxImageSize: cfg.MaxImageSizeBytes,
		MaxAudioSize: cfg.MaxAudioSizeBytes,
		MaxRetries:   cfg.UploadMaxRetries,
		BaseDelay:    cfg.UploadBaseDelay,
		ImageTimeout: cfg.ImageTimeout,
		AudioTimeout: cfg.AudioTimeout,
	}, blobs, log.With().Str("component", "upload").Logger())
	return d, nil
}

// buildRouter wires HTTP routes to handlers.
func buildRouter(cfg *config.Config, d *dependencies, svcHealth api.HealthReporter, log zerolog.Logger) http.Handler {
	users := services.NewUserService(d.store)
	avatars := services.NewAvatarService(d.store, d.mirrors, d.uploader,
		upload.NewVerifier(cfg.VerifyTimeout),
		cfg.PublicBaseURL, log.With().Str("component", "avatars").Logger())

	return api.NewRouter(api.Deps{
		Users:   api.NewUserHandler(users),
		Avatars: api.NewAvatarHandler(avatars),
		Media: api.NewMediaHandler(avatars, api.MediaLimits{
			MaxImages:    cfg.MaxImages,
			MaxImageSize: cfg.MaxImageSizeBytes,
			MaxAudioSize: cfg.MaxAudioSizeBytes,
		}),
		Sessions:   api.NewSessionHandler(users, d.sessions),
		Health:     api.NewHealthHandler(svcHealth),
		APIKeys:    cfg.APIKeys,
		UploadsDir: d.uploadsDir,
	})
}

// startHealthCheckers starts component checkers and the service monitor.
// The store is required; the change relay, when configured, is optional.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, d *dependencies) *health.Monitor {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	// First probes run inline so the aggregate can turn healthy on its first pass.
	storeChecker := health.NewPingChecker(health.ComponentStore, d.store, log, probeTimeout)
	storeChecker.Probe(ctx)
	go storeChecker.Start(ctx, interval)
	monitor := health.NewMonitor(log, storeChecker)

	if d.relay != nil {
		relayChecker := health.NewPingChecker(health.ComponentRelay, d.relay, log, probeTimeout)
		relayChecker.Probe(ctx)
		go relayChecker.Start(ctx, interval)
		monitor.Optional(relayChecker)
	}

	go monitor.Start(ctx, interval)
	return monitor
}

// pruneSessions drops abandoned grounding sessions.
func pruneSessions(ctx context.Context, sessions *grounding.Registry, log zerolog.Logger) {
	ticker := time.NewTicker(sessionTTL / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Prune(sessionTTL); n > 0 {
				log.Debug().Int("pruned", n).Int("live", sessions.Len()).Msg("grounding sessions pruned")
			}
		}
	}
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       5 * time.Minute, // media uploads
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      0, // snapshot streams stay open
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// startupHealthTimeout is interval*2 with a floor of 60 seconds.
func startupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.Monitor) error {
	timeoutSeconds := startupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
