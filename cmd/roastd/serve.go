package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	_ "roast_monitor/docs"
	"roast_monitor/internal/config"
	"roast_monitor/internal/handlers"
	"roast_monitor/internal/lineparser"
	"roast_monitor/internal/logger"
	"roast_monitor/internal/metrics"
	"roast_monitor/internal/mqtt"
	"roast_monitor/internal/repository"
	"roast_monitor/internal/repository/db"
	"roast_monitor/internal/server"
	"roast_monitor/internal/service"
	"roast_monitor/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, flags GlobalFlags) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		logger.Get(logger.InfoLevel).Errorw("error reading config", "err", err)
		return err
	}

	// init logger
	log := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer func() { _ = log.Sync() }()

	// open DB
	conn, err := openDB(cfg, log)
	if err != nil {
		log.Errorw("failed to init sqlite", "err", err)
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Errorw("failed to register metrics", "err", err)
		return err
	}

	// wire dependencies
	repos := repository.NewRepository(conn)
	services := service.NewService(repos, serviceOptions(cfg, newPublisher(cfg, log), log))
	defer func() {
		if cerr := services.Roast.Close(); cerr != nil {
			log.Errorw("failed to close roast monitor", "err", cerr)
		}
	}()
	apiHandler := handlers.NewHandler(services, log)

	// start HTTP server
	srv := &server.Server{}
	errc := runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	return waitForShutdown(ctx, srv, errc, log)
}

// openDB initializes the SQLite database using configuration.
func openDB(cfg config.Config, log *logger.Logger) (*sql.DB, error) {
	dbPath := cfg.DB.Path
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "roast.db")
		dbPath = "roast.db"
	}
	return db.InitDB(dbPath)
}

// newPublisher connects to the MQTT broker when enabled. A broker that is
// down only disables publishing.
func newPublisher(cfg config.Config, log *logger.Logger) mqtt.Publisher {
	if !cfg.MQTT.Enabled {
		return mqtt.NopPublisher{}
	}
	pub, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix)
	if err != nil {
		log.Warnw("mqtt_unavailable", "broker", cfg.MQTT.Broker, "err", err)
		return mqtt.NopPublisher{}
	}
	log.Infow("mqtt_connected", "broker", cfg.MQTT.Broker, "prefix", cfg.MQTT.TopicPrefix)
	return pub
}

func serviceOptions(cfg config.Config, pub mqtt.Publisher, log *logger.Logger) service.Options {
	topts := transport.Options{
		PollInterval: cfg.Device.PollInterval,
		Fallback:     lineparser.ParseFallback(cfg.Device.ETFallback),
		DefaultBaud:  cfg.Device.DefaultBaud,
		Simulator:    cfg.Simulator,
		Log:          log,
	}
	return service.Options{
		Monitor: service.MonitorOptions{
			SampleInterval: cfg.Sampler.Interval,
			Grace:          cfg.Sampler.Grace,
			Factory: func(p transport.Params) (transport.Transport, error) {
				return transport.New(p, topts)
			},
			Publisher: pub,
			Log:       log,
		},
		Auth: service.AuthOptions{
			SigningKey: cfg.Auth.SigningKey,
			TokenTTL:   cfg.Auth.TokenTTL,
		},
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) <-chan error {
	errc := make(chan error, 1)
	go func() {
		if port == "" {
			port = "8080"
		}
		log.Infow("http_listening", "port", port)
		errc <- srv.Run(port, handler.InitRoutes())
	}()
	return errc
}

// waitForShutdown blocks until a termination signal or a server failure and
// then stops the server, allowing in-flight requests to complete.
func waitForShutdown(ctx context.Context, srv *server.Server, errc <-chan error, log *logger.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errc:
		if err != nil {
			log.Errorw("error starting server", "err", err)
		}
		return err
	case <-sigCtx.Done():
	}

	log.Infow("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
		return err
	}
	return nil
}
