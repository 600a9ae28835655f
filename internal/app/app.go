package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/partysync/internal/controller"
	"github.com/sharetube/partysync/internal/metrics"
	"github.com/sharetube/partysync/internal/repository/connection/inmemory"
	partyredis "github.com/sharetube/partysync/internal/repository/party/redis"
	"github.com/sharetube/partysync/internal/service/party"
	"github.com/sharetube/partysync/pkg/ctxlogger"
	"github.com/sharetube/partysync/pkg/redisclient"
)

type AppConfig struct {
	Secret        string        `json:"-"`
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	LogLevel      string        `json:"log_level"`
	RedisPort     int           `json:"redis_port"`
	RedisHost     string        `json:"redis_host"`
	RedisPassword string        `json:"-"`
	PartyTTL      time.Duration `json:"party_ttl"`
	LeadTime      time.Duration `json:"lead_time"`
	LockTTL       time.Duration `json:"lock_ttl"`
	WriteTimeout  time.Duration `json:"write_timeout"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Secret == "" {
		return errors.New("secret must be set")
	}
	if cfg.PartyTTL <= 0 {
		return fmt.Errorf("party ttl must be greater than 0")
	}
	if cfg.LeadTime <= 0 {
		return fmt.Errorf("lead time must be greater than 0")
	}
	if cfg.LockTTL <= 0 {
		return fmt.Errorf("lock ttl must be greater than 0")
	}
	if cfg.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be greater than 0")
	}
	return nil
}

func newLogger(level string) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h), nil
}

type app struct {
	handler http.Handler
	stop    func()
}

// newApp wires repositories, the party service and the controller on top of
// an existing redis client and starts the event subscriber.
func newApp(ctx context.Context, cfg *AppConfig, rc *redis.Client, clk clock.Clock, logger *slog.Logger) *app {
	m := metrics.New()
	partyRepo := partyredis.NewRepo(rc, logger, cfg.PartyTTL)
	connRepo := inmemory.NewRepo(logger)
	partyService := party.NewService(partyRepo, connRepo, m, clk, logger, &party.Config{
		Secret:   cfg.Secret,
		LeadTime: cfg.LeadTime,
		LockTTL:  cfg.LockTTL,
	})
	ctrl := controller.NewController(partyService, m.Handler(), logger, &controller.Config{
		WriteTimeout: cfg.WriteTimeout,
	})

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := partyService.RunSubscriber(subCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorContext(subCtx, "party event subscriber stopped", "error", err)
		}
	}()

	return &app{
		handler: ctrl.GetMux(),
		stop: func() {
			cancel()
			<-done
			partyService.Close()
		},
	}
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
		Port:     cfg.RedisPort,
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	a := newApp(ctx, cfg, rc, clock.New(), logger)
	defer a.stop()

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: a.handler}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
