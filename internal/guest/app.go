package guest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/partysync/pkg/clocksync"
	"github.com/sharetube/partysync/pkg/ctxlogger"
)

type AppConfig struct {
	ServerURL       string        `json:"server_url"`
	PartyId         string        `json:"party_id"`
	DisplayName     string        `json:"display_name"`
	LogLevel        string        `json:"log_level"`
	RequestTimeout  time.Duration `json:"request_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	PingInterval    time.Duration `json:"ping_interval"`
	DriftInterval   time.Duration `json:"drift_interval"`
	PollInterval    time.Duration `json:"poll_interval"`
	ReconnectMin    time.Duration `json:"reconnect_min"`
	ReconnectMax    time.Duration `json:"reconnect_max"`
	StatusInterval  time.Duration `json:"status_interval"`
	Thresholds      Thresholds    `json:"thresholds"`
	AutoplayBlocked bool          `json:"autoplay_blocked"`
	PlaybackRate    float64       `json:"playback_rate"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.ServerURL == "" {
		return errors.New("server url must be set")
	}
	if cfg.DisplayName == "" {
		return errors.New("display name must be set")
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if cfg.PingInterval <= 0 || cfg.DriftInterval <= 0 || cfg.PollInterval <= 0 {
		return fmt.Errorf("intervals must be greater than 0")
	}
	if cfg.ReconnectMin <= 0 || cfg.ReconnectMax < cfg.ReconnectMin {
		return fmt.Errorf("reconnect backoff must be positive and ordered")
	}
	if cfg.StatusInterval <= 0 {
		return fmt.Errorf("status interval must be greater than 0")
	}
	if cfg.PlaybackRate <= 0 {
		return fmt.Errorf("playback rate must be greater than 0")
	}
	t := cfg.Thresholds
	if !(0 < t.Ignore && t.Ignore <= t.Soft && t.Soft <= t.Hard && t.Hard <= t.Escalate) {
		return fmt.Errorf("drift thresholds must be positive and ordered")
	}
	if t.MaxFailures <= 0 {
		return fmt.Errorf("max failures must be greater than 0")
	}
	return nil
}

func newLogger(level string) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}),
	}

	return slog.New(&h), nil
}

// Run joins a party, or creates one when no party id is configured, and
// reproduces its playback on a simulated media element until interrupted.
// Stdin lines are commands: "resync" triggers a manual resync, the rest are
// host transport commands.
func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := NewClient(cfg.ServerURL, cfg.RequestTimeout, logger)
	if err != nil {
		return err
	}

	var m Membership
	if cfg.PartyId == "" {
		m, err = client.CreateParty(ctx, cfg.DisplayName)
	} else {
		m, err = client.JoinParty(ctx, cfg.PartyId, cfg.DisplayName)
	}
	if err != nil {
		return err
	}

	ctx = ctxlogger.AppendCtx(ctx, slog.String("party_id", m.PartyId))
	ctx = ctxlogger.AppendCtx(ctx, slog.String("member_id", m.MemberId))
	logger.InfoContext(ctx, "joined party")

	wsURL := client.WebsocketURL(m.PartyId, m.Token)
	dial := func(ctx context.Context) (Transport, error) {
		t, err := Dial(ctx, wsURL, cfg.WriteTimeout, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	}

	// the first connection is dialed eagerly so a bad url or token fails fast
	first, err := dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if first != nil {
			first.Close()
		}
	}()
	dialOnce := func(ctx context.Context) (Transport, error) {
		if t := first; t != nil {
			first = nil
			return t, nil
		}
		return dial(ctx)
	}

	clk := clock.New()
	media := NewSimulatedMedia(clk)
	media.SetRate(cfg.PlaybackRate)
	media.SetAutoplayBlocked(cfg.AutoplayBlocked)

	estimator := clocksync.NewEstimator(clk, clocksync.Config{PingInterval: cfg.PingInterval})
	session := NewSession(media, dialOnce, PartyFetcher{Client: client, PartyId: m.PartyId}, estimator, clk, logger, &Config{
		Thresholds:      cfg.Thresholds,
		DriftInterval:   cfg.DriftInterval,
		PollInterval:    cfg.PollInterval,
		ReconnectMin:    cfg.ReconnectMin,
		ReconnectMax:    cfg.ReconnectMax,
		InitialSnapshot: &m.Snapshot,
	})
	defer session.Close()

	go readCommands(ctx, os.Stdin, session, logger)
	go reportStatus(ctx, clk, cfg.StatusInterval, session, media, logger)

	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("guest stopped")
	return nil
}

func reportStatus(ctx context.Context, clk clock.Clock, interval time.Duration, session *Session, media *SimulatedMedia, logger *slog.Logger) {
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := session.Status()
			logger.InfoContext(ctx, "status",
				"local_status", st.Local,
				"party_status", st.PartyStatus,
				"version", st.Version,
				"position_sec", media.Position(),
				"drift_sec", st.LastDriftSec,
				"resync_visible", st.ResyncVisible,
				"offset_ms", st.OffsetMs,
			)
		}
	}
}
