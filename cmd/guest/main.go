package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/partysync/internal/guest"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

var (
	serverURL = configVar[string]{
		envKey:       "GUEST_SERVER_URL",
		flagKey:      "server-url",
		defaultValue: "http://localhost:80",
		usage:        "Party server address",
	}
	partyId = configVar[string]{
		envKey:       "GUEST_PARTY_ID",
		flagKey:      "party-id",
		defaultValue: "",
		usage:        "Party to join, a new party is created when empty",
	}
	displayName = configVar[string]{
		envKey:       "GUEST_DISPLAY_NAME",
		flagKey:      "display-name",
		defaultValue: "guest",
		usage:        "Display name shown to other members",
	}
	logLevel = configVar[string]{
		envKey:       "GUEST_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	requestTimeout = configVar[time.Duration]{
		envKey:       "GUEST_REQUEST_TIMEOUT",
		flagKey:      "request-timeout",
		defaultValue: 5 * time.Second,
		usage:        "Timeout of REST requests",
	}
	writeTimeout = configVar[time.Duration]{
		envKey:       "GUEST_WRITE_TIMEOUT",
		flagKey:      "write-timeout",
		defaultValue: 5 * time.Second,
		usage:        "Websocket write deadline",
	}
	pingInterval = configVar[time.Duration]{
		envKey:       "GUEST_PING_INTERVAL",
		flagKey:      "ping-interval",
		defaultValue: 30 * time.Second,
		usage:        "Interval between clock sync pings",
	}
	driftInterval = configVar[time.Duration]{
		envKey:       "GUEST_DRIFT_INTERVAL",
		flagKey:      "drift-interval",
		defaultValue: guest.DefaultDriftInterval,
		usage:        "Interval between drift checks while playing",
	}
	pollInterval = configVar[time.Duration]{
		envKey:       "GUEST_POLL_INTERVAL",
		flagKey:      "poll-interval",
		defaultValue: guest.DefaultPollInterval,
		usage:        "Interval between state polls",
	}
	reconnectMin = configVar[time.Duration]{
		envKey:       "GUEST_RECONNECT_MIN",
		flagKey:      "reconnect-min",
		defaultValue: guest.DefaultReconnectMin,
		usage:        "First delay before redialing a dropped push channel",
	}
	reconnectMax = configVar[time.Duration]{
		envKey:       "GUEST_RECONNECT_MAX",
		flagKey:      "reconnect-max",
		defaultValue: guest.DefaultReconnectMax,
		usage:        "Upper bound of the reconnect backoff",
	}
	statusInterval = configVar[time.Duration]{
		envKey:       "GUEST_STATUS_INTERVAL",
		flagKey:      "status-interval",
		defaultValue: 5 * time.Second,
		usage:        "Interval between status log lines",
	}
	driftIgnore = configVar[float64]{
		envKey:       "GUEST_DRIFT_IGNORE",
		flagKey:      "drift-ignore",
		defaultValue: 0.2,
		usage:        "Drift in seconds below which nothing is corrected",
	}
	driftSoft = configVar[float64]{
		envKey:       "GUEST_DRIFT_SOFT",
		flagKey:      "drift-soft",
		defaultValue: 0.8,
		usage:        "Drift in seconds below which a soft seek is used",
	}
	driftHard = configVar[float64]{
		envKey:       "GUEST_DRIFT_HARD",
		flagKey:      "drift-hard",
		defaultValue: 1.0,
		usage:        "Drift in seconds above which corrections may show the resync button",
	}
	driftEscalate = configVar[float64]{
		envKey:       "GUEST_DRIFT_ESCALATE",
		flagKey:      "drift-escalate",
		defaultValue: 1.5,
		usage:        "Drift in seconds that shows the resync button at once",
	}
	maxFailures = configVar[int]{
		envKey:       "GUEST_DRIFT_MAX_FAILURES",
		flagKey:      "drift-max-failures",
		defaultValue: 3,
		usage:        "Consecutive hard corrections tolerated before showing the resync button",
	}
	autoplayBlocked = configVar[bool]{
		envKey:       "GUEST_AUTOPLAY_BLOCKED",
		flagKey:      "autoplay-blocked",
		defaultValue: false,
		usage:        "Simulate a platform that blocks playback without a user gesture",
	}
	playbackRate = configVar[float64]{
		envKey:       "GUEST_PLAYBACK_RATE",
		flagKey:      "playback-rate",
		defaultValue: 1,
		usage:        "Speed of the simulated media clock, e.g. 1.01 for a fast device",
	}
)

func bindString(v configVar[string]) {
	pflag.String(v.flagKey, v.defaultValue, v.usage)
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func bindInt(v configVar[int]) {
	pflag.Int(v.flagKey, v.defaultValue, v.usage)
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func bindFloat(v configVar[float64]) {
	pflag.Float64(v.flagKey, v.defaultValue, v.usage)
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func bindBool(v configVar[bool]) {
	pflag.Bool(v.flagKey, v.defaultValue, v.usage)
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func bindDuration(v configVar[time.Duration]) {
	pflag.Duration(v.flagKey, v.defaultValue, v.usage)
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func loadAppConfig() *guest.AppConfig {
	bindString(serverURL)
	bindString(partyId)
	bindString(displayName)
	bindString(logLevel)
	bindDuration(requestTimeout)
	bindDuration(writeTimeout)
	bindDuration(pingInterval)
	bindDuration(driftInterval)
	bindDuration(pollInterval)
	bindDuration(reconnectMin)
	bindDuration(reconnectMax)
	bindDuration(statusInterval)
	bindFloat(driftIgnore)
	bindFloat(driftSoft)
	bindFloat(driftHard)
	bindFloat(driftEscalate)
	bindInt(maxFailures)
	bindBool(autoplayBlocked)
	bindFloat(playbackRate)
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	return &guest.AppConfig{
		ServerURL:      viper.GetString(serverURL.flagKey),
		PartyId:        viper.GetString(partyId.flagKey),
		DisplayName:    viper.GetString(displayName.flagKey),
		LogLevel:       viper.GetString(logLevel.flagKey),
		RequestTimeout: viper.GetDuration(requestTimeout.flagKey),
		WriteTimeout:   viper.GetDuration(writeTimeout.flagKey),
		PingInterval:   viper.GetDuration(pingInterval.flagKey),
		DriftInterval:  viper.GetDuration(driftInterval.flagKey),
		PollInterval:   viper.GetDuration(pollInterval.flagKey),
		ReconnectMin:   viper.GetDuration(reconnectMin.flagKey),
		ReconnectMax:   viper.GetDuration(reconnectMax.flagKey),
		StatusInterval: viper.GetDuration(statusInterval.flagKey),
		Thresholds: guest.Thresholds{
			Ignore:      viper.GetFloat64(driftIgnore.flagKey),
			Soft:        viper.GetFloat64(driftSoft.flagKey),
			Hard:        viper.GetFloat64(driftHard.flagKey),
			Escalate:    viper.GetFloat64(driftEscalate.flagKey),
			MaxFailures: viper.GetInt(maxFailures.flagKey),
		},
		AutoplayBlocked: viper.GetBool(autoplayBlocked.flagKey),
		PlaybackRate:    viper.GetFloat64(playbackRate.flagKey),
	}
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting guest with config: %s\n", jsonConfig)

	if err := guest.Run(ctx, appConfig); err != nil {
		log.Fatal(err)
	}
}
