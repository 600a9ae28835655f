package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/partysync/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

var (
	secret = configVar[string]{
		envKey:       "SERVER_SECRET",
		flagKey:      "secret",
		defaultValue: "",
		usage:        "Secret used to sign member tokens",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
		usage:        "Server port",
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	partyTTL = configVar[time.Duration]{
		envKey:       "SERVER_PARTY_TTL",
		flagKey:      "party-ttl",
		defaultValue: 24 * time.Hour,
		usage:        "Idle time after which party keys expire",
	}
	leadTime = configVar[time.Duration]{
		envKey:       "SERVER_LEAD_TIME",
		flagKey:      "lead-time",
		defaultValue: 1200 * time.Millisecond,
		usage:        "Delay between a play command and the scheduled start",
	}
	lockTTL = configVar[time.Duration]{
		envKey:       "SERVER_LOCK_TTL",
		flagKey:      "lock-ttl",
		defaultValue: 5 * time.Second,
		usage:        "Expiry of the cross-instance party lock",
	}
	writeTimeout = configVar[time.Duration]{
		envKey:       "SERVER_WRITE_TIMEOUT",
		flagKey:      "write-timeout",
		defaultValue: 5 * time.Second,
		usage:        "Websocket write deadline",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
		usage:        "Redis host",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
		usage:        "Redis password",
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

func bindDuration(v configVar[time.Duration]) {
	pflag.Duration(v.flagKey, v.defaultValue, v.usage)
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func loadAppConfig() *app.AppConfig {
	bindString(secret)
	bindInt(port)
	bindString(host)
	bindString(logLevel)
	bindDuration(partyTTL)
	bindDuration(leadTime)
	bindDuration(lockTTL)
	bindDuration(writeTimeout)
	bindInt(redisPort)
	bindString(redisHost)
	bindString(redisPassword)
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	return &app.AppConfig{
		Secret:        viper.GetString(secret.flagKey),
		Host:          viper.GetString(host.flagKey),
		Port:          viper.GetInt(port.flagKey),
		LogLevel:      viper.GetString(logLevel.flagKey),
		PartyTTL:      viper.GetDuration(partyTTL.flagKey),
		LeadTime:      viper.GetDuration(leadTime.flagKey),
		LockTTL:       viper.GetDuration(lockTTL.flagKey),
		WriteTimeout:  viper.GetDuration(writeTimeout.flagKey),
		RedisPort:     viper.GetInt(redisPort.flagKey),
		RedisHost:     viper.GetString(redisHost.flagKey),
		RedisPassword: viper.GetString(redisPassword.flagKey),
	}
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
