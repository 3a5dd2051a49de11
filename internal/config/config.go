package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"wisefido-ews/common/config"
)

// Config is the early-warning service configuration.
type Config struct {
	TenantID string
	HTTPAddr string

	Database    config.DatabaseConfig
	DBEnabled   bool // false runs on the in-memory repository
	AutoMigrate bool

	Redis        config.RedisConfig
	RedisEnabled bool

	MQTT config.MQTTConfig

	EWS struct {
		ScanInterval                time.Duration // overdue scan period, default 2m
		ScanWorkers                 int           // concurrent overdue evaluations, default DB max conns
		EventStream                 string        // Redis stream for alert events
		EventStreamMaxLen           int64
		LockTTL                     time.Duration // Redis lock expiry
		ResolveOverdueOnObservation bool

		MQTTEnabled          bool
		MQTTObservationTopic string
		MQTTPublishEvents    bool
	}

	ClientRegistry struct {
		URL   string
		Token string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TenantID = getEnv("TENANT_ID", "")
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("TENANT_ID is required")
	}
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8090")

	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "owlrd",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,

		ConnMaxLifetime: 30 * time.Minute,
		ApplicationName: "wisefido-ews",
	}
	cfg.Database.LoadFromEnv("DB")
	cfg.DBEnabled = parseBool("DB_ENABLED", true)
	cfg.AutoMigrate = parseBool("DB_AUTO_MIGRATE", true)

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")
	cfg.RedisEnabled = parseBool("REDIS_ENABLED", true)

	cfg.MQTT = config.MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "wisefido-ews", QoS: 1}
	cfg.MQTT.LoadFromEnv("MQTT")

	var err error
	if cfg.EWS.ScanInterval, err = parseDuration("EWS_SCAN_INTERVAL", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.EWS.LockTTL, err = parseDuration("EWS_LOCK_TTL", 10*time.Second); err != nil {
		return nil, err
	}
	cfg.EWS.ScanWorkers = parseInt("EWS_SCAN_WORKERS", cfg.Database.MaxConns)
	if cfg.EWS.ScanWorkers <= 0 {
		cfg.EWS.ScanWorkers = 1
	}
	cfg.EWS.EventStream = getEnv("EWS_EVENT_STREAM", "ews:alert-events")
	cfg.EWS.EventStreamMaxLen = int64(parseInt("EWS_EVENT_STREAM_MAXLEN", 10000))
	cfg.EWS.ResolveOverdueOnObservation = parseBool("EWS_RESOLVE_OVERDUE_ON_OBSERVATION", true)

	cfg.EWS.MQTTEnabled = parseBool("EWS_MQTT_ENABLED", false)
	cfg.EWS.MQTTObservationTopic = getEnv("EWS_MQTT_OBSERVATION_TOPIC", "ews/+/observations")
	cfg.EWS.MQTTPublishEvents = parseBool("EWS_MQTT_PUBLISH_EVENTS", false)

	cfg.ClientRegistry.URL = getEnv("CLIENT_REGISTRY_URL", "")
	cfg.ClientRegistry.Token = getEnv("CLIENT_REGISTRY_TOKEN", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}

func parseDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return d, nil
}
