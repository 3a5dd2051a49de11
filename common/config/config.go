// Package config holds the connection settings shared by wisefido services and their
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
	// ConnMaxLifetime recycles pooled connections; zero keeps them forever.
	ConnMaxLifetime time.Duration
	// ApplicationName shows up in pg_stat_activity.
	ApplicationName string
}

// RedisConfig Redis connection settings.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int           // zero uses the go-redis default
	DialTimeout time.Duration // zero uses the go-redis default
}

// MQTTConfig MQTT broker settings.
type MQTTConfig struct {
	Broker    string
	ClientID  string
	Username  string
	Password  string
	QoS       byte
	KeepAlive time.Duration // zero uses the paho default
}

// GetDSN builds a lib/pq key/value connection string. Values are quoted when needed.
func (c *DatabaseConfig) GetDSN() string {
	parts := []string{
		"host=" + dsnValue(c.Host),
		"port=" + strconv.Itoa(c.Port),
		"user=" + dsnValue(c.User),
		"password=" + dsnValue(c.Password),
		"dbname=" + dsnValue(c.Database),
		"sslmode=" + dsnValue(c.SSLMode),
	}
	if c.ApplicationName != "" {
		parts = append(parts, "application_name="+dsnValue(c.ApplicationName))
	}
	return strings.Join(parts, " ")
}

func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// LoadFromEnv overrides fields from <prefix>_HOST, <prefix>_PORT, ... when set.
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	envString(prefix+"_HOST", &c.Host)
	envInt(prefix+"_PORT", &c.Port)
	envString(prefix+"_USER", &c.User)
	envString(prefix+"_PASSWORD", &c.Password)
	envString(prefix+"_NAME", &c.Database)
	envString(prefix+"_SSLMODE", &c.SSLMode)
	envInt(prefix+"_MAX_CONNS", &c.MaxConns)
	envInt(prefix+"_MAX_IDLE", &c.MaxIdle)
	envDuration(prefix+"_CONN_MAX_LIFETIME", &c.ConnMaxLifetime)
	envString(prefix+"_APPLICATION_NAME", &c.ApplicationName)
}

// LoadFromEnv overrides Redis fields from <prefix>_ADDR, <prefix>_PASSWORD, <prefix>_DB, ...
func (c *RedisConfig) LoadFromEnv(prefix string) {
	envString(prefix+"_ADDR", &c.Addr)
	envString(prefix+"_PASSWORD", &c.Password)
	envInt(prefix+"_DB", &c.DB)
	envInt(prefix+"_POOL_SIZE", &c.PoolSize)
	envDuration(prefix+"_DIAL_TIMEOUT", &c.DialTimeout)
}

// LoadFromEnv overrides MQTT fields from <prefix>_BROKER, <prefix>_CLIENT_ID, ...
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	envString(prefix+"_BROKER", &c.Broker)
	envString(prefix+"_CLIENT_ID", &c.ClientID)
	envString(prefix+"_USERNAME", &c.Username)
	envString(prefix+"_PASSWORD", &c.Password)
	var qos int
	if envInt(prefix+"_QOS", &qos) && qos >= 0 && qos <= 2 {
		c.QoS = byte(qos)
	}
	envDuration(prefix+"_KEEPALIVE", &c.KeepAlive)
}

// Validate reports settings that cannot work.
func (c *MQTTConfig) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("mqtt client id is required")
	}
	return nil
}

// The env helpers leave dst untouched when the variable is unset or malformed.

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) bool {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return false
	}
	*dst = i
	return true
}

func envDuration(key string, dst *time.Duration) {
	d, err := time.ParseDuration(os.Getenv(key))
	if err == nil && d >= 0 {
		*dst = d
	}
}
