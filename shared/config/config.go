package config

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Public  Public
	Private Private
}

type Public struct {
	LogLevel    string        `yaml:"log_level"`
	LogJSON     bool          `yaml:"log_json"`
	JwtTTL      time.Duration `yaml:"jwt_ttl" validate:"required"`
	CorsOrigins []string      `yaml:"cors_origins"`
	// Adds HSTS header; set when served behind TLS.
	SecureCookies bool     `yaml:"secure_cookies"`
	Realtime      Realtime `yaml:"realtime" validate:"required"`
	Redis         Redis    `yaml:"redis"`
	PgPool        PgPool   `yaml:"pg_pool"`
}

type Realtime struct {
	Broker         string        `yaml:"broker" validate:"required,oneof=memory redis"`
	SendBuffer     int           `yaml:"send_buffer" validate:"required,gt=0"`
	MaxMessageSize int64         `yaml:"max_message_size" validate:"required,gt=0"`
	PingPeriod     time.Duration `yaml:"ping_period" validate:"required"` // seconds
	RatePerSec     float64       `yaml:"rate_per_sec" validate:"required,gt=0"`
	// InstanceId names this process among the ones sharing a redis broker.
	// Defaults to the hostname.
	InstanceId     string        `yaml:"instance_id"`
}

type Redis struct {
	Addr      string `yaml:"addr"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type PgPool struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
}

type Pg struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Dbname   string `yaml:"dbname" validate:"required"`
}

type Private struct {
	JwtKey        string `yaml:"jwt_key" validate:"required"`
	Pg            Pg     `yaml:"pg" validate:"required"`
	RedisPassword string `yaml:"redis_password"`
}

func (s *Config) JwtKey() string {
	return s.Private.JwtKey
}

// JwtTTL is stored in hours in public.yaml.
func (s *Config) JwtTTL() time.Duration {
	return s.Public.JwtTTL * time.Hour
}

func (s *Config) PingPeriod() time.Duration {
	return s.Public.Realtime.PingPeriod * time.Second
}

// Instance is the id this process tags its presence rows with. A memory
// broker means a single process, which owns every row.
func (s *Config) Instance() string {
	if s.Public.Realtime.Broker != "redis" {
		return ""
	}
	if id := s.Public.Realtime.InstanceId; id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}

func mustLoadPath(configPath string, output interface{}) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		panic("can't read config file")
	}

	if err = yaml.Unmarshal(configFile, output); err != nil {
		panic("can't unmarshal config file")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(output); err != nil {
		panic(fmt.Sprintf("invalid config %s: %v", configPath, err))
	}
}

func MustLoad(configFolder string) *Config {
	var public Public
	mustLoadPath(path.Join(configFolder, "public.yaml"), &public)

	var private Private
	mustLoadPath(path.Join(configFolder, "private.yaml"), &private)

	if public.Realtime.Broker == "redis" && public.Redis.Addr == "" {
		panic("redis.addr is required when realtime.broker is redis")
	}

	return &Config{public, private}
}
