// Package config layers defaults, an optional TOML file and SCIENCEMAP_*
// environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr      string          `toml:"addr" env:"ADDR"`
	RPCSocket string          `toml:"rpc_socket" env:"RPC_SOCKET"`
	DB        DBConfig        `toml:"db" envPrefix:"DB_"`
	Auth      AuthConfig      `toml:"auth" envPrefix:"AUTH_"`
	Log       LogConfig       `toml:"log" envPrefix:"LOG_"`
	Telemetry TelemetryConfig `toml:"telemetry" envPrefix:"OTEL_"`
	Export    ExportConfig    `toml:"export" envPrefix:"EXPORT_"`
}

type DBConfig struct {
	Driver string `toml:"driver" env:"DRIVER"`
	DSN    string `toml:"dsn" env:"DSN"`
}

type AuthConfig struct {
	Issuer            string        `toml:"issuer" env:"ISSUER"`
	Audience          string        `toml:"audience" env:"AUDIENCE"`
	Secret            string        `toml:"secret" env:"SECRET"`
	TokenTTL          time.Duration `toml:"token_ttl" env:"TOKEN_TTL"`
	BootstrapUsername string        `toml:"bootstrap_username" env:"BOOTSTRAP_USERNAME"`
	BootstrapEmail    string        `toml:"bootstrap_email" env:"BOOTSTRAP_EMAIL"`
	BootstrapPassword string        `toml:"bootstrap_password" env:"BOOTSTRAP_PASSWORD"`
}

type LogConfig struct {
	Level   string `toml:"level" env:"LEVEL"`
	Console bool   `toml:"console" env:"CONSOLE"`
}

type TelemetryConfig struct {
	Endpoint    string `toml:"otlp_endpoint" env:"ENDPOINT"`
	ServiceName string `toml:"service_name" env:"SERVICE_NAME"`
}

type ExportConfig struct {
	Dir         string `toml:"dir" env:"DIR"`
	Prefix      string `toml:"prefix" env:"PREFIX"`
	S3Bucket    string `toml:"s3_bucket" env:"S3_BUCKET"`
	S3Region    string `toml:"s3_region" env:"S3_REGION"`
	S3Endpoint  string `toml:"s3_endpoint" env:"S3_ENDPOINT"`
	S3PathStyle bool   `toml:"s3_path_style" env:"S3_PATH_STYLE"`
}

func Default() Config {
	return Config{
		Addr:      ":8080",
		RPCSocket: "/tmp/sciencemap.sock",
		DB:        DBConfig{Driver: "sqlite", DSN: "sciencemap.db"},
		Auth: AuthConfig{
			Issuer:            "sciencemap",
			Audience:          "sciencemap-api",
			TokenTTL:          time.Hour,
			BootstrapUsername: "admin",
			BootstrapEmail:    "admin@localhost",
			BootstrapPassword: "admin123",
		},
		Log:       LogConfig{Level: "info", Console: true},
		Telemetry: TelemetryConfig{ServiceName: "sciencemap"},
		Export:    ExportConfig{Dir: "exports"},
	}
}

// Load never returns a partially validated config.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "SCIENCEMAP_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver))
	}
	if strings.TrimSpace(c.DB.DSN) == "" && c.DB.Driver == "sqlite" {
		errs = append(errs, errors.New("db.dsn is required for sqlite"))
	}
	if strings.TrimSpace(c.Auth.Issuer) == "" {
		errs = append(errs, errors.New("auth.issuer is required"))
	}
	if strings.TrimSpace(c.Auth.Audience) == "" {
		errs = append(errs, errors.New("auth.audience is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	return errors.Join(errs...)
}
