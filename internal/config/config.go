// Package config loads searchcore configuration from an optional config file
// and SEARCHCORE_* environment variables.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete searchcore configuration.
type Config struct {
	Storage       StorageConfig       `mapstructure:"storage"`
	Artifact      ArtifactConfig      `mapstructure:"artifact"`
	Lease         LeaseConfig         `mapstructure:"lease"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// StorageConfig selects and parameterizes the persistent store.
type StorageConfig struct {
	// Driver is one of memory, sqlite, postgres.
	Driver string `mapstructure:"driver"`
	// SQLitePath is the sqlite database file when driver=sqlite.
	SQLitePath string `mapstructure:"sqlite_path"`
	// PostgresDSN is the connection string when driver=postgres.
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// ArtifactConfig selects and parameterizes the trial artifact store.
type ArtifactConfig struct {
	// Driver is one of fs, s3, memory.
	Driver string `mapstructure:"driver"`
	// FSRoot is the directory root when driver=fs.
	FSRoot string `mapstructure:"fs_root"`
	// S3Bucket is required when driver=s3.
	S3Bucket string `mapstructure:"s3_bucket"`
	// S3Region defaults to us-east-1.
	S3Region string `mapstructure:"s3_region"`
	// S3Endpoint enables custom endpoints such as MinIO.
	S3Endpoint string `mapstructure:"s3_endpoint"`
	// S3PathStyle forces path-style addressing.
	S3PathStyle bool `mapstructure:"s3_path_style"`
}

// LeaseConfig parameterizes worker liveness handling.
type LeaseConfig struct {
	// HeartbeatTTLSeconds is how long a worker may go without a heartbeat
	// before it is considered dead.
	HeartbeatTTLSeconds int `mapstructure:"heartbeat_ttl_seconds"`
	// ReapIntervalSeconds is how often dead-worker reclamation runs.
	ReapIntervalSeconds int `mapstructure:"reap_interval_seconds"`
}

// HeartbeatTTL returns the TTL as a duration.
func (l LeaseConfig) HeartbeatTTL() time.Duration {
	return time.Duration(l.HeartbeatTTLSeconds) * time.Second
}

// ReapInterval returns the reap cadence as a duration.
func (l LeaseConfig) ReapInterval() time.Duration {
	return time.Duration(l.ReapIntervalSeconds) * time.Second
}

// ObservabilityConfig selects metric and trace exporters.
type ObservabilityConfig struct {
	// MetricsExporter is one of none, expvar, prometheus.
	MetricsExporter string `mapstructure:"metrics_exporter"`
	// TracePath writes JSON-line spans to a file when set.
	TracePath string `mapstructure:"trace_path"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "./searchcore.db",
		},
		Artifact: ArtifactConfig{
			Driver:   "fs",
			FSRoot:   "./artifactdata",
			S3Region: "us-east-1",
		},
		Lease: LeaseConfig{
			HeartbeatTTLSeconds: 60,
			ReapIntervalSeconds: 30,
		},
		Observability: ObservabilityConfig{
			MetricsExporter: "expvar",
		},
	}
}

// Load reads configuration from the optional file at path (YAML) layered
// under SEARCHCORE_* environment variables. An empty path skips the file and
// a missing file at the default location is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix("SEARCHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	v.SetDefault("artifact.driver", d.Artifact.Driver)
	v.SetDefault("artifact.fs_root", d.Artifact.FSRoot)
	v.SetDefault("artifact.s3_bucket", d.Artifact.S3Bucket)
	v.SetDefault("artifact.s3_region", d.Artifact.S3Region)
	v.SetDefault("artifact.s3_endpoint", d.Artifact.S3Endpoint)
	v.SetDefault("artifact.s3_path_style", d.Artifact.S3PathStyle)

	v.SetDefault("lease.heartbeat_ttl_seconds", d.Lease.HeartbeatTTLSeconds)
	v.SetDefault("lease.reap_interval_seconds", d.Lease.ReapIntervalSeconds)

	v.SetDefault("observability.metrics_exporter", d.Observability.MetricsExporter)
	v.SetDefault("observability.trace_path", d.Observability.TracePath)
}
