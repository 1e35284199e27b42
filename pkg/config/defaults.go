package config

import (
	"time"

	"github.com/fabnet/client/internal/logger"
)

// DefaultConfig returns a Config pre-filled with sensible defaults for
// block size, buffer length, tail-read retry budget and delay, put-error
// backoff, worker counts, and replica count.
func DefaultConfig() *Config {
	return &Config{
		Logging: logger.Config{Level: "INFO", Format: "text", Output: "stdout"},

		Namespace:   "default",
		DataDir:     "./fabnet-data/catalog",
		JournalPath: "./fabnet-data/catalog.journal",
		BlockDir:    "./fabnet-data/blocks",

		MaxDataBlockSize: 16 * 1024 * 1024,
		BufLen:           64 * 1024,
		ReadTryCount:     5,
		ReadSleepTime:    2 * time.Second,

		ReplicaCount: 2,

		PutWorkers:      3,
		GetWorkers:      3,
		DeleteWorkers:   1,
		QueueSize:       256,
		PutErrorTimeout: 5 * time.Second,
		PutMaxRetries:   0,
		StopTimeout:     30 * time.Second,

		CacheSize: 1 * 1024 * 1024 * 1024,

		Gateway: GatewayConfig{Type: "memory"},

		Metrics: MetricsConfig{Enabled: true, Port: 9090},

		Reload: ReloadConfig{Enabled: true},
	}
}

// ApplyDefaults fills any zero-valued field left unset by a config file
// or environment overlay, after viper.Unmarshal has populated cfg.
func ApplyDefaults(cfg *Config) {
	d := DefaultConfig()

	if cfg.Logging.Level == "" {
		cfg.Logging = d.Logging
	}
	if cfg.Namespace == "" {
		cfg.Namespace = d.Namespace
	}
	if cfg.DataDir == "" {
		cfg.DataDir = d.DataDir
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = d.JournalPath
	}
	if cfg.BlockDir == "" {
		cfg.BlockDir = d.BlockDir
	}
	if cfg.MaxDataBlockSize == 0 {
		cfg.MaxDataBlockSize = d.MaxDataBlockSize
	}
	if cfg.BufLen == 0 {
		cfg.BufLen = d.BufLen
	}
	if cfg.ReadTryCount == 0 {
		cfg.ReadTryCount = d.ReadTryCount
	}
	if cfg.ReadSleepTime == 0 {
		cfg.ReadSleepTime = d.ReadSleepTime
	}
	if cfg.ReplicaCount == 0 {
		cfg.ReplicaCount = d.ReplicaCount
	}
	if cfg.PutWorkers == 0 {
		cfg.PutWorkers = d.PutWorkers
	}
	if cfg.GetWorkers == 0 {
		cfg.GetWorkers = d.GetWorkers
	}
	if cfg.DeleteWorkers == 0 {
		cfg.DeleteWorkers = d.DeleteWorkers
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = d.QueueSize
	}
	if cfg.PutErrorTimeout == 0 {
		cfg.PutErrorTimeout = d.PutErrorTimeout
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = d.StopTimeout
	}
	if cfg.Gateway.Type == "" {
		cfg.Gateway.Type = d.Gateway.Type
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = d.Metrics.Port
	}
}
