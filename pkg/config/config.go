// Package config loads the typed, enumerated configuration every
// component of this module is built from: spf13/viper for layered
// file+env+default loading, go-playground/validator/v10 struct tags for
// post-load validation, and fsnotify watching the file for live reload
// of the knobs that are safe to change without restarting a running
// process.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/fabnet/client/internal/logger"
)

// Config enumerates every tunable knob, grouped by the component that
// consumes it. There is no dynamic dict-style attribute access anywhere
// in this module — every field is named and typed.
type Config struct {
	// Logging controls internal/logger's output.
	Logging logger.Config `mapstructure:"logging"`

	// Namespace identifies the catalog's journal (JournalKey).
	Namespace string `mapstructure:"namespace" validate:"required"`
	// DataDir is the badger KV directory backing the Metadata Catalog.
	DataDir string `mapstructure:"data_dir" validate:"required"`
	// JournalPath is the on-disk path of this namespace's journal file.
	JournalPath string `mapstructure:"journal_path" validate:"required"`
	// BlockDir is where local data block files are created.
	BlockDir string `mapstructure:"block_dir" validate:"required"`

	// MaxDataBlockSize is MAX_DATA_BLOCK_SIZE: a write transaction spills
	// into a new block once the current one reaches this many bytes.
	MaxDataBlockSize int64 `mapstructure:"max_data_block_size" validate:"gt=0"`
	// BufLen is BUF_LEN: the read buffer size for a Data Block's tail-read loop.
	BufLen int `mapstructure:"buf_len" validate:"gt=0"`
	// ReadTryCount is READ_TRY_COUNT: the tail-read retry budget.
	ReadTryCount int `mapstructure:"read_try_count" validate:"gt=0"`
	// ReadSleepTime is READ_SLEEP_TIME: the delay between tail-read retries.
	ReadSleepTime time.Duration `mapstructure:"read_sleep_time" validate:"gt=0"`

	// ReplicaCount is the default replica fan-out for new transactions.
	ReplicaCount uint8 `mapstructure:"replica_count" validate:"gt=0"`

	// PutWorkers/GetWorkers/DeleteWorkers size the three fixed worker pools.
	PutWorkers    int `mapstructure:"put_workers" validate:"gt=0"`
	GetWorkers    int `mapstructure:"get_workers" validate:"gt=0"`
	DeleteWorkers int `mapstructure:"delete_workers" validate:"gt=0"`
	// QueueSize bounds each of the put/get/delete job channels.
	QueueSize int `mapstructure:"queue_size" validate:"gt=0"`
	// PutErrorTimeout is FG_ERROR_TIMEOUT: the backoff delay before a
	// failed put job is requeued.
	PutErrorTimeout time.Duration `mapstructure:"put_error_timeout" validate:"gt=0"`
	// PutMaxRetries caps put-job requeueing. Zero means unlimited retry.
	PutMaxRetries int `mapstructure:"put_max_retries" validate:"gte=0"`
	// StopTimeout bounds how long Manager.Stop waits for workers to drain.
	StopTimeout time.Duration `mapstructure:"stop_timeout" validate:"gt=0"`

	// TmpFilePatterns lists basename regexes exempt from MaxDataBlockSize
	// and from ever being uploaded. A nil/empty list selects
	// file.DefaultTmpFilePatterns.
	TmpFilePatterns []TmpPatternConfig `mapstructure:"tmp_file_patterns"`

	// CacheSize is loaded and validated but not passed to any component:
	// local block files are never pruned by size.
	CacheSize int64 `mapstructure:"cache_size" validate:"gte=0"`

	// Gateway selects and configures the fabnet gateway implementation.
	Gateway GatewayConfig `mapstructure:"gateway"`
	// ExistenceCache configures the optional remote-key dedup cache in
	// front of the gateway.
	ExistenceCache ExistenceCacheConfig `mapstructure:"existence_cache"`
	// Metrics configures the Prometheus metrics HTTP endpoint.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Security configures the default security.Manager (AES-256).
	Security SecurityConfig `mapstructure:"security"`

	// Reload controls fsnotify-driven live reload of this file.
	Reload ReloadConfig `mapstructure:"reload"`
}

// TmpPatternConfig is the serializable form of file.TmpPattern: Pattern
// is compiled to a *regexp.Regexp by ToFileConfig.
type TmpPatternConfig struct {
	Pattern string `mapstructure:"pattern" validate:"required"`
	MaxSize int64  `mapstructure:"max_size" validate:"gt=0"`
}

// GatewayConfig selects and configures one fabnet gateway implementation.
type GatewayConfig struct {
	// Type is "memory" or "s3". Default "memory".
	Type string   `mapstructure:"type" validate:"omitempty,oneof=memory s3"`
	S3   S3Config `mapstructure:"s3"`
}

// S3Config mirrors gateway/s3.Config's fields for file/env-driven loading.
type S3Config struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`

	// AccessKeyID/SecretAccessKey pin static credentials; left empty, the
	// gateway falls through to the SDK's default credential chain.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// ExistenceCacheConfig configures gateway/cache's redis-backed dedup cache.
type ExistenceCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// SecurityConfig configures the default aesgcm security.Manager.
type SecurityConfig struct {
	// MasterKeyHex is the 32-byte AES-256 master key, hex-encoded.
	// Typically supplied via the FABNET_SECURITY_MASTER_KEY_HEX
	// environment variable rather than committed to a config file.
	MasterKeyHex string `mapstructure:"master_key_hex"`
}

// ReloadConfig controls fsnotify-driven live reload.
type ReloadConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from configPath (or, if empty, a file named
// fabnet in the working directory; a missing file is not an error), then
// validates the result. A FABNET_*
// environment variable (dots in the key replaced by underscores)
// overrides any key the file sets, and FABNET_SECURITY_MASTER_KEY_HEX is
// read whether or not the file names that key; other keys the file does
// not name are not looked up in the environment. Fields left unset keep
// DefaultConfig's values.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)
	if err := v.BindEnv("security.master_key_hex"); err != nil {
		return nil, fmt.Errorf("config: bind env: %w", err)
	}

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("FABNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("fabnet")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read: %w", err)
	}
	return true, nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

var validate = validator.New()

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}
