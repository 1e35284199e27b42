package config

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/fabnet/client/pkg/block"
	"github.com/fabnet/client/pkg/catalog"
	"github.com/fabnet/client/pkg/file"
	"github.com/fabnet/client/pkg/gateway"
	"github.com/fabnet/client/pkg/gateway/cache"
	"github.com/fabnet/client/pkg/gateway/memory"
	"github.com/fabnet/client/pkg/gateway/s3"
	"github.com/fabnet/client/pkg/security"
	"github.com/fabnet/client/pkg/security/aesgcm"
	"github.com/fabnet/client/pkg/transfer"
)

// ToBlockConfig builds a block.Config from the tail-read knobs.
func (cfg *Config) ToBlockConfig() block.Config {
	return block.Config{
		BufLen:        cfg.BufLen,
		ReadTryCount:  cfg.ReadTryCount,
		ReadSleepTime: cfg.ReadSleepTime,
	}
}

// ToCatalogConfig builds a catalog.Config for the namespace this Config
// describes.
func (cfg *Config) ToCatalogConfig() catalog.Config {
	return catalog.Config{
		DataDir:     cfg.DataDir,
		JournalPath: cfg.JournalPath,
		JournalKey:  []byte(cfg.Namespace),
	}
}

// ToTransferConfig builds a transfer.Config for the worker pool.
func (cfg *Config) ToTransferConfig() transfer.Config {
	return transfer.Config{
		PutWorkers:      cfg.PutWorkers,
		GetWorkers:      cfg.GetWorkers,
		DeleteWorkers:   cfg.DeleteWorkers,
		QueueSize:       cfg.QueueSize,
		PutErrorTimeout: cfg.PutErrorTimeout,
		StopTimeout:     cfg.StopTimeout,
		PutMaxRetries:   cfg.PutMaxRetries,
	}
}

// ToFileConfig builds a file.Config, compiling every configured
// TmpPatternConfig to a *regexp.Regexp. A pattern that fails to compile
// is skipped rather than failing the whole Config, since Validate has
// already run by the time this is called from normal startup code.
func (cfg *Config) ToFileConfig() file.Config {
	var patterns []file.TmpPattern
	for _, p := range cfg.TmpFilePatterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		patterns = append(patterns, file.TmpPattern{Re: re, MaxSize: p.MaxSize})
	}
	return file.Config{
		MaxDataBlockSize: cfg.MaxDataBlockSize,
		ReplicaCount:     cfg.ReplicaCount,
		BlockDir:         cfg.BlockDir,
		TmpFilePatterns:  patterns,
	}
}

// BuildGateway constructs the fabnet gateway.Gateway named by
// cfg.Gateway.Type.
func (cfg *Config) BuildGateway(ctx context.Context) (gateway.Gateway, error) {
	switch cfg.Gateway.Type {
	case "", "memory":
		return memory.New(), nil
	case "s3":
		return s3.New(ctx, s3.Config{
			Bucket:          cfg.Gateway.S3.Bucket,
			Prefix:          cfg.Gateway.S3.Prefix,
			Endpoint:        cfg.Gateway.S3.Endpoint,
			Region:          cfg.Gateway.S3.Region,
			AccessKeyID:     cfg.Gateway.S3.AccessKeyID,
			SecretAccessKey: cfg.Gateway.S3.SecretAccessKey,
		})
	default:
		return nil, errUnknownGatewayType(cfg.Gateway.Type)
	}
}

// BuildExistenceCache constructs the optional redis-backed dedup cache,
// or returns nil if ExistenceCache.Enabled is false.
func (cfg *Config) BuildExistenceCache() *cache.ExistenceCache {
	if !cfg.ExistenceCache.Enabled {
		return nil
	}
	return cache.New(cache.Config{
		Addr:     cfg.ExistenceCache.Addr,
		Password: cfg.ExistenceCache.Password,
		DB:       cfg.ExistenceCache.DB,
		TTL:      cfg.ExistenceCache.TTL,
		Prefix:   cfg.ExistenceCache.Prefix,
	})
}

// BuildSecurity constructs the aesgcm security.Manager from
// Security.MasterKeyHex, or returns a nil Manager (no encryption) if the
// key is unset — matching pkg/block.Open's nil-tolerant sec parameter.
func (cfg *Config) BuildSecurity() (security.Manager, error) {
	if cfg.Security.MasterKeyHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(cfg.Security.MasterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("config: master_key_hex: %w", err)
	}
	return aesgcm.New(key)
}

type errUnknownGatewayType string

func (e errUnknownGatewayType) Error() string {
	return "config: unknown gateway type " + string(e)
}
