package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/fabnet/client/internal/logger"
)

// Watcher reloads configPath on change via viper's fsnotify-backed
// WatchConfig, and forwards only the subset of knobs that are safe to
// change without restarting a running process (worker-pool parallelism
// and timeouts) to onChange. Catalog paths, namespace, and block-format
// knobs are intentionally not forwarded — changing those under a live
// process would desynchronize the already opened catalog/journal.
type Watcher struct {
	v        *viper.Viper
	cfg      *Config
	onChange func(Reloadable)
}

// Reloadable is the live-reloadable knob subset: worker-pool sizes,
// queue depth, and the put/stop timeouts.
type Reloadable struct {
	PutWorkers      int
	GetWorkers      int
	DeleteWorkers   int
	QueueSize       int
	PutErrorTimeout int64 // nanoseconds, matches time.Duration's underlying type
	StopTimeout     int64
	PutMaxRetries   int
}

func reloadableOf(cfg *Config) Reloadable {
	return Reloadable{
		PutWorkers:      cfg.PutWorkers,
		GetWorkers:      cfg.GetWorkers,
		DeleteWorkers:   cfg.DeleteWorkers,
		QueueSize:       cfg.QueueSize,
		PutErrorTimeout: int64(cfg.PutErrorTimeout),
		StopTimeout:     int64(cfg.StopTimeout),
		PutMaxRetries:   cfg.PutMaxRetries,
	}
}

// Watch starts watching configPath for changes, invoking onChange with
// the reloadable knob subset every time the file is rewritten. The
// underlying viper/fsnotify watch stays active for the life of the
// process; the returned Watcher's Stop does not end it. Does nothing and
// returns a no-op Watcher if
// cfg.Reload.Enabled is false or configPath is empty (nothing to watch).
func Watch(configPath string, cfg *Config, onChange func(Reloadable)) (*Watcher, error) {
	w := &Watcher{cfg: cfg, onChange: onChange}
	if !cfg.Reload.Enabled || configPath == "" {
		return w, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: watch: initial read: %w", err)
	}
	w.v = v

	v.OnConfigChange(func(_ fsnotify.Event) {
		var next Config
		if err := v.Unmarshal(&next, viper.DecodeHook(durationDecodeHook())); err != nil {
			logger.Warn("config reload failed, keeping previous values", logger.Err(err))
			return
		}
		ApplyDefaults(&next)
		if err := Validate(&next); err != nil {
			logger.Warn("reloaded config failed validation, keeping previous values", logger.Err(err))
			return
		}
		*w.cfg = next
		logger.Info("config reloaded", logger.Path(configPath))
		if w.onChange != nil {
			w.onChange(reloadableOf(&next))
		}
	})
	v.WatchConfig()

	return w, nil
}

// Stop releases the watcher. Safe to call on a no-op Watcher.
func (w *Watcher) Stop() {
	// viper's WatchConfig has no corresponding Unwatch; the underlying
	// fsnotify watcher is closed along with the process. Nothing to
	// release explicitly, but Stop is kept so callers have a symmetric
	// lifecycle hook if a future viper version adds one.
}
