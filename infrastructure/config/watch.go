package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/felixgeelhaar/itinerary/domain/config"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
)

// debounceDelay lets editors finish writing before a reload.
const debounceDelay = 250 * time.Millisecond

// Watch reloads path whenever it changes and hands the result to fn until
// ctx is done. Reloads that fail to load are logged and skipped.
//
// The parent directory is watched so that editors replacing the file by
// rename are seen.
func (l *Loader) Watch(ctx context.Context, path string, fn func(*config.Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %q: %w", path, err)
	}

	reload := func() {
		cfg, err := l.LoadFile(abs)
		if err != nil {
			logging.Warn().
				Add(logging.Component("config")).
				Add(logging.Str("path", abs)).
				Add(logging.ErrorField(err)).
				Msg("config reload failed")
			return
		}
		logging.Info().
			Add(logging.Component("config")).
			Add(logging.Str("path", abs)).
			Msg("config reloaded")
		fn(cfg)
	}

	go func() {
		defer w.Close()

		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, reload)

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logging.Error().
					Add(logging.Component("config")).
					Add(logging.ErrorField(err)).
					Msg("config watcher failed")

			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}
