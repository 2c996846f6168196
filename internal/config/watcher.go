// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceWindow coalesces the write+rename event bursts editors produce.
const debounceWindow = 250 * time.Millisecond

// Watch reloads the global config whenever the config file changes,
// invoking onChange with the fresh config after each successful reload.
// It blocks until ctx is cancelled.
func Watch(ctx context.Context, log zerolog.Logger, onChange func(*Config)) error {
	path, err := Path()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: saves via rename replace the
	// inode and would silently detach a file watch.
	if err := EnsureDir(); err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var pending *time.Timer
	reload := func() {
		if err := ReloadGlobal(); err != nil {
			log.Warn().Err(err).Msg("config reload failed, keeping previous config")
			return
		}
		log.Info().Msg("config reloaded")
		if onChange != nil {
			onChange(Global())
		}
	}

	for {
		select {
		case <-ctx.Done():
			if pending != nil {
				pending.Stop()
			}
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounceWindow, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}
