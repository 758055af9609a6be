// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"github.com/fsnotify/fsnotify"
)

// Watcher republishes path's decoded Config every time its contents
// change, over Updates.
type Watcher struct {
	Updates chan Config

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Watch starts watching path for writes. The initial Config is read
// synchronously and returned alongside the Watcher; callers should treat
// it as the value in effect until the first value arrives on Updates.
// Call Close to stop watching and release the underlying file handle.
func Watch(path string) (Config, *Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return Config{}, nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return Config{}, nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return Config{}, nil, err
	}

	w := &Watcher{
		Updates: make(chan Config, 1),
		watcher: fsw,
		done:    make(chan struct{}),
	}
	go w.run(path)

	return cfg, w, nil
}

func (w *Watcher) run(path string) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				log.Errorf("config: reload of %s failed: %v", path, err)
				continue
			}

			select {
			case w.Updates <- cfg:
			default:
				// Drop the stale pending update in favor of the fresh one;
				// a subscriber slow enough to miss two reloads only cares
				// about the latest value anyway.
				select {
				case <-w.Updates:
				default:
				}
				w.Updates <- cfg
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("config: watch error for %s: %v", path, err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and releases its file handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
