// SPDX-FileCopyrightText: 2018 - 2023 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/linuxdeepin/mce-daemon/mainloop"
	"golang.org/x/xerrors"
)

const reloadDelay = 300 * time.Millisecond

// Watcher reloads the configuration when its files change and notifies
// the registered handlers on the main loop.
type Watcher struct {
	cfg      *Config
	loop     *mainloop.Loop
	fsw      *fsnotify.Watcher
	handlers []func(*Config)
	pending  mainloop.SourceID
	done     chan struct{}
}

func NewWatcher(cfg *Config, loop *mainloop.Loop) *Watcher {
	return &Watcher{
		cfg:  cfg,
		loop: loop,
	}
}

// OnReload must be called on the loop or before Start.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.handlers = append(w.handlers, fn)
}

func (w *Watcher) Start() error {
	if w.cfg.MainPath() == "" {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return xerrors.Errorf("config watcher: %w", err)
	}
	err = fsw.Add(filepath.Dir(w.cfg.MainPath()))
	if err != nil {
		_ = fsw.Close()
		return xerrors.Errorf("watch %s: %w", filepath.Dir(w.cfg.MainPath()), err)
	}
	err = fsw.Add(w.cfg.DropinDir())
	if err != nil {
		logger.Debug("drop-in dir not watched:", err)
	}
	w.fsw = fsw
	w.done = make(chan struct{})
	go w.loopEvents(fsw, w.done)
	return nil
}

func (w *Watcher) Stop() {
	if w.fsw == nil {
		return
	}
	close(w.done)
	err := w.fsw.Close()
	if err != nil {
		logger.Warning(err)
	}
	w.fsw = nil
}

func (w *Watcher) relevant(name string) bool {
	if name == w.cfg.MainPath() {
		return true
	}
	return filepath.Dir(name) == w.cfg.DropinDir() && filepath.Ext(name) == dropinExt
}

func (w *Watcher) loopEvents(fsw *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !w.relevant(ev.Name) {
				continue
			}
			logger.Debug("config event:", ev)
			w.loop.Post(w.scheduleReload)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warning(err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	if w.pending != 0 {
		w.loop.SourceRemove(w.pending)
	}
	w.pending = w.loop.TimeoutAdd(reloadDelay, func() bool {
		w.pending = 0
		w.Reload()
		return false
	})
}

// Reload re-reads the files and runs the handlers. It must run on the
// main loop.
func (w *Watcher) Reload() {
	err := w.cfg.Reload()
	if err != nil {
		logger.Warning("config reload failed:", err)
		return
	}
	logger.Info("configuration reloaded")
	for _, fn := range w.handlers {
		fn(w.cfg)
	}
}
