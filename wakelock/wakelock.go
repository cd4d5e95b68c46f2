// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package wakelock talks to the kernel wakelock interface under
// /sys/power. All writes are best effort: a kernel without wakelock
// support simply makes them no-ops.
package wakelock

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linuxdeepin/go-lib/log"
)

const (
	DefaultRoot = "/sys/power"

	// ExitLock is held from the first termination signal until the
	// process is gone.
	ExitLock = "mce_exit"
)

// Locks the daemon may hold and must drop before dying.
var cleanupLocks = []string{
	"mce_display_on",
	"mce_input_handler",
	"mce_cpu_keepalive",
	"mce_display_stm",
}

var logger = log.NewLogger("mce/wakelock")

var (
	mu            sync.Mutex
	root          = DefaultRoot
	tracing       atomic.Bool
	exitBlocked   atomic.Bool
	unsupportedAt string
)

func SetLogLevel(pri log.Priority) {
	logger.SetLogLevel(pri)
}

// SetRoot points the package at another directory, tests use a temp dir.
func SetRoot(dir string) {
	mu.Lock()
	root = dir
	unsupportedAt = ""
	mu.Unlock()
	exitBlocked.Store(false)
}

// EnableLogging turns on the wakelocks trace domain.
func EnableLogging() {
	tracing.Store(true)
}

func write(file, data string) {
	mu.Lock()
	dir := root
	mu.Unlock()

	path := filepath.Join(dir, file)
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		mu.Lock()
		first := unsupportedAt != path
		unsupportedAt = path
		mu.Unlock()
		if first {
			logger.Debug("wakelocks unavailable:", err)
		}
		return
	}
	defer fh.Close()

	_, err = fh.WriteString(data)
	if err != nil {
		logger.Warningf("write %q to %s: %v", data, path, err)
	}
}

// Lock takes the named wakelock. A positive timeout makes the kernel drop
// it automatically, zero or negative holds it until Unlock.
func Lock(name string, timeout time.Duration) {
	data := name
	if timeout > 0 {
		data += " " + strconv.FormatInt(timeout.Nanoseconds(), 10)
	}
	if tracing.Load() {
		logger.Infof("LOCK: %s", data)
	}
	write("wake_lock", data)
}

func Unlock(name string) {
	if tracing.Load() {
		logger.Infof("UNLOCK: %s", name)
	}
	write("wake_unlock", name)
}

// BlockSuspendUntilExit disables autosleep and takes the exit lock. Only
// the first call does anything.
func BlockSuspendUntilExit() {
	if !exitBlocked.CompareAndSwap(false, true) {
		return
	}
	write("autosleep", "off")
	Lock(ExitLock, -1)
}

// Cleanup blocks suspend and drops every lock the daemon might hold, so
// that a dying daemon cannot keep the device awake.
func Cleanup() {
	BlockSuspendUntilExit()
	for _, name := range cleanupLocks {
		Unlock(name)
	}
}
