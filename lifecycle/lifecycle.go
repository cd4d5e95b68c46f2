// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package lifecycle drives the daemon through startup, orderly shutdown
// and forced abort, and turns process signals into main loop events.
package lifecycle

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/linuxdeepin/mce-daemon/mainloop"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("mce/lifecycle")

func SetLogLevel(pri log.Priority) {
	logger.SetLogLevel(pri)
}

type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateTerminated:
		return "TERMINATED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

const (
	breakMessage = "\n*** BREAK ***\n"
	dieMessage   = "\n*** UNRECOVERABLE FAILURE ***\n"

	WatchdogTimeout = 3 * time.Second
)

var ErrAlreadyStarted = xerrors.New("lifecycle already started")

type Controller struct {
	state     atomic.Int32
	exitTries atomic.Int32
	aborting  atomic.Bool

	exiter Exiter
	stderr io.Writer

	mu       sync.Mutex
	loop     *mainloop.Loop
	bridge   *bridge
	onReload func()
	onDump   func()
}

// NewController returns a controller in the STARTING state. A nil exiter
// selects the real process operations.
func NewController(exiter Exiter) *Controller {
	if exiter == nil {
		exiter = osExiter{}
	}
	return &Controller{
		exiter: exiter,
		stderr: os.Stderr,
	}
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) transition(from []State, to State) bool {
	for _, f := range from {
		if c.state.CompareAndSwap(int32(f), int32(to)) {
			logger.Debugf("state %v -> %v", f, to)
			return true
		}
	}
	return false
}

// OnReload sets the SIGHUP hook. It runs on the main loop.
func (c *Controller) OnReload(fn func()) {
	c.mu.Lock()
	c.onReload = fn
	c.mu.Unlock()
}

// OnDump sets the SIGUSR1 hook. It runs on the main loop.
func (c *Controller) OnDump(fn func()) {
	c.mu.Lock()
	c.onDump = fn
	c.mu.Unlock()
}

func (c *Controller) currentLoop() *mainloop.Loop {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop
}

// Start installs the signal bridge. Signals are dispatched on loop; with
// a nil loop any termination signal aborts the process.
func (c *Controller) Start(loop *mainloop.Loop) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bridge != nil {
		return ErrAlreadyStarted
	}
	b, err := newBridge(loop)
	if err != nil {
		return err
	}
	c.loop = loop
	c.bridge = b
	b.start(c)
	return nil
}

// SetRunning marks the end of startup; call it right before the loop runs.
func (c *Controller) SetRunning() bool {
	return c.transition([]State{StateStarting}, StateRunning)
}

// Stop begins an orderly shutdown by quitting the main loop.
func (c *Controller) Stop() {
	if !c.transition([]State{StateStarting, StateRunning}, StateStopping) {
		return
	}
	c.exiter.BlockSuspend()
	loop := c.currentLoop()
	if loop == nil {
		c.ForcedAbort(unix.SIGABRT)
		return
	}
	loop.Quit()
}

// Finish removes the signal bridge and marks the process terminated.
func (c *Controller) Finish() {
	c.mu.Lock()
	b := c.bridge
	c.bridge = nil
	c.mu.Unlock()
	if b != nil {
		b.close()
	}
	c.state.Store(int32(StateTerminated))
}

func (c *Controller) writeStderr(msg string) {
	_, _ = io.WriteString(c.stderr, msg)
}

// tx runs on the signal delivery goroutine and must not depend on the
// main loop making progress.
func (c *Controller) tx(sig syscall.Signal) {
	switch sig {
	case unix.SIGINT, unix.SIGQUIT, unix.SIGTERM:
		c.exiter.BlockSuspend()
		c.writeStderr(breakMessage)
		tries := c.exitTries.Add(1)
		if c.currentLoop() == nil || tries >= 2 {
			c.ForcedAbort(unix.SIGABRT)
			return
		}

	case unix.SIGABRT, unix.SIGILL, unix.SIGFPE, unix.SIGSEGV, unix.SIGALRM, unix.SIGBUS:
		c.writeStderr(dieMessage)
		c.ForcedAbort(sig)
		return

	case unix.SIGTSTP:
		// stopping the daemon could lead to an unrecoverable suspend
		return
	}

	c.mu.Lock()
	b := c.bridge
	c.mu.Unlock()
	if b == nil {
		return
	}
	if !writeRecord(b.wfd, sig) {
		c.ForcedAbort(unix.SIGABRT)
	}
}

// rx is the main loop side of the bridge.
func (c *Controller) rx(fd int) bool {
	sig, ok := readRecord(fd)
	if !ok {
		c.ForcedAbort(unix.SIGABRT)
		return false
	}
	c.handle(sig)
	return true
}

func (c *Controller) handle(sig syscall.Signal) {
	logger.Debug("received signal", sig)
	switch sig {
	case unix.SIGUSR1:
		c.mu.Lock()
		fn := c.onDump
		c.mu.Unlock()
		if fn != nil {
			fn()
		}

	case unix.SIGHUP:
		c.mu.Lock()
		fn := c.onReload
		c.mu.Unlock()
		if fn != nil {
			fn()
		}

	case unix.SIGINT, unix.SIGQUIT, unix.SIGTERM:
		if c.currentLoop() == nil {
			c.ForcedAbort(sig)
			return
		}
		c.Stop()
	}
}

// ForcedAbort terminates the process through sig without running the
// orderly shutdown: arm the watchdog, drop wakelocks, restore the default
// disposition and re-raise, then abort as the last resort.
func (c *Controller) ForcedAbort(sig syscall.Signal) {
	if !c.aborting.CompareAndSwap(false, true) {
		return
	}
	c.state.Store(int32(StateTerminated))

	c.exiter.ArmWatchdog(WatchdogTimeout)
	c.exiter.Cleanup()
	c.exiter.ResetSignal(sig)
	c.exiter.Raise(sig)
	c.exiter.Abort()
}

// RecoverFatal turns a panic into an unrecoverable failure. Defer it at the
// top of main.
func (c *Controller) RecoverFatal() {
	r := recover()
	if r == nil {
		return
	}
	c.writeStderr(dieMessage)
	logger.Errorf("panic: %v\n%s", r, debug.Stack())
	c.ForcedAbort(unix.SIGABRT)
}
