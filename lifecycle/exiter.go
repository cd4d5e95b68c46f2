// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lifecycle

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linuxdeepin/mce-daemon/wakelock"
	"golang.org/x/sys/unix"
)

// Exiter performs the individual steps of a forced exit.
type Exiter interface {
	// BlockSuspend keeps the device awake until the process is gone.
	BlockSuspend()
	// ArmWatchdog kills the process if it is still alive after d.
	ArmWatchdog(d time.Duration)
	// Cleanup drops every wakelock the daemon may hold.
	Cleanup()
	ResetSignal(sig syscall.Signal)
	Raise(sig syscall.Signal)
	// Abort is the last resort and does not return on a real system.
	Abort()
}

// raiseGrace is how long a raised signal gets to take the process down.
const raiseGrace = 200 * time.Millisecond

type osExiter struct{}

func (osExiter) BlockSuspend() {
	wakelock.BlockSuspendUntilExit()
}

func (osExiter) ArmWatchdog(d time.Duration) {
	pid := unix.Getpid()
	time.AfterFunc(d, func() {
		_ = unix.Kill(pid, unix.SIGKILL)
	})
}

func (osExiter) Cleanup() {
	wakelock.Cleanup()
}

func (osExiter) ResetSignal(sig syscall.Signal) {
	signal.Reset(sig)
}

func (osExiter) Raise(sig syscall.Signal) {
	_ = unix.Kill(unix.Getpid(), sig)
	time.Sleep(raiseGrace)
}

func (osExiter) Abort() {
	signal.Reset(unix.SIGABRT)
	_ = unix.Kill(unix.Getpid(), unix.SIGABRT)
	time.Sleep(raiseGrace)
	_ = unix.Kill(unix.Getpid(), unix.SIGKILL)
	os.Exit(1)
}
