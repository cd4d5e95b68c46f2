// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lifecycle

import (
	"encoding/binary"
	"os"
	"os/signal"
	"syscall"

	"github.com/linuxdeepin/mce-daemon/mainloop"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

const recordSize = 4

var trappedSignals = []os.Signal{
	unix.SIGUSR1,
	unix.SIGHUP,

	unix.SIGINT,
	unix.SIGQUIT,
	unix.SIGTERM,

	unix.SIGABRT,
	unix.SIGILL,
	unix.SIGFPE,
	unix.SIGSEGV,
	unix.SIGPIPE,
	unix.SIGALRM,
	unix.SIGBUS,
	unix.SIGTSTP,
}

// bridge moves signals from the signal delivery goroutine to the main loop
// through a pipe.
type bridge struct {
	rfd, wfd int
	sigs     chan os.Signal
	txDone   chan struct{}
	loop     *mainloop.Loop
	watch    mainloop.SourceID
}

func newBridge(loop *mainloop.Loop) (*bridge, error) {
	var fds [2]int
	err := unix.Pipe2(fds[:], unix.O_CLOEXEC)
	if err != nil {
		return nil, xerrors.Errorf("create signal pipe: %w", err)
	}
	return &bridge{
		rfd:    fds[0],
		wfd:    fds[1],
		sigs:   make(chan os.Signal, 8),
		txDone: make(chan struct{}),
		loop:   loop,
	}, nil
}

func encodeRecord(sig syscall.Signal) []byte {
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint32(buf, uint32(sig))
	return buf
}

func writeRecord(fd int, sig syscall.Signal) bool {
	buf := encodeRecord(sig)
	for {
		n, err := unix.Write(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return err == nil && n == recordSize
	}
}

// readRecord returns false on a short or failed read.
func readRecord(fd int) (syscall.Signal, bool) {
	buf := make([]byte, recordSize)
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n != recordSize {
			return 0, false
		}
		return syscall.Signal(binary.LittleEndian.Uint32(buf)), true
	}
}

func (b *bridge) start(c *Controller) {
	if b.loop != nil {
		b.watch = b.loop.WatchFD(b.rfd, c.rx)
	}
	signal.Notify(b.sigs, trappedSignals...)
	go func() {
		defer close(b.txDone)
		for sig := range b.sigs {
			s, ok := sig.(syscall.Signal)
			if !ok {
				continue
			}
			c.tx(s)
		}
	}()
}

func (b *bridge) close() {
	signal.Stop(b.sigs)
	close(b.sigs)
	<-b.txDone
	if b.loop != nil && b.watch != 0 {
		b.loop.SourceRemove(b.watch)
	}
	_ = unix.Close(b.wfd)
	_ = unix.Close(b.rfd)
}
