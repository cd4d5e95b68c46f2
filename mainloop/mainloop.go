// SPDX-FileCopyrightText: 2018 - 2023 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package mainloop is the cooperative dispatcher everything in the daemon
// runs on. Callbacks execute one at a time on the goroutine that called
// Run; other goroutines hand work over with Post or Invoke.
package mainloop

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linuxdeepin/go-lib/log"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("mce/mainloop")

func SetLogLevel(pri log.Priority) {
	logger.SetLogLevel(pri)
}

var (
	ErrNotRunning     = xerrors.New("main loop is not running")
	ErrAlreadyStarted = xerrors.New("main loop already started")
)

type SourceID uint32

// Scheduler is the timeout half of Loop.
type Scheduler interface {
	TimeoutAdd(d time.Duration, fn func() bool) SourceID
	SourceRemove(id SourceID) bool
}

var _ Scheduler = (*Loop)(nil)

type sourceKind int

const (
	sourceTimeout sourceKind = iota
	sourceIdle
	sourceFD
)

type source struct {
	id       SourceID
	kind     sourceKind
	interval time.Duration
	timer    *time.Timer
	fn       func() bool
	fdFn     func(fd int) bool
	fd       int
	removed  atomic.Bool
}

type Loop struct {
	mu      sync.Mutex
	pending []func()
	sources map[SourceID]*source
	lastID  SourceID

	wake     chan struct{}
	quit     chan struct{}
	quitOnce sync.Once

	started atomic.Bool
	running atomic.Bool
	tid     atomic.Int64
}

func New() *Loop {
	return &Loop{
		sources: make(map[SourceID]*source),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
}

// Running reports whether Run is dispatching and Quit has not been called.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Run dispatches callbacks until Quit is called. It pins the calling
// goroutine to its OS thread for the whole run.
func (l *Loop) Run() error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.tid.Store(int64(unix.Gettid()))
	l.running.Store(true)
	defer func() {
		l.running.Store(false)
		l.tid.Store(0)
	}()

	select {
	case <-l.quit:
		return nil
	default:
	}

	logger.Debug("main loop running")
	for {
		select {
		case <-l.quit:
			logger.Debug("main loop terminated")
			return nil
		case <-l.wake:
		}

		for {
			fn := l.popPending()
			if fn == nil {
				break
			}
			fn()
			select {
			case <-l.quit:
				logger.Debug("main loop terminated")
				return nil
			default:
			}
		}
	}
}

// Quit makes Run return after the callback currently executing.
func (l *Loop) Quit() {
	l.quitOnce.Do(func() {
		l.running.Store(false)
		close(l.quit)
	})
	l.mu.Lock()
	for id, src := range l.sources {
		l.stopSource(src)
		delete(l.sources, id)
	}
	l.mu.Unlock()
}

func (l *Loop) Done() <-chan struct{} {
	return l.quit
}

func (l *Loop) popPending() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return nil
	}
	fn := l.pending[0]
	l.pending[0] = nil
	l.pending = l.pending[1:]
	return fn
}

// Post queues fn for execution on the loop. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// InLoop reports whether the caller runs on the loop thread.
func (l *Loop) InLoop() bool {
	tid := l.tid.Load()
	return tid != 0 && int64(unix.Gettid()) == tid
}

// Invoke runs fn on the loop and waits for it to finish. Called from the
// loop thread itself fn runs immediately.
func (l *Loop) Invoke(fn func()) error {
	if l.InLoop() {
		fn()
		return nil
	}
	select {
	case <-l.quit:
		return ErrNotRunning
	default:
	}

	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-l.quit:
		// it may still have run right before quitting
		select {
		case <-done:
			return nil
		default:
			return ErrNotRunning
		}
	}
}

func (l *Loop) addSource(src *source) SourceID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastID++
	if l.lastID == 0 {
		l.lastID++
	}
	src.id = l.lastID
	l.sources[src.id] = src
	return src.id
}

func (l *Loop) lookup(id SourceID) *source {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sources[id]
}

func (l *Loop) stopSource(src *source) {
	src.removed.Store(true)
	if src.timer != nil {
		src.timer.Stop()
	}
}

// SourceRemove cancels a timeout, idle or fd source. Unknown ids are
// ignored.
func (l *Loop) SourceRemove(id SourceID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	src, ok := l.sources[id]
	if !ok {
		return false
	}
	l.stopSource(src)
	delete(l.sources, id)
	return true
}

// TimeoutAdd calls fn after d on the loop and again every d while fn
// returns true.
func (l *Loop) TimeoutAdd(d time.Duration, fn func() bool) SourceID {
	src := &source{kind: sourceTimeout, interval: d, fn: fn}
	id := l.addSource(src)
	l.mu.Lock()
	src.timer = time.AfterFunc(d, func() {
		l.Post(func() { l.dispatchTimeout(id) })
	})
	l.mu.Unlock()
	return id
}

func (l *Loop) dispatchTimeout(id SourceID) {
	src := l.lookup(id)
	if src == nil || src.removed.Load() {
		return
	}
	if src.fn() {
		l.mu.Lock()
		if !src.removed.Load() {
			src.timer.Reset(src.interval)
		}
		l.mu.Unlock()
		return
	}
	l.SourceRemove(id)
}

// IdleAdd calls fn on the next loop iteration, repeatedly while it
// returns true.
func (l *Loop) IdleAdd(fn func() bool) SourceID {
	src := &source{kind: sourceIdle, fn: fn}
	id := l.addSource(src)
	l.Post(func() { l.dispatchIdle(id) })
	return id
}

func (l *Loop) dispatchIdle(id SourceID) {
	src := l.lookup(id)
	if src == nil || src.removed.Load() {
		return
	}
	if src.fn() {
		l.Post(func() { l.dispatchIdle(id) })
		return
	}
	l.SourceRemove(id)
}

const fdPollTimeoutMs = 250

// WatchFD calls fn on the loop whenever fd becomes readable, until fn
// returns false or the source is removed. fn is expected to consume the
// pending input before returning.
func (l *Loop) WatchFD(fd int, fn func(fd int) bool) SourceID {
	src := &source{kind: sourceFD, fd: fd, fdFn: fn}
	id := l.addSource(src)
	go l.pollFD(src)
	return id
}

func (l *Loop) pollFD(src *source) {
	fds := []unix.PollFd{{Fd: int32(src.fd), Events: unix.POLLIN}}
	for !src.removed.Load() {
		fds[0].Revents = 0
		n, err := unix.Poll(fds, fdPollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			logger.Warningf("poll fd %d: %v", src.fd, err)
			l.SourceRemove(src.id)
			return
		}
		if n == 0 || src.removed.Load() {
			continue
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			logger.Warningf("fd %d: poll revents %#x", src.fd, fds[0].Revents)
		}

		done := make(chan struct{})
		l.Post(func() {
			defer close(done)
			if src.removed.Load() {
				return
			}
			if !src.fdFn(src.fd) {
				l.SourceRemove(src.id)
			}
		})
		select {
		case <-done:
		case <-l.quit:
			return
		}
	}
}
