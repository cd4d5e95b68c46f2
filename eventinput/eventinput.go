// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package eventinput reads the evdev devices, forwards key and touch events
// to the keypress and touchscreen pipes and keeps device_inactive up to
// date.
package eventinput

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/linuxdeepin/go-lib/log"
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/mainloop"
	"github.com/linuxdeepin/mce-daemon/mce"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("mce/eventinput")

func SetLogLevel(pri log.Priority) {
	logger.SetLogLevel(pri)
}

const DefaultDir = "/dev/input"

// evdev event types
const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03
)

const readBatch = 64

type device struct {
	path  string
	fd    int
	watch mainloop.SourceID
}

type Monitor struct {
	ctx   *mce.Context
	sched mainloop.Scheduler
	dir   string

	devices         map[int]*device
	trigger         dp.Handle
	attached        bool
	inactivityTimer mainloop.SourceID
}

func NewMonitor(ctx *mce.Context, dir string) *Monitor {
	m := &Monitor{
		ctx:     ctx,
		dir:     dir,
		devices: make(map[int]*device),
	}
	if ctx.Loop != nil {
		m.sched = ctx.Loop
	}
	return m
}

// Start opens every event device and arms the inactivity timer. Must run
// on the main loop.
func (m *Monitor) Start() error {
	if m.ctx.Loop == nil {
		return xerrors.New("event input needs a main loop")
	}
	m.attach()
	paths, err := filepath.Glob(filepath.Join(m.dir, "event*"))
	if err != nil {
		return xerrors.Errorf("scan %s: %w", m.dir, err)
	}
	sort.Strings(paths)
	for _, path := range paths {
		fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			logger.Warningf("open %s: %v", path, err)
			continue
		}
		m.addDevice(path, fd)
	}
	logger.Infof("monitoring %d input devices", len(m.devices))
	return nil
}

func (m *Monitor) attach() {
	if m.attached {
		return
	}
	m.attached = true
	m.trigger = m.ctx.Pipe(mce.PipeInactivityTimeout).AddTrigger(func(dp.Payload) {
		m.rearm()
	})
	m.rearm()
}

func (m *Monitor) addDevice(path string, fd int) {
	dev := &device{path: path, fd: fd}
	m.devices[fd] = dev
	dev.watch = m.ctx.Loop.WatchFD(fd, m.readEvents)
	logger.Debug("input device", path)
}

func (m *Monitor) closeDevice(dev *device) {
	delete(m.devices, dev.fd)
	m.ctx.Loop.SourceRemove(dev.watch)
	_ = unix.Close(dev.fd)
}

func (m *Monitor) readEvents(fd int) bool {
	dev := m.devices[fd]
	if dev == nil {
		return false
	}
	buf := make([]byte, mce.InputEventSize*readBatch)
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return true
		}
		if err != nil || n <= 0 {
			logger.Infof("input device %s gone: %v", dev.path, err)
			m.closeDevice(dev)
			return false
		}
		m.handle(buf[:n])
		if n < len(buf) {
			return true
		}
	}
}

// handle dispatches a batch of raw events. Touch input only counts as
// activity while the display is lit.
func (m *Monitor) handle(buf []byte) {
	active := false
	for len(buf) >= mce.InputEventSize {
		ev, err := mce.UnmarshalInputEvent(buf[:mce.InputEventSize])
		buf = buf[mce.InputEventSize:]
		if err != nil {
			logger.Warning(err)
			continue
		}

		switch ev.Type {
		case evKey:
			m.forward(mce.PipeKeypress, ev)
			active = true
		case evAbs, evRel:
			m.forward(mce.PipeTouchscreen, ev)
			switch m.ctx.DisplayState() {
			case mce.DisplayOn, mce.DisplayDim:
				active = true
			}
		case evSyn:
		default:
			logger.Debugf("ignoring event type %#x", ev.Type)
		}
	}
	if len(buf) != 0 {
		logger.Warningf("dropped %d trailing bytes", len(buf))
	}
	if active {
		m.activity()
	}
}

func (m *Monitor) forward(pipe string, ev mce.InputEvent) {
	in := dp.Blob(ev.Marshal())
	m.ctx.Pipe(pipe).Execute(&in, dp.UseIndata, dp.DontCacheIndata)
}

func (m *Monitor) setInactive(inactive bool) {
	in := dp.Bool(inactive)
	m.ctx.Pipe(mce.PipeDeviceInactive).Execute(&in, dp.UseIndata, dp.CacheIndata)
}

func (m *Monitor) activity() {
	m.rearm()
	m.setInactive(false)
}

// rearm restarts the countdown to device_inactive from inactivity_timeout
// seconds.
func (m *Monitor) rearm() {
	m.cancelTimer()
	secs := m.ctx.Pipe(mce.PipeInactivityTimeout).Int()
	if m.sched == nil || secs <= 0 {
		return
	}
	m.inactivityTimer = m.sched.TimeoutAdd(time.Duration(secs)*time.Second, func() bool {
		m.inactivityTimer = 0
		if !m.ctx.Pipe(mce.PipeDeviceInactive).Cached().AsBool() {
			logger.Debug("device inactive")
			m.setInactive(true)
		}
		return false
	})
}

func (m *Monitor) cancelTimer() {
	if m.inactivityTimer != 0 && m.sched != nil {
		m.sched.SourceRemove(m.inactivityTimer)
	}
	m.inactivityTimer = 0
}

// Stop closes the devices and the timer. Must run on the main loop.
func (m *Monitor) Stop() {
	for _, dev := range m.devices {
		m.closeDevice(dev)
	}
	m.cancelTimer()
	if m.attached {
		if pipe := m.ctx.Pipe(mce.PipeInactivityTimeout); !pipe.Destroyed() {
			pipe.RemoveTrigger(m.trigger)
		}
		m.attached = false
	}
}

// Devices lists the open device nodes.
func (m *Monitor) Devices() []string {
	paths := make([]string, 0, len(m.devices))
	for _, dev := range m.devices {
		paths = append(paths, dev.path)
	}
	sort.Strings(paths)
	return paths
}
