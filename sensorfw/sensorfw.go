// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sensorfw is the boundary to the ambient light and proximity
// sensors. Readings come from IIO sysfs attributes polled on the main loop
// and are handed to the registered notify callbacks when they change.
package sensorfw

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/linuxdeepin/go-lib/utils"
	"github.com/linuxdeepin/mce-daemon/config"
	"github.com/linuxdeepin/mce-daemon/mainloop"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("mce/sensorfw")

func SetLogLevel(pri log.Priority) {
	logger.SetLogLevel(pri)
}

const (
	DefaultIIORoot      = "/sys/bus/iio/devices"
	DefaultPollInterval = time.Second
	DefaultPSThreshold  = 100

	configGroup = "Sensors"
)

var alsAttributes = []string{"in_illuminance_input", "in_illuminance_raw"}
var psAttributes = []string{"in_proximity_raw", "in_proximity_input"}

// DiscoverIIO returns the first attribute file found in the devices under
// root, trying attrs in order for each device.
func DiscoverIIO(root string, attrs ...string) string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		for _, attr := range attrs {
			path := filepath.Join(root, name, attr)
			if utils.IsFileExist(path) {
				return path
			}
		}
	}
	return ""
}

func readValue(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, xerrors.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

type sensor struct {
	name    string
	path    string
	enabled bool
	timer   mainloop.SourceID
	last    int
	read    func() (int, bool)
	notify  func(v int)
}

type Sensorfw struct {
	loop        *mainloop.Loop
	interval    time.Duration
	psThreshold int

	als *sensor
	ps  *sensor

	alsNotify func(lux uint)
	psNotify  func(covered bool)
}

// New configures the sensors from the [Sensors] group: ALSPath, PSPath,
// PSThreshold and PollInterval in milliseconds. Missing paths are looked
// up under the IIO device tree.
func New(loop *mainloop.Loop, cfg *config.Config) *Sensorfw {
	if cfg == nil {
		cfg = config.Empty()
	}
	iioRoot := cfg.GetString(configGroup, "IIORoot", DefaultIIORoot)
	s := &Sensorfw{
		loop:        loop,
		interval:    time.Duration(cfg.GetInt(configGroup, "PollInterval", int(DefaultPollInterval/time.Millisecond))) * time.Millisecond,
		psThreshold: cfg.GetInt(configGroup, "PSThreshold", DefaultPSThreshold),
	}
	if s.interval <= 0 {
		s.interval = DefaultPollInterval
	}

	s.als = &sensor{
		name: "als",
		path: cfg.GetString(configGroup, "ALSPath", DiscoverIIO(iioRoot, alsAttributes...)),
		last: -1,
	}
	s.als.read = func() (int, bool) {
		return s.sample(s.als)
	}
	s.als.notify = func(v int) {
		if s.alsNotify != nil {
			s.alsNotify(uint(v))
		}
	}

	s.ps = &sensor{
		name: "ps",
		path: cfg.GetString(configGroup, "PSPath", DiscoverIIO(iioRoot, psAttributes...)),
		last: -1,
	}
	s.ps.read = func() (int, bool) {
		raw, ok := s.sample(s.ps)
		if !ok {
			return 0, false
		}
		if raw >= s.psThreshold {
			return 1, true
		}
		return 0, true
	}
	s.ps.notify = func(v int) {
		if s.psNotify != nil {
			s.psNotify(v != 0)
		}
	}

	logger.Debugf("als %q, ps %q, poll every %s", s.als.path, s.ps.path, s.interval)
	return s
}

func (s *Sensorfw) sample(sn *sensor) (int, bool) {
	if sn.path == "" {
		return 0, false
	}
	v, err := readValue(sn.path)
	if err != nil {
		logger.Warningf("%s: %v", sn.name, err)
		return 0, false
	}
	if v < 0 {
		v = 0
	}
	return v, true
}

func (s *Sensorfw) HasALS() bool {
	return s.als.path != ""
}

func (s *Sensorfw) HasPS() bool {
	return s.ps.path != ""
}

func (s *Sensorfw) SetALSNotify(fn func(lux uint)) {
	s.alsNotify = fn
}

func (s *Sensorfw) SetPSNotify(fn func(covered bool)) {
	s.psNotify = fn
}

func (s *Sensorfw) poll(sn *sensor) {
	v, ok := sn.read()
	if !ok || v == sn.last {
		return
	}
	sn.last = v
	logger.Debugf("%s: %d", sn.name, v)
	sn.notify(v)
}

func (s *Sensorfw) enable(sn *sensor) {
	if sn.enabled {
		return
	}
	if sn.path == "" {
		logger.Debugf("%s: no sensor", sn.name)
		return
	}
	sn.enabled = true
	// report the current value right away, consumers may be waiting
	sn.last = -1
	s.poll(sn)
	if s.loop != nil {
		sn.timer = s.loop.TimeoutAdd(s.interval, func() bool {
			s.poll(sn)
			return true
		})
	}
}

func (s *Sensorfw) disable(sn *sensor) {
	if !sn.enabled {
		return
	}
	sn.enabled = false
	if sn.timer != 0 && s.loop != nil {
		s.loop.SourceRemove(sn.timer)
	}
	sn.timer = 0
}

func (s *Sensorfw) ALSEnable()  { s.enable(s.als) }
func (s *Sensorfw) ALSDisable() { s.disable(s.als) }
func (s *Sensorfw) PSEnable()   { s.enable(s.ps) }
func (s *Sensorfw) PSDisable()  { s.disable(s.ps) }

func (s *Sensorfw) ALSEnabled() bool {
	return s.als.enabled
}

func (s *Sensorfw) PSEnabled() bool {
	return s.ps.enabled
}

// Quit stops polling and forgets the callbacks.
func (s *Sensorfw) Quit() {
	s.ALSDisable()
	s.PSDisable()
	s.alsNotify = nil
	s.psNotify = nil
}
