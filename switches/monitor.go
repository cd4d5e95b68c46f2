// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package switches turns kernel uevents for power supplies and switches
// into charger, battery and cover pipe updates.
package switches

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/linuxdeepin/go-lib/log"
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/mce"
	"github.com/pilebones/go-udev/netlink"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("mce/switches")

func SetLogLevel(pri log.Priority) {
	logger.SetLogLevel(pri)
}

const DefaultSysfsRoot = "/sys/class"

type Monitor struct {
	ctx       *mce.Context
	sysfsRoot string

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func NewMonitor(ctx *mce.Context) *Monitor {
	return &Monitor{
		ctx:       ctx,
		sysfsRoot: DefaultSysfsRoot,
	}
}

// Apply pushes updates into their pipes. Must run on the main loop.
func (m *Monitor) Apply(updates []Update) {
	for _, u := range updates {
		p := m.ctx.Pipes.Lookup(u.Pipe)
		if p == nil {
			continue
		}
		if p.Int() == u.Value {
			continue
		}
		logger.Debugf("%s: %d -> %d", u.Pipe, p.Int(), u.Value)
		in := dp.Int(u.Value)
		p.Execute(&in, dp.UseIndata, dp.CacheIndata)
	}
}

// Scan applies the current state of every power supply and switch device
// found under the sysfs class root.
func (m *Monitor) Scan() {
	var files []string
	for _, class := range []string{"power_supply", "switch", "extcon"} {
		matches, _ := filepath.Glob(filepath.Join(m.sysfsRoot, class, "*", "uevent"))
		files = append(files, matches...)
	}
	sort.Strings(files)

	for _, path := range files {
		fh, err := os.Open(path)
		if err != nil {
			logger.Debug(err)
			continue
		}
		env, err := ParseEnv(fh)
		fh.Close()
		if err != nil {
			logger.Warningf("read %s: %v", path, err)
			continue
		}
		if _, ok := env["SUBSYSTEM"]; !ok {
			env["SUBSYSTEM"] = filepath.Base(filepath.Dir(filepath.Dir(path)))
		}
		m.Apply(ParseUEvent("add", env))
	}
}

func buildMatcher() netlink.Matcher {
	action := "add|change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "power_supply|switch|extcon",
		},
	})
	return rules
}

// Start scans the current state and begins listening for kernel uevents.
// Must run on the main loop.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	m.Scan()

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.KernelEvent); err != nil {
		return xerrors.Errorf("connect uevent socket: %w", err)
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	go m.monitorLoop(conn, m.quit)
	logger.Info("uevent monitor started")
	return nil
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	_ = m.conn.Close()
	m.conn = nil
	m.running = false
	logger.Info("uevent monitor stopped")
}

func (m *Monitor) monitorLoop(conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			updates := ParseUEvent(string(uevent.Action), uevent.Env)
			if len(updates) == 0 {
				logger.Debug("ignoring uevent", uevent.KObj)
				continue
			}
			err := m.ctx.Loop.Invoke(func() {
				m.Apply(updates)
			})
			if err != nil {
				logger.Debug("drop uevent:", err)
			}
		case err := <-errs:
			logger.Warning("uevent monitor error:", err)
		}
	}
}
