// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package filterbrightnessals scales display, led and keypad brightness by
// the ambient light level.
package filterbrightnessals

import (
	"sort"

	"github.com/linuxdeepin/go-lib/log"
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/loader"
	"github.com/linuxdeepin/mce-daemon/mce"
	"github.com/linuxdeepin/mce-daemon/modules/filterbrightnesssimple"
	"github.com/linuxdeepin/mce-daemon/sensorfw"
)

const (
	ModuleName = "filter-brightness-als"

	defaultLedScale = 40
	defaultKeyScale = 100
)

var logger = log.NewLogger("mce/" + ModuleName)

func init() {
	loader.Register(NewModule())
}

type Module struct {
	*loader.ModuleBase

	sensors *sensorfw.Sensorfw
	ctx     *mce.Context

	useALS       bool
	displayState mce.DisplayState
	luxLatest    int
	enabled      bool
	enablers     map[string]bool

	display *ramp
	led     *ramp
	key     *ramp
}

func NewModule() *Module {
	m := &Module{}
	m.ModuleBase = loader.NewModuleBase(loader.Meta{
		Name: ModuleName,
		Provides: []string{
			"display-brightness-filter",
			"led-brightness-filter",
			"key-backlight-filter",
		},
		Enhances: []string{
			"display-brightness",
			"led-brightness",
			"key-backlight",
		},
		Priority: 250,
	}, logger)
	m.reset()
	return m
}

func (m *Module) reset() {
	m.displayState = mce.DisplayUndef
	m.luxLatest = -1
	m.enabled = false
	m.enablers = make(map[string]bool)
	m.display = newRamp("Display", ProfileMinimum, ProfileEconomy, ProfileNormal, ProfileBright, ProfileMaximum)
	m.led = newRamp("Led", ProfileNormal)
	m.key = newRamp("Keypad", ProfileNormal)
}

func (m *Module) loadConfig(ctx *mce.Context) {
	m.useALS = ctx.Config.GetBool("ALS", "Enabled", true)
	for _, r := range []*ramp{m.display, m.led, m.key} {
		for _, w := range r.load(ctx.Config) {
			logger.Warning(w)
		}
	}
}

func (m *Module) haveALS() bool {
	return m.sensors != nil && m.sensors.HasALS()
}

func (m *Module) runPipes() {
	if m.ctx == nil {
		return
	}
	for _, name := range []string{mce.PipeDisplayBrightness, mce.PipeLedBrightness, mce.PipeKeyBacklight} {
		m.ctx.Refilter(name)
	}
}

func (m *Module) luxChanged(lux uint) {
	m.luxLatest = int(lux)
	logger.Debug("lux =", lux)
	m.runPipes()
	in := dp.Int(int(lux))
	m.ctx.Pipe(mce.PipeAmbientLight).Execute(&in, dp.UseIndata, dp.CacheIndata)
}

// rethink enables the sensor while the display is visible or somebody
// asked for it over D-Bus.
func (m *Module) rethink() {
	if !m.haveALS() {
		return
	}

	wantData := false
	if m.useALS {
		switch m.displayState {
		case mce.DisplayOn, mce.DisplayDim:
			wantData = true
		}
	}
	enable := wantData || len(m.enablers) > 0
	logger.Debugf("use=%v, want=%v ext=%d -> enable=%v", m.useALS, wantData, len(m.enablers), enable)

	if wantData {
		m.sensors.SetALSNotify(m.luxChanged)
	} else {
		m.sensors.SetALSNotify(nil)
	}

	if enable == m.enabled {
		return
	}
	m.enabled = enable

	if enable {
		m.sensors.ALSEnable()
	} else {
		m.sensors.ALSDisable()
		// the next reading must not be judged against stale thresholds
		m.display.clearThreshold()
		m.led.clearThreshold()
		m.key.clearThreshold()
	}
	m.runPipes()
}

func (m *Module) displayFilter(p dp.Payload) dp.Payload {
	setting := p.Int
	if setting < filterbrightnesssimple.BrightnessMinimum {
		setting = filterbrightnesssimple.BrightnessMinimum
	} else if setting > filterbrightnesssimple.BrightnessMaximum {
		setting = filterbrightnesssimple.BrightnessMaximum
	}
	brightness := filterbrightnesssimple.Percent(setting)
	if m.useALS && m.luxLatest >= 0 {
		brightness = m.display.run(Profile(setting-1), m.luxLatest)
	}
	logger.Debugf("in=%d -> out=%d", setting, brightness)
	return dp.Int(brightness)
}

func (m *Module) ledFilter(p dp.Payload) dp.Payload {
	scale := defaultLedScale
	if m.luxLatest >= 0 {
		scale = m.led.run(ProfileNormal, m.luxLatest)
	}
	return dp.Int(p.Int * scale / 100)
}

func (m *Module) keyFilter(p dp.Payload) dp.Payload {
	scale := defaultKeyScale
	if m.luxLatest >= 0 {
		scale = m.key.run(ProfileNormal, m.luxLatest)
	}
	return dp.Int(p.Int * scale / 100)
}

func (m *Module) displayStateTrigger(p dp.Payload) {
	state := mce.DisplayState(p.Int)
	if state == m.displayState {
		return
	}
	logger.Debugf("display: %v -> %v", m.displayState, state)
	m.displayState = state
	m.rethink()
}

func (m *Module) Register(ctx *mce.Context) error {
	m.reset()
	m.ctx = ctx
	if m.sensors == nil {
		m.sensors = sensorfw.Default()
	}
	if !m.haveALS() {
		logger.Info("no ambient light sensor, using fixed levels")
	}
	m.loadConfig(ctx)

	m.AddFilter(ctx.Pipe(mce.PipeDisplayBrightness), m.displayFilter)
	m.AddFilter(ctx.Pipe(mce.PipeLedBrightness), m.ledFilter)
	m.AddFilter(ctx.Pipe(mce.PipeKeyBacklight), m.keyFilter)
	m.AddTrigger(ctx.Pipe(mce.PipeDisplayState), m.displayStateTrigger)

	m.displayStateTrigger(ctx.Pipe(mce.PipeDisplayState).Cached())
	m.runPipes()
	return nil
}

func (m *Module) Unregister(ctx *mce.Context) {
	m.Detach()
	if m.sensors != nil {
		m.sensors.SetALSNotify(nil)
		if m.enabled {
			m.sensors.ALSDisable()
		}
	}
	m.enabled = false
	m.ctx = nil
}

// ReloadConfig re-reads the ramps and re-filters the brightness pipes.
func (m *Module) ReloadConfig(ctx *mce.Context) {
	m.loadConfig(ctx)
	m.rethink()
	m.runPipes()
}

// RequestALSEnable keeps the sensor powered on behalf of a D-Bus client
// until it disables it again or leaves the bus.
func (m *Module) RequestALSEnable(sender string) {
	if m.enablers[sender] {
		return
	}
	m.enablers[sender] = true
	logger.Debugf("als enabled by %s", sender)
	m.rethink()
}

func (m *Module) RequestALSDisable(sender string) {
	if !m.enablers[sender] {
		return
	}
	delete(m.enablers, sender)
	logger.Debugf("als disabled by %s", sender)
	m.rethink()
}

// DropALSRequests forgets a client that left the bus.
func (m *Module) DropALSRequests(sender string) {
	m.RequestALSDisable(sender)
}

func (m *Module) ALSEnablers() []string {
	names := make([]string, 0, len(m.enablers))
	for name := range m.enablers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
