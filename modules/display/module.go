// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package display owns the display state and the panel backlight.
package display

import (
	"time"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/linuxdeepin/mce-daemon/backlight"
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/loader"
	"github.com/linuxdeepin/mce-daemon/mainloop"
	"github.com/linuxdeepin/mce-daemon/mce"
	"github.com/linuxdeepin/mce-daemon/wakelock"
)

const (
	ModuleName = "display"

	configGroup = "Display"

	// DefaultDimBrightness is the dimmed level in percent of the maximum.
	DefaultDimBrightness = 10

	// timeouts in seconds
	DefaultDimTimeout               = 30
	DefaultBlankTimeout             = 3
	DefaultLPMBlankTimeout          = 5
	DefaultLPMProximityBlankTimeout = 5

	displayOnWakelock = "mce_display_on"
)

var logger = log.NewLogger("mce/" + ModuleName)

func init() {
	loader.Register(NewModule())
}

type Module struct {
	*loader.ModuleBase
	ctx *mce.Context

	writer        *backlight.Writer
	maxBrightness int

	neverBlank   bool
	lowPowerMode bool
	lpmSupported bool
	dimPercent   int

	cachedState mce.DisplayState
	systemState mce.SystemState

	cachedBrightness int // last value written
	setBrightness    int // level used when the display is on
	holdingWakelock  bool

	sched                    mainloop.Scheduler
	dimTimeout               time.Duration
	blankTimeout             time.Duration
	lpmTimeout               time.Duration
	lpmBlankTimeout          time.Duration
	lpmProximityBlankTimeout time.Duration

	dimTimer          mainloop.SourceID
	lpmTimer          mainloop.SourceID
	blankTimer        mainloop.SourceID
	lpmProximityTimer mainloop.SourceID
}

func NewModule() *Module {
	m := &Module{}
	m.ModuleBase = loader.NewModuleBase(loader.Meta{
		Name:     ModuleName,
		Provides: []string{"display"},
		Priority: 250,
	}, logger)
	return m
}

func (m *Module) loadConfig(ctx *mce.Context) {
	cfg := ctx.Config
	m.neverBlank = cfg.GetBool(configGroup, "NeverBlank", false)
	m.lowPowerMode = cfg.GetBool(configGroup, "LowPowerMode", false)
	m.lpmSupported = cfg.GetBool(configGroup, "LowPowerModeSupported", false)
	m.dimPercent = cfg.GetInt(configGroup, "DimBrightness", DefaultDimBrightness)

	seconds := func(key string, def int) time.Duration {
		v := cfg.GetInt(configGroup, key, def)
		if v < 0 {
			v = def
		}
		return time.Duration(v) * time.Second
	}
	m.dimTimeout = seconds("DimTimeout", DefaultDimTimeout)
	m.blankTimeout = seconds("BlankTimeout", DefaultBlankTimeout)
	m.lpmTimeout = seconds("LPMTimeout", int(m.blankTimeout/time.Second))
	m.lpmBlankTimeout = seconds("LPMBlankTimeout", DefaultLPMBlankTimeout)
	m.lpmProximityBlankTimeout = seconds("LPMProximityBlankTimeout", DefaultLPMProximityBlankTimeout)

	m.writer = nil
	m.maxBrightness = 0
	dir := cfg.GetString(configGroup, "BrightnessPath", "")
	if dir == "" {
		var err error
		dir, err = backlight.Discover(cfg.GetString(configGroup, "SysfsRoot", backlight.DefaultSysfsRoot), backlight.DisplayBacklight)
		if err != nil {
			logger.Warning("no backlight control:", err)
			return
		}
	}
	w := backlight.NewWriter(dir)
	if p := cfg.GetString(configGroup, "MaxBrightnessPath", ""); p != "" {
		w.MaxPath = p
	}
	max, err := w.Max()
	if err != nil {
		logger.Warning("no backlight control:", err)
		return
	}
	m.writer = w
	m.maxBrightness = max
	logger.Infof("backlight %s, max %d", w.BrightnessPath, max)
}

func (m *Module) writeBrightness(v int) {
	if m.writer == nil {
		return
	}
	if err := m.writer.Set(v); err != nil {
		logger.Warning(err)
	}
}

func (m *Module) dimBrightness() int {
	dim := m.maxBrightness * m.dimPercent / 100
	if dim < 1 {
		dim = 1
	}
	if m.setBrightness > 0 && dim > m.setBrightness {
		dim = m.setBrightness
	}
	return dim
}

// stateFilter applies the display state policy to a request.
func (m *Module) stateFilter(p dp.Payload) dp.Payload {
	state := mce.DisplayState(p.Int)
	systemState := m.ctx.SystemState()
	submode := m.ctx.Submode()

	switch {
	case m.neverBlank:
		state = mce.DisplayOn

	case (m.cachedState == mce.DisplayUndef ||
		m.cachedState == mce.DisplayOff ||
		m.cachedState == mce.DisplayLPMOff) &&
		state != mce.DisplayLPMOff && state != mce.DisplayOff &&
		(systemState == mce.SystemUndef ||
			(submode&mce.SubmodeTransition != 0 &&
				(systemState == mce.SystemShutdown || systemState == mce.SystemReboot))):
		logger.Debugf("ignoring display state request %v due to shutdown/reboot", state)
		state = m.cachedState

	case !m.lowPowerMode || !m.lpmSupported:
		if state == mce.DisplayLPMOff || state == mce.DisplayLPMOn {
			state = mce.DisplayOff
		}

	default:
		if state == mce.DisplayOff && systemState == mce.SystemUser {
			state = mce.DisplayLPMOn
		}
	}

	m.cachedState = state
	return dp.Int(int(state))
}

func (m *Module) stateReqTrigger(p dp.Payload) {
	state := mce.DisplayState(p.Int)
	if state == mce.DisplayUndef || state == m.ctx.DisplayState() {
		return
	}
	in := dp.Int(int(state))
	m.ctx.Pipe(mce.PipeDisplayState).Execute(&in, dp.UseIndata, dp.CacheIndata)
}

func (m *Module) stateTrigger(p dp.Payload) {
	state := mce.DisplayState(p.Int)
	logger.Info("display state:", state)
	m.updateTimers(state)

	switch state {
	case mce.DisplayOff, mce.DisplayLPMOff, mce.DisplayLPMOn:
		m.cachedBrightness = 0
		m.writeBrightness(0)

	case mce.DisplayDim:
		dim := m.dimBrightness()
		m.cachedBrightness = dim
		m.writeBrightness(dim)

	case mce.DisplayOn:
		if m.setBrightness > 0 {
			m.cachedBrightness = m.setBrightness
			m.writeBrightness(m.setBrightness)
		}
		m.refilterBrightness()
	}

	switch state {
	case mce.DisplayOn, mce.DisplayDim:
		if !m.holdingWakelock {
			wakelock.Lock(displayOnWakelock, -1)
			m.holdingWakelock = true
		}
	default:
		m.releaseWakelock()
	}
}

// refilterBrightness picks up setting changes made while the display was
// dark. Other display_state triggers may not have run yet, so on a live
// loop it is done after the current dispatch.
func (m *Module) refilterBrightness() {
	ctx := m.ctx
	run := func() {
		if m.ctx != ctx {
			return
		}
		ctx.Refilter(mce.PipeDisplayBrightness)
	}
	if ctx.Loop != nil && ctx.Loop.Running() {
		ctx.Loop.Post(run)
		return
	}
	run()
}

func (m *Module) releaseWakelock() {
	if m.holdingWakelock {
		wakelock.Unlock(displayOnWakelock)
		m.holdingWakelock = false
	}
}

// brightnessTrigger receives the filtered brightness percentage.
func (m *Module) brightnessTrigger(p dp.Payload) {
	percent := p.Int
	// a choked pipe
	if percent <= 0 {
		return
	}
	v := m.maxBrightness * percent / 100
	if v == m.cachedBrightness && m.cachedBrightness != -1 {
		return
	}
	m.setBrightness = v

	switch state := m.ctx.DisplayState(); state {
	case mce.DisplayPowerUp, mce.DisplayPowerDown:
		logger.Warning("brightness change ignored while in transition")
	case mce.DisplayOn:
		m.cachedBrightness = v
		m.writeBrightness(v)
	}
}

func (m *Module) request(state mce.DisplayState) {
	in := dp.Int(int(state))
	m.ctx.Pipe(mce.PipeDisplayStateReq).Execute(&in, dp.UseIndata, dp.CacheIndata)
}

func (m *Module) systemStateTrigger(p dp.Payload) {
	m.systemState = mce.SystemState(p.Int)
	switch m.systemState {
	case mce.SystemUser, mce.SystemActDead:
		m.request(mce.DisplayOn)
	}
}

// deviceInactiveTrigger unblanks on activity and restarts the dim timer,
// which the request alone would not do when the display is already on.
func (m *Module) deviceInactiveTrigger(p dp.Payload) {
	if p.AsBool() {
		return
	}
	m.setupDimTimeout()
	if m.ctx.DisplayState() != mce.DisplayOn {
		logger.Info("display on due to activity")
	}
	m.request(mce.DisplayOn)
}

func (m *Module) proximityTrigger(p dp.Payload) {
	state := m.ctx.DisplayState()
	if state == mce.DisplayLPMOn && mce.CoverState(p.Int) == mce.CoverClosed {
		m.setupLPMProximityBlankTimeout()
		return
	}
	m.cancelTimer(&m.lpmProximityTimer)
	if state == mce.DisplayLPMOff {
		m.request(mce.DisplayLPMOn)
	}
}

func (m *Module) publishInactivityTimeout() {
	in := dp.Int(int((m.dimTimeout + m.blankTimeout) / time.Second))
	m.ctx.Pipe(mce.PipeInactivityTimeout).Execute(&in, dp.UseIndata, dp.CacheIndata)
}

func (m *Module) Register(ctx *mce.Context) error {
	m.ctx = ctx
	m.cachedState = mce.DisplayUndef
	m.systemState = ctx.SystemState()
	m.cachedBrightness = -1
	m.setBrightness = -1
	if m.sched == nil && ctx.Loop != nil {
		m.sched = ctx.Loop
	}
	m.loadConfig(ctx)

	m.AddFilter(ctx.Pipe(mce.PipeDisplayStateReq), m.stateFilter)
	m.AddTrigger(ctx.Pipe(mce.PipeDisplayStateReq), m.stateReqTrigger)
	m.AddTrigger(ctx.Pipe(mce.PipeDisplayState), m.stateTrigger)
	m.AddTrigger(ctx.Pipe(mce.PipeDisplayBrightness), m.brightnessTrigger)
	m.AddTrigger(ctx.Pipe(mce.PipeSystemState), m.systemStateTrigger)
	m.AddTrigger(ctx.Pipe(mce.PipeDeviceInactive), m.deviceInactiveTrigger)
	m.AddTrigger(ctx.Pipe(mce.PipeProximitySensor), m.proximityTrigger)

	m.publishInactivityTimeout()
	// pick up the current setting
	ctx.Refilter(mce.PipeDisplayBrightness)
	return nil
}

func (m *Module) Unregister(ctx *mce.Context) {
	m.Detach()
	m.cancelTimers()
	m.cancelTimer(&m.lpmProximityTimer)
	m.releaseWakelock()
	m.ctx = nil
}

func (m *Module) ReloadConfig(ctx *mce.Context) {
	m.loadConfig(ctx)
	m.cachedBrightness = -1
	m.publishInactivityTimeout()
	m.updateTimers(ctx.DisplayState())
	ctx.Refilter(mce.PipeDisplayBrightness)
}

// MaxBrightness is the hardware maximum, zero without a backlight.
func (m *Module) MaxBrightness() int {
	return m.maxBrightness
}
