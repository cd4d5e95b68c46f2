// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package proximity feeds the proximity sensor into the proximity_sensor
// pipe while something needs it: a low power display or a call.
package proximity

import (
	"github.com/linuxdeepin/go-lib/log"
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/loader"
	"github.com/linuxdeepin/mce-daemon/mce"
	"github.com/linuxdeepin/mce-daemon/sensorfw"
)

const ModuleName = "proximity"

var logger = log.NewLogger("mce/" + ModuleName)

func init() {
	loader.Register(NewModule())
}

type Module struct {
	*loader.ModuleBase

	sensors *sensorfw.Sensorfw
	ctx     *mce.Context
	enabled bool
}

func NewModule() *Module {
	m := &Module{}
	m.ModuleBase = loader.NewModuleBase(loader.Meta{
		Name:     ModuleName,
		Provides: []string{"proximity"},
		Priority: 250,
	}, logger)
	return m
}

func (m *Module) wanted() bool {
	switch m.ctx.DisplayState() {
	case mce.DisplayLPMOn, mce.DisplayLPMOff:
		return true
	}
	switch mce.CallState(m.ctx.Pipe(mce.PipeCallState).Int()) {
	case mce.CallStateRinging, mce.CallStateActive:
		return true
	}
	return false
}

func (m *Module) publish(state mce.CoverState) {
	if mce.CoverState(m.ctx.Pipe(mce.PipeProximitySensor).Int()) == state {
		return
	}
	logger.Debug("proximity:", state)
	in := dp.Int(int(state))
	m.ctx.Pipe(mce.PipeProximitySensor).Execute(&in, dp.UseIndata, dp.CacheIndata)
}

func (m *Module) notify(covered bool) {
	if covered {
		m.publish(mce.CoverClosed)
	} else {
		m.publish(mce.CoverOpen)
	}
}

func (m *Module) rethink() {
	if m.sensors == nil || !m.sensors.HasPS() {
		return
	}
	want := m.wanted()
	if want == m.enabled {
		return
	}
	m.enabled = want
	if want {
		m.sensors.PSEnable()
		return
	}
	m.sensors.PSDisable()
	// nothing watches the sensor now, do not leave a stale cover behind
	m.publish(mce.CoverOpen)
}

func (m *Module) trigger(dp.Payload) {
	m.rethink()
}

func (m *Module) Register(ctx *mce.Context) error {
	m.ctx = ctx
	m.enabled = false
	if m.sensors == nil {
		m.sensors = sensorfw.Default()
	}
	if m.sensors == nil || !m.sensors.HasPS() {
		logger.Info("no proximity sensor")
	} else {
		m.sensors.SetPSNotify(m.notify)
	}

	m.AddTrigger(ctx.Pipe(mce.PipeDisplayState), m.trigger)
	m.AddTrigger(ctx.Pipe(mce.PipeCallState), m.trigger)
	m.rethink()
	return nil
}

func (m *Module) Unregister(ctx *mce.Context) {
	m.Detach()
	if m.sensors != nil {
		m.sensors.SetPSNotify(nil)
		if m.enabled {
			m.sensors.PSDisable()
		}
	}
	m.enabled = false
	m.ctx = nil
}

// Enabled reports whether the sensor is being polled.
func (m *Module) Enabled() bool {
	return m.enabled
}
