// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package display

import (
	"time"

	"github.com/linuxdeepin/mce-daemon/mainloop"
	"github.com/linuxdeepin/mce-daemon/mce"
)

func (m *Module) lpmEnabled() bool {
	return m.lowPowerMode && m.lpmSupported
}

// startTimer arms a one shot request for state after d.
func (m *Module) startTimer(id *mainloop.SourceID, d time.Duration, state mce.DisplayState) {
	m.cancelTimer(id)
	if m.sched == nil {
		return
	}
	*id = m.sched.TimeoutAdd(d, func() bool {
		*id = 0
		logger.Debugf("timeout, requesting %v", state)
		m.request(state)
		return false
	})
}

func (m *Module) cancelTimer(id *mainloop.SourceID) {
	if *id == 0 {
		return
	}
	if m.sched != nil {
		m.sched.SourceRemove(*id)
	}
	*id = 0
}

// cancelTimers stops the dim, lpm and blank timers. The lpm proximity
// timer has its own lifetime.
func (m *Module) cancelTimers() {
	m.cancelTimer(&m.dimTimer)
	m.cancelTimer(&m.lpmTimer)
	m.cancelTimer(&m.blankTimer)
}

func (m *Module) updateTimers(state mce.DisplayState) {
	m.cancelTimer(&m.lpmProximityTimer)

	switch state {
	case mce.DisplayOff, mce.DisplayLPMOff, mce.DisplayUndef:
		m.cancelTimers()

	case mce.DisplayLPMOn:
		m.setupBlankTimeout()
		if mce.CoverState(m.ctx.Pipe(mce.PipeProximitySensor).Int()) == mce.CoverClosed {
			m.setupLPMProximityBlankTimeout()
		}

	case mce.DisplayDim:
		m.setupLPMTimeout()

	case mce.DisplayOn:
		m.setupDimTimeout()

	default:
		logger.Warning("skip blank/dim timers in transition")
	}
}

func (m *Module) setupDimTimeout() {
	m.cancelTimers()

	if m.ctx.DisplayState() != mce.DisplayOn {
		logger.Debug("dim timer skipped; display not on")
		return
	}
	if m.ctx.Submode()&mce.SubmodeTklock != 0 {
		logger.Debug("dim timer skipped; tklock submode")
		return
	}
	logger.Debugf("dim timer @ %s", m.dimTimeout)
	m.startTimer(&m.dimTimer, m.dimTimeout, mce.DisplayDim)
}

func (m *Module) setupLPMTimeout() {
	m.cancelTimers()
	if !m.lpmEnabled() {
		m.setupBlankTimeout()
		return
	}
	m.startTimer(&m.lpmTimer, m.lpmTimeout, mce.DisplayLPMOn)
}

func (m *Module) setupBlankTimeout() {
	m.cancelTimers()

	timeout, state := m.blankTimeout, mce.DisplayOff
	if m.lpmEnabled() {
		timeout, state = m.lpmBlankTimeout, mce.DisplayLPMOff
	}
	// zero disables blanking
	if timeout == 0 {
		return
	}
	m.startTimer(&m.blankTimer, timeout, state)
}

// setupLPMProximityBlankTimeout blanks a covered low power display, at
// once when a call is on the handset.
func (m *Module) setupLPMProximityBlankTimeout() {
	if !m.lpmSupported {
		return
	}
	timeout := m.lpmProximityBlankTimeout
	route := mce.AudioRoute(m.ctx.Pipe(mce.PipeAudioRoute).Int())
	call := mce.CallState(m.ctx.Pipe(mce.PipeCallState).Int())
	if route == mce.AudioRouteHandset && (call == mce.CallStateRinging || call == mce.CallStateActive) {
		timeout = 0
	}
	m.startTimer(&m.lpmProximityTimer, timeout, mce.DisplayLPMOff)
}
