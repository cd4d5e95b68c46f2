// SPDX-FileCopyrightText: 2018 - 2023 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mce

import (
	"strings"

	"golang.org/x/xerrors"
)

type DisplayState int

const (
	DisplayUndef DisplayState = iota - 1
	DisplayOff
	DisplayLPMOff
	DisplayLPMOn
	DisplayDim
	DisplayOn
	DisplayPowerUp
	DisplayPowerDown
)

var displayStateNames = map[DisplayState]string{
	DisplayUndef:     "undef",
	DisplayOff:       "off",
	DisplayLPMOff:    "lpm-off",
	DisplayLPMOn:     "lpm-on",
	DisplayDim:       "dimmed",
	DisplayOn:        "on",
	DisplayPowerUp:   "power-up",
	DisplayPowerDown: "power-down",
}

func (s DisplayState) String() string {
	if name, ok := displayStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsOff reports whether the panel is dark, low power modes included.
func (s DisplayState) IsOff() bool {
	switch s {
	case DisplayOff, DisplayLPMOff, DisplayLPMOn:
		return true
	}
	return false
}

func ParseDisplayState(name string) (DisplayState, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for state, n := range displayStateNames {
		if n == name {
			return state, nil
		}
	}
	return DisplayUndef, xerrors.Errorf("invalid display state %q", name)
}

type SystemState int

const (
	SystemUndef    SystemState = -1
	SystemShutdown SystemState = 0
	SystemUser     SystemState = 2
	SystemActDead  SystemState = 5
	SystemReboot   SystemState = 6
	SystemBoot     SystemState = 9
)

func (s SystemState) String() string {
	switch s {
	case SystemShutdown:
		return "SHUTDOWN"
	case SystemUser:
		return "USER"
	case SystemActDead:
		return "ACTDEAD"
	case SystemReboot:
		return "REBOOT"
	case SystemBoot:
		return "BOOT"
	}
	return "UNDEF"
}

// Submode bits
const (
	SubmodeInvalid    = -1
	SubmodeNormal     = 0
	SubmodeTklock     = 1 << 0
	SubmodeEventEater = 1 << 1
	SubmodeSoftOff    = 1 << 2
	SubmodeBootup     = 1 << 3
	SubmodeTransition = 1 << 4
	SubmodeAutorelock = 1 << 5
	SubmodeVisualTkl  = 1 << 6
	SubmodePocket     = 1 << 7
)

type CoverState int

const (
	CoverUndef CoverState = iota - 1
	CoverOpen
	CoverClosed
)

func (s CoverState) String() string {
	switch s {
	case CoverOpen:
		return "open"
	case CoverClosed:
		return "closed"
	}
	return "undef"
}

type CallState int

const (
	CallStateInvalid CallState = iota - 1
	CallStateNone
	CallStateRinging
	CallStateActive
	CallStateService
)

type CallType int

const (
	CallTypeInvalid CallType = iota - 1
	CallTypeNormal
	CallTypeEmergency
)

type AlarmUIState int

const (
	AlarmUIInvalid AlarmUIState = iota - 1
	AlarmUIOff
	AlarmUIRinging
	AlarmUIVisible
)

type LockState int

const (
	LockUndef LockState = iota - 1
	LockOff
	LockOn
	LockOnDimmed
	LockOnProximity
	LockToggle
	LockOnDelayed
)

type BatteryStatus int

const (
	BatteryStatusUndef BatteryStatus = iota - 1
	BatteryStatusFull
	BatteryStatusOK
	BatteryStatusLow
	BatteryStatusEmpty
)

func (s BatteryStatus) String() string {
	switch s {
	case BatteryStatusFull:
		return "full"
	case BatteryStatusOK:
		return "ok"
	case BatteryStatusLow:
		return "low"
	case BatteryStatusEmpty:
		return "empty"
	}
	return "undef"
}

type CameraButton int

const (
	CameraButtonUndef CameraButton = iota - 1
	CameraButtonUnpressed
	CameraButtonLaunch
)

type AudioRoute int

const (
	AudioRouteUndef AudioRoute = iota - 1
	AudioRouteHandset
	AudioRouteSpeaker
	AudioRouteHeadset
)

type ThermalState int

const (
	ThermalStateUndef ThermalState = iota - 1
	ThermalStateOK
	ThermalStateOverheated
)

type Orientation int

const (
	OrientationUndef Orientation = iota - 1
	OrientationLeftUp
	OrientationRightUp
	OrientationBottomUp
	OrientationBottomDown
	OrientationFaceDown
	OrientationFaceUp
)

const DefaultInactivityTimeout = 30

// AmbientLightUnknown is the lux value before the first sensor reading.
const AmbientLightUnknown = -1
