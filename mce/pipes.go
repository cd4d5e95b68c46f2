// SPDX-FileCopyrightText: 2018 - 2023 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mce

import (
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
)

const (
	PipeSystemState          = "system_state"
	PipeMasterRadio          = "master_radio"
	PipeCallState            = "call_state"
	PipeCallType             = "call_type"
	PipeAlarmUIState         = "alarm_ui_state"
	PipeSubmode              = "submode"
	PipeDisplayState         = "display_state"
	PipeDisplayStateReq      = "display_state_req"
	PipeDisplayBrightness    = "display_brightness"
	PipeLedBrightness        = "led_brightness"
	PipeLedPatternActivate   = "led_pattern_activate"
	PipeLedPatternDeactivate = "led_pattern_deactivate"
	PipeKeyBacklight         = "key_backlight"
	PipeKeypress             = "keypress"
	PipeTouchscreen          = "touchscreen"
	PipeDeviceInactive       = "device_inactive"
	PipeLockkey              = "lockkey"
	PipeKeyboardSlide        = "keyboard_slide"
	PipeLidCover             = "lid_cover"
	PipeLensCover            = "lens_cover"
	PipeProximitySensor      = "proximity_sensor"
	PipeAmbientLight         = "ambient_light"
	PipeOrientationSensor    = "orientation_sensor"
	PipeTkLock               = "tk_lock"
	PipeChargerState         = "charger_state"
	PipeBatteryStatus        = "battery_status"
	PipeBatteryLevel         = "battery_level"
	PipeCameraButton         = "camera_button"
	PipeInactivityTimeout    = "inactivity_timeout"
	PipeAudioRoute           = "audio_route"
	PipeUSBCable             = "usb_cable"
	PipeJackSense            = "jack_sense"
	PipePowerSavingMode      = "power_saving_mode"
	PipeThermalState         = "thermal_state"
	PipeHeartbeat            = "heartbeat"
)

// PipeDecl describes one entry of the pipe table.
type PipeDecl struct {
	Name      string
	Access    dp.Access
	Ownership dp.Ownership
	ElemSize  int
	Initial   dp.Payload
}

func scalar(name string, access dp.Access, initial int) PipeDecl {
	return PipeDecl{
		Name:      name,
		Access:    access,
		Ownership: dp.DontFreeCache,
		Initial:   dp.Int(initial),
	}
}

func blob(name string, elemSize int) PipeDecl {
	return PipeDecl{
		Name:      name,
		Access:    dp.ReadOnly,
		Ownership: dp.FreeCache,
		ElemSize:  elemSize,
		Initial:   dp.None(),
	}
}

// PipeTable is the declaration order of every pipe the daemon owns.
var PipeTable = []PipeDecl{
	scalar(PipeSystemState, dp.ReadWrite, int(SystemUndef)),
	scalar(PipeMasterRadio, dp.ReadWrite, 0),
	scalar(PipeCallState, dp.ReadWrite, int(CallStateNone)),
	scalar(PipeCallType, dp.ReadWrite, int(CallTypeNormal)),
	scalar(PipeAlarmUIState, dp.ReadOnly, int(AlarmUIInvalid)),
	scalar(PipeSubmode, dp.ReadOnly, SubmodeNormal),
	scalar(PipeDisplayState, dp.ReadWrite, int(DisplayUndef)),
	scalar(PipeDisplayStateReq, dp.ReadWrite, int(DisplayUndef)),
	scalar(PipeDisplayBrightness, dp.ReadWrite, 3),
	scalar(PipeLedBrightness, dp.ReadWrite, 0),
	blob(PipeLedPatternActivate, 0),
	blob(PipeLedPatternDeactivate, 0),
	scalar(PipeKeyBacklight, dp.ReadWrite, 0),
	blob(PipeKeypress, InputEventSize),
	blob(PipeTouchscreen, InputEventSize),
	scalar(PipeDeviceInactive, dp.ReadWrite, 0),
	scalar(PipeLockkey, dp.ReadOnly, 0),
	scalar(PipeKeyboardSlide, dp.ReadOnly, 0),
	scalar(PipeLidCover, dp.ReadOnly, 0),
	scalar(PipeLensCover, dp.ReadOnly, 0),
	scalar(PipeProximitySensor, dp.ReadOnly, int(CoverOpen)),
	scalar(PipeAmbientLight, dp.ReadOnly, AmbientLightUnknown),
	scalar(PipeOrientationSensor, dp.ReadOnly, int(OrientationUndef)),
	scalar(PipeTkLock, dp.ReadOnly, int(LockUndef)),
	scalar(PipeChargerState, dp.ReadOnly, 0),
	scalar(PipeBatteryStatus, dp.ReadOnly, int(BatteryStatusUndef)),
	scalar(PipeBatteryLevel, dp.ReadOnly, 100),
	scalar(PipeCameraButton, dp.ReadOnly, int(CameraButtonUndef)),
	scalar(PipeInactivityTimeout, dp.ReadOnly, DefaultInactivityTimeout),
	scalar(PipeAudioRoute, dp.ReadOnly, int(AudioRouteUndef)),
	scalar(PipeUSBCable, dp.ReadOnly, 0),
	scalar(PipeJackSense, dp.ReadOnly, 0),
	scalar(PipePowerSavingMode, dp.ReadOnly, 0),
	scalar(PipeThermalState, dp.ReadOnly, int(ThermalStateUndef)),
	scalar(PipeHeartbeat, dp.ReadOnly, 0),
}
