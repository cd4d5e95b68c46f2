// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sensorfw

import (
	"github.com/linuxdeepin/mce-daemon/config"
	"github.com/linuxdeepin/mce-daemon/mainloop"
)

var _sensorfw *Sensorfw

// Init sets up the process wide sensors. Must be called on the main loop
// before modules are loaded.
func Init(loop *mainloop.Loop, cfg *config.Config) *Sensorfw {
	_sensorfw = New(loop, cfg)
	return _sensorfw
}

// Default returns the process wide sensors, nil before Init.
func Default() *Sensorfw {
	return _sensorfw
}

func Quit() {
	if _sensorfw != nil {
		_sensorfw.Quit()
		_sensorfw = nil
	}
}
