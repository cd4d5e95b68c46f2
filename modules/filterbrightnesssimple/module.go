// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package filterbrightnesssimple maps the 1..5 brightness setting onto a
// percentage and forces zero while the display is dark.
package filterbrightnesssimple

import (
	"github.com/linuxdeepin/go-lib/log"
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/loader"
	"github.com/linuxdeepin/mce-daemon/mce"
)

const (
	ModuleName = "filter-brightness-simple"

	BrightnessMinimum = 1
	BrightnessMaximum = 5
)

var logger = log.NewLogger("mce/" + ModuleName)

func init() {
	loader.Register(NewModule())
}

type Module struct {
	*loader.ModuleBase
	displayState mce.DisplayState
}

func NewModule() *Module {
	m := &Module{displayState: mce.DisplayUndef}
	m.ModuleBase = loader.NewModuleBase(loader.Meta{
		Name:     ModuleName,
		Provides: []string{"display-brightness-filter"},
		Enhances: []string{"display-brightness"},
		Priority: 250,
	}, logger)
	return m
}

// Percent converts a brightness setting into a percentage, 1% minimum.
func Percent(setting int) int {
	if setting < BrightnessMinimum {
		setting = BrightnessMinimum
	} else if setting > BrightnessMaximum {
		setting = BrightnessMaximum
	}
	if v := (setting - 1) * 25; v != 0 {
		return v
	}
	return 1
}

func (m *Module) filter(p dp.Payload) dp.Payload {
	if m.displayState.IsOff() {
		return dp.Int(0)
	}
	return dp.Int(Percent(p.Int))
}

func (m *Module) Register(ctx *mce.Context) error {
	m.displayState = ctx.DisplayState()
	m.AddTrigger(ctx.Pipe(mce.PipeDisplayState), func(p dp.Payload) {
		m.displayState = mce.DisplayState(p.Int)
	})

	m.AddFilter(ctx.Pipe(mce.PipeDisplayBrightness), m.filter)
	ctx.Refilter(mce.PipeDisplayBrightness)
	return nil
}
