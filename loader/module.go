// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package loader

import (
	"github.com/linuxdeepin/go-lib/log"
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/mce"
)

// Module is a statically linked policy plugin. Register attaches the
// module's filters and triggers, Unregister must cope with a module whose
// Register never completed.
type Module interface {
	Name() string
	Provides() []string
	Enhances() []string
	Priority() int
	Register(ctx *mce.Context) error
	Unregister(ctx *mce.Context)
	SetLogLevel(log.Priority)
}

type Modules map[string]Module

// Meta is the static description of a module.
type Meta struct {
	Name     string
	Provides []string
	Enhances []string
	Priority int
}

type attachment struct {
	pipe    *dp.Pipe
	handle  dp.Handle
	trigger bool
}

// ModuleBase carries a module's metadata and logger and remembers every
// filter and trigger attached through it.
type ModuleBase struct {
	meta     Meta
	log      *log.Logger
	attached []attachment
}

func NewModuleBase(meta Meta, logger *log.Logger) *ModuleBase {
	return &ModuleBase{
		meta: meta,
		log:  logger,
	}
}

func (d *ModuleBase) Name() string {
	return d.meta.Name
}

func (d *ModuleBase) Provides() []string {
	return d.meta.Provides
}

func (d *ModuleBase) Enhances() []string {
	return d.meta.Enhances
}

func (d *ModuleBase) Priority() int {
	return d.meta.Priority
}

func (d *ModuleBase) SetLogLevel(pri log.Priority) {
	d.log.SetLogLevel(pri)
}

func (d *ModuleBase) LogLevel() log.Priority {
	return d.log.GetLogLevel()
}

func (d *ModuleBase) AddFilter(p *dp.Pipe, fn dp.Filter) dp.Handle {
	h := p.AddFilter(fn)
	if h != 0 {
		d.attached = append(d.attached, attachment{pipe: p, handle: h})
	}
	return h
}

func (d *ModuleBase) AddTrigger(p *dp.Pipe, fn dp.Trigger) dp.Handle {
	h := p.AddTrigger(fn)
	if h != 0 {
		d.attached = append(d.attached, attachment{pipe: p, handle: h, trigger: true})
	}
	return h
}

// Attached is the number of filters and triggers currently held.
func (d *ModuleBase) Attached() int {
	return len(d.attached)
}

// Detach removes, newest first, every filter and trigger added through
// the base.
func (d *ModuleBase) Detach() {
	for i := len(d.attached) - 1; i >= 0; i-- {
		a := d.attached[i]
		var ok bool
		if a.trigger {
			ok = a.pipe.RemoveTrigger(a.handle)
		} else {
			ok = a.pipe.RemoveFilter(a.handle)
		}
		if !ok {
			d.log.Debugf("%s: handle %d already gone from %s", d.meta.Name, a.handle, a.pipe.Name())
		}
	}
	d.attached = nil
}

// Unregister is the default teardown: detach everything.
func (d *ModuleBase) Unregister(ctx *mce.Context) {
	d.Detach()
}
