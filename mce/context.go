// SPDX-FileCopyrightText: 2018 - 2023 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package mce holds the shared device state vocabulary and the Context
// that owns every datapipe.
package mce

import (
	"github.com/linuxdeepin/go-lib/log"
	"github.com/linuxdeepin/mce-daemon/config"
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/mainloop"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("mce/mce")

func SetLogLevel(pri log.Priority) {
	logger.SetLogLevel(pri)
}

// Context is handed to every module. It owns the pipes and gives access to
// the loop and configuration they run against.
type Context struct {
	Pipes  *dp.Registry
	Loop   *mainloop.Loop
	Config *config.Config

	inputs map[string]dp.Payload
}

func NewContext(loop *mainloop.Loop, cfg *config.Config) (*Context, error) {
	if cfg == nil {
		cfg = config.Empty()
	}
	ctx := &Context{
		Pipes:  dp.NewRegistry(),
		Loop:   loop,
		Config: cfg,
		inputs: make(map[string]dp.Payload),
	}
	for _, d := range PipeTable {
		ctx.inputs[d.Name] = d.Initial
		p := dp.New(d.Name, d.Access, d.Ownership, d.ElemSize, d.Initial)
		err := ctx.Pipes.Declare(p)
		if err != nil {
			ctx.Pipes.Teardown()
			return nil, xerrors.Errorf("setup pipes: %w", err)
		}
	}
	logger.Debugf("declared %d pipes", ctx.Pipes.Len())
	return ctx, nil
}

// Pipe returns the named pipe. Asking for an undeclared pipe is a
// programming error.
func (ctx *Context) Pipe(name string) *dp.Pipe {
	p := ctx.Pipes.Lookup(name)
	if p == nil {
		panic("mce: unknown pipe " + name)
	}
	return p
}

func (ctx *Context) DisplayState() DisplayState {
	return DisplayState(ctx.Pipe(PipeDisplayState).Int())
}

func (ctx *Context) SystemState() SystemState {
	return SystemState(ctx.Pipe(PipeSystemState).Int())
}

func (ctx *Context) Submode() int {
	return ctx.Pipe(PipeSubmode).Int()
}

// SubmitInput records v as the raw input of a filtered scalar pipe, such
// as a brightness setting, and commits the filtered result.
func (ctx *Context) SubmitInput(name string, v dp.Payload) dp.Payload {
	p := ctx.Pipe(name)
	ctx.inputs[name] = v
	in := v
	return p.Execute(&in, dp.UseIndata, dp.CacheIndata)
}

// Refilter runs the last raw input of a pipe through the filter chain
// again. The cache holds filtered output, re-running it would filter twice.
func (ctx *Context) Refilter(name string) dp.Payload {
	p := ctx.Pipe(name)
	in := ctx.inputs[name]
	return p.Execute(&in, dp.UseIndata, dp.CacheIndata)
}

// Input is the last raw input given to SubmitInput, or the initial value.
func (ctx *Context) Input(name string) dp.Payload {
	return ctx.inputs[name]
}

// Close tears the pipes down in reverse declaration order. Calling it again
// does nothing.
func (ctx *Context) Close() {
	names := ctx.Pipes.Teardown()
	if names != nil {
		logger.Debugf("tore down %d pipes", len(names))
	}
}
