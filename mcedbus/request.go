// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package mcedbus exports the mce request interface on the system bus.
package mcedbus

import (
	"bytes"
	"strings"

	"github.com/godbus/dbus/v5"
	ofdbus "github.com/linuxdeepin/go-dbus-factory/system/org.freedesktop.dbus"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/log"
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/loader"
	"github.com/linuxdeepin/mce-daemon/mce"
	"golang.org/x/xerrors"
)

const (
	ServiceName = "com.nokia.mce"

	requestPath      = "/com/nokia/mce/request"
	requestInterface = "com.nokia.mce.request"

	alsModuleName = "filter-brightness-als"
)

var logger = log.NewLogger("mce/mcedbus")

func SetLogLevel(pri log.Priority) {
	logger.SetLogLevel(pri)
}

// alsRequester is implemented by the ambient light filter module.
type alsRequester interface {
	RequestALSEnable(sender string)
	RequestALSDisable(sender string)
	DropALSRequests(sender string)
}

type Request struct {
	service *dbusutil.Service
	ctx     *mce.Context

	sigLoop       *dbusutil.SignalLoop
	sysDBusDaemon ofdbus.DBus
	trigger       dp.Handle

	// lookup of an active module by name
	findModule func(name string) loader.Module

	// nolint
	signals *struct {
		DisplayStatusInd struct {
			state string
		}
	}
}

func (*Request) GetInterfaceName() string {
	return requestInterface
}

func (r *Request) GetExportedMethods() dbusutil.ExportedMethods {
	return dbusutil.ExportedMethods{
		{
			Name:    "GetModuleInfo",
			Fn:      r.GetModuleInfo,
			OutArgs: []string{"info"},
		},
		{
			Name:    "GetDisplayStatus",
			Fn:      r.GetDisplayStatus,
			OutArgs: []string{"state"},
		},
		{
			Name:   "ReqDisplayState",
			Fn:     r.ReqDisplayState,
			InArgs: []string{"state"},
		},
		{
			Name:   "SetDisplayBrightness",
			Fn:     r.SetDisplayBrightness,
			InArgs: []string{"level"},
		},
		{
			Name: "ReqALSEnable",
			Fn:   r.ReqALSEnable,
		},
		{
			Name: "ReqALSDisable",
			Fn:   r.ReqALSDisable,
		},
	}
}

func newRequest(service *dbusutil.Service, ctx *mce.Context) *Request {
	return &Request{
		service:    service,
		ctx:        ctx,
		findModule: findLoaded,
	}
}

func findLoaded(name string) loader.Module {
	for _, m := range loader.Loaded() {
		if m.Name() == name {
			return m
		}
	}
	return nil
}

// invoke runs fn on the main loop, where every pipe must be touched.
func (r *Request) invoke(fn func() error) *dbus.Error {
	var err error
	invokeErr := r.ctx.Loop.Invoke(func() {
		err = fn()
	})
	if invokeErr != nil {
		err = invokeErr
	}
	if err != nil {
		logger.Warning(err)
	}
	return dbusutil.ToError(err)
}

func (r *Request) GetModuleInfo() (string, *dbus.Error) {
	var buf bytes.Buffer
	busErr := r.invoke(func() error {
		return loader.DumpInfo(&buf)
	})
	return buf.String(), busErr
}

func (r *Request) GetDisplayStatus() (string, *dbus.Error) {
	var state mce.DisplayState
	busErr := r.invoke(func() error {
		state = r.ctx.DisplayState()
		return nil
	})
	return displayStatus(state), busErr
}

func (r *Request) ReqDisplayState(state string) *dbus.Error {
	return r.invoke(func() error {
		s, err := parseDisplayRequest(state)
		if err != nil {
			return err
		}
		_, err = r.ctx.Pipe(mce.PipeDisplayStateReq).Submit(dp.Int(int(s)))
		return err
	})
}

func (r *Request) SetDisplayBrightness(level int32) *dbus.Error {
	return r.invoke(func() error {
		if level < 1 || level > 5 {
			return xerrors.Errorf("brightness level %d out of range 1..5", level)
		}
		r.ctx.SubmitInput(mce.PipeDisplayBrightness, dp.Int(int(level)))
		return nil
	})
}

func (r *Request) alsModule() (alsRequester, error) {
	m, ok := r.findModule(alsModuleName).(alsRequester)
	if !ok {
		return nil, xerrors.Errorf("module %s is not loaded", alsModuleName)
	}
	return m, nil
}

func (r *Request) ReqALSEnable(sender dbus.Sender) *dbus.Error {
	return r.invoke(func() error {
		als, err := r.alsModule()
		if err != nil {
			return err
		}
		als.RequestALSEnable(string(sender))
		return nil
	})
}

func (r *Request) ReqALSDisable(sender dbus.Sender) *dbus.Error {
	return r.invoke(func() error {
		als, err := r.alsModule()
		if err != nil {
			return err
		}
		als.RequestALSDisable(string(sender))
		return nil
	})
}

// handleNameOwnerChanged forgets the requests of clients leaving the bus.
func (r *Request) handleNameOwnerChanged(name, oldOwner, newOwner string) {
	if !strings.HasPrefix(name, ":") || newOwner != "" {
		return
	}
	err := r.ctx.Loop.Invoke(func() {
		if als, err := r.alsModule(); err == nil {
			als.DropALSRequests(name)
		}
	})
	if err != nil {
		logger.Debug(err)
	}
}

func (r *Request) displayStateTrigger(p dp.Payload) {
	if r.service == nil {
		return
	}
	err := r.service.Emit(r, "DisplayStatusInd", displayStatus(mce.DisplayState(p.Int)))
	if err != nil {
		logger.Warning(err)
	}
}

// displayStatus names a display state the way clients expect: the
// low power states count as off.
func displayStatus(s mce.DisplayState) string {
	switch s {
	case mce.DisplayOff, mce.DisplayLPMOff, mce.DisplayLPMOn:
		return "off"
	case mce.DisplayDim:
		return "dimmed"
	case mce.DisplayOn:
		return "on"
	}
	return "unknown"
}

// parseDisplayRequest accepts the state names clients may ask for.
func parseDisplayRequest(state string) (mce.DisplayState, error) {
	switch state {
	case "dim":
		return mce.DisplayDim, nil
	case "lpm":
		return mce.DisplayLPMOn, nil
	}
	s, err := mce.ParseDisplayState(state)
	if err != nil {
		return mce.DisplayUndef, err
	}
	switch s {
	case mce.DisplayOff, mce.DisplayLPMOff, mce.DisplayLPMOn, mce.DisplayDim, mce.DisplayOn:
		return s, nil
	}
	return mce.DisplayUndef, xerrors.Errorf("display state %q cannot be requested", state)
}
