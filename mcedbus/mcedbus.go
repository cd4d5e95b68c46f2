// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mcedbus

import (
	ofdbus "github.com/linuxdeepin/go-dbus-factory/system/org.freedesktop.dbus"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/dbusutil/proxy"
	"github.com/linuxdeepin/mce-daemon/mce"
	"golang.org/x/xerrors"
)

// Server owns the bus connection and the exported request object.
type Server struct {
	service *dbusutil.Service
	request *Request
}

// Start connects to the system bus, or the session bus when session is
// set, exports the request object and takes the service name. It must be
// called from the loop thread, before the loop runs or inside it.
func Start(ctx *mce.Context, session bool) (*Server, error) {
	var service *dbusutil.Service
	var err error
	if session {
		service, err = dbusutil.NewSessionService()
	} else {
		service, err = dbusutil.NewSystemService()
	}
	if err != nil {
		return nil, xerrors.Errorf("connect bus: %w", err)
	}

	r := newRequest(service, ctx)
	err = service.Export(requestPath, r)
	if err != nil {
		return nil, xerrors.Errorf("export %s: %w", requestPath, err)
	}
	err = service.RequestName(ServiceName)
	if err != nil {
		_ = service.StopExport(r)
		return nil, xerrors.Errorf("request name %s: %w", ServiceName, err)
	}

	r.trigger = ctx.Pipe(mce.PipeDisplayState).AddTrigger(r.displayStateTrigger)

	conn := service.Conn()
	r.sigLoop = dbusutil.NewSignalLoop(conn, 10)
	r.sigLoop.Start()
	r.sysDBusDaemon = ofdbus.NewDBus(conn)
	r.sysDBusDaemon.InitSignalExt(r.sigLoop, true)
	_, err = r.sysDBusDaemon.ConnectNameOwnerChanged(r.handleNameOwnerChanged)
	if err != nil {
		logger.Warning(err)
	}

	logger.Infof("exported %s on %s", requestInterface, ServiceName)
	return &Server{service: service, request: r}, nil
}

// Stop withdraws the object and releases the name. Safe on a nil Server.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	r := s.request
	if pipe := r.ctx.Pipes.Lookup(mce.PipeDisplayState); pipe != nil && !pipe.Destroyed() {
		pipe.RemoveTrigger(r.trigger)
	}
	r.sysDBusDaemon.RemoveHandler(proxy.RemoveAllHandlers)
	r.sigLoop.Stop()

	err := s.service.StopExport(r)
	if err != nil {
		logger.Warning(err)
	}
	err = s.service.ReleaseName(ServiceName)
	if err != nil {
		logger.Warning(err)
	}
}
