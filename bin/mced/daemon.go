// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	godaemon "github.com/sevlyar/go-daemon"
	"golang.org/x/xerrors"
)

// daemonContext re-executes the daemon detached from the terminal, in
// its own session with / as working directory. Output goes to /dev/null
// unless keepStderr is set.
func daemonContext(keepStderr bool) *godaemon.Context {
	c := &godaemon.Context{
		WorkDir: "/",
		Umask:   022,
	}
	if keepStderr {
		c.LogFileName = "/dev/stderr"
		c.LogFilePerm = 0600
	}
	return c
}

// notifyReady tells the service manager startup is complete. Without a
// notify socket it does nothing.
func notifyReady() error {
	sent, err := sddaemon.SdNotify(false, sddaemon.SdNotifyReady)
	if err != nil {
		return xerrors.Errorf("notify ready: %w", err)
	}
	if !sent {
		logger.Debug("no service manager to notify")
	}
	return nil
}
