// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/gofrs/flock"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/linuxdeepin/mce-daemon/backlight"
	"github.com/linuxdeepin/mce-daemon/config"
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/dsme"
	"github.com/linuxdeepin/mce-daemon/eventinput"
	"github.com/linuxdeepin/mce-daemon/lifecycle"
	"github.com/linuxdeepin/mce-daemon/loader"
	"github.com/linuxdeepin/mce-daemon/mainloop"
	"github.com/linuxdeepin/mce-daemon/mce"
	"github.com/linuxdeepin/mce-daemon/mcedbus"
	"github.com/linuxdeepin/mce-daemon/sensorfw"
	"github.com/linuxdeepin/mce-daemon/switches"
	"github.com/linuxdeepin/mce-daemon/wakelock"
	godaemon "github.com/sevlyar/go-daemon"

	// modules:
	_ "github.com/linuxdeepin/mce-daemon/modules/display"
	_ "github.com/linuxdeepin/mce-daemon/modules/filterbrightnessals"
	_ "github.com/linuxdeepin/mce-daemon/modules/filterbrightnesssimple"
	_ "github.com/linuxdeepin/mce-daemon/modules/proximity"
)

const (
	programName = "mced"
	pidFile     = "/run/mce.pid"
)

var version = "1.0.0"

var logger = log.NewLogger("mce/mced")

var defaultModules = []string{"filter-brightness-als", "proximity", "display"}

func main() {
	os.Exit(run(os.Args[1:]))
}

func setLogLevel(pri log.Priority) {
	logger.SetLogLevel(pri)
	backlight.SetLogLevel(pri)
	config.SetLogLevel(pri)
	dp.SetLogLevel(pri)
	dsme.SetLogLevel(pri)
	eventinput.SetLogLevel(pri)
	lifecycle.SetLogLevel(pri)
	mainloop.SetLogLevel(pri)
	mce.SetLogLevel(pri)
	mcedbus.SetLogLevel(pri)
	sensorfw.SetLogLevel(pri)
	switches.SetLogLevel(pri)
	wakelock.SetLogLevel(pri)
	loader.SetLogLevel(pri)
}

func lockPidFile() (*flock.Flock, error) {
	lock := flock.New(pidFile)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s is locked, mce is already running", pidFile)
	}
	return lock, nil
}

func dumpState(ctx *mce.Context) {
	pipes := make(map[string]string, ctx.Pipes.Len())
	for _, name := range ctx.Pipes.Names() {
		pipes[name] = ctx.Pipe(name).Cached().String()
	}
	spew.Fdump(os.Stderr, loader.Info(), pipes)
}

type stopper interface {
	Stop()
}

// shutdown detaches the bus triggers before the pipes go away.
func shutdown(ctx *mce.Context, bus stopper) {
	bus.Stop()
	ctx.Close()
	wakelock.Cleanup()
	logger.Info("Exiting...")
}

func run(args []string) int {
	opts, flagSet, err := parseOptions(args, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		printHelp(os.Stderr, flagSet)
		return 1
	}
	if opts.help {
		printHelp(os.Stdout, flagSet)
		return 0
	}
	if opts.version {
		fmt.Printf("%s v%s\n", programName, version)
		return 0
	}
	domains, err := parseTrace(opts.trace, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		return 1
	}

	setLogLevel(logLevel(opts.quiet, opts.verbose))
	for _, domain := range domains {
		switch domain {
		case "wakelocks":
			wakelock.EnableLogging()
		}
	}
	// go-lib log writes to the console and to syslog already
	logger.Debugf("syslog forced: %v, stderr forced: %v", opts.forceSyslog, opts.forceStderr)

	if opts.daemonize {
		// fail in the foreground when another instance runs
		if !godaemon.WasReborn() {
			lock, err := lockPidFile()
			if err != nil {
				logger.Error(err)
				return 1
			}
			_ = lock.Unlock()
		}
		dctx := daemonContext(opts.forceStderr)
		child, err := dctx.Reborn()
		if err != nil {
			logger.Error("daemonize:", err)
			return 1
		}
		if child != nil {
			logger.Debug("daemon pid", child.Pid)
			return 0
		}
		defer func() {
			_ = dctx.Release()
		}()
	}

	lock, err := lockPidFile()
	if err != nil {
		logger.Error(err)
		return 1
	}
	defer func() {
		_ = lock.Unlock()
	}()
	err = os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
	if err != nil {
		logger.Warning(err)
	}

	ctl := lifecycle.NewController(nil)
	defer ctl.RecoverFatal()

	loop := mainloop.New()
	err = ctl.Start(loop)
	if err != nil {
		logger.Error("failed to set up signal handling:", err)
		return 1
	}
	defer ctl.Finish()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		logger.Warning(err)
		cfg = config.Empty()
	}
	wakelock.SetRoot(cfg.GetString("Wakelock", "Root", wakelock.DefaultRoot))

	ctx, err := mce.NewContext(loop, cfg)
	if err != nil {
		logger.Error(err)
		return 1
	}

	bus, err := mcedbus.Start(ctx, opts.session)
	if err != nil {
		ctx.Close()
		logger.Error("failed to initialise D-Bus:", err)
		return 1
	}
	defer shutdown(ctx, bus)

	dsmeClient, err := dsme.Init(ctx, cfg.GetString("DSME", "Socket", dsme.DefaultSocket), opts.debugMode)
	if err != nil {
		logger.Error("cannot connect to the device state peer:", err)
		return 1
	}
	defer dsmeClient.Close()
	// early returns never reach loop.Run; quit first so no backend
	// goroutine is left waiting on the loop
	defer loop.Quit()

	monitor := switches.NewMonitor(ctx)
	err = monitor.Start()
	if err != nil {
		logger.Warning("switch monitoring unavailable:", err)
	}
	defer monitor.Stop()

	input := eventinput.NewMonitor(ctx, cfg.GetString("Input", "Dir", eventinput.DefaultDir))
	err = input.Start()
	if err != nil {
		logger.Warning("input monitoring unavailable:", err)
	}
	defer input.Stop()

	sensorfw.Init(loop, cfg)
	defer sensorfw.Quit()

	names := cfg.GetStringList("Modules", "Modules")
	if len(names) == 0 {
		names = defaultModules
	}
	opt := loader.LoadOptions{
		Mandatory: cfg.GetStringList("Modules", "Mandatory"),
	}
	n, err := loader.LoadAll(ctx, names, opt)
	defer loader.UnloadAll(ctx)
	if err != nil {
		logger.Error(err)
		return 1
	}
	logger.Infof("%d modules loaded", n)

	if opts.showModules {
		err = loader.DumpInfo(os.Stdout)
		if err != nil {
			logger.Warning(err)
		}
		return 0
	}

	watcher := config.NewWatcher(cfg, loop)
	watcher.OnReload(func(*config.Config) {
		loader.ReloadConfig(ctx)
	})
	err = watcher.Start()
	if err != nil {
		logger.Warning(err)
	}
	defer watcher.Stop()
	ctl.OnReload(watcher.Reload)
	ctl.OnDump(func() {
		dumpState(ctx)
	})

	if opts.systemd {
		err = notifyReady()
		if err != nil {
			logger.Warning(err)
		}
	}

	ctl.SetRunning()
	err = loop.Run()
	if err != nil {
		logger.Error(err)
		return 1
	}
	return 0
}
