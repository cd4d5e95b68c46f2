// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/linuxdeepin/mce-daemon/config"
	"github.com/spf13/pflag"
	"golang.org/x/xerrors"
)

type options struct {
	systemd     bool
	daemonize   bool
	forceSyslog bool
	forceStderr bool
	session     bool
	showModules bool
	debugMode   bool
	quiet       int
	verbose     int
	trace       string
	help        bool
	version     bool
	configPath  string
}

func newFlagSet(opts *options) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	flagSet.BoolVarP(&opts.systemd, "systemd", "n", false, "notify systemd when started up")
	flagSet.BoolVarP(&opts.daemonize, "daemonflag", "d", false, "run mce as a daemon")
	flagSet.BoolVarP(&opts.forceSyslog, "force-syslog", "s", false, "log to syslog even when not daemonized")
	flagSet.BoolVarP(&opts.forceStderr, "force-stderr", "T", false, "log to stderr even when daemonized")
	flagSet.BoolVarP(&opts.session, "session", "S", false, "use the session bus instead of the system bus")
	flagSet.BoolVarP(&opts.showModules, "show-module-info", "M", false, "show information about loaded modules and exit")
	flagSet.BoolVarP(&opts.debugMode, "debug-mode", "D", false, "run even if the device state peer is unavailable")
	flagSet.CountVarP(&opts.quiet, "quiet", "q", "decrease debug message verbosity")
	flagSet.CountVarP(&opts.verbose, "verbose", "v", "increase debug message verbosity")
	flagSet.StringVarP(&opts.trace, "trace", "t", "", "enable domain specific debug logging, supported: "+strings.Join(traceDomains, ","))
	flagSet.BoolVarP(&opts.help, "help", "h", false, "display this help and exit")
	flagSet.BoolVarP(&opts.version, "version", "V", false, "output version information and exit")
	flagSet.StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "main configuration file")
	return flagSet
}

func parseOptions(args []string, output io.Writer) (*options, *pflag.FlagSet, error) {
	opts := &options{}
	flagSet := newFlagSet(opts)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {}
	err := flagSet.Parse(args)
	if err != nil {
		return nil, flagSet, err
	}
	if flagSet.NArg() > 0 {
		return nil, flagSet, xerrors.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	return opts, flagSet, nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: %s [OPTION]...\nMode Control Entity\n\n", programName)
	fmt.Fprint(w, flagSet.FlagUsages())
}

var verbosityLevels = []log.Priority{
	log.LevelError,
	log.LevelWarning,
	log.LevelInfo,
	log.LevelDebug,
}

// logLevel starts from warnings and moves one step per -v or -q.
func logLevel(quiet, verbose int) log.Priority {
	i := 1 + verbose - quiet
	if i < 0 {
		i = 0
	} else if i >= len(verbosityLevels) {
		i = len(verbosityLevels) - 1
	}
	return verbosityLevels[i]
}

var traceDomains = []string{"wakelocks"}

// parseTrace resolves a comma separated list of trace domains, each of
// which may be abbreviated to an unambiguous prefix.
func parseTrace(list string, stderr io.Writer) ([]string, error) {
	var domains []string
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		var matches []string
		for _, domain := range traceDomains {
			if strings.HasPrefix(domain, item) {
				matches = append(matches, domain)
			}
		}
		switch len(matches) {
		case 0:
			return nil, xerrors.Errorf("unknown trace domain %q", item)
		case 1:
		default:
			return nil, xerrors.Errorf("ambiguous trace domain %q", item)
		}
		if matches[0] != item {
			fmt.Fprintf(stderr, "%s: trace domain %q selects %q\n", programName, item, matches[0])
		}
		domains = append(domains, matches[0])
	}
	return domains, nil
}
