// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package loader

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/linuxdeepin/go-lib/strv"
	"github.com/linuxdeepin/mce-daemon/mce"
	"gopkg.in/yaml.v3"
)

const (
	ErrorMissingModule int = iota
	ErrorInitFailed
	ErrorConflict
	ErrorAlreadyLoaded
	ErrorMandatoryFailed
)

type LoadError struct {
	ModuleName string
	Code       int
	detail     string
}

func (e *LoadError) Error() string {
	switch e.Code {
	case ErrorMissingModule:
		return fmt.Sprintf("%s is missing", e.ModuleName)
	case ErrorInitFailed:
		return fmt.Sprintf("%s init failed: %s", e.ModuleName, e.detail)
	case ErrorConflict:
		return fmt.Sprintf("%s is listed more than once", e.ModuleName)
	case ErrorAlreadyLoaded:
		return "modules are already loaded"
	case ErrorMandatoryFailed:
		return fmt.Sprintf("mandatory module %s failed: %s", e.ModuleName, e.detail)
	}
	panic("LoadError: Unknown Error, Should not be reached")
}

type LoadOptions struct {
	// Mandatory modules abort the whole load when they cannot be loaded.
	Mandatory []string
}

type ModuleInfo struct {
	Name     string   `yaml:"name"`
	Provides []string `yaml:"provides,omitempty"`
	Enhances []string `yaml:"enhances,omitempty"`
	Priority int      `yaml:"priority"`
	Active   bool     `yaml:"active"`
}

type detacher interface {
	Detach()
}

type Loader struct {
	modules Modules
	log     *log.Logger
	lock    sync.Mutex

	loaded  []Module
	started bool
}

func New() *Loader {
	return &Loader{
		modules: Modules{},
		log:     log.NewLogger("mce/loader"),
	}
}

func (l *Loader) SetLogLevel(pri log.Priority) {
	l.log.SetLogLevel(pri)

	l.lock.Lock()
	defer l.lock.Unlock()

	for _, module := range l.modules {
		module.SetLogLevel(pri)
	}
}

func (l *Loader) AddModule(m Module) {
	l.lock.Lock()
	defer l.lock.Unlock()
	name := m.Name()
	_, exist := l.modules[name]
	if exist {
		l.log.Debug("Register", name, "is already registered")
		return
	}
	l.log.Debug("Register module:", name)
	l.modules[name] = m
}

func (l *Loader) DeleteModule(name string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	delete(l.modules, name)
}

// List returns the registered modules sorted by name.
func (l *Loader) List() []Module {
	l.lock.Lock()
	defer l.lock.Unlock()
	modules := make([]Module, 0, len(l.modules))
	for _, m := range l.modules {
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool {
		return modules[i].Name() < modules[j].Name()
	})
	return modules
}

func (l *Loader) GetModule(name string) Module {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.modules[name]
}

// Loaded returns the active modules in load order.
func (l *Loader) Loaded() []Module {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]Module(nil), l.loaded...)
}

func (l *Loader) resolve(names []string, mandatory strv.Strv) ([]Module, error) {
	seen := make(map[string]bool, len(names))
	var modules []Module
	for _, name := range names {
		if seen[name] {
			l.log.Warning(&LoadError{ModuleName: name, Code: ErrorConflict})
			continue
		}
		seen[name] = true

		m := l.modules[name]
		if m == nil {
			err := &LoadError{ModuleName: name, Code: ErrorMissingModule}
			if mandatory.Contains(name) {
				return nil, &LoadError{ModuleName: name, Code: ErrorMandatoryFailed, detail: err.Error()}
			}
			l.log.Warning(err)
			continue
		}
		modules = append(modules, m)
	}

	sort.SliceStable(modules, func(i, j int) bool {
		return modules[i].Priority() < modules[j].Priority()
	})
	return modules, nil
}

func (l *Loader) register(ctx *mce.Context, m Module) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.Register(ctx)
}

// LoadAll registers the named modules in ascending priority, ties keeping
// list order. A module that fails to load is skipped unless it is
// mandatory, in which case everything loaded so far is unloaded again.
// It returns the number of active modules.
func (l *Loader) LoadAll(ctx *mce.Context, names []string, opts LoadOptions) (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.started {
		return len(l.loaded), &LoadError{Code: ErrorAlreadyLoaded}
	}

	startTime := time.Now()
	mandatory := strv.Strv(opts.Mandatory)
	modules, err := l.resolve(names, mandatory)
	if err != nil {
		return 0, err
	}
	l.started = true

	for _, m := range modules {
		name := m.Name()
		l.log.Debugf("loading module %s (priority %d)", name, m.Priority())

		err := l.register(ctx, m)
		if err == nil {
			l.loaded = append(l.loaded, m)
			l.log.Infof("module %s loaded", name)
			continue
		}

		if d, ok := m.(detacher); ok {
			d.Detach()
		}
		loadErr := &LoadError{ModuleName: name, Code: ErrorInitFailed, detail: err.Error()}
		if mandatory.Contains(name) {
			l.log.Error(loadErr)
			l.unloadLocked(ctx)
			l.started = false
			return 0, &LoadError{ModuleName: name, Code: ErrorMandatoryFailed, detail: err.Error()}
		}
		l.log.Warning(loadErr)
	}

	CheckCapabilities(l.log, l.loaded)
	l.log.Infof("loaded %d of %d modules, cost %s", len(l.loaded), len(names), time.Since(startTime))
	if l.log.GetLogLevel() == log.LevelDebug {
		l.log.Debug(spew.Sdump(l.infoLocked()))
	}
	return len(l.loaded), nil
}

func (l *Loader) unloadLocked(ctx *mce.Context) {
	for i := len(l.loaded) - 1; i >= 0; i-- {
		m := l.loaded[i]
		l.log.Debug("unloading module", m.Name())
		m.Unregister(ctx)
	}
	l.loaded = nil
}

// UnloadAll unregisters the active modules in reverse load order. After it
// returns LoadAll may run again.
func (l *Loader) UnloadAll(ctx *mce.Context) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.unloadLocked(ctx)
	l.started = false
}

func infoOf(m Module, active bool) ModuleInfo {
	return ModuleInfo{
		Name:     m.Name(),
		Provides: m.Provides(),
		Enhances: m.Enhances(),
		Priority: m.Priority(),
		Active:   active,
	}
}

func (l *Loader) infoLocked() []ModuleInfo {
	infos := make([]ModuleInfo, 0, len(l.modules))
	active := make(map[string]bool, len(l.loaded))
	for _, m := range l.loaded {
		infos = append(infos, infoOf(m, true))
		active[m.Name()] = true
	}

	var rest []ModuleInfo
	for name, m := range l.modules {
		if !active[name] {
			rest = append(rest, infoOf(m, false))
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		return rest[i].Name < rest[j].Name
	})
	return append(infos, rest...)
}

// Info describes the active modules in load order followed by the
// inactive ones.
func (l *Loader) Info() []ModuleInfo {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.infoLocked()
}

func (l *Loader) DumpInfo(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err := enc.Encode(map[string][]ModuleInfo{"modules": l.Info()})
	if err != nil {
		return err
	}
	return enc.Close()
}

// ConfigReloader is implemented by modules that re-read their settings
// when the configuration changes.
type ConfigReloader interface {
	ReloadConfig(ctx *mce.Context)
}

// ReloadConfig notifies the active modules in load order.
func (l *Loader) ReloadConfig(ctx *mce.Context) {
	for _, m := range l.Loaded() {
		if r, ok := m.(ConfigReloader); ok {
			l.log.Debug("reload config of", m.Name())
			r.ReloadConfig(ctx)
		}
	}
}
