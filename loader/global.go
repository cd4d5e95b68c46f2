// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package loader

import (
	"io"
	"sync"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/linuxdeepin/mce-daemon/mce"
)

var loaderInitializer sync.Once
var _loader *Loader

func getLoader() *Loader {
	loaderInitializer.Do(func() {
		_loader = New()
	})
	return _loader
}

// Register makes a module available for loading; call it from init.
func Register(m Module) {
	loader := getLoader()
	loader.AddModule(m)
}

func SetLogLevel(pri log.Priority) {
	getLoader().SetLogLevel(pri)
}

func LoadAll(ctx *mce.Context, names []string, opts LoadOptions) (int, error) {
	return getLoader().LoadAll(ctx, names, opts)
}

func UnloadAll(ctx *mce.Context) {
	getLoader().UnloadAll(ctx)
}

func Info() []ModuleInfo {
	return getLoader().Info()
}

func DumpInfo(w io.Writer) error {
	return getLoader().DumpInfo(w)
}

func ReloadConfig(ctx *mce.Context) {
	getLoader().ReloadConfig(ctx)
}

// Loaded lists the active modules in load order.
func Loaded() []Module {
	return getLoader().Loaded()
}
