// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package loader

import (
	"fmt"
	"sort"

	"github.com/linuxdeepin/go-lib/log"
)

// CheckCapabilities looks for enhances tags no module provides and for
// tags provided by more than one module, and returns what it found. The
// core pipes are never provided by a module, so a missing provider is only
// informational while a duplicate provider is a warning.
func CheckCapabilities(logger *log.Logger, modules []Module) []string {
	providers := make(map[string][]string)
	for _, m := range modules {
		for _, tag := range m.Provides() {
			providers[tag] = append(providers[tag], m.Name())
		}
	}

	var warnings []string
	for _, m := range modules {
		for _, tag := range m.Enhances() {
			if _, ok := providers[tag]; ok {
				continue
			}
			msg := fmt.Sprintf("%s enhances %s, which no module provides", m.Name(), tag)
			if logger != nil {
				logger.Info(msg)
			}
			warnings = append(warnings, msg)
		}
	}

	tags := make([]string, 0, len(providers))
	for tag := range providers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		if names := providers[tag]; len(names) > 1 {
			msg := fmt.Sprintf("%s is provided by %v", tag, names)
			if logger != nil {
				logger.Warning(msg)
			}
			warnings = append(warnings, msg)
		}
	}
	return warnings
}
