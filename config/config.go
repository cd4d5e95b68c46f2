// SPDX-FileCopyrightText: 2018 - 2023 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/linuxdeepin/go-lib/keyfile"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/linuxdeepin/go-lib/utils"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("mce/config")

func SetLogLevel(pri log.Priority) {
	logger.SetLogLevel(pri)
}

const (
	DefaultPath = "/etc/mce/mce.ini"
	dropinExt   = ".ini"
)

// Config is the main ini file plus the drop-ins from <main>.d, later
// files overriding earlier ones key by key.
type Config struct {
	mainPath string
	paths    []string
	files    []*keyfile.KeyFile
}

// Empty returns a configuration without any file; every getter yields its
// default.
func Empty() *Config {
	return &Config{}
}

func Load(mainPath string) (*Config, error) {
	c := &Config{mainPath: mainPath}
	err := c.Reload()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) MainPath() string {
	return c.mainPath
}

func (c *Config) DropinDir() string {
	if c.mainPath == "" {
		return ""
	}
	return c.mainPath + ".d"
}

func (c *Config) Paths() []string {
	return append([]string(nil), c.paths...)
}

func (c *Config) candidates() []string {
	if c.mainPath == "" {
		return nil
	}
	list := []string{c.mainPath}
	entries, err := os.ReadDir(c.DropinDir())
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warning(err)
		}
		return list
	}
	var dropins []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != dropinExt {
			continue
		}
		dropins = append(dropins, filepath.Join(c.DropinDir(), e.Name()))
	}
	sort.Strings(dropins)
	return append(list, dropins...)
}

// Reload re-reads all files. A missing main file is not an error, a
// malformed one is and leaves the previous contents in place.
func (c *Config) Reload() error {
	var paths []string
	var files []*keyfile.KeyFile
	for _, path := range c.candidates() {
		if !utils.IsFileExist(path) {
			logger.Debug("config file not found:", path)
			continue
		}
		kf := keyfile.NewKeyFile()
		err := kf.LoadFromFile(path)
		if err != nil {
			return xerrors.Errorf("load %s: %w", path, err)
		}
		paths = append(paths, path)
		files = append(files, kf)
	}
	if len(paths) == 0 && c.mainPath != "" {
		logger.Warningf("no configuration found at %s, using defaults", c.mainPath)
	}
	c.paths = paths
	c.files = files
	logger.Debug("config files:", spew.Sdump(paths))
	return nil
}

func (c *Config) HasGroup(group string) bool {
	for _, kf := range c.files {
		for _, section := range kf.GetSections() {
			if section == group {
				return true
			}
		}
	}
	return false
}

func (c *Config) lookup(group, key string) (string, bool) {
	for i := len(c.files) - 1; i >= 0; i-- {
		value, err := c.files[i].GetString(group, key)
		if err == nil {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

func (c *Config) GetString(group, key, def string) string {
	value, ok := c.lookup(group, key)
	if !ok {
		return def
	}
	return value
}

func (c *Config) GetBool(group, key string, def bool) bool {
	for i := len(c.files) - 1; i >= 0; i-- {
		if _, err := c.files[i].GetString(group, key); err != nil {
			continue
		}
		value, err := c.files[i].GetBool(group, key)
		if err != nil {
			logger.Warningf("[%s] %s: %v", group, key, err)
			return def
		}
		return value
	}
	return def
}

func (c *Config) GetInt(group, key string, def int) int {
	value, ok := c.lookup(group, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logger.Warningf("[%s] %s: %q is not an integer", group, key, value)
		return def
	}
	return n
}

func (c *Config) GetStringList(group, key string) []string {
	for i := len(c.files) - 1; i >= 0; i-- {
		if _, err := c.files[i].GetString(group, key); err != nil {
			continue
		}
		list, err := c.files[i].GetStringList(group, key)
		if err != nil {
			logger.Warningf("[%s] %s: %v", group, key, err)
			return nil
		}
		var result []string
		for _, item := range list {
			item = strings.TrimSpace(item)
			if item != "" {
				result = append(result, item)
			}
		}
		return result
	}
	return nil
}

// GetIntList parses a ';' separated list. A missing key yields a nil
// slice and no error.
func (c *Config) GetIntList(group, key string) ([]int, error) {
	items := c.GetStringList(group, key)
	if items == nil {
		return nil, nil
	}
	result := make([]int, 0, len(items))
	for _, item := range items {
		n, err := strconv.Atoi(item)
		if err != nil {
			return nil, xerrors.Errorf("[%s] %s: %q is not an integer", group, key, item)
		}
		result = append(result, n)
	}
	return result, nil
}
