// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package backlight

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/linuxdeepin/go-lib/utils"
	"golang.org/x/xerrors"
)

const (
	DisplayBacklight byte = iota + 1
	KeyboardBacklight
)

const DefaultSysfsRoot = "/sys/class"

var logger = log.NewLogger("mce/backlight")

func SetLogLevel(pri log.Priority) {
	logger.SetLogLevel(pri)
}

func subsystemOf(type0 byte) (string, error) {
	switch type0 {
	case DisplayBacklight:
		return "backlight", nil
	case KeyboardBacklight:
		return "leds", nil
	}
	return "", fmt.Errorf("invalid type %d", type0)
}

// DeviceDir returns the sysfs directory of the named backlight device.
func DeviceDir(sysfsRoot string, type0 byte, name string) (string, error) {
	subsystem, err := subsystemOf(type0)
	if err != nil {
		return "", err
	}

	// check name
	if strings.ContainsRune(name, '/') || name == "" ||
		name == "." || name == ".." {
		return "", fmt.Errorf("invalid name %q", name)
	}

	return filepath.Join(sysfsRoot, subsystem, name), nil
}

// Discover returns the first device of the subsystem, in lexical order.
func Discover(sysfsRoot string, type0 byte) (string, error) {
	subsystem, err := subsystemOf(type0)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(filepath.Join(sysfsRoot, subsystem))
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		dir := filepath.Join(sysfsRoot, subsystem, name)
		if utils.IsFileExist(filepath.Join(dir, "brightness")) {
			return dir, nil
		}
	}
	return "", xerrors.Errorf("no %s device under %s", subsystem, sysfsRoot)
}

// Writer controls one brightness file and knows its maximum.
type Writer struct {
	BrightnessPath string
	MaxPath        string

	max int
}

func NewWriter(dir string) *Writer {
	return &Writer{
		BrightnessPath: filepath.Join(dir, "brightness"),
		MaxPath:        filepath.Join(dir, "max_brightness"),
	}
}

func readInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, xerrors.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

// Max reads the hardware maximum once and caches it.
func (w *Writer) Max() (int, error) {
	if w.max > 0 {
		return w.max, nil
	}
	v, err := readInt(w.MaxPath)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, xerrors.Errorf("%s: bogus maximum %d", w.MaxPath, v)
	}
	w.max = v
	return v, nil
}

func (w *Writer) Get() (int, error) {
	return readInt(w.BrightnessPath)
}

// Set writes v clamped to [0, Max].
func (w *Writer) Set(v int) error {
	if v < 0 {
		v = 0
	}
	if max, err := w.Max(); err == nil && v > max {
		v = max
	}

	fh, err := os.OpenFile(w.BrightnessPath, os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	defer fh.Close()

	_, err = fh.WriteString(strconv.Itoa(v))
	if err != nil {
		return err
	}
	logger.Debugf("%s <- %d", w.BrightnessPath, v)
	return nil
}

// SetPercent writes max*percent/100.
func (w *Writer) SetPercent(percent int) (int, error) {
	max, err := w.Max()
	if err != nil {
		return 0, err
	}
	v := max * percent / 100
	return v, w.Set(v)
}
