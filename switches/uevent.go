// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package switches

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/linuxdeepin/mce-daemon/mce"
)

const (
	BatteryLowLevel   = 10
	BatteryEmptyLevel = 3
)

// Update is a value destined for one pipe.
type Update struct {
	Pipe  string
	Value int
}

func atoi(env map[string]string, key string) (int, bool) {
	s, ok := env[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return v, true
}

func batteryStatus(status string, capacity int, haveCapacity bool) mce.BatteryStatus {
	if status == "Full" {
		return mce.BatteryStatusFull
	}
	if !haveCapacity {
		return mce.BatteryStatusUndef
	}
	switch {
	case capacity <= BatteryEmptyLevel:
		return mce.BatteryStatusEmpty
	case capacity <= BatteryLowLevel:
		return mce.BatteryStatusLow
	}
	return mce.BatteryStatusOK
}

func parsePowerSupply(env map[string]string) []Update {
	var updates []Update
	typ := env["POWER_SUPPLY_TYPE"]
	switch {
	case typ == "Battery":
		capacity, ok := atoi(env, "POWER_SUPPLY_CAPACITY")
		if ok {
			if capacity < 0 {
				capacity = 0
			} else if capacity > 100 {
				capacity = 100
			}
			updates = append(updates, Update{mce.PipeBatteryLevel, capacity})
		}
		status := batteryStatus(env["POWER_SUPPLY_STATUS"], capacity, ok)
		if status != mce.BatteryStatusUndef {
			updates = append(updates, Update{mce.PipeBatteryStatus, int(status)})
		}

	case typ == "Mains" || strings.HasPrefix(typ, "USB"):
		online, ok := atoi(env, "POWER_SUPPLY_ONLINE")
		if !ok {
			break
		}
		if online != 0 {
			online = 1
		}
		updates = append(updates, Update{mce.PipeChargerState, online})
		if strings.HasPrefix(typ, "USB") {
			updates = append(updates, Update{mce.PipeUSBCable, online})
		}
	}
	return updates
}

var switchPipes = map[string]string{
	"lid":               mce.PipeLidCover,
	"h2w":               mce.PipeJackSense,
	"headset":           mce.PipeJackSense,
	"camera_lens_cover": mce.PipeLensCover,
	"kb_slide":          mce.PipeKeyboardSlide,
	"keyboard_slide":    mce.PipeKeyboardSlide,
}

func parseSwitch(env map[string]string) []Update {
	pipe, ok := switchPipes[env["SWITCH_NAME"]]
	if !ok {
		return nil
	}
	state, ok := atoi(env, "SWITCH_STATE")
	if !ok {
		return nil
	}
	if pipe == mce.PipeLidCover || pipe == mce.PipeLensCover {
		if state != 0 {
			return []Update{{pipe, int(mce.CoverClosed)}}
		}
		return []Update{{pipe, int(mce.CoverOpen)}}
	}
	if state != 0 {
		state = 1
	}
	return []Update{{pipe, state}}
}

// ParseUEvent maps a kernel uevent onto pipe updates. Removal events and
// unknown devices produce nothing.
func ParseUEvent(action string, env map[string]string) []Update {
	if action == "remove" {
		return nil
	}
	switch env["SUBSYSTEM"] {
	case "power_supply":
		return parsePowerSupply(env)
	case "switch", "extcon":
		return parseSwitch(env)
	}
	return nil
}

// ParseEnv reads KEY=VALUE lines as found in a sysfs uevent file.
func ParseEnv(r io.Reader) (map[string]string, error) {
	env := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env, scanner.Err()
}
