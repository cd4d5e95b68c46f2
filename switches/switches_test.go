// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package switches

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/mce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUEvent(t *testing.T) {
	tests := []struct {
		name   string
		action string
		env    map[string]string
		want   []Update
	}{
		{
			name:   "mains online",
			action: "change",
			env:    map[string]string{"SUBSYSTEM": "power_supply", "POWER_SUPPLY_TYPE": "Mains", "POWER_SUPPLY_ONLINE": "1"},
			want:   []Update{{mce.PipeChargerState, 1}},
		},
		{
			name:   "usb offline",
			action: "change",
			env:    map[string]string{"SUBSYSTEM": "power_supply", "POWER_SUPPLY_TYPE": "USB_DCP", "POWER_SUPPLY_ONLINE": "0"},
			want:   []Update{{mce.PipeChargerState, 0}, {mce.PipeUSBCable, 0}},
		},
		{
			name:   "battery low",
			action: "change",
			env:    map[string]string{"SUBSYSTEM": "power_supply", "POWER_SUPPLY_TYPE": "Battery", "POWER_SUPPLY_CAPACITY": "8", "POWER_SUPPLY_STATUS": "Discharging"},
			want:   []Update{{mce.PipeBatteryLevel, 8}, {mce.PipeBatteryStatus, int(mce.BatteryStatusLow)}},
		},
		{
			name:   "battery full clamps",
			action: "add",
			env:    map[string]string{"SUBSYSTEM": "power_supply", "POWER_SUPPLY_TYPE": "Battery", "POWER_SUPPLY_CAPACITY": "104", "POWER_SUPPLY_STATUS": "Full"},
			want:   []Update{{mce.PipeBatteryLevel, 100}, {mce.PipeBatteryStatus, int(mce.BatteryStatusFull)}},
		},
		{
			name:   "battery without capacity",
			action: "change",
			env:    map[string]string{"SUBSYSTEM": "power_supply", "POWER_SUPPLY_TYPE": "Battery", "POWER_SUPPLY_STATUS": "Charging"},
			want:   nil,
		},
		{
			name:   "lid closed",
			action: "change",
			env:    map[string]string{"SUBSYSTEM": "switch", "SWITCH_NAME": "lid", "SWITCH_STATE": "1"},
			want:   []Update{{mce.PipeLidCover, int(mce.CoverClosed)}},
		},
		{
			name:   "headset",
			action: "change",
			env:    map[string]string{"SUBSYSTEM": "switch", "SWITCH_NAME": "h2w", "SWITCH_STATE": "2"},
			want:   []Update{{mce.PipeJackSense, 1}},
		},
		{
			name:   "unknown switch",
			action: "change",
			env:    map[string]string{"SUBSYSTEM": "switch", "SWITCH_NAME": "dock", "SWITCH_STATE": "1"},
		},
		{
			name:   "removal",
			action: "remove",
			env:    map[string]string{"SUBSYSTEM": "power_supply", "POWER_SUPPLY_TYPE": "Mains", "POWER_SUPPLY_ONLINE": "1"},
		},
		{
			name:   "other subsystem",
			action: "add",
			env:    map[string]string{"SUBSYSTEM": "block"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseUEvent(tt.action, tt.env))
		})
	}
}

func TestParseEnv(t *testing.T) {
	env, err := ParseEnv(strings.NewReader("POWER_SUPPLY_NAME=AC\nPOWER_SUPPLY_ONLINE=1\n\nbogus\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"POWER_SUPPLY_NAME":   "AC",
		"POWER_SUPPLY_ONLINE": "1",
	}, env)
}

func TestScanAndApply(t *testing.T) {
	ctx, err := mce.NewContext(nil, nil)
	require.NoError(t, err)
	defer ctx.Close()

	root := t.TempDir()
	write := func(class, dev, content string) {
		dir := filepath.Join(root, class, dev)
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "uevent"), []byte(content), 0644))
	}
	write("power_supply", "AC", "POWER_SUPPLY_TYPE=Mains\nPOWER_SUPPLY_ONLINE=1\n")
	write("power_supply", "BAT0", "POWER_SUPPLY_TYPE=Battery\nPOWER_SUPPLY_CAPACITY=55\nPOWER_SUPPLY_STATUS=Charging\n")
	write("switch", "lid", "SWITCH_NAME=lid\nSWITCH_STATE=0\n")

	var seen []int
	ctx.Pipe(mce.PipeChargerState).AddTrigger(func(p dp.Payload) {
		seen = append(seen, p.Int)
	})

	m := NewMonitor(ctx)
	m.sysfsRoot = root
	m.Scan()

	assert.Equal(t, 1, ctx.Pipe(mce.PipeChargerState).Int())
	assert.Equal(t, 55, ctx.Pipe(mce.PipeBatteryLevel).Int())
	assert.Equal(t, int(mce.BatteryStatusOK), ctx.Pipe(mce.PipeBatteryStatus).Int())
	assert.Equal(t, int(mce.CoverOpen), ctx.Pipe(mce.PipeLidCover).Int())

	// unchanged values do not re-run the pipe
	m.Apply([]Update{{mce.PipeChargerState, 1}, {"no_such_pipe", 3}})
	assert.Equal(t, []int{1}, seen)
}
