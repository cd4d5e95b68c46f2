// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package display

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/linuxdeepin/mce-daemon/config"
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/mainloop"
	"github.com/linuxdeepin/mce-daemon/mce"
	"github.com/linuxdeepin/mce-daemon/modules/filterbrightnesssimple"
	"github.com/linuxdeepin/mce-daemon/wakelock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	d  time.Duration
	fn func() bool
}

// fakeScheduler holds timeouts until the test fires them.
type fakeScheduler struct {
	last   mainloop.SourceID
	timers map[mainloop.SourceID]*fakeTimer
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{timers: make(map[mainloop.SourceID]*fakeTimer)}
}

func (s *fakeScheduler) TimeoutAdd(d time.Duration, fn func() bool) mainloop.SourceID {
	s.last++
	s.timers[s.last] = &fakeTimer{d: d, fn: fn}
	return s.last
}

func (s *fakeScheduler) SourceRemove(id mainloop.SourceID) bool {
	_, ok := s.timers[id]
	delete(s.timers, id)
	return ok
}

func (s *fakeScheduler) armed() []time.Duration {
	var ds []time.Duration
	for _, t := range s.timers {
		ds = append(ds, t.d)
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
	return ds
}

// fire runs the pending timeout of length d.
func (s *fakeScheduler) fire(t *testing.T, d time.Duration) {
	for id, timer := range s.timers {
		if timer.d != d {
			continue
		}
		delete(s.timers, id)
		if timer.fn() {
			s.timers[id] = timer
		}
		return
	}
	t.Fatalf("no %s timeout armed, have %v", d, s.armed())
}

type fixture struct {
	t         *testing.T
	ctx       *mce.Context
	module    *Module
	simple    *filterbrightnesssimple.Module
	clock     *fakeScheduler
	panel     string
	powerRoot string
	states    []mce.DisplayState
}

func newFixture(t *testing.T, extraIni string) *fixture {
	dir := t.TempDir()
	panel := filepath.Join(dir, "backlight", "panel0")
	require.NoError(t, os.MkdirAll(panel, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(panel, "brightness"), []byte("0"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(panel, "max_brightness"), []byte("255\n"), 0644))

	powerRoot := filepath.Join(dir, "power")
	require.NoError(t, os.MkdirAll(powerRoot, 0755))
	for _, name := range []string{"wake_lock", "wake_unlock", "autosleep"} {
		require.NoError(t, os.WriteFile(filepath.Join(powerRoot, name), nil, 0644))
	}
	wakelock.SetRoot(powerRoot)
	t.Cleanup(func() {
		wakelock.SetRoot(wakelock.DefaultRoot)
	})

	ini := filepath.Join(dir, "mce.ini")
	content := "[Display]\nBrightnessPath=" + panel + "\n" + extraIni
	require.NoError(t, os.WriteFile(ini, []byte(content), 0644))
	cfg, err := config.Load(ini)
	require.NoError(t, err)

	ctx, err := mce.NewContext(nil, cfg)
	require.NoError(t, err)

	f := &fixture{
		t:         t,
		ctx:       ctx,
		module:    NewModule(),
		simple:    filterbrightnesssimple.NewModule(),
		clock:     newFakeScheduler(),
		panel:     panel,
		powerRoot: powerRoot,
	}
	ctx.Pipe(mce.PipeDisplayState).AddTrigger(func(p dp.Payload) {
		f.states = append(f.states, mce.DisplayState(p.Int))
	})
	f.module.sched = f.clock
	require.NoError(t, f.simple.Register(ctx))
	require.NoError(t, f.module.Register(ctx))
	t.Cleanup(func() {
		f.module.Unregister(ctx)
		f.simple.Unregister(ctx)
		ctx.Close()
	})
	return f
}

func (f *fixture) execute(pipe string, v int) {
	in := dp.Int(v)
	f.ctx.Pipe(pipe).Execute(&in, dp.UseIndata, dp.CacheIndata)
}

func (f *fixture) request(state mce.DisplayState) {
	f.execute(mce.PipeDisplayStateReq, int(state))
}

func (f *fixture) read(path string) string {
	data, err := os.ReadFile(path)
	require.NoError(f.t, err)
	return strings.TrimSpace(string(data))
}

func (f *fixture) brightness() string {
	return f.read(filepath.Join(f.panel, "brightness"))
}

func TestUserStateTurnsDisplayOn(t *testing.T) {
	f := newFixture(t, "")
	assert.Equal(t, 255, f.module.MaxBrightness())

	// no system state yet
	f.request(mce.DisplayOn)
	assert.Equal(t, mce.DisplayUndef, f.ctx.DisplayState())

	f.execute(mce.PipeSystemState, int(mce.SystemUser))
	assert.Equal(t, mce.DisplayOn, f.ctx.DisplayState())
	assert.Equal(t, "127", f.brightness())
	assert.Equal(t, "mce_display_on", f.read(filepath.Join(f.powerRoot, "wake_lock")))

	f.ctx.SubmitInput(mce.PipeDisplayBrightness, dp.Int(5))
	assert.Equal(t, "255", f.brightness())

	f.request(mce.DisplayDim)
	assert.Equal(t, mce.DisplayDim, f.ctx.DisplayState())
	assert.Equal(t, "25", f.brightness())

	f.request(mce.DisplayLPMOn)
	assert.Equal(t, mce.DisplayOff, f.ctx.DisplayState())
	assert.Equal(t, "0", f.brightness())
	assert.Equal(t, "mce_display_on", f.read(filepath.Join(f.powerRoot, "wake_unlock")))

	// a setting changed in the dark is applied on unblank
	f.ctx.SubmitInput(mce.PipeDisplayBrightness, dp.Int(2))
	assert.Equal(t, "0", f.brightness())
	f.request(mce.DisplayOn)
	assert.Equal(t, "63", f.brightness())

	assert.Equal(t, []mce.DisplayState{
		mce.DisplayOn, mce.DisplayDim, mce.DisplayOff, mce.DisplayOn,
	}, f.states)
}

func TestLowPowerMode(t *testing.T) {
	f := newFixture(t, "LowPowerMode=true\nLowPowerModeSupported=true\n")
	f.execute(mce.PipeSystemState, int(mce.SystemUser))
	require.Equal(t, mce.DisplayOn, f.ctx.DisplayState())

	f.request(mce.DisplayOff)
	assert.Equal(t, mce.DisplayLPMOn, f.ctx.DisplayState())
	assert.Equal(t, "0", f.brightness())

	f.request(mce.DisplayLPMOff)
	assert.Equal(t, mce.DisplayLPMOff, f.ctx.DisplayState())
}

func TestNeverBlank(t *testing.T) {
	f := newFixture(t, "NeverBlank=true\n")
	f.request(mce.DisplayOff)
	assert.Equal(t, mce.DisplayOn, f.ctx.DisplayState())
}

func TestIgnoreUnblankDuringShutdown(t *testing.T) {
	f := newFixture(t, "")
	f.execute(mce.PipeSubmode, mce.SubmodeTransition)
	f.execute(mce.PipeSystemState, int(mce.SystemShutdown))

	f.request(mce.DisplayOn)
	assert.Equal(t, mce.DisplayUndef, f.ctx.DisplayState())

	// turning off is always allowed
	f.request(mce.DisplayOff)
	assert.Equal(t, mce.DisplayOff, f.ctx.DisplayState())
	f.request(mce.DisplayOn)
	assert.Equal(t, mce.DisplayOff, f.ctx.DisplayState())
}

func TestNoBacklight(t *testing.T) {
	wakelock.SetRoot(t.TempDir())
	defer wakelock.SetRoot(wakelock.DefaultRoot)

	ini := filepath.Join(t.TempDir(), "mce.ini")
	require.NoError(t, os.WriteFile(ini, []byte("[Display]\nSysfsRoot="+t.TempDir()+"\n"), 0644))
	cfg, err := config.Load(ini)
	require.NoError(t, err)
	ctx, err := mce.NewContext(nil, cfg)
	require.NoError(t, err)
	defer ctx.Close()

	m := NewModule()
	require.NoError(t, m.Register(ctx))
	defer m.Unregister(ctx)
	assert.Equal(t, 0, m.MaxBrightness())

	in := dp.Int(int(mce.SystemUser))
	ctx.Pipe(mce.PipeSystemState).Execute(&in, dp.UseIndata, dp.CacheIndata)
	assert.Equal(t, mce.DisplayOn, ctx.DisplayState())
}

func TestInactivityTimers(t *testing.T) {
	f := newFixture(t, "")
	assert.Equal(t, 33, f.ctx.Pipe(mce.PipeInactivityTimeout).Int())
	assert.Empty(t, f.clock.armed())

	f.execute(mce.PipeSystemState, int(mce.SystemUser))
	require.Equal(t, mce.DisplayOn, f.ctx.DisplayState())
	assert.Equal(t, []time.Duration{30 * time.Second}, f.clock.armed())

	f.clock.fire(t, 30*time.Second)
	assert.Equal(t, mce.DisplayDim, f.ctx.DisplayState())
	assert.Equal(t, "25", f.brightness())
	assert.Equal(t, []time.Duration{3 * time.Second}, f.clock.armed())

	// activity while dimmed
	f.execute(mce.PipeDeviceInactive, 0)
	assert.Equal(t, mce.DisplayOn, f.ctx.DisplayState())
	assert.Equal(t, "127", f.brightness())
	assert.Equal(t, []time.Duration{30 * time.Second}, f.clock.armed())

	// activity while on restarts the dim timer
	f.execute(mce.PipeDeviceInactive, 0)
	assert.Equal(t, []time.Duration{30 * time.Second}, f.clock.armed())

	f.execute(mce.PipeDeviceInactive, 1)
	assert.Equal(t, mce.DisplayOn, f.ctx.DisplayState())

	f.clock.fire(t, 30*time.Second)
	f.clock.fire(t, 3*time.Second)
	assert.Equal(t, mce.DisplayOff, f.ctx.DisplayState())
	assert.Equal(t, "0", f.brightness())
	assert.Empty(t, f.clock.armed())

	f.execute(mce.PipeDeviceInactive, 0)
	assert.Equal(t, mce.DisplayOn, f.ctx.DisplayState())
}

func TestLowPowerTimers(t *testing.T) {
	f := newFixture(t, "LowPowerMode=true\nLowPowerModeSupported=true\n"+
		"DimTimeout=10\nLPMTimeout=7\nLPMBlankTimeout=4\n")
	assert.Equal(t, 13, f.ctx.Pipe(mce.PipeInactivityTimeout).Int())

	f.execute(mce.PipeSystemState, int(mce.SystemUser))
	assert.Equal(t, []time.Duration{10 * time.Second}, f.clock.armed())

	f.clock.fire(t, 10*time.Second)
	assert.Equal(t, mce.DisplayDim, f.ctx.DisplayState())
	assert.Equal(t, []time.Duration{7 * time.Second}, f.clock.armed())

	f.clock.fire(t, 7*time.Second)
	assert.Equal(t, mce.DisplayLPMOn, f.ctx.DisplayState())
	assert.Equal(t, []time.Duration{4 * time.Second}, f.clock.armed())

	// covered while in low power mode
	f.execute(mce.PipeProximitySensor, int(mce.CoverClosed))
	assert.Equal(t, []time.Duration{4 * time.Second, 5 * time.Second}, f.clock.armed())

	f.clock.fire(t, 5*time.Second)
	assert.Equal(t, mce.DisplayLPMOff, f.ctx.DisplayState())
	assert.Empty(t, f.clock.armed())

	// uncovering wakes the low power display
	f.execute(mce.PipeProximitySensor, int(mce.CoverOpen))
	assert.Equal(t, mce.DisplayLPMOn, f.ctx.DisplayState())
	assert.Equal(t, []time.Duration{4 * time.Second}, f.clock.armed())

	f.clock.fire(t, 4*time.Second)
	assert.Equal(t, mce.DisplayLPMOff, f.ctx.DisplayState())
}

func TestProximityBlankDuringCall(t *testing.T) {
	f := newFixture(t, "LowPowerMode=true\nLowPowerModeSupported=true\n")
	f.execute(mce.PipeSystemState, int(mce.SystemUser))
	f.request(mce.DisplayOff)
	require.Equal(t, mce.DisplayLPMOn, f.ctx.DisplayState())

	f.execute(mce.PipeAudioRoute, int(mce.AudioRouteHandset))
	f.execute(mce.PipeCallState, int(mce.CallStateActive))
	f.execute(mce.PipeProximitySensor, int(mce.CoverClosed))
	assert.Contains(t, f.clock.armed(), time.Duration(0))
}

func TestTklockSkipsDimming(t *testing.T) {
	f := newFixture(t, "")
	f.execute(mce.PipeSubmode, mce.SubmodeTklock)
	f.execute(mce.PipeSystemState, int(mce.SystemUser))
	require.Equal(t, mce.DisplayOn, f.ctx.DisplayState())
	assert.Empty(t, f.clock.armed())
}

func TestTimersCancelledOnUnregister(t *testing.T) {
	f := newFixture(t, "")
	f.execute(mce.PipeSystemState, int(mce.SystemUser))
	require.NotEmpty(t, f.clock.armed())
	f.module.Unregister(f.ctx)
	assert.Empty(t, f.clock.armed())
}
