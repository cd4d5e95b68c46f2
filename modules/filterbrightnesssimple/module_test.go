// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package filterbrightnesssimple

import (
	"testing"

	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/mce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setDisplay(ctx *mce.Context, state mce.DisplayState) {
	in := dp.Int(int(state))
	ctx.Pipe(mce.PipeDisplayState).Execute(&in, dp.UseIndata, dp.CacheIndata)
}

func TestPercent(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-4, 1}, {0, 1}, {1, 1}, {2, 25}, {3, 50}, {4, 75}, {5, 100}, {6, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percent(tt.in), "setting %d", tt.in)
	}
}

func TestFilter(t *testing.T) {
	ctx, err := mce.NewContext(nil, nil)
	require.NoError(t, err)
	defer ctx.Close()

	var seen []int
	brightness := ctx.Pipe(mce.PipeDisplayBrightness)
	brightness.AddTrigger(func(p dp.Payload) {
		seen = append(seen, p.Int)
	})

	m := NewModule()
	require.NoError(t, m.Register(ctx))
	// registration re-filters the initial setting 3
	assert.Equal(t, []int{50}, seen)
	assert.Equal(t, 50, brightness.Int())
	assert.Equal(t, 3, ctx.Input(mce.PipeDisplayBrightness).Int)

	setDisplay(ctx, mce.DisplayOn)
	for _, setting := range []int{1, 2, 3, 4, 5} {
		in := dp.Int(setting)
		out := brightness.Execute(&in, dp.UseIndata, dp.DontCacheIndata)
		assert.Equal(t, Percent(setting), out.Int)
	}

	for _, state := range []mce.DisplayState{mce.DisplayOff, mce.DisplayLPMOff, mce.DisplayLPMOn} {
		setDisplay(ctx, state)
		out := ctx.Refilter(mce.PipeDisplayBrightness)
		assert.Equal(t, 0, out.Int, state.String())
	}

	in := dp.Int(4)
	ctx.SubmitInput(mce.PipeDisplayBrightness, in)
	assert.Equal(t, 0, brightness.Int())

	setDisplay(ctx, mce.DisplayDim)
	out := ctx.Refilter(mce.PipeDisplayBrightness)
	assert.Equal(t, 75, out.Int)
	assert.Equal(t, 75, brightness.Int())

	m.Unregister(ctx)
	assert.Equal(t, 0, brightness.FilterCount())
	assert.Equal(t, 1, brightness.TriggerCount())
	assert.Equal(t, 0, ctx.Pipe(mce.PipeDisplayState).TriggerCount())
}
