// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package loader

import (
	"bytes"
	"errors"
	"testing"

	"github.com/linuxdeepin/go-lib/log"
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/mce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type Test_Module struct {
	*ModuleBase
	journal  *[]string
	fail     bool
	panics   bool
	attachOk bool
}

func NewTestModule(name string, priority int, journal *[]string) *Test_Module {
	m := &Test_Module{journal: journal}
	m.ModuleBase = NewModuleBase(Meta{
		Name:     name,
		Provides: []string{name + "-filter"},
		Enhances: []string{"display-brightness"},
		Priority: priority,
	}, log.NewLogger("test/"+name))
	return m
}

func (m *Test_Module) Register(ctx *mce.Context) error {
	pipe := ctx.Pipe(mce.PipeDisplayBrightness)
	// appends a digit per module, so the result spells out the order
	digit := int(m.Name()[0]-'a') + 1
	m.AddFilter(pipe, func(p dp.Payload) dp.Payload {
		*m.journal = append(*m.journal, "filter "+m.Name())
		return dp.Int(p.Int*10 + digit)
	})
	m.AddTrigger(pipe, func(dp.Payload) {})
	if m.panics {
		panic("boom")
	}
	if m.fail {
		return errors.New("no hardware")
	}
	*m.journal = append(*m.journal, "load "+m.Name())
	return nil
}

func (m *Test_Module) Unregister(ctx *mce.Context) {
	*m.journal = append(*m.journal, "unload "+m.Name())
	m.Detach()
}

func newContext(t *testing.T) *mce.Context {
	ctx, err := mce.NewContext(nil, nil)
	require.NoError(t, err)
	t.Cleanup(ctx.Close)
	return ctx
}

func newLoader(modules ...Module) *Loader {
	l := New()
	for _, m := range modules {
		l.AddModule(m)
	}
	return l
}

func Test_LoadOrder(t *testing.T) {
	var journal []string
	ctx := newContext(t)
	l := newLoader(
		NewTestModule("b", 20, &journal),
		NewTestModule("a", 10, &journal),
		NewTestModule("c", 20, &journal),
	)

	n, err := l.LoadAll(ctx, []string{"c", "b", "a"}, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"load a", "load c", "load b"}, journal)
	assert.Equal(t, 3, ctx.Pipe(mce.PipeDisplayBrightness).FilterCount())

	// filters run in load order on every execute
	pipe := ctx.Pipe(mce.PipeDisplayBrightness)
	for _, in := range []int{3, 5} {
		journal = nil
		v := dp.Int(in)
		out := pipe.Execute(&v, dp.UseIndata, dp.DontCacheIndata)
		assert.Equal(t, in*1000+132, out.Int)
		assert.Equal(t, []string{"filter a", "filter c", "filter b"}, journal)
	}

	journal = nil
	l.UnloadAll(ctx)
	assert.Equal(t, []string{"unload b", "unload c", "unload a"}, journal)
	assert.Equal(t, 0, ctx.Pipe(mce.PipeDisplayBrightness).FilterCount())
	assert.Equal(t, 0, ctx.Pipe(mce.PipeDisplayBrightness).TriggerCount())

	// idempotent
	journal = nil
	l.UnloadAll(ctx)
	assert.Empty(t, journal)
}

func Test_SkipFailures(t *testing.T) {
	var journal []string
	ctx := newContext(t)
	broken := NewTestModule("broken", 5, &journal)
	broken.fail = true
	panicky := NewTestModule("panicky", 6, &journal)
	panicky.panics = true
	l := newLoader(broken, panicky, NewTestModule("good", 10, &journal))

	n, err := l.LoadAll(ctx, []string{"broken", "missing", "panicky", "good", "good"}, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"load good"}, journal)
	assert.Equal(t, 0, broken.Attached())
	assert.Equal(t, 0, panicky.Attached())
	assert.Equal(t, 1, ctx.Pipe(mce.PipeDisplayBrightness).FilterCount())

	infos := l.Info()
	require.Len(t, infos, 3)
	assert.Equal(t, "good", infos[0].Name)
	assert.True(t, infos[0].Active)
	assert.Equal(t, "broken", infos[1].Name)
	assert.False(t, infos[1].Active)
}

func Test_MandatoryFailure(t *testing.T) {
	var journal []string
	ctx := newContext(t)
	broken := NewTestModule("broken", 30, &journal)
	broken.fail = true
	l := newLoader(NewTestModule("first", 10, &journal), broken)

	n, err := l.LoadAll(ctx, []string{"first", "broken"}, LoadOptions{Mandatory: []string{"broken"}})
	require.Error(t, err)
	assert.Equal(t, 0, n)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, ErrorMandatoryFailed, loadErr.Code)
	assert.Equal(t, "broken", loadErr.ModuleName)
	assert.Equal(t, []string{"load first", "unload first"}, journal)
	assert.Empty(t, l.Loaded())

	_, err = newLoader().LoadAll(ctx, []string{"ghost"}, LoadOptions{Mandatory: []string{"ghost"}})
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, ErrorMandatoryFailed, loadErr.Code)
}

func Test_LoadOnce(t *testing.T) {
	var journal []string
	ctx := newContext(t)
	l := newLoader(NewTestModule("a", 10, &journal))

	_, err := l.LoadAll(ctx, []string{"a"}, LoadOptions{})
	require.NoError(t, err)
	n, err := l.LoadAll(ctx, []string{"a"}, LoadOptions{})
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, ErrorAlreadyLoaded, loadErr.Code)
	assert.Equal(t, 1, n)

	l.UnloadAll(ctx)
	_, err = l.LoadAll(ctx, []string{"a"}, LoadOptions{})
	assert.NoError(t, err)
	l.UnloadAll(ctx)
}

func Test_DumpInfo(t *testing.T) {
	var journal []string
	ctx := newContext(t)
	l := newLoader(NewTestModule("a", 10, &journal), NewTestModule("b", 250, &journal))
	_, err := l.LoadAll(ctx, []string{"b"}, LoadOptions{})
	require.NoError(t, err)
	defer l.UnloadAll(ctx)

	var buf bytes.Buffer
	require.NoError(t, l.DumpInfo(&buf))

	var out struct {
		Modules []ModuleInfo `yaml:"modules"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out.Modules, 2)
	assert.Equal(t, ModuleInfo{
		Name:     "b",
		Provides: []string{"b-filter"},
		Enhances: []string{"display-brightness"},
		Priority: 250,
		Active:   true,
	}, out.Modules[0])
	assert.False(t, out.Modules[1].Active)
}

func Test_CheckCapabilities(t *testing.T) {
	var journal []string
	a := NewTestModule("a", 10, &journal)
	b := NewTestModule("b", 10, &journal)
	b.meta.Provides = []string{"a-filter"}

	warnings := CheckCapabilities(nil, []Module{a, b})
	assert.Contains(t, warnings, "a enhances display-brightness, which no module provides")
	assert.Contains(t, warnings, "a-filter is provided by [a b]")
}

func Test_LoadErrorMessages(t *testing.T) {
	assert.Equal(t, "x is missing", (&LoadError{ModuleName: "x", Code: ErrorMissingModule}).Error())
	assert.Equal(t, "x init failed: nope", (&LoadError{ModuleName: "x", Code: ErrorInitFailed, detail: "nope"}).Error())
	assert.Panics(t, func() {
		_ = (&LoadError{Code: 99}).Error()
	})
}

type reloadingModule struct {
	*Test_Module
	reloads int
}

func (m *reloadingModule) ReloadConfig(ctx *mce.Context) {
	m.reloads++
}

func Test_ReloadConfig(t *testing.T) {
	var journal []string
	ctx := newContext(t)
	r := &reloadingModule{Test_Module: NewTestModule("r", 10, &journal)}
	l := newLoader(r, NewTestModule("plain", 20, &journal))

	l.ReloadConfig(ctx)
	assert.Equal(t, 0, r.reloads)

	_, err := l.LoadAll(ctx, []string{"r", "plain"}, LoadOptions{})
	require.NoError(t, err)
	defer l.UnloadAll(ctx)
	l.ReloadConfig(ctx)
	assert.Equal(t, 1, r.reloads)
}
