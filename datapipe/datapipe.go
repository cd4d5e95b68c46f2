// SPDX-FileCopyrightText: 2018 - 2023 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datapipe

import (
	"github.com/linuxdeepin/go-lib/log"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("mce/datapipe")

func SetLogLevel(pri log.Priority) {
	logger.SetLogLevel(pri)
}

type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

type Ownership int

const (
	DontFreeCache Ownership = iota
	FreeCache
)

// CacheSource selects the seed of Execute.
type CacheSource int

const (
	UseIndata CacheSource = iota
	UseCache
)

// CachePolicy selects whether the filtered value replaces the cache.
type CachePolicy int

const (
	DontCacheIndata CachePolicy = iota
	CacheIndata
)

type Filter func(Payload) Payload
type Trigger func(Payload)

// Handle identifies one filter or trigger registration.
type Handle uint64

// Releaser is called for every owned payload the pipe lets go of.
type Releaser interface {
	Release(Payload)
}

type ReleaserFunc func(Payload)

func (fn ReleaserFunc) Release(p Payload) {
	fn(p)
}

var defaultReleaser = ReleaserFunc(func(p Payload) {
	for i := range p.Blob {
		p.Blob[i] = 0
	}
})

var ErrReadOnly = xerrors.New("datapipe is read only")

type filterEntry struct {
	handle Handle
	fn     Filter
}

type triggerEntry struct {
	handle Handle
	fn     Trigger
}

type Pipe struct {
	name      string
	access    Access
	ownership Ownership
	elemSize  int
	kind      Kind

	cached   Payload
	filters  []filterEntry
	triggers []triggerEntry

	releaser   Releaser
	lastHandle Handle
	depth      int
	destroyed  bool
}

// New creates a pipe. A non-zero elemSize or FreeCache ownership makes it a
// blob pipe, otherwise it carries scalars.
func New(name string, access Access, ownership Ownership, elemSize int, initial Payload) *Pipe {
	kind := KindScalar
	if elemSize > 0 || ownership == FreeCache {
		kind = KindBlob
	}
	if initial.Kind != kind {
		logger.Warningf("pipe %s: initial value kind %v does not match %v", name, initial.Kind, kind)
		if kind == KindBlob {
			initial = None()
		} else {
			initial = Int(initial.Int)
		}
	}
	return &Pipe{
		name:      name,
		access:    access,
		ownership: ownership,
		elemSize:  elemSize,
		kind:      kind,
		cached:    initial,
		releaser:  defaultReleaser,
	}
}

func (p *Pipe) Name() string {
	return p.name
}

func (p *Pipe) Access() Access {
	return p.access
}

func (p *Pipe) Ownership() Ownership {
	return p.ownership
}

func (p *Pipe) Kind() Kind {
	return p.kind
}

func (p *Pipe) ElemSize() int {
	return p.elemSize
}

func (p *Pipe) SetReleaser(r Releaser) {
	if r == nil {
		r = defaultReleaser
	}
	p.releaser = r
}

func (p *Pipe) Destroyed() bool {
	return p.destroyed
}

// Destroy drops filters and triggers and releases an owned cache. Calling
// it again does nothing.
func (p *Pipe) Destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	if len(p.filters) != 0 || len(p.triggers) != 0 {
		logger.Warningf("pipe %s destroyed with %d filters and %d triggers attached",
			p.name, len(p.filters), len(p.triggers))
	}
	p.filters = nil
	p.triggers = nil
	p.release(p.cached)
	if p.kind == KindBlob {
		p.cached = None()
	}
}

func (p *Pipe) release(old Payload) {
	if p.ownership != FreeCache || old.Blob == nil {
		return
	}
	p.releaser.Release(old)
}

func (p *Pipe) nextHandle() Handle {
	p.lastHandle++
	return p.lastHandle
}

func (p *Pipe) AddFilter(fn Filter) Handle {
	if fn == nil {
		return 0
	}
	if p.destroyed {
		logger.Warningf("pipe %s: filter added after teardown", p.name)
		return 0
	}
	h := p.nextHandle()
	p.filters = append(p.filters, filterEntry{handle: h, fn: fn})
	return h
}

// RemoveFilter reports whether h was attached. Unknown handles are ignored.
func (p *Pipe) RemoveFilter(h Handle) bool {
	for i, e := range p.filters {
		if e.handle == h {
			filters := make([]filterEntry, 0, len(p.filters)-1)
			filters = append(filters, p.filters[:i]...)
			p.filters = append(filters, p.filters[i+1:]...)
			return true
		}
	}
	logger.Debugf("pipe %s: filter %d not attached", p.name, h)
	return false
}

func (p *Pipe) AddTrigger(fn Trigger) Handle {
	if fn == nil {
		return 0
	}
	if p.destroyed {
		logger.Warningf("pipe %s: trigger added after teardown", p.name)
		return 0
	}
	h := p.nextHandle()
	p.triggers = append(p.triggers, triggerEntry{handle: h, fn: fn})
	return h
}

func (p *Pipe) RemoveTrigger(h Handle) bool {
	for i, e := range p.triggers {
		if e.handle == h {
			triggers := make([]triggerEntry, 0, len(p.triggers)-1)
			triggers = append(triggers, p.triggers[:i]...)
			p.triggers = append(triggers, p.triggers[i+1:]...)
			return true
		}
	}
	logger.Debugf("pipe %s: trigger %d not attached", p.name, h)
	return false
}

func (p *Pipe) FilterCount() int {
	return len(p.filters)
}

func (p *Pipe) TriggerCount() int {
	return len(p.triggers)
}

// Cached returns the committed value. Blob data is copied.
func (p *Pipe) Cached() Payload {
	return p.cached.clone()
}

func (p *Pipe) Int() int {
	return p.cached.Int
}

func (p *Pipe) Bool() bool {
	return p.cached.Int != 0
}

func (p *Pipe) acceptable(in Payload) bool {
	if in.Kind != p.kind {
		logger.Warningf("pipe %s: rejected %v payload", p.name, in.Kind)
		return false
	}
	if p.kind == KindBlob && p.elemSize > 0 && in.Blob != nil && len(in.Blob) != p.elemSize {
		logger.Warningf("pipe %s: rejected blob of %d bytes, want %d", p.name, len(in.Blob), p.elemSize)
		return false
	}
	return true
}

// Execute runs a value through the filter chain, optionally commits it to
// the cache and hands it to every trigger. Without input, or with UseCache,
// the current cache is re-evaluated.
//
// The pipe takes ownership of a blob input. The returned blob belongs to
// the caller: when the result was cached the caller gets a copy.
func (p *Pipe) Execute(in *Payload, src CacheSource, policy CachePolicy) Payload {
	if p.destroyed {
		logger.Warningf("pipe %s: execute after teardown", p.name)
		return p.cached.clone()
	}

	p.depth++
	defer func() {
		p.depth--
	}()
	if p.depth > 1 {
		logger.Debugf("pipe %s: nested execute, depth %d", p.name, p.depth)
	}

	var data Payload
	if src == UseCache || in == nil || !p.acceptable(*in) {
		data = p.cached.clone()
	} else {
		data = *in
	}

	filters := p.filters
	for _, e := range filters {
		data = e.fn(data)
	}

	if !p.acceptable(data) {
		// filters are total functions, this is a module bug
		logger.Errorf("pipe %s: filter chain produced invalid payload", p.name)
		data = p.cached.clone()
	}

	cached := false
	if policy == CacheIndata {
		old := p.cached
		p.cached = data
		p.release(old)
		cached = true
	}

	p.runTriggers(data)

	if cached {
		return data.clone()
	}
	return data
}

// ExecuteTriggers notifies observers without filtering or caching.
func (p *Pipe) ExecuteTriggers(in Payload) {
	if p.destroyed {
		return
	}
	if !p.acceptable(in) {
		return
	}
	p.runTriggers(in)
}

func (p *Pipe) runTriggers(data Payload) {
	triggers := p.triggers
	for _, e := range triggers {
		e.fn(data)
	}
}

// Submit is the entry point for external producers; read only pipes
// refuse it.
func (p *Pipe) Submit(in Payload) (Payload, error) {
	if p.access != ReadWrite {
		return p.Cached(), xerrors.Errorf("%s: %w", p.name, ErrReadOnly)
	}
	return p.Execute(&in, UseIndata, CacheIndata), nil
}
