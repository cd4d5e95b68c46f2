// SPDX-FileCopyrightText: 2018 - 2023 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datapipe

import (
	"golang.org/x/xerrors"
)

// Registry owns a fixed set of pipes. Pipes are destroyed in the reverse
// of their declaration order.
type Registry struct {
	pipes  []*Pipe
	byName map[string]*Pipe
	torn   bool
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Pipe),
	}
}

func (r *Registry) Declare(p *Pipe) error {
	if r.torn {
		return xerrors.Errorf("declare %s: registry already torn down", p.Name())
	}
	if _, ok := r.byName[p.Name()]; ok {
		return xerrors.Errorf("pipe %s declared twice", p.Name())
	}
	r.pipes = append(r.pipes, p)
	r.byName[p.Name()] = p
	logger.Debug("declared pipe", p.Name())
	return nil
}

func (r *Registry) Lookup(name string) *Pipe {
	return r.byName[name]
}

func (r *Registry) Len() int {
	return len(r.pipes)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.pipes))
	for _, p := range r.pipes {
		names = append(names, p.Name())
	}
	return names
}

func (r *Registry) TornDown() bool {
	return r.torn
}

// Teardown destroys all pipes and returns their names in destruction order.
// Only the first call does any work.
func (r *Registry) Teardown() []string {
	if r.torn {
		return nil
	}
	r.torn = true
	names := make([]string, 0, len(r.pipes))
	for i := len(r.pipes) - 1; i >= 0; i-- {
		p := r.pipes[i]
		p.Destroy()
		names = append(names, p.Name())
	}
	return names
}
