// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package filterbrightnessals

import (
	"fmt"
	"math"

	"github.com/linuxdeepin/mce-daemon/config"
)

// LuxSteps is the maximum number of steps a ramp can have; it allows 5%
// steps over the [5, 100] range.
const LuxSteps = 20

type Profile int

const (
	ProfileMinimum Profile = iota
	ProfileEconomy
	ProfileNormal
	ProfileBright
	ProfileMaximum
	profileCount
)

func (p Profile) String() string {
	switch p {
	case ProfileMinimum:
		return "Minimum"
	case ProfileEconomy:
		return "Economy"
	case ProfileNormal:
		return "Normal"
	case ProfileBright:
		return "Bright"
	case ProfileMaximum:
		return "Maximum"
	}
	return "Unknown"
}

type limit struct {
	lux int // upper lux limit
	val int // brightness percentage
}

// ramp maps lux readings to brightness percentages, with hysteresis on
// transitions that make the output dimmer.
type ramp struct {
	id   string
	mask uint

	luxLo int
	luxHi int
	prof  Profile
	val   int

	lut [profileCount][LuxSteps + 1]limit
}

func newRamp(id string, profiles ...Profile) *ramp {
	r := &ramp{id: id}
	for _, p := range profiles {
		r.mask |= 1 << uint(p)
	}
	r.reset()
	return r
}

func (r *ramp) group() string {
	return "Brightness" + r.id
}

// reset makes any lux value map to 100%.
func (r *ramp) reset() {
	for i := range r.lut {
		for k := range r.lut[i] {
			r.lut[i][k] = limit{lux: math.MaxInt, val: 100}
		}
	}
	r.val = 100
	r.prof = -1
	r.clearThreshold()
}

func (r *ramp) clearThreshold() {
	r.luxLo = math.MaxInt
	r.luxHi = 0
}

// loadProfile reads Limits<Profile> and Levels<Profile>. Problems are
// returned as warnings, a broken profile keeps the 100% default.
func (r *ramp) loadProfile(cfg *config.Config, prof Profile) []string {
	grp := r.group()
	limKey := "Limits" + prof.String()
	levKey := "Levels" + prof.String()

	lims, err := cfg.GetIntList(grp, limKey)
	if err != nil || len(lims) < 1 {
		return []string{fmt.Sprintf("[%s] %s: no items", grp, limKey)}
	}
	levs, err := cfg.GetIntList(grp, levKey)
	if err != nil || len(levs) != len(lims) {
		return []string{fmt.Sprintf("[%s] %s: must have %d items", grp, levKey, len(lims))}
	}

	var warnings []string
	n := len(lims)
	if n > LuxSteps {
		n = LuxSteps
		warnings = append(warnings, fmt.Sprintf("[%s] %s: excess items", grp, limKey))
	}
	for k := 0; k < n; k++ {
		r.lut[prof][k] = limit{lux: lims[k], val: levs[k]}
	}
	return warnings
}

func (r *ramp) load(cfg *config.Config) []string {
	r.reset()
	if !cfg.HasGroup(r.group()) {
		return []string{fmt.Sprintf("[%s]: als config missing", r.group())}
	}
	var warnings []string
	for p := Profile(0); p < profileCount; p++ {
		if r.mask&(1<<uint(p)) != 0 {
			warnings = append(warnings, r.loadProfile(cfg, p)...)
		}
	}
	return warnings
}

func (r *ramp) luxAt(prof Profile, slot int) int {
	if slot < 0 {
		return 0
	}
	if slot < LuxSteps {
		return r.lut[prof][slot].lux
	}
	return math.MaxInt
}

// run returns the brightness percentage for lux. Readings within the
// current thresholds keep the previous result.
func (r *ramp) run(prof Profile, lux int) int {
	if lux < 0 {
		return r.val
	}
	if r.prof == prof && r.luxLo <= lux && lux <= r.luxHi {
		return r.val
	}

	slot := 0
	for ; slot < LuxSteps; slot++ {
		if lux < r.lut[prof][slot].lux {
			break
		}
	}

	r.prof = prof
	if slot < LuxSteps {
		r.val = r.lut[prof][slot].val
	} else {
		r.val = 100
	}

	a := r.luxAt(prof, slot-2)
	b := r.luxAt(prof, slot-1)
	c := r.luxAt(prof, slot)
	r.luxLo = b - min(b-a, c-b)/10
	r.luxHi = c
	logger.Debugf("%s: prof=%v, slot=%d, range=%d...%d", r.id, prof, slot, r.luxLo, r.luxHi)
	return r.val
}
