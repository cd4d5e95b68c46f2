// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package filterbrightnessals

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/linuxdeepin/mce-daemon/config"
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/mce"
	"github.com/linuxdeepin/mce-daemon/sensorfw"
	C "gopkg.in/check.v1"
)

func Test(t *testing.T) {
	C.TestingT(t)
}

type mySuite struct {
	dir string
	cfg *config.Config
	ctx *mce.Context
}

var _ = C.Suite(&mySuite{})

const testIni = `[BrightnessDisplay]
LimitsNormal=10;100;1000
LevelsNormal=20;60;100
LimitsBright=10;100
LevelsBright=40

[BrightnessLed]
LimitsNormal=50
LevelsNormal=80

[BrightnessKeypad]
LimitsNormal=10;100
LevelsNormal=100;50
`

func (s *mySuite) SetUpTest(c *C.C) {
	s.dir = c.MkDir()
	path := filepath.Join(s.dir, "mce.ini")
	c.Assert(os.WriteFile(path, []byte(testIni), 0644), C.IsNil)

	var err error
	s.cfg, err = config.Load(path)
	c.Assert(err, C.IsNil)
	s.ctx, err = mce.NewContext(nil, s.cfg)
	c.Assert(err, C.IsNil)
}

func (s *mySuite) TearDownTest(c *C.C) {
	s.ctx.Close()
}

func (s *mySuite) sensors(c *C.C, lux string) *sensorfw.Sensorfw {
	iio := filepath.Join(s.dir, "iio")
	dev := filepath.Join(iio, "iio:device0")
	c.Assert(os.MkdirAll(dev, 0755), C.IsNil)
	c.Assert(os.WriteFile(filepath.Join(dev, "in_illuminance_input"), []byte(lux), 0644), C.IsNil)

	ini := filepath.Join(s.dir, "sensors.ini")
	c.Assert(os.WriteFile(ini, []byte("[Sensors]\nIIORoot="+iio+"\n"), 0644), C.IsNil)
	cfg, err := config.Load(ini)
	c.Assert(err, C.IsNil)
	return sensorfw.New(nil, cfg)
}

func (s *mySuite) setDisplay(state mce.DisplayState) {
	in := dp.Int(int(state))
	s.ctx.Pipe(mce.PipeDisplayState).Execute(&in, dp.UseIndata, dp.CacheIndata)
}

func (s *mySuite) filtered(name string, v int) int {
	in := dp.Int(v)
	return s.ctx.Pipe(name).Execute(&in, dp.UseIndata, dp.DontCacheIndata).Int
}

func (s *mySuite) TestRampHysteresis(c *C.C) {
	r := newRamp("Display", ProfileNormal)
	c.Check(r.load(s.cfg), C.HasLen, 0)

	c.Check(r.run(ProfileNormal, 50), C.Equals, 60)
	c.Check(r.luxLo, C.Equals, 9)
	c.Check(r.luxHi, C.Equals, 100)

	// inside the thresholds nothing changes
	c.Check(r.run(ProfileNormal, 9), C.Equals, 60)
	c.Check(r.run(ProfileNormal, 100), C.Equals, 60)

	c.Check(r.run(ProfileNormal, 8), C.Equals, 20)
	c.Check(r.run(ProfileNormal, 101), C.Equals, 100)
	c.Check(r.luxLo, C.Equals, 100-90/10)
	c.Check(r.luxHi, C.Equals, 1000)

	// beyond the last limit
	c.Check(r.run(ProfileNormal, 5000), C.Equals, 100)
	c.Check(r.luxHi, C.Equals, math.MaxInt)

	// no reading keeps the last value
	c.Check(r.run(ProfileNormal, -1), C.Equals, 100)
}

func (s *mySuite) TestRampLoadWarnings(c *C.C) {
	r := newRamp("Display", ProfileNormal, ProfileBright, ProfileMaximum)
	warnings := r.load(s.cfg)
	c.Check(warnings, C.DeepEquals, []string{
		"[BrightnessDisplay] LevelsBright: must have 2 items",
		"[BrightnessDisplay] LimitsMaximum: no items",
	})
	// a broken profile maps everything to 100%
	c.Check(r.run(ProfileBright, 5), C.Equals, 100)

	missing := newRamp("Nothing", ProfileNormal)
	c.Check(missing.load(s.cfg), C.DeepEquals, []string{"[BrightnessNothing]: als config missing"})
}

func (s *mySuite) TestNoSensor(c *C.C) {
	m := NewModule()
	c.Assert(m.Register(s.ctx), C.IsNil)
	defer m.Unregister(s.ctx)

	s.setDisplay(mce.DisplayOn)
	c.Check(s.filtered(mce.PipeDisplayBrightness, 3), C.Equals, 50)
	c.Check(s.filtered(mce.PipeDisplayBrightness, 9), C.Equals, 100)
	c.Check(s.filtered(mce.PipeLedBrightness, 100), C.Equals, 40)
	c.Check(s.filtered(mce.PipeKeyBacklight, 80), C.Equals, 80)
}

func (s *mySuite) TestSensorFollowsDisplay(c *C.C) {
	m := NewModule()
	m.sensors = s.sensors(c, "50\n")
	c.Assert(m.Register(s.ctx), C.IsNil)
	defer m.Unregister(s.ctx)

	c.Check(m.sensors.ALSEnabled(), C.Equals, false)
	c.Check(s.ctx.Pipe(mce.PipeAmbientLight).Int(), C.Equals, mce.AmbientLightUnknown)

	s.setDisplay(mce.DisplayOn)
	c.Check(m.sensors.ALSEnabled(), C.Equals, true)
	c.Check(s.ctx.Pipe(mce.PipeAmbientLight).Int(), C.Equals, 50)
	c.Check(s.filtered(mce.PipeDisplayBrightness, 3), C.Equals, 60)
	c.Check(s.filtered(mce.PipeLedBrightness, 100), C.Equals, 100)
	c.Check(s.filtered(mce.PipeKeyBacklight, 80), C.Equals, 40)

	m.luxChanged(5)
	c.Check(s.ctx.Pipe(mce.PipeAmbientLight).Int(), C.Equals, 5)
	c.Check(s.filtered(mce.PipeDisplayBrightness, 3), C.Equals, 20)
	c.Check(s.filtered(mce.PipeLedBrightness, 100), C.Equals, 80)

	s.setDisplay(mce.DisplayOff)
	c.Check(m.sensors.ALSEnabled(), C.Equals, false)
}

func (s *mySuite) TestExternalEnablers(c *C.C) {
	m := NewModule()
	m.sensors = s.sensors(c, "50\n")
	c.Assert(m.Register(s.ctx), C.IsNil)
	defer m.Unregister(s.ctx)

	m.RequestALSEnable(":1.42")
	m.RequestALSEnable(":1.42")
	m.RequestALSEnable(":1.7")
	c.Check(m.sensors.ALSEnabled(), C.Equals, true)
	c.Check(m.ALSEnablers(), C.DeepEquals, []string{":1.42", ":1.7"})

	m.RequestALSDisable(":1.42")
	c.Check(m.sensors.ALSEnabled(), C.Equals, true)
	m.DropALSRequests(":1.7")
	c.Check(m.sensors.ALSEnabled(), C.Equals, false)
	c.Check(m.ALSEnablers(), C.HasLen, 0)
}

func (s *mySuite) TestDisabledByConfig(c *C.C) {
	path := filepath.Join(s.dir, "mce.ini")
	c.Assert(os.WriteFile(path, []byte(testIni+"\n[ALS]\nEnabled=false\n"), 0644), C.IsNil)
	c.Assert(s.cfg.Reload(), C.IsNil)

	m := NewModule()
	m.sensors = s.sensors(c, "50\n")
	c.Assert(m.Register(s.ctx), C.IsNil)
	defer m.Unregister(s.ctx)

	s.setDisplay(mce.DisplayOn)
	c.Check(m.sensors.ALSEnabled(), C.Equals, false)
	c.Check(s.filtered(mce.PipeDisplayBrightness, 3), C.Equals, 50)

	c.Assert(os.WriteFile(path, []byte(testIni), 0644), C.IsNil)
	c.Assert(s.cfg.Reload(), C.IsNil)
	m.ReloadConfig(s.ctx)
	c.Check(m.sensors.ALSEnabled(), C.Equals, true)
	c.Check(s.filtered(mce.PipeDisplayBrightness, 3), C.Equals, 60)
}
