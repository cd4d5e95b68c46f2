// SPDX-FileCopyrightText: 2018 - 2023 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mce

import (
	"encoding/binary"
	"time"

	"golang.org/x/xerrors"
)

// InputEventSize is the size of a struct input_event on 64-bit kernels.
const InputEventSize = 24

// InputEvent is the kernel evdev record carried by the keypress and
// touchscreen pipes.
type InputEvent struct {
	Time  time.Time
	Type  uint16
	Code  uint16
	Value int32
}

func (ev InputEvent) Marshal() []byte {
	buf := make([]byte, InputEventSize)
	var sec, usec int64
	if !ev.Time.IsZero() {
		sec = ev.Time.Unix()
		usec = int64(ev.Time.Nanosecond() / 1000)
	}
	binary.LittleEndian.PutUint64(buf[0:], uint64(sec))
	binary.LittleEndian.PutUint64(buf[8:], uint64(usec))
	binary.LittleEndian.PutUint16(buf[16:], ev.Type)
	binary.LittleEndian.PutUint16(buf[18:], ev.Code)
	binary.LittleEndian.PutUint32(buf[20:], uint32(ev.Value))
	return buf
}

func UnmarshalInputEvent(buf []byte) (InputEvent, error) {
	if len(buf) != InputEventSize {
		return InputEvent{}, xerrors.Errorf("input event: got %d bytes, want %d", len(buf), InputEventSize)
	}
	sec := int64(binary.LittleEndian.Uint64(buf[0:]))
	usec := int64(binary.LittleEndian.Uint64(buf[8:]))
	ev := InputEvent{
		Type:  binary.LittleEndian.Uint16(buf[16:]),
		Code:  binary.LittleEndian.Uint16(buf[18:]),
		Value: int32(binary.LittleEndian.Uint32(buf[20:])),
	}
	if sec != 0 || usec != 0 {
		ev.Time = time.Unix(sec, usec*1000)
	}
	return ev, nil
}
