// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dsme

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// Every message starts with line size, message size and type, all
// native endian uint32.
const headerSize = 12

const (
	MsgTypeStateChangeInd uint32 = 0x00000301
	MsgTypeStateQuery     uint32 = 0x00000302
	MsgTypeProcesswdPing  uint32 = 0x00000504
	MsgTypeProcesswdPong  uint32 = 0x00000504 + 0x1000
)

const maxMessageSize = 4096

type Message struct {
	Type    uint32
	Payload []byte
}

func (m Message) Marshal() []byte {
	size := headerSize + len(m.Payload)
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:], uint32(size))
	binary.LittleEndian.PutUint32(buf[4:], uint32(size))
	binary.LittleEndian.PutUint32(buf[8:], m.Type)
	copy(buf[headerSize:], m.Payload)
	return buf
}

func ReadMessage(r io.Reader) (Message, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Message{}, err
	}
	size := binary.LittleEndian.Uint32(hdr[4:])
	if size < headerSize || size > maxMessageSize {
		return Message{}, xerrors.Errorf("bad dsme message size %d", size)
	}
	msg := Message{
		Type:    binary.LittleEndian.Uint32(hdr[8:]),
		Payload: make([]byte, size-headerSize),
	}
	if _, err := io.ReadFull(r, msg.Payload); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func stateChangeInd(state int32) Message {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, uint32(state))
	return Message{Type: MsgTypeStateChangeInd, Payload: payload}
}

func (m Message) State() (int32, bool) {
	if m.Type != MsgTypeStateChangeInd || len(m.Payload) < 4 {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(m.Payload)), true
}
