// SPDX-FileCopyrightText: 2018 - 2023 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datapipe

import (
	"fmt"
)

type Kind int

const (
	KindScalar Kind = iota
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindBlob:
		return "blob"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Payload is the value carried by a pipe. Scalars live in Int, blobs own
// their bytes in Blob.
type Payload struct {
	Kind Kind
	Int  int
	Blob []byte
}

func Int(v int) Payload {
	return Payload{Kind: KindScalar, Int: v}
}

func Bool(v bool) Payload {
	if v {
		return Int(1)
	}
	return Int(0)
}

func Blob(b []byte) Payload {
	return Payload{Kind: KindBlob, Blob: b}
}

// None is an empty blob, used as the initial value of owned pipes that
// have not seen any data yet.
func None() Payload {
	return Payload{Kind: KindBlob}
}

func (p Payload) AsBool() bool {
	return p.Int != 0
}

func (p Payload) IsEmpty() bool {
	return p.Kind == KindBlob && p.Blob == nil
}

func (p Payload) Equal(other Payload) bool {
	if p.Kind != other.Kind {
		return false
	}
	if p.Kind == KindScalar {
		return p.Int == other.Int
	}
	if len(p.Blob) != len(other.Blob) || (p.Blob == nil) != (other.Blob == nil) {
		return false
	}
	for i := range p.Blob {
		if p.Blob[i] != other.Blob[i] {
			return false
		}
	}
	return true
}

func (p Payload) clone() Payload {
	if p.Kind != KindBlob || p.Blob == nil {
		return p
	}
	b := make([]byte, len(p.Blob))
	copy(b, p.Blob)
	return Payload{Kind: KindBlob, Blob: b}
}

func (p Payload) String() string {
	if p.Kind == KindScalar {
		return fmt.Sprintf("%d", p.Int)
	}
	if p.Blob == nil {
		return "<none>"
	}
	return fmt.Sprintf("blob[%d]", len(p.Blob))
}
