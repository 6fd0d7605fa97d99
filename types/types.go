// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"github.com/golang/protobuf/proto"
)

// Encode  编码
func Encode(data proto.Message) []byte {
	b, err := proto.Marshal(data)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode  解码
func Decode(data []byte, msg proto.Message) error {
	return proto.Unmarshal(data, msg)
}

// SnapshotEnvelope see proto/snapshot.proto
type SnapshotEnvelope struct {
	Version              uint32   `protobuf:"varint,1,opt,name=version,proto3" json:"version,omitempty"`
	Kind                 string   `protobuf:"bytes,2,opt,name=kind,proto3" json:"kind,omitempty"`
	State                string   `protobuf:"bytes,3,opt,name=state,proto3" json:"state,omitempty"`
	Body                 []byte   `protobuf:"bytes,4,opt,name=body,proto3" json:"body,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

// Reset reset
func (m *SnapshotEnvelope) Reset() { *m = SnapshotEnvelope{} }

func (m *SnapshotEnvelope) String() string { return proto.CompactTextString(m) }

// ProtoMessage proto message
func (*SnapshotEnvelope) ProtoMessage() {}

// GetVersion get version
func (m *SnapshotEnvelope) GetVersion() uint32 {
	if m != nil {
		return m.Version
	}
	return 0
}

// GetKind get kind
func (m *SnapshotEnvelope) GetKind() string {
	if m != nil {
		return m.Kind
	}
	return ""
}

// GetState get state
func (m *SnapshotEnvelope) GetState() string {
	if m != nil {
		return m.State
	}
	return ""
}

// GetBody get body
func (m *SnapshotEnvelope) GetBody() []byte {
	if m != nil {
		return m.Body
	}
	return nil
}
