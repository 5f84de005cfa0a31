package rpc

import (
	"gopkg.in/vmihailenco/msgpack.v2"
)

// MsgPackCodec encodes rpc messages with MsgPack, which handles our
// interface-typed row values without generated code.
type MsgPackCodec struct {
}

func (c *MsgPackCodec) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (c *MsgPackCodec) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

func (c *MsgPackCodec) String() string {
	return "MsgPackCodec"
}
