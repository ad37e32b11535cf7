// Package rpc exposes the tone and message services over gRPC.
//
// Messages are plain Go structs carried by a JSON codec registered under the "json"
// content subtype, so clients must dial with grpc.CallContentSubtype(CodecName).
package rpc

import (
	"github.com/bytedance/sonic"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype served by this package.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return sonic.ConfigStd.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return sonic.ConfigStd.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}
