package inference

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered as a gRPC content-subtype so this package's
// request/response types can ride over google.golang.org/grpc's transport,
// keepalive, and streaming machinery without depending on protoc-generated
// message types. See DESIGN.md's internal/inference entry for why: a
// hand-maintained .pb.go (with real descriptor/reflection plumbing) cannot
// be produced without running protoc, so this swaps only the wire codec,
// not the transport.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// callContentSubtype is passed via grpc.CallContentSubtype to force the
// json codec for every call this package makes.
func callContentSubtype() string { return jsonCodecName }
